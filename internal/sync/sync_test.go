// internal/sync/sync_test.go
package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giziti/beltbot/internal/belt"
	"github.com/giziti/beltbot/internal/provider"
	"github.com/giziti/beltbot/internal/store"
	"github.com/giziti/beltbot/internal/verify"
)

func strPtr(s string) *string { return &s }
func intPtr(v int) *int       { return &v }

// fakeStore is an in-memory Store that counts writes so tests can
// assert the no-write guarantees.
type fakeStore struct {
	identities map[string]bool
	profiles   map[string]store.ProviderProfile // provider + "/" + identity
	awards     map[string]belt.Rank
	upserts    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		identities: map[string]bool{},
		profiles:   map[string]store.ProviderProfile{},
		awards:     map[string]belt.Rank{},
	}
}

func key(providerName, identity string) string { return providerName + "/" + identity }

func (f *fakeStore) EnsureIdentity(_ context.Context, identity string) error {
	f.identities[identity] = true
	return nil
}

func (f *fakeStore) GetProviderProfile(_ context.Context, providerName, identity string) (*store.ProviderProfile, bool, error) {
	p, ok := f.profiles[key(providerName, identity)]
	if !ok {
		return nil, false, nil
	}
	return &p, true, nil
}

func (f *fakeStore) UpsertProviderProfile(_ context.Context, p store.ProviderProfile) error {
	f.upserts++
	f.profiles[key(p.Provider, p.Identity)] = p
	return nil
}

func (f *fakeStore) DeleteProviderProfile(_ context.Context, providerName, identity string) (int64, error) {
	k := key(providerName, identity)
	if _, ok := f.profiles[k]; !ok {
		return 0, nil
	}
	delete(f.profiles, k)
	return 1, nil
}

func (f *fakeStore) DeleteIdentity(_ context.Context, identity string) (int64, error) {
	if !f.identities[identity] {
		return 0, nil
	}
	delete(f.identities, identity)
	for k, p := range f.profiles {
		if p.Identity == identity {
			delete(f.profiles, k)
		}
	}
	delete(f.awards, identity)
	return 1, nil
}

func (f *fakeStore) AwardModRank(_ context.Context, identity string, rank belt.Rank, _ string) error {
	f.awards[identity] = rank
	return nil
}

func (f *fakeStore) GetAggregate(_ context.Context, identity string) (*store.Aggregate, bool, error) {
	if !f.identities[identity] {
		return nil, false, nil
	}
	agg := &store.Aggregate{Identity: identity}
	if rank, ok := f.awards[identity]; ok {
		r := rank
		agg.ModRank = &r
	}
	for _, p := range f.profiles {
		if p.Identity == identity {
			agg.Profiles = append(agg.Profiles, p)
		}
	}
	return agg, true, nil
}

func (f *fakeStore) TopByProvider(_ context.Context, providerName string, limit int) ([]store.LadderEntry, error) {
	var entries []store.LadderEntry
	for _, p := range f.profiles {
		if p.Provider == providerName && p.CurrentRating != nil {
			entries = append(entries, store.LadderEntry{Username: p.Username, Rating: *p.CurrentRating})
		}
	}
	return entries, nil
}

func (f *fakeStore) LadderWindow(_ context.Context, providerName string, rating, span int) ([]store.LadderEntry, error) {
	return f.TopByProvider(nil, providerName, span)
}

// fakeActuator records role changes per identity.
type fakeActuator struct {
	granted  map[string][]string
	revoked  map[string][]string
	grantErr error
}

func newFakeActuator() *fakeActuator {
	return &fakeActuator{granted: map[string][]string{}, revoked: map[string][]string{}}
}

func (f *fakeActuator) GrantRole(_ context.Context, identity, roleName string) error {
	if f.grantErr != nil {
		return f.grantErr
	}
	f.granted[identity] = append(f.granted[identity], roleName)
	return nil
}

func (f *fakeActuator) RevokeRoles(_ context.Context, identity string, roleNames []string) error {
	f.revoked[identity] = append(f.revoked[identity], roleNames...)
	return nil
}

func (f *fakeActuator) lastGranted(identity string) string {
	roles := f.granted[identity]
	if len(roles) == 0 {
		return ""
	}
	return roles[len(roles)-1]
}

// fakeProvider returns canned fetch/resolve results.
type fakeProvider struct {
	name       string
	profile    *provider.Profile
	fetchErr   error
	rating     *int
	resolveErr error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) FetchProfile(context.Context, string) (*provider.Profile, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.profile, nil
}

func (f *fakeProvider) Resolve(*provider.Profile) (*int, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return f.rating, nil
}

func newSynchronizer(st Store, act RoleActuator, provs ...provider.Provider) *Synchronizer {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	m := map[string]provider.Provider{}
	for _, p := range provs {
		m[p.Name()] = p
	}
	return New(st, m, belt.NewClassifier(belt.DefaultTables()), act, logger)
}

func TestLinkFirstTime(t *testing.T) {
	st := newFakeStore()
	act := newFakeActuator()
	prov := &fakeProvider{
		name:    provider.ChessComName,
		profile: &provider.Profile{Location: strPtr("U1")},
		rating:  intPtr(1350),
	}
	s := newSynchronizer(st, act, prov)

	res, err := s.Link(context.Background(), provider.ChessComName, "alice", "U1")
	require.NoError(t, err)

	assert.Equal(t, belt.Yellow, res.Belt)
	assert.Equal(t, belt.Yellow, res.Best)
	assert.True(t, res.Promoted)

	stored := st.profiles[key(provider.ChessComName, "U1")]
	assert.Equal(t, "alice", stored.Username)
	require.NotNil(t, stored.CurrentRating)
	assert.Equal(t, 1350, *stored.CurrentRating)
	assert.Nil(t, stored.PreviousRating)
	assert.Equal(t, belt.Yellow, stored.Belt)

	assert.Equal(t, "yellow", act.lastGranted("U1"))
	assert.NotContains(t, act.revoked["U1"], "yellow")
	assert.Contains(t, act.revoked["U1"], "white")
	assert.Contains(t, act.revoked["U1"], "black")
}

func TestLinkOwnershipGateBlocksWrites(t *testing.T) {
	st := newFakeStore()
	act := newFakeActuator()
	prov := &fakeProvider{
		name:    provider.ChessComName,
		profile: &provider.Profile{Location: strPtr("someone else")},
		rating:  intPtr(1350),
	}
	s := newSynchronizer(st, act, prov)

	_, err := s.Link(context.Background(), provider.ChessComName, "alice", "U1")
	var verr *verify.Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, verify.ReasonMismatch, verr.Reason)
	assert.Zero(t, st.upserts)
	assert.Empty(t, act.granted["U1"])
}

func TestLinkSkipsVerificationWhenAlreadyLinked(t *testing.T) {
	st := newFakeStore()
	act := newFakeActuator()
	// No ownership marker on the profile; verification would fail if run.
	prov := &fakeProvider{
		name:    provider.ChessComName,
		profile: &provider.Profile{},
		rating:  intPtr(1450),
	}
	s := newSynchronizer(st, act, prov)

	st.identities["U1"] = true
	st.profiles[key(provider.ChessComName, "U1")] = store.ProviderProfile{
		Provider:      provider.ChessComName,
		Username:      "alice",
		Identity:      "U1",
		CurrentRating: intPtr(1350),
		Belt:          belt.Yellow,
	}

	res, err := s.Link(context.Background(), provider.ChessComName, "alice", "U1")
	require.NoError(t, err)
	assert.Equal(t, belt.Orange, res.Belt)

	stored := st.profiles[key(provider.ChessComName, "U1")]
	require.NotNil(t, stored.PreviousRating)
	assert.Equal(t, 1350, *stored.PreviousRating)
	assert.Equal(t, 1450, *stored.CurrentRating)
}

func TestLinkDifferentUsernameRequiresUnlink(t *testing.T) {
	st := newFakeStore()
	act := newFakeActuator()
	prov := &fakeProvider{
		name:    provider.ChessComName,
		profile: &provider.Profile{Location: strPtr("U1")},
		rating:  intPtr(1350),
	}
	s := newSynchronizer(st, act, prov)

	st.identities["U1"] = true
	st.profiles[key(provider.ChessComName, "U1")] = store.ProviderProfile{
		Provider: provider.ChessComName,
		Username: "alice",
		Identity: "U1",
		Belt:     belt.Yellow,
	}

	_, err := s.Link(context.Background(), provider.ChessComName, "completely-new", "U1")
	assert.ErrorIs(t, err, ErrAlreadyLinked)
	assert.Zero(t, st.upserts)
}

func TestLinkUnknownProvider(t *testing.T) {
	s := newSynchronizer(newFakeStore(), newFakeActuator())
	_, err := s.Link(context.Background(), "gameknot", "alice", "U1")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestUpdateInsufficientDataLeavesRating(t *testing.T) {
	st := newFakeStore()
	act := newFakeActuator()
	prov := &fakeProvider{
		name:       provider.LichessName,
		profile:    &provider.Profile{},
		resolveErr: provider.ErrInsufficientData,
	}
	s := newSynchronizer(st, act, prov)

	st.identities["U1"] = true
	st.profiles[key(provider.LichessName, "U1")] = store.ProviderProfile{
		Provider:      provider.LichessName,
		Username:      "bob",
		Identity:      "U1",
		CurrentRating: intPtr(1500),
		Belt:          belt.Orange,
	}

	_, err := s.Update(context.Background(), "U1")
	assert.ErrorIs(t, err, provider.ErrInsufficientData)

	stored := st.profiles[key(provider.LichessName, "U1")]
	require.NotNil(t, stored.CurrentRating)
	assert.Equal(t, 1500, *stored.CurrentRating)
	assert.Zero(t, st.upserts)
}

func TestUpdateNotLinked(t *testing.T) {
	st := newFakeStore()
	st.identities["U1"] = true
	s := newSynchronizer(st, newFakeActuator(), &fakeProvider{name: provider.ChessComName})

	_, err := s.Update(context.Background(), "U1")
	assert.ErrorIs(t, err, ErrNotLinked)
}

func TestUpdateRefreshesAndReportsPromotion(t *testing.T) {
	st := newFakeStore()
	act := newFakeActuator()
	prov := &fakeProvider{
		name:    provider.ChessComName,
		profile: &provider.Profile{},
		rating:  intPtr(1650),
	}
	s := newSynchronizer(st, act, prov)

	st.identities["U1"] = true
	st.profiles[key(provider.ChessComName, "U1")] = store.ProviderProfile{
		Provider:      provider.ChessComName,
		Username:      "alice",
		Identity:      "U1",
		CurrentRating: intPtr(1350),
		Belt:          belt.Yellow,
	}

	res, err := s.Update(context.Background(), "U1")
	require.NoError(t, err)
	require.Len(t, res.Updated, 1)
	assert.Equal(t, belt.Green, res.Updated[0].Belt)
	assert.True(t, res.Promoted)
	assert.Equal(t, "green", act.lastGranted("U1"))
}

func TestUpdateNoPromotionOnSameBand(t *testing.T) {
	st := newFakeStore()
	act := newFakeActuator()
	prov := &fakeProvider{
		name:    provider.ChessComName,
		profile: &provider.Profile{},
		rating:  intPtr(1360),
	}
	s := newSynchronizer(st, act, prov)

	st.identities["U1"] = true
	st.profiles[key(provider.ChessComName, "U1")] = store.ProviderProfile{
		Provider:      provider.ChessComName,
		Username:      "alice",
		Identity:      "U1",
		CurrentRating: intPtr(1350),
		Belt:          belt.Yellow,
	}

	res, err := s.Update(context.Background(), "U1")
	require.NoError(t, err)
	assert.False(t, res.Promoted)
}

func TestUnlinkNothingLinked(t *testing.T) {
	st := newFakeStore()
	st.identities["U1"] = true
	s := newSynchronizer(st, newFakeActuator(), &fakeProvider{name: provider.ChessComName})

	removed, err := s.Unlink(context.Background(), provider.ChessComName, "U1")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestUnlinkAllProviders(t *testing.T) {
	st := newFakeStore()
	act := newFakeActuator()
	s := newSynchronizer(st, act,
		&fakeProvider{name: provider.ChessComName},
		&fakeProvider{name: provider.LichessName},
	)

	st.identities["U1"] = true
	st.profiles[key(provider.ChessComName, "U1")] = store.ProviderProfile{
		Provider: provider.ChessComName, Username: "alice", Identity: "U1", Belt: belt.Blue,
	}
	st.profiles[key(provider.LichessName, "U1")] = store.ProviderProfile{
		Provider: provider.LichessName, Username: "bob", Identity: "U1", Belt: belt.Orange,
	}

	removed, err := s.Unlink(context.Background(), "", "U1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	// With every link gone the identity falls back to the lowest belt.
	assert.Equal(t, "white", act.lastGranted("U1"))
}

func TestProfileAggregateUsesRankOrder(t *testing.T) {
	st := newFakeStore()
	s := newSynchronizer(st, newFakeActuator(),
		&fakeProvider{name: provider.ChessComName},
		&fakeProvider{name: provider.LichessName},
	)

	st.identities["U1"] = true
	green := belt.Green
	st.awards["U1"] = green
	st.profiles[key(provider.ChessComName, "U1")] = store.ProviderProfile{
		Provider: provider.ChessComName, Username: "alice", Identity: "U1", Belt: belt.Blue,
	}
	st.profiles[key(provider.LichessName, "U1")] = store.ProviderProfile{
		Provider: provider.LichessName, Username: "bob", Identity: "U1", Belt: belt.Orange,
	}

	view, err := s.Profile(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, belt.Blue, view.Best)
}

func TestProfileUnknownIdentity(t *testing.T) {
	s := newSynchronizer(newFakeStore(), newFakeActuator())
	_, err := s.Profile(context.Background(), "stranger")
	assert.ErrorIs(t, err, ErrUnknownIdentity)
}

func TestAwardRankPromotes(t *testing.T) {
	st := newFakeStore()
	act := newFakeActuator()
	s := newSynchronizer(st, act, &fakeProvider{name: provider.ChessComName})

	res, err := s.AwardRank(context.Background(), "U2", belt.Brown, "mod-1")
	require.NoError(t, err)
	assert.True(t, res.Promoted)
	assert.Equal(t, belt.Brown, res.Best)
	assert.Equal(t, "brown", act.lastGranted("U2"))
}

func TestAwardRankDoesNotDemoteAggregate(t *testing.T) {
	st := newFakeStore()
	act := newFakeActuator()
	s := newSynchronizer(st, act, &fakeProvider{name: provider.ChessComName})

	st.identities["U1"] = true
	st.profiles[key(provider.ChessComName, "U1")] = store.ProviderProfile{
		Provider: provider.ChessComName, Username: "alice", Identity: "U1", Belt: belt.Red,
	}

	res, err := s.AwardRank(context.Background(), "U1", belt.Green, "mod-1")
	require.NoError(t, err)
	assert.False(t, res.Promoted)
	assert.Equal(t, belt.Red, res.Best)
}

func TestDeleteIdentity(t *testing.T) {
	st := newFakeStore()
	act := newFakeActuator()
	s := newSynchronizer(st, act, &fakeProvider{name: provider.ChessComName})

	st.identities["U1"] = true
	removed, err := s.DeleteIdentity(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.ElementsMatch(t, belt.Names(), act.revoked["U1"])

	removed, err = s.DeleteIdentity(context.Background(), "U1")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestLinkRoleNotConfigured(t *testing.T) {
	st := newFakeStore()
	act := newFakeActuator()
	act.grantErr = ErrRoleNotConfigured
	prov := &fakeProvider{
		name:    provider.ChessComName,
		profile: &provider.Profile{Location: strPtr("U1")},
		rating:  intPtr(1350),
	}
	s := newSynchronizer(st, act, prov)

	_, err := s.Link(context.Background(), provider.ChessComName, "alice", "U1")
	assert.ErrorIs(t, err, ErrRoleNotConfigured)
}
