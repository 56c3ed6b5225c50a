// internal/sync/sync.go

// Package sync orchestrates account linking: ownership verification,
// rating resolution, belt classification, persistence, and keeping the
// chat platform's rank role in step with the identity's best belt.
package sync

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/giziti/beltbot/internal/belt"
	"github.com/giziti/beltbot/internal/provider"
	"github.com/giziti/beltbot/internal/store"
	"github.com/giziti/beltbot/internal/verify"
)

// DefaultTopLimit is the leaderboard size for the top command.
const DefaultTopLimit = 10

// DefaultWindowSpan is how many players above and below the caller the
// page command shows.
const DefaultWindowSpan = 5

var (
	// ErrUnknownProvider means the command named a provider the bot
	// does not know.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrNotLinked means the identity has no link for the requested
	// provider (or any provider, for identity-wide operations).
	ErrNotLinked = errors.New("no linked account")

	// ErrAlreadyLinked means the identity already has a different
	// username linked for that provider; it must unlink first.
	ErrAlreadyLinked = errors.New("provider already linked; unlink first")

	// ErrUnknownIdentity means the identity has never interacted with
	// the bot.
	ErrUnknownIdentity = errors.New("unknown identity")

	// ErrRoleNotConfigured is returned by role actuators when the
	// guild has no role matching a rank name.
	ErrRoleNotConfigured = errors.New("rank role not configured")

	// ErrUnauthorized guards moderator-only operations. The check runs
	// in the command layer, before the core is reached.
	ErrUnauthorized = errors.New("not authorized")
)

// Store is the persistence surface the synchronizer needs.
type Store interface {
	EnsureIdentity(ctx context.Context, identity string) error
	GetProviderProfile(ctx context.Context, providerName, identity string) (*store.ProviderProfile, bool, error)
	UpsertProviderProfile(ctx context.Context, p store.ProviderProfile) error
	DeleteProviderProfile(ctx context.Context, providerName, identity string) (int64, error)
	DeleteIdentity(ctx context.Context, identity string) (int64, error)
	AwardModRank(ctx context.Context, identity string, rank belt.Rank, awardedBy string) error
	GetAggregate(ctx context.Context, identity string) (*store.Aggregate, bool, error)
	TopByProvider(ctx context.Context, providerName string, limit int) ([]store.LadderEntry, error)
	LadderWindow(ctx context.Context, providerName string, rating, span int) ([]store.LadderEntry, error)
}

// RoleActuator applies rank roles on the chat platform. An identity
// holds exactly one rank role at a time, so every grant is paired with
// a revoke of the rest of the set.
type RoleActuator interface {
	GrantRole(ctx context.Context, identity, roleName string) error
	RevokeRoles(ctx context.Context, identity string, roleNames []string) error
}

// Outcome reports the identity's best rank after an operation and
// whether it improved during the operation.
type Outcome struct {
	Identity string
	Best     belt.Rank
	Promoted bool
}

// LinkResult is the outcome of a link or per-provider refresh.
type LinkResult struct {
	Outcome
	Provider string
	Username string
	Rating   *int
	Belt     belt.Rank
}

// ProfileUpdate is one provider's refresh within an identity-wide
// update.
type ProfileUpdate struct {
	Provider  string
	Username  string
	OldRating *int
	NewRating *int
	Belt      belt.Rank
}

// UpdateResult is the outcome of refreshing every linked provider.
type UpdateResult struct {
	Outcome
	Updated []ProfileUpdate
}

// ProfileView is the read-only answer to the profile command.
type ProfileView struct {
	Aggregate *store.Aggregate
	Best      belt.Rank
}

// Synchronizer wires the verification, resolution, classification, and
// persistence steps together. All collaborators are injected.
type Synchronizer struct {
	store      Store
	providers  map[string]provider.Provider
	classifier *belt.Classifier
	actuator   RoleActuator
	logger     *logrus.Logger
}

// New builds a Synchronizer over the given collaborators.
func New(st Store, providers map[string]provider.Provider, classifier *belt.Classifier, actuator RoleActuator, logger *logrus.Logger) *Synchronizer {
	return &Synchronizer{
		store:      st,
		providers:  providers,
		classifier: classifier,
		actuator:   actuator,
		logger:     logger,
	}
}

// Link connects an external account to the calling identity. First
// links must pass the ownership handshake; an established link for the
// same username is refreshed without re-verification. Nothing is
// written unless both verification (when required) and rating
// resolution succeed.
func (s *Synchronizer) Link(ctx context.Context, providerName, username, identity string) (*LinkResult, error) {
	prov, ok := s.providers[providerName]
	if !ok {
		return nil, ErrUnknownProvider
	}

	if err := s.store.EnsureIdentity(ctx, identity); err != nil {
		return nil, err
	}

	before, err := s.bestRank(ctx, identity)
	if err != nil {
		return nil, err
	}

	existing, linked, err := s.store.GetProviderProfile(ctx, providerName, identity)
	if err != nil {
		return nil, err
	}
	if linked && existing.Username != username {
		return nil, ErrAlreadyLinked
	}

	profile, err := prov.FetchProfile(ctx, username)
	if err != nil {
		s.logFetchFailure(providerName, username, err)
		return nil, err
	}

	// The handshake runs exactly once per (identity, provider); an
	// established link is trusted until unlinked.
	if !linked {
		if err := verify.Ownership(providerName, identity, profile); err != nil {
			return nil, err
		}
	}

	rating, err := prov.Resolve(profile)
	if err != nil {
		return nil, err
	}
	rank := s.classifier.Classify(providerName, rating)

	var previous *int
	if linked {
		previous = existing.CurrentRating
	}
	if err := s.store.UpsertProviderProfile(ctx, store.ProviderProfile{
		Provider:       providerName,
		Username:       username,
		Identity:       identity,
		CurrentRating:  rating,
		PreviousRating: previous,
		Belt:           rank,
	}); err != nil {
		return nil, err
	}

	best, err := s.syncRoles(ctx, identity)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"identity": identity,
		"provider": providerName,
		"username": username,
		"belt":     rank.String(),
		"best":     best.String(),
	}).Info("account linked")

	return &LinkResult{
		Outcome:  Outcome{Identity: identity, Best: best, Promoted: best > before},
		Provider: providerName,
		Username: username,
		Rating:   rating,
		Belt:     rank,
	}, nil
}

// Update refreshes ratings for every provider the identity has linked.
// A provider that resolves to insufficient data aborts the refresh and
// leaves the stored rating exactly as it was.
func (s *Synchronizer) Update(ctx context.Context, identity string) (*UpdateResult, error) {
	before, err := s.bestRank(ctx, identity)
	if err != nil {
		return nil, err
	}

	var updates []ProfileUpdate
	for providerName, prov := range s.providers {
		existing, linked, err := s.store.GetProviderProfile(ctx, providerName, identity)
		if err != nil {
			return nil, err
		}
		if !linked {
			continue
		}

		profile, err := prov.FetchProfile(ctx, existing.Username)
		if err != nil {
			s.logFetchFailure(providerName, existing.Username, err)
			return nil, err
		}
		rating, err := prov.Resolve(profile)
		if err != nil {
			return nil, err
		}
		rank := s.classifier.Classify(providerName, rating)

		if err := s.store.UpsertProviderProfile(ctx, store.ProviderProfile{
			Provider:       providerName,
			Username:       existing.Username,
			Identity:       identity,
			CurrentRating:  rating,
			PreviousRating: existing.CurrentRating,
			Belt:           rank,
		}); err != nil {
			return nil, err
		}
		updates = append(updates, ProfileUpdate{
			Provider:  providerName,
			Username:  existing.Username,
			OldRating: existing.CurrentRating,
			NewRating: rating,
			Belt:      rank,
		})
	}
	if len(updates) == 0 {
		return nil, ErrNotLinked
	}

	best, err := s.syncRoles(ctx, identity)
	if err != nil {
		return nil, err
	}
	return &UpdateResult{
		Outcome: Outcome{Identity: identity, Best: best, Promoted: best > before},
		Updated: updates,
	}, nil
}

// Unlink removes the identity's link for one provider, or for all
// providers when providerName is empty, and re-syncs the rank role
// against whatever remains. Returns how many links were removed; zero
// with a nil error means there was nothing to unlink.
func (s *Synchronizer) Unlink(ctx context.Context, providerName, identity string) (int64, error) {
	var names []string
	if providerName == "" {
		for name := range s.providers {
			names = append(names, name)
		}
	} else {
		if _, ok := s.providers[providerName]; !ok {
			return 0, ErrUnknownProvider
		}
		names = []string{providerName}
	}

	var removed int64
	for _, name := range names {
		n, err := s.store.DeleteProviderProfile(ctx, name, identity)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	if removed == 0 {
		return 0, nil
	}

	if _, err := s.syncRoles(ctx, identity); err != nil {
		return removed, err
	}
	return removed, nil
}

// Profile returns everything known about an identity plus its computed
// best rank.
func (s *Synchronizer) Profile(ctx context.Context, identity string) (*ProfileView, error) {
	agg, ok, err := s.store.GetAggregate(ctx, identity)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownIdentity
	}
	return &ProfileView{Aggregate: agg, Best: bestOf(agg)}, nil
}

// Top returns the provider leaderboard.
func (s *Synchronizer) Top(ctx context.Context, providerName string) ([]store.LadderEntry, error) {
	if _, ok := s.providers[providerName]; !ok {
		return nil, ErrUnknownProvider
	}
	return s.store.TopByProvider(ctx, providerName, DefaultTopLimit)
}

// Page returns the players rated closest to the caller on one
// provider's ladder.
func (s *Synchronizer) Page(ctx context.Context, providerName, identity string) ([]store.LadderEntry, error) {
	if _, ok := s.providers[providerName]; !ok {
		return nil, ErrUnknownProvider
	}
	existing, linked, err := s.store.GetProviderProfile(ctx, providerName, identity)
	if err != nil {
		return nil, err
	}
	if !linked || existing.CurrentRating == nil {
		return nil, ErrNotLinked
	}
	return s.store.LadderWindow(ctx, providerName, *existing.CurrentRating, DefaultWindowSpan)
}

// AwardRank records a moderator-granted belt. The caller has already
// established the awarder's privilege.
func (s *Synchronizer) AwardRank(ctx context.Context, identity string, rank belt.Rank, awardedBy string) (*Outcome, error) {
	if err := s.store.EnsureIdentity(ctx, identity); err != nil {
		return nil, err
	}
	before, err := s.bestRank(ctx, identity)
	if err != nil {
		return nil, err
	}
	if err := s.store.AwardModRank(ctx, identity, rank, awardedBy); err != nil {
		return nil, err
	}
	best, err := s.syncRoles(ctx, identity)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"identity":   identity,
		"belt":       rank.String(),
		"awarded_by": awardedBy,
	}).Info("moderator belt awarded")
	return &Outcome{Identity: identity, Best: best, Promoted: best > before}, nil
}

// DeleteIdentity forgets an identity entirely and strips every rank
// role. Moderator-only; the caller has already checked privilege.
func (s *Synchronizer) DeleteIdentity(ctx context.Context, identity string) (int64, error) {
	removed, err := s.store.DeleteIdentity(ctx, identity)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		if err := s.actuator.RevokeRoles(ctx, identity, belt.Names()); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// bestRank computes the identity's current aggregate rank; an identity
// with no rows yet is simply at the lowest rank.
func (s *Synchronizer) bestRank(ctx context.Context, identity string) (belt.Rank, error) {
	agg, ok, err := s.store.GetAggregate(ctx, identity)
	if err != nil {
		return belt.Lowest, err
	}
	if !ok {
		return belt.Lowest, nil
	}
	return bestOf(agg), nil
}

// syncRoles recomputes the aggregate rank and makes the chat platform
// agree with it: grant the matching role, revoke every other rank
// role.
func (s *Synchronizer) syncRoles(ctx context.Context, identity string) (belt.Rank, error) {
	best, err := s.bestRank(ctx, identity)
	if err != nil {
		return belt.Lowest, err
	}
	if err := s.actuator.GrantRole(ctx, identity, best.String()); err != nil {
		return best, err
	}
	var others []string
	for _, name := range belt.Names() {
		if name != best.String() {
			others = append(others, name)
		}
	}
	if err := s.actuator.RevokeRoles(ctx, identity, others); err != nil {
		return best, err
	}
	return best, nil
}

// bestOf is the enumeration-max over the mod award and every linked
// belt. Comparison uses rank order, never the names.
func bestOf(agg *store.Aggregate) belt.Rank {
	ranks := make([]belt.Rank, 0, len(agg.Profiles)+1)
	if agg.ModRank != nil {
		ranks = append(ranks, *agg.ModRank)
	}
	for _, p := range agg.Profiles {
		ranks = append(ranks, p.Belt)
	}
	return belt.Max(ranks...)
}

func (s *Synchronizer) logFetchFailure(providerName, username string, err error) {
	if errors.Is(err, provider.ErrUnavailable) {
		s.logger.WithFields(logrus.Fields{
			"provider": providerName,
			"username": username,
			"error":    err,
		}).Warn("provider fetch failed")
	}
}
