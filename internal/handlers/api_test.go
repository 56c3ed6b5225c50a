// internal/handlers/api_test.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giziti/beltbot/internal/auth"
	"github.com/giziti/beltbot/internal/belt"
	"github.com/giziti/beltbot/internal/store"
	"github.com/giziti/beltbot/internal/sync"
)

func intPtr(v int) *int { return &v }

type fakeCore struct {
	profileView *sync.ProfileView
	profileErr  error
	topEntries  []store.LadderEntry
	awardCalls  []string
	deleteCount int64
}

func (f *fakeCore) Profile(context.Context, string) (*sync.ProfileView, error) {
	return f.profileView, f.profileErr
}

func (f *fakeCore) Top(context.Context, string) ([]store.LadderEntry, error) {
	return f.topEntries, nil
}

func (f *fakeCore) AwardRank(_ context.Context, identity string, rank belt.Rank, awardedBy string) (*sync.Outcome, error) {
	f.awardCalls = append(f.awardCalls, identity+"/"+rank.String()+"/"+awardedBy)
	return &sync.Outcome{Identity: identity, Best: rank, Promoted: true}, nil
}

func (f *fakeCore) DeleteIdentity(context.Context, string) (int64, error) {
	return f.deleteCount, nil
}

func newTestAPI(t *testing.T, core *fakeCore) (*API, string) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	sessions, err := auth.NewSessions(time.Hour)
	require.NoError(t, err)
	hash, err := auth.HashPassword("opensesame")
	require.NoError(t, err)

	token, err := sessions.Issue("mod-1")
	require.NoError(t, err)

	return NewAPI(core, sessions, hash, logger), token
}

func TestLoginFlow(t *testing.T) {
	api, _ := newTestAPI(t, &fakeCore{})

	req := httptest.NewRequest("POST", "/mod/login", bytes.NewBufferString(`{"name":"mod-1","password":"opensesame"}`))
	w := httptest.NewRecorder()
	api.LoginHandler(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["token"])
}

func TestLoginRejectsBadPassword(t *testing.T) {
	api, _ := newTestAPI(t, &fakeCore{})

	req := httptest.NewRequest("POST", "/mod/login", bytes.NewBufferString(`{"name":"mod-1","password":"nope"}`))
	w := httptest.NewRecorder()
	api.LoginHandler(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAwardRequiresToken(t *testing.T) {
	core := &fakeCore{}
	api, _ := newTestAPI(t, core)

	req := httptest.NewRequest("POST", "/mod/award", bytes.NewBufferString(`{"identity":"U2","belt":"brown"}`))
	w := httptest.NewRecorder()
	api.AwardHandler(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, core.awardCalls)
}

func TestAwardWithToken(t *testing.T) {
	core := &fakeCore{}
	api, token := newTestAPI(t, core)

	req := httptest.NewRequest("POST", "/mod/award", bytes.NewBufferString(`{"identity":"U2","belt":"brown"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	api.AwardHandler(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, core.awardCalls, 1)
	assert.Equal(t, "U2/brown/mod-1", core.awardCalls[0])

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "brown", resp["best"])
	assert.Equal(t, true, resp["promoted"])
}

func TestAwardRejectsUnknownBelt(t *testing.T) {
	core := &fakeCore{}
	api, token := newTestAPI(t, core)

	req := httptest.NewRequest("POST", "/mod/award", bytes.NewBufferString(`{"identity":"U2","belt":"plaid"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	api.AwardHandler(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, core.awardCalls)
}

func TestProfileHandler(t *testing.T) {
	core := &fakeCore{profileView: &sync.ProfileView{
		Aggregate: &store.Aggregate{
			Identity: "U1",
			Profiles: []store.ProviderProfile{{
				Provider:      "chesscom",
				Username:      "alice",
				CurrentRating: intPtr(1350),
				Belt:          belt.Yellow,
			}},
		},
		Best: belt.Yellow,
	}}
	api, _ := newTestAPI(t, core)

	req := httptest.NewRequest("GET", "/profile/U1", nil)
	w := httptest.NewRecorder()
	api.ProfileHandler(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Identity string `json:"identity"`
		Best     string `json:"best"`
		Profiles []struct {
			Username string `json:"username"`
		} `json:"profiles"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "U1", resp.Identity)
	assert.Equal(t, "yellow", resp.Best)
	require.Len(t, resp.Profiles, 1)
	assert.Equal(t, "alice", resp.Profiles[0].Username)
}

func TestProfileHandlerUnknownIdentity(t *testing.T) {
	core := &fakeCore{profileErr: sync.ErrUnknownIdentity}
	api, _ := newTestAPI(t, core)

	req := httptest.NewRequest("GET", "/profile/stranger", nil)
	w := httptest.NewRecorder()
	api.ProfileHandler(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTopHandler(t *testing.T) {
	core := &fakeCore{topEntries: []store.LadderEntry{{Username: "alice", Rating: 1900}}}
	api, _ := newTestAPI(t, core)

	req := httptest.NewRequest("GET", "/top/chesscom", nil)
	w := httptest.NewRecorder()
	api.TopHandler(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alice")
}
