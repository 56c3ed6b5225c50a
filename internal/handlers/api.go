// internal/handlers/api.go

// Package handlers exposes the moderator HTTP surface: session login
// plus the privileged award/forget operations and read-only profile
// and leaderboard lookups.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/giziti/beltbot/internal/auth"
	"github.com/giziti/beltbot/internal/belt"
	"github.com/giziti/beltbot/internal/store"
	"github.com/giziti/beltbot/internal/sync"
)

// Core is the slice of the synchronizer the HTTP surface needs.
type Core interface {
	Profile(ctx context.Context, identity string) (*sync.ProfileView, error)
	Top(ctx context.Context, providerName string) ([]store.LadderEntry, error)
	AwardRank(ctx context.Context, identity string, rank belt.Rank, awardedBy string) (*sync.Outcome, error)
	DeleteIdentity(ctx context.Context, identity string) (int64, error)
}

// API serves the moderator endpoints.
type API struct {
	core     Core
	sessions *auth.Sessions
	modHash  string
	logger   *logrus.Logger
}

// NewAPI builds the HTTP surface. modHash is the Argon2id hash
// moderators log in against; empty disables login entirely.
func NewAPI(core Core, sessions *auth.Sessions, modHash string, logger *logrus.Logger) *API {
	return &API{core: core, sessions: sessions, modHash: modHash, logger: logger}
}

// Register attaches all routes to mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("/mod/login", a.LoginHandler)
	mux.HandleFunc("/mod/award", a.AwardHandler)
	mux.HandleFunc("/mod/forget", a.ForgetHandler)
	mux.HandleFunc("/profile/", a.ProfileHandler)
	mux.HandleFunc("/top/", a.TopHandler)
}

// LoginHandler exchanges the operator password for a session token.
func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.modHash == "" {
		http.Error(w, "moderator login is not configured", http.StatusForbidden)
		return
	}

	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	ok, err := auth.VerifyPassword(req.Password, a.modHash)
	if err != nil {
		a.logger.Warnf("operator hash verification error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "invalid credentials", http.StatusForbidden)
		return
	}

	token, err := a.sessions.Issue(req.Name)
	if err != nil {
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// AwardHandler records a moderator belt award.
func (a *API) AwardHandler(w http.ResponseWriter, r *http.Request) {
	moderator, ok := a.requireMod(w, r)
	if !ok {
		return
	}

	var req struct {
		Identity string `json:"identity"`
		Belt     string `json:"belt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Identity == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	rank, err := belt.ParseRank(req.Belt)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	outcome, err := a.core.AwardRank(r.Context(), req.Identity, rank, moderator)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"identity": outcome.Identity,
		"best":     outcome.Best.String(),
		"promoted": outcome.Promoted,
	})
}

// ForgetHandler deletes an identity and everything linked to it.
func (a *API) ForgetHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireMod(w, r); !ok {
		return
	}

	var req struct {
		Identity string `json:"identity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Identity == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	deleted, err := a.core.DeleteIdentity(r.Context(), req.Identity)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// ProfileHandler returns the aggregate view for /profile/{identity}.
func (a *API) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	identity := strings.TrimPrefix(r.URL.Path, "/profile/")
	if identity == "" {
		http.Error(w, "missing identity in path (/profile/{identity})", http.StatusBadRequest)
		return
	}

	view, err := a.core.Profile(r.Context(), identity)
	if err != nil {
		a.writeError(w, err)
		return
	}

	type profileJSON struct {
		Provider       string `json:"provider"`
		Username       string `json:"username"`
		CurrentRating  *int   `json:"current_rating"`
		PreviousRating *int   `json:"previous_rating"`
		Belt           string `json:"belt"`
	}
	resp := struct {
		Identity string        `json:"identity"`
		Best     string        `json:"best"`
		ModRank  *string       `json:"mod_rank,omitempty"`
		Profiles []profileJSON `json:"profiles"`
	}{
		Identity: view.Aggregate.Identity,
		Best:     view.Best.String(),
		Profiles: []profileJSON{},
	}
	if view.Aggregate.ModRank != nil {
		name := view.Aggregate.ModRank.String()
		resp.ModRank = &name
	}
	for _, p := range view.Aggregate.Profiles {
		resp.Profiles = append(resp.Profiles, profileJSON{
			Provider:       p.Provider,
			Username:       p.Username,
			CurrentRating:  p.CurrentRating,
			PreviousRating: p.PreviousRating,
			Belt:           p.Belt.String(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// TopHandler returns the leaderboard for /top/{provider}.
func (a *API) TopHandler(w http.ResponseWriter, r *http.Request) {
	providerName := strings.TrimPrefix(r.URL.Path, "/top/")
	if providerName == "" {
		http.Error(w, "missing provider in path (/top/{provider})", http.StatusBadRequest)
		return
	}

	entries, err := a.core.Top(r.Context(), providerName)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []store.LadderEntry{}
	}
	type entryJSON struct {
		Username string `json:"username"`
		Rating   int    `json:"rating"`
	}
	resp := make([]entryJSON, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, entryJSON{Username: e.Username, Rating: e.Rating})
	}
	writeJSON(w, http.StatusOK, resp)
}

// requireMod authenticates the request's bearer token and returns the
// moderator name.
func (a *API) requireMod(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return "", false
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return "", false
	}
	moderator, err := a.sessions.Verify(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		http.Error(w, "invalid token", http.StatusForbidden)
		return "", false
	}
	return moderator, true
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	var serr *store.Error
	switch {
	case errors.Is(err, sync.ErrUnknownIdentity):
		http.Error(w, "identity not found", http.StatusNotFound)
	case errors.Is(err, sync.ErrUnknownProvider):
		http.Error(w, "unknown provider", http.StatusBadRequest)
	case errors.As(err, &serr):
		a.logger.WithFields(logrus.Fields{"op": serr.Op, "error": serr.Err}).Warn("store operation failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	default:
		a.logger.WithField("error", err).Warn("moderator API error")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
