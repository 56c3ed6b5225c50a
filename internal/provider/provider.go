// internal/provider/provider.go
package provider

import (
	"context"
	"errors"
)

// Provider name keys. These appear in the database, the belt tables,
// and chat command arguments, so they must stay stable.
const (
	ChessComName = "chesscom"
	LichessName  = "lichess"
)

var (
	// ErrNotFound indicates the provider has no account with that username.
	ErrNotFound = errors.New("provider profile not found")

	// ErrUnavailable indicates a network or upstream failure. It is
	// surfaced immediately; the core never retries.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrInsufficientData indicates the account exists but carries no
	// usable rating in any live category. Callers must not write
	// anything over previously stored ratings when they see this.
	ErrInsufficientData = errors.New("insufficient rating data")
)

// Category is one rating pool on a provider profile (rapid, blitz, ...).
type Category struct {
	Rating      int  `json:"rating"`
	Provisional bool `json:"provisional"`
}

// Profile is the provider-neutral view of a fetched account: its
// rating categories plus the free-text fields used for ownership
// proof. Location and Bio are nil when the account has never set them,
// which verification treats differently from a non-matching value.
type Profile struct {
	Categories map[string]Category `json:"categories"`
	Location   *string             `json:"location,omitempty"`
	Bio        *string             `json:"bio,omitempty"`
}

// Provider fetches account data from one external rating service and
// knows how to pick that service's canonical rating out of a profile.
type Provider interface {
	// Name returns the stable provider key.
	Name() string

	// FetchProfile retrieves the account's public profile. Returns
	// ErrNotFound for unknown usernames and ErrUnavailable for
	// upstream failures.
	FetchProfile(ctx context.Context, username string) (*Profile, error)

	// Resolve extracts the canonical rating from a fetched profile.
	// A nil rating with a nil error means the account is linkable but
	// currently has no stable rating (maps to the lowest belt).
	// ErrInsufficientData means nothing usable exists at all.
	Resolve(p *Profile) (*int, error)
}
