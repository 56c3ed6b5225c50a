// internal/verify/verify.go

// Package verify implements the ownership handshake: before an
// external account is linked for the first time, the caller must plant
// their chat identity string in a provider-designated profile field.
package verify

import (
	"fmt"
	"strings"

	"github.com/giziti/beltbot/internal/provider"
)

// Failure reasons, used verbatim in user-facing messages.
const (
	ReasonFieldNotSet = "field not set"
	ReasonMismatch    = "mismatch"
)

// Error is a failed ownership check. It is a user error, not a system
// fault: the account simply does not carry the expected marker.
type Error struct {
	Provider string
	Reason   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("ownership verification failed for %s: %s", e.Provider, e.Reason)
}

// Ownership checks that identity controls the fetched account.
// chess.com accounts must have their location field set to the
// identity exactly; lichess accounts need the identity anywhere in
// the bio. Runs only on the first link of an (identity, provider)
// pair; established links are trusted until unlinked.
func Ownership(providerName, identity string, p *provider.Profile) error {
	switch providerName {
	case provider.ChessComName:
		if p.Location == nil {
			return &Error{Provider: providerName, Reason: ReasonFieldNotSet}
		}
		if *p.Location != identity {
			return &Error{Provider: providerName, Reason: ReasonMismatch}
		}
		return nil

	case provider.LichessName:
		if p.Bio == nil {
			return &Error{Provider: providerName, Reason: ReasonFieldNotSet}
		}
		if !strings.Contains(*p.Bio, identity) {
			return &Error{Provider: providerName, Reason: ReasonMismatch}
		}
		return nil

	default:
		return fmt.Errorf("no ownership rule for provider %q", providerName)
	}
}
