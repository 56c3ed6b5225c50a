// internal/commands/messages.go
package commands

import (
	"errors"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/giziti/beltbot/internal/provider"
	"github.com/giziti/beltbot/internal/store"
	"github.com/giziti/beltbot/internal/sync"
	"github.com/giziti/beltbot/internal/verify"
)

// errorReply maps every core error to a specific user-facing message.
// Infrastructure faults (store, provider outage) are logged for the
// operator but collapse to "try again later" in chat.
func (d *Dispatcher) errorReply(err error) string {
	var verr *verify.Error
	if errors.As(err, &verr) {
		switch verr.Provider {
		case provider.ChessComName:
			if verr.Reason == verify.ReasonFieldNotSet {
				return "I can't verify that account: its location field is empty. Set it to your chat ID and try again"
			}
			return "I can't verify that account: its location field doesn't match your chat ID"
		case provider.LichessName:
			if verr.Reason == verify.ReasonFieldNotSet {
				return "I can't verify that account: its bio is empty. Put your chat ID in the bio and try again"
			}
			return "I can't verify that account: your chat ID isn't in its bio"
		default:
			return "I can't verify that account"
		}
	}

	var serr *store.Error
	switch {
	case errors.Is(err, provider.ErrInsufficientData):
		return "that account doesn't have enough rated games yet; play a few and try again"
	case errors.Is(err, provider.ErrNotFound):
		return "no account with that username exists there"
	case errors.Is(err, provider.ErrUnavailable):
		d.logger.WithField("error", err).Warn("provider unavailable")
		return "the rating site isn't answering; try again later"
	case errors.As(err, &serr):
		d.logger.WithFields(logrus.Fields{"op": serr.Op, "error": serr.Err}).Warn("store operation failed")
		return "something went wrong on my end; try again later"
	case errors.Is(err, sync.ErrRoleNotConfigured):
		return "this server has no role for that belt; ask an admin to create it"
	case errors.Is(err, sync.ErrUnauthorized):
		return "only moderators can do that"
	case errors.Is(err, sync.ErrNotLinked):
		return "you haven't linked an account yet; see " + d.prefix + "help"
	case errors.Is(err, sync.ErrAlreadyLinked):
		return "you already linked a different account there; " + d.prefix + "unlink it first"
	case errors.Is(err, sync.ErrUnknownProvider):
		return "I only know chesscom and lichess"
	case errors.Is(err, sync.ErrUnknownIdentity):
		return "I don't know that player yet"
	default:
		d.logger.WithField("error", err).Warn("unexpected command error")
		return "something went wrong on my end; try again later"
	}
}

func itoa(v int) string     { return strconv.Itoa(v) }
func itoa64(v int64) string { return strconv.FormatInt(v, 10) }
