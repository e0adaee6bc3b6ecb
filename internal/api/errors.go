// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"errors"
	"net/http"

	"github.com/dopaminewatch/realtime/internal/logging"
	"github.com/dopaminewatch/realtime/internal/messaging"
	"github.com/dopaminewatch/realtime/internal/watchparty"
)

var (
	// ErrIdentityRequired is returned when a request carries no user identity.
	ErrIdentityRequired = errors.New("identity required")

	// ErrInvalidToken is returned for a bearer token that fails verification.
	ErrInvalidToken = errors.New("invalid token")
)

// errorStatus maps a domain error to its HTTP status, code and client message.
func errorStatus(err error) (int, string, string) {
	switch {
	case errors.Is(err, ErrIdentityRequired):
		return http.StatusUnauthorized, ErrCodeUnauthorized, "Authentication required"
	case errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid token"
	case errors.Is(err, watchparty.ErrPartyNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "Party not found"
	case errors.Is(err, watchparty.ErrNotMember):
		return http.StatusForbidden, ErrCodeForbidden, "Not a member of this party"
	case errors.Is(err, watchparty.ErrNotAuthorized):
		return http.StatusForbidden, ErrCodeForbidden, "Not authorized to control playback"
	case errors.Is(err, watchparty.ErrPartyFull):
		return http.StatusConflict, ErrCodeConflict, "Party is full"
	case errors.Is(err, watchparty.ErrPartyEnded):
		return http.StatusConflict, ErrCodeConflict, "Party has ended"
	case errors.Is(err, watchparty.ErrInvalidTransition):
		return http.StatusConflict, ErrCodeConflict, "Invalid playback state"
	case errors.Is(err, watchparty.ErrInvalidParty):
		return http.StatusBadRequest, ErrCodeBadRequest, "Invalid party parameters"
	case errors.Is(err, messaging.ErrEmptyMessage):
		return http.StatusBadRequest, ErrCodeBadRequest, "Message is empty"
	case errors.Is(err, messaging.ErrInvalidRecipient):
		return http.StatusBadRequest, ErrCodeBadRequest, "Invalid recipient"
	default:
		return http.StatusInternalServerError, ErrCodeInternalError, "Internal error"
	}
}

// respondError writes err through the envelope. Unmapped errors are logged.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := errorStatus(err)
	if status == http.StatusInternalServerError {
		logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("API error")
	}
	NewResponseWriter(w, r).Error(status, code, message)
}
