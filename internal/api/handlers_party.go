// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dopaminewatch/realtime/internal/watchparty"
)

// CreateParty handles POST /api/v1/parties.
func (h *Handler) CreateParty(w http.ResponseWriter, r *http.Request) {
	var req CreatePartyRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	userID := UserIDFromContext(r.Context())

	party, err := h.engine.CreatePartyE(watchparty.CreateParams{
		HostID:           userID,
		HostName:         req.HostName,
		ContentID:        req.ContentID,
		ContentType:      req.ContentType,
		ContentTitle:     req.ContentTitle,
		ContentDuration:  req.ContentDuration,
		IsPrivate:        req.IsPrivate,
		AnyoneCanControl: req.AnyoneCanControl,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Created(party.ViewFor(userID))
}

// ListParties handles GET /api/v1/parties.
func (h *Handler) ListParties(w http.ResponseWriter, r *http.Request) {
	parties := h.engine.ListPublicParties()
	NewResponseWriter(w, r).List(parties, len(parties))
}

// GetParty handles GET /api/v1/parties/{id}. Private parties are only
// visible to their members.
func (h *Handler) GetParty(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	party := h.engine.GetParty(chi.URLParam(r, "id"))
	if party == nil {
		respondError(w, r, watchparty.ErrPartyNotFound)
		return
	}
	if _, member := party.Member(userID); party.IsPrivate && !member {
		respondError(w, r, watchparty.ErrPartyNotFound)
		return
	}
	NewResponseWriter(w, r).Success(party.ViewFor(userID))
}

// JoinParty handles POST /api/v1/parties/join.
func (h *Handler) JoinParty(w http.ResponseWriter, r *http.Request) {
	var req JoinPartyRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	userID := UserIDFromContext(r.Context())

	party, err := h.engine.JoinPartyE(watchparty.JoinParams{
		PartyID:    req.PartyID,
		InviteCode: req.InviteCode,
		UserID:     userID,
		UserName:   req.UserName,
		AvatarURL:  req.AvatarURL,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(party.ViewFor(userID))
}

// LeaveParty handles POST /api/v1/parties/{id}/leave.
func (h *Handler) LeaveParty(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	if err := h.requireMembership(chi.URLParam(r, "id"), userID); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.engine.LeavePartyE(userID); err != nil {
		respondError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(map[string]interface{}{"left": true})
}

// EndParty handles POST /api/v1/parties/{id}/end. Only the host may end a
// party.
func (h *Handler) EndParty(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	partyID := chi.URLParam(r, "id")

	party := h.engine.GetParty(partyID)
	if party == nil {
		respondError(w, r, watchparty.ErrPartyNotFound)
		return
	}
	if party.HostID != userID {
		respondError(w, r, watchparty.ErrNotAuthorized)
		return
	}
	if err := h.engine.EndPartyE(partyID); err != nil {
		respondError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Success(map[string]interface{}{"ended": true})
}

// ControlParty handles POST /api/v1/parties/{id}/control and returns the
// resulting party state.
func (h *Handler) ControlParty(w http.ResponseWriter, r *http.Request) {
	var req ControlRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	userID := UserIDFromContext(r.Context())
	partyID := chi.URLParam(r, "id")
	if err := h.requireMembership(partyID, userID); err != nil {
		respondError(w, r, err)
		return
	}

	var err error
	switch req.Action {
	case watchparty.EventPlay:
		err = h.engine.PlayE(userID)
	case watchparty.EventPause:
		err = h.engine.PauseE(userID)
	case watchparty.EventSeek:
		err = h.engine.SeekE(userID, *req.Position)
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	party := h.engine.GetParty(partyID)
	if party == nil {
		respondError(w, r, watchparty.ErrPartyNotFound)
		return
	}
	NewResponseWriter(w, r).Success(party.ViewFor(userID))
}

// requireMembership checks that partyID exists and userID belongs to it.
func (h *Handler) requireMembership(partyID, userID string) error {
	if h.engine.GetParty(partyID) == nil {
		return watchparty.ErrPartyNotFound
	}
	current := h.engine.GetUserParty(userID)
	if current == nil || current.ID != partyID {
		return watchparty.ErrNotMember
	}
	return nil
}
