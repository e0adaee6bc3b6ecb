// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const defaultHistoryLimit = 50

// MessageHistory handles GET /api/v1/messages/{user_id}: the latest direct
// messages between the caller and user_id, oldest first.
func (h *Handler) MessageHistory(w http.ResponseWriter, r *http.Request) {
	req := HistoryRequest{
		UserID: chi.URLParam(r, "user_id"),
		Limit:  getIntParam(r, "limit", defaultHistoryLimit),
	}
	if !validateRequest(w, r, &req) {
		return
	}
	history := h.messages.History(UserIDFromContext(r.Context()), req.UserID, req.Limit)
	NewResponseWriter(w, r).List(history, len(history))
}

// SendMessage handles POST /api/v1/messages/{user_id}.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	msg, err := h.messages.Send(UserIDFromContext(r.Context()), chi.URLParam(r, "user_id"), req.Content)
	if err != nil {
		respondError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Created(msg)
}

// UnreadMessages handles GET /api/v1/messages/unread: unread counts keyed by
// sender.
func (h *Handler) UnreadMessages(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.messages.UnreadCount(UserIDFromContext(r.Context())))
}

// MessageContacts handles GET /api/v1/messages/contacts: every user the caller
// has exchanged direct messages with.
func (h *Handler) MessageContacts(w http.ResponseWriter, r *http.Request) {
	contacts := h.messages.Contacts(UserIDFromContext(r.Context()))
	NewResponseWriter(w, r).List(contacts, len(contacts))
}

// getIntParam extracts an integer query parameter with a default value.
func getIntParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
