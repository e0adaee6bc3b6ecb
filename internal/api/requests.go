// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/dopaminewatch/realtime/internal/validation"
)

// maxBodyBytes bounds REST request bodies.
const maxBodyBytes = 64 << 10

// CreatePartyRequest is the body of POST /api/v1/parties.
type CreatePartyRequest struct {
	HostName         string  `json:"host_name" validate:"max=64"`
	ContentID        string  `json:"content_id" validate:"required,max=128"`
	ContentType      string  `json:"content_type" validate:"required,oneof=movie tv episode series music podcast video"`
	ContentTitle     string  `json:"content_title" validate:"required,max=256"`
	ContentDuration  float64 `json:"content_duration" validate:"gt=0"`
	IsPrivate        bool    `json:"is_private"`
	AnyoneCanControl bool    `json:"anyone_can_control"`
}

// JoinPartyRequest is the body of POST /api/v1/parties/join. One of
// party_id and invite_code is required.
type JoinPartyRequest struct {
	PartyID    string `json:"party_id" validate:"required_without=InviteCode,max=64"`
	InviteCode string `json:"invite_code" validate:"omitempty,max=16,invitecode"`
	UserName   string `json:"user_name" validate:"max=64"`
	AvatarURL  string `json:"avatar_url" validate:"omitempty,url,max=512"`
}

// ControlRequest is the body of POST /api/v1/parties/{id}/control.
type ControlRequest struct {
	Action   string   `json:"action" validate:"required,oneof=play pause seek"`
	Position *float64 `json:"position" validate:"required_if=Action seek"`
}

// SendMessageRequest is the body of POST /api/v1/messages/{user_id}.
type SendMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

// HistoryRequest holds the validated parameters of GET /api/v1/messages/{user_id}.
type HistoryRequest struct {
	UserID string `validate:"required,max=128"`
	Limit  int    `validate:"min=1,max=200"`
}

// decodeAndValidate reads a JSON body into dst and validates it. On failure
// it writes the error response and returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		NewResponseWriter(w, r).BadRequest("Request body too large")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		NewResponseWriter(w, r).BadRequest(fmt.Sprintf("Invalid request body: %v", err))
		return false
	}
	return validateRequest(w, r, dst)
}

func validateRequest(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	verr := validation.ValidateStruct(v)
	if verr == nil {
		return true
	}
	apiErr := verr.ToAPIError()
	NewResponseWriter(w, r).ErrorWithDetails(http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
	return false
}
