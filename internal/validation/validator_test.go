// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package validation

import (
	"strings"
	"testing"
)

type testPartyRequest struct {
	ContentID  string  `json:"content_id" validate:"required,max=16"`
	Duration   float64 `json:"duration" validate:"gte=0"`
	MaxMembers int     `json:"max_members" validate:"omitempty,min=2,max=50"`
}

type testJoinRequest struct {
	InviteCode string `json:"invite_code" validate:"required,invitecode"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name      string
		input     interface{}
		wantErr   bool
		wantField string
	}{
		{"valid party", &testPartyRequest{ContentID: "movie-1", Duration: 90}, false, ""},
		{"missing content", &testPartyRequest{Duration: 90}, true, "content_id"},
		{"content too long", &testPartyRequest{ContentID: strings.Repeat("x", 17)}, true, "content_id"},
		{"negative duration", &testPartyRequest{ContentID: "m", Duration: -1}, true, "duration"},
		{"members too small", &testPartyRequest{ContentID: "m", MaxMembers: 1}, true, "max_members"},
		{"valid invite", &testJoinRequest{InviteCode: "ABC234"}, false, ""},
		{"lowercase invite accepted", &testJoinRequest{InviteCode: "abc234"}, false, ""},
		{"ambiguous invite", &testJoinRequest{InviteCode: "ABC0O1"}, true, "invite_code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateStruct(tt.input)
			if (verr != nil) != tt.wantErr {
				t.Fatalf("ValidateStruct() = %v, wantErr %v", verr, tt.wantErr)
			}
			if verr == nil {
				return
			}
			if got := verr.Errors()[0].Field(); got != tt.wantField {
				t.Errorf("field = %q, want %q", got, tt.wantField)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	verr := ValidateStruct(&testPartyRequest{Duration: -5})
	if verr == nil {
		t.Fatal("expected validation error")
	}

	apiErr := verr.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q, want VALIDATION_ERROR", apiErr.Code)
	}
	if _, ok := apiErr.Details["fields"]; !ok {
		t.Errorf("expected fields detail for multiple errors, got %v", apiErr.Details)
	}
	if !strings.Contains(apiErr.Message, "content_id is required") {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("expected the same validator instance")
	}
}
