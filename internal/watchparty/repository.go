// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package watchparty

import (
	"context"
	"errors"
)

// ErrRecordNotFound is returned by LoadParty for an unknown party.
var ErrRecordNotFound = errors.New("party record not found")

// Repository receives a write-through copy of every party mutation. The
// in-memory engine stays authoritative; repository errors are logged and
// never fail an operation.
type Repository interface {
	// SaveParty stores party metadata, state and members. Chat is stored
	// separately through AppendChatMessage.
	SaveParty(ctx context.Context, p Party) error
	AppendChatMessage(ctx context.Context, partyID string, msg ChatMessage) error
	DeleteParty(ctx context.Context, partyID string) error
	// LoadParty returns the stored party with its chat history.
	LoadParty(ctx context.Context, partyID string) (Party, error)
}

// NopRepository discards all writes.
type NopRepository struct{}

func (NopRepository) SaveParty(context.Context, Party) error { return nil }

func (NopRepository) AppendChatMessage(context.Context, string, ChatMessage) error { return nil }

func (NopRepository) DeleteParty(context.Context, string) error { return nil }

func (NopRepository) LoadParty(context.Context, string) (Party, error) {
	return Party{}, ErrRecordNotFound
}
