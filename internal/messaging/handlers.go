// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package messaging

import (
	"errors"
	"fmt"

	"github.com/dopaminewatch/realtime/internal/websocket"
)

// RegisterHandlers wires dm_send, dm_typing and dm_read to the service.
func (s *Service) RegisterHandlers() error {
	handlers := []struct {
		kind websocket.MessageType
		fn   websocket.Handler
	}{
		{websocket.TypeDMSend, s.handleSend},
		{websocket.TypeDMTyping, s.handleTyping},
		{websocket.TypeDMRead, s.handleRead},
	}
	for _, h := range handlers {
		if err := s.rt.RegisterHandler(h.kind, h.fn); err != nil {
			return fmt.Errorf("register %s handler: %w", h.kind, err)
		}
	}
	return nil
}

func (s *Service) handleSend(conn *websocket.Connection, frame websocket.Frame) {
	if _, err := s.send(conn.UserID(), frame.Str("to"), frame.Str("content"), conn.ID()); err != nil {
		s.rt.SendToConnection(conn, websocket.ErrorMessage(clientError(err)))
	}
}

func (s *Service) handleTyping(conn *websocket.Connection, frame websocket.Frame) {
	typing, ok := frame.Bool("is_typing")
	if !ok {
		typing = true
	}
	if err := s.Typing(conn.UserID(), frame.Str("to"), typing); err != nil {
		s.rt.SendToConnection(conn, websocket.ErrorMessage(clientError(err)))
	}
}

func (s *Service) handleRead(conn *websocket.Connection, frame websocket.Frame) {
	other := frame.Str("user_id")
	if other == "" {
		s.rt.SendToConnection(conn, websocket.ErrorMessage(clientError(ErrInvalidRecipient)))
		return
	}
	s.MarkRead(conn.UserID(), other)
}

func clientError(err error) string {
	switch {
	case errors.Is(err, ErrEmptyMessage):
		return "Message is empty"
	case errors.Is(err, ErrInvalidRecipient):
		return "Invalid recipient"
	default:
		return "Internal error"
	}
}
