// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package watchparty

import (
	"errors"
	"fmt"

	"github.com/dopaminewatch/realtime/internal/logging"
	"github.com/dopaminewatch/realtime/internal/websocket"
)

// Sync events accepted in party_sync frames.
const (
	EventPlay     = "play"
	EventPause    = "pause"
	EventSeek     = "seek"
	EventReady    = "ready"
	EventBuffer   = "buffer"
	EventPosition = "position"
)

// RegisterHandlers wires the party_sync, party_chat and party_reaction
// inbound kinds to the engine. With LeaveOnOffline set, a user whose
// presence drops to offline leaves their party.
func (e *Engine) RegisterHandlers() error {
	if err := e.rt.RegisterHandler(websocket.TypePartySync, e.handleSync); err != nil {
		return fmt.Errorf("register party_sync handler: %w", err)
	}
	if err := e.rt.RegisterHandler(websocket.TypePartyChat, e.handleChat); err != nil {
		return fmt.Errorf("register party_chat handler: %w", err)
	}
	if err := e.rt.RegisterHandler(websocket.TypePartyReaction, e.handleReaction); err != nil {
		return fmt.Errorf("register party_reaction handler: %w", err)
	}
	if e.cfg.LeaveOnOffline {
		e.rt.OnUserOffline(e.handleUserOffline)
	}
	return nil
}

func (e *Engine) handleSync(conn *websocket.Connection, frame websocket.Frame) {
	userID := conn.UserID()
	if !e.frameTargetsOwnParty(conn, frame) {
		return
	}

	var err error
	switch event := frame.Str("event"); event {
	case EventPlay:
		err = e.PlayE(userID)
	case EventPause:
		err = e.PauseE(userID)
	case EventSeek:
		pos, ok := frame.Float("position")
		if !ok {
			e.reject(conn, "Position is required")
			return
		}
		err = e.SeekE(userID, pos)
	case EventReady:
		ready, ok := frame.Bool("is_ready")
		if !ok {
			ready = true
		}
		err = e.SetReadyE(userID, ready)
	case EventBuffer, EventPosition:
		pos, ok := frame.Float("position")
		if !ok {
			e.reject(conn, "Position is required")
			return
		}
		buffering, ok := frame.Bool("is_buffering")
		if !ok {
			buffering = event == EventBuffer
		}
		_, err = e.ReportPositionE(userID, pos, buffering)
	case "":
		e.reject(conn, "Sync event is required")
		return
	default:
		e.reject(conn, "Unknown sync event: "+event)
		return
	}
	if err != nil {
		e.reject(conn, clientError(err))
	}
}

func (e *Engine) handleChat(conn *websocket.Connection, frame websocket.Frame) {
	if !e.frameTargetsOwnParty(conn, frame) {
		return
	}
	if _, err := e.SendChatE(conn.UserID(), frame.Str("content")); err != nil {
		e.reject(conn, clientError(err))
	}
}

func (e *Engine) handleReaction(conn *websocket.Connection, frame websocket.Frame) {
	if !e.frameTargetsOwnParty(conn, frame) {
		return
	}
	if _, err := e.SendReactionE(conn.UserID(), frame.Str("emoji")); err != nil {
		e.reject(conn, clientError(err))
	}
}

func (e *Engine) handleUserOffline(userID string) {
	if err := e.LeavePartyE(userID); err == nil {
		logging.Info().Str("user_id", userID).Msg("offline user removed from watch party")
	}
}

// frameTargetsOwnParty rejects frames naming a party the sender is not in.
// A frame without party_id targets the sender's current party.
func (e *Engine) frameTargetsOwnParty(conn *websocket.Connection, frame websocket.Frame) bool {
	partyID := frame.Str("party_id")
	if partyID == "" {
		return true
	}
	if current, ok := e.userPartyID(conn.UserID()); ok && current == partyID {
		return true
	}
	e.reject(conn, clientError(ErrNotMember))
	return false
}

func (e *Engine) reject(conn *websocket.Connection, text string) {
	e.rt.SendToConnection(conn, websocket.ErrorMessage(text))
}

// clientError maps engine errors to the text sent in error frames.
func clientError(err error) string {
	switch {
	case errors.Is(err, ErrPartyNotFound):
		return "Party not found"
	case errors.Is(err, ErrNotMember):
		return "Not a member of this party"
	case errors.Is(err, ErrNotAuthorized):
		return "Not authorized to control playback"
	case errors.Is(err, ErrPartyFull):
		return "Party is full"
	case errors.Is(err, ErrPartyEnded):
		return "Party has ended"
	case errors.Is(err, ErrInvalidTransition):
		return "Invalid playback state"
	case errors.Is(err, ErrInvalidReaction):
		return "Invalid reaction"
	case errors.Is(err, ErrEmptyMessage):
		return "Message is empty"
	default:
		return "Internal error"
	}
}
