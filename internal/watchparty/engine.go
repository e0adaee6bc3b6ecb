// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package watchparty

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/dopaminewatch/realtime/internal/logging"
	"github.com/dopaminewatch/realtime/internal/metrics"
	"github.com/dopaminewatch/realtime/internal/websocket"
)

// Sentinel errors returned by the E variants.
var (
	ErrPartyNotFound     = errors.New("party not found")
	ErrNotMember         = errors.New("not a member of this party")
	ErrNotAuthorized     = errors.New("not authorized to control playback")
	ErrPartyFull         = errors.New("party is full")
	ErrPartyEnded        = errors.New("party has ended")
	ErrInvalidTransition = errors.New("invalid playback state transition")
	ErrInvalidReaction   = errors.New("invalid reaction")
	ErrEmptyMessage      = errors.New("message is empty")
	ErrInvalidParty      = errors.New("invalid party parameters")
)

// RoomKind tags the room backing each party.
const RoomKind = "watch_party"

const (
	systemUserID  = "system"
	systemName    = "System"
	serverActor   = "server"
	reactionLimit = 500
)

// Realtime is the delivery surface the engine needs; *websocket.Manager
// satisfies it.
type Realtime interface {
	CreateRoom(roomID, kind string, metadata map[string]interface{}) websocket.Room
	JoinRoom(userID, roomID string) bool
	LeaveRoom(userID, roomID string) bool
	DeleteRoom(roomID string) bool
	SendToRoom(roomID string, msg websocket.Message, excludeUser string) int
	SendToUser(userID string, msg websocket.Message, queueIfOffline bool) bool
	SendToConnection(conn *websocket.Connection, msg websocket.Message) bool
	RegisterHandler(t websocket.MessageType, h websocket.Handler) error
	OnUserOffline(fn func(userID string))
}

// Config holds engine limits.
type Config struct {
	MaxMembers       int
	DesyncThreshold  float64
	ChatHistory      int
	SnapshotChat     int
	MaxChatLength    int
	MaxEmojiLength   int
	InviteCodeLength int
	LeaveOnOffline   bool

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxMembers:       10,
		DesyncThreshold:  3.0,
		ChatHistory:      100,
		SnapshotChat:     50,
		MaxChatLength:    500,
		MaxEmojiLength:   4,
		InviteCodeLength: 6,
		LeaveOnOffline:   true,
	}
}

// CreateParams describes a new party.
type CreateParams struct {
	HostID           string
	HostName         string
	ContentID        string
	ContentType      string
	ContentTitle     string
	ContentDuration  float64
	IsPrivate        bool
	AnyoneCanControl bool
}

// JoinParams identifies the party to join by ID, or by invite code when
// PartyID is empty.
type JoinParams struct {
	PartyID    string
	InviteCode string
	UserID     string
	UserName   string
	AvatarURL  string
}

// Engine owns every watch party and is the only writer of their playback
// state. Each party has its own mutex, held across mutation and broadcast so
// members observe events in mutation order.
type Engine struct {
	cfg  Config
	rt   Realtime
	repo Repository
	now  func() time.Time

	mu          sync.RWMutex
	parties     map[string]*party
	inviteCodes map[string]string
	userParty   map[string]string

	// membership changes for one user run one at a time
	userLocksMu sync.Mutex
	userLocks   map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewEngine creates an engine delivering through rt. A nil repo disables
// write-through.
func NewEngine(rt Realtime, repo Repository, cfg Config) *Engine {
	if repo == nil {
		repo = NopRepository{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:         cfg,
		rt:          rt,
		repo:        repo,
		now:         now,
		parties:     make(map[string]*party),
		inviteCodes: make(map[string]string),
		userParty:   make(map[string]string),
		userLocks:   make(map[string]*userLock),
	}
}

// lockUser serializes create, join and leave for one user so the user is
// never a member of two parties. The returned func releases the lock.
func (e *Engine) lockUser(userID string) func() {
	e.userLocksMu.Lock()
	l, ok := e.userLocks[userID]
	if !ok {
		l = &userLock{}
		e.userLocks[userID] = l
	}
	l.refs++
	e.userLocksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.userLocksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.userLocks, userID)
		}
		e.userLocksMu.Unlock()
	}
}

// CreateParty starts a party hosted by params.HostID. It returns nil on
// invalid parameters.
func (e *Engine) CreateParty(params CreateParams) *Party {
	p, err := e.CreatePartyE(params)
	if err != nil {
		return nil
	}
	return p
}

// CreatePartyE is CreateParty with an error. A host already in a party
// leaves it first.
func (e *Engine) CreatePartyE(params CreateParams) (*Party, error) {
	if params.HostID == "" || params.ContentID == "" || params.ContentDuration < 0 ||
		math.IsNaN(params.ContentDuration) || math.IsInf(params.ContentDuration, 0) {
		return nil, ErrInvalidParty
	}
	unlock := e.lockUser(params.HostID)
	defer unlock()
	if _, ok := e.userPartyID(params.HostID); ok {
		_ = e.leaveParty(params.HostID)
	}

	now := e.now()
	p := &party{
		id:               uuid.New().String(),
		hostID:           params.HostID,
		contentID:        params.ContentID,
		contentType:      params.ContentType,
		contentTitle:     params.ContentTitle,
		contentDuration:  params.ContentDuration,
		anyoneCanControl: params.AnyoneCanControl,
		isPrivate:        params.IsPrivate,
		createdAt:        now,
		state:            StateLobby,
		members:          make(map[string]*Member),
	}
	hostName := displayName(params.HostName, params.HostID)
	p.addMember(&Member{
		UserID:      params.HostID,
		DisplayName: hostName,
		IsHost:      true,
		IsReady:     true,
		JoinedAt:    now,
	})

	p.mu.Lock()
	defer p.mu.Unlock()

	e.mu.Lock()
	if params.IsPrivate {
		code, err := e.uniqueInviteCodeLocked()
		if err != nil {
			e.mu.Unlock()
			return nil, err
		}
		p.inviteCode = code
		e.inviteCodes[code] = p.id
	}
	e.parties[p.id] = p
	e.userParty[params.HostID] = p.id
	active := len(e.parties)
	e.mu.Unlock()

	e.rt.CreateRoom(p.id, RoomKind, map[string]interface{}{
		"party_id":   p.id,
		"content_id": p.contentID,
	})
	e.rt.JoinRoom(params.HostID, p.id)
	e.postSystemLocked(p, fmt.Sprintf("%s started the watch party", hostName))
	e.saveLocked(p)

	metrics.ActiveParties.Set(float64(active))
	logging.Info().
		Str("party_id", p.id).
		Str("host_id", p.hostID).
		Str("content_id", p.contentID).
		Bool("private", p.isPrivate).
		Msg("watch party created")

	snap := p.snapshot(now, e.cfg.SnapshotChat)
	return &snap, nil
}

func (e *Engine) uniqueInviteCodeLocked() (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		code, err := generateInviteCode(e.cfg.InviteCodeLength)
		if err != nil {
			return "", err
		}
		if _, taken := e.inviteCodes[code]; !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("allocate invite code: no free code after 10 attempts")
}

// JoinParty adds a user to a party. It returns nil if the party is not
// found, has ended, or is full. Rejoining returns the party unchanged.
func (e *Engine) JoinParty(params JoinParams) *Party {
	p, err := e.JoinPartyE(params)
	if err != nil {
		return nil
	}
	return p
}

// JoinPartyE is JoinParty with an error. A user in another party leaves it
// first.
func (e *Engine) JoinPartyE(params JoinParams) (*Party, error) {
	if params.UserID == "" {
		return nil, ErrInvalidParty
	}
	p := e.resolve(params.PartyID, params.InviteCode)
	if p == nil {
		return nil, ErrPartyNotFound
	}

	unlock := e.lockUser(params.UserID)
	defer unlock()
	if current, ok := e.userPartyID(params.UserID); ok && current != p.id {
		if err := e.checkJoinable(p, params.UserID); err != nil {
			return nil, err
		}
		_ = e.leaveParty(params.UserID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := e.now()
	if p.state == StateEnded {
		return nil, ErrPartyEnded
	}
	if _, ok := p.members[params.UserID]; ok {
		// Restores the room subscription of a member who went offline.
		e.rt.JoinRoom(params.UserID, p.id)
		snap := p.snapshot(now, e.cfg.SnapshotChat).ViewFor(params.UserID)
		return &snap, nil
	}
	if len(p.members) >= e.cfg.MaxMembers {
		return nil, ErrPartyFull
	}

	name := displayName(params.UserName, params.UserID)
	p.addMember(&Member{
		UserID:      params.UserID,
		DisplayName: name,
		AvatarURL:   params.AvatarURL,
		JoinedAt:    now,
	})
	e.mu.Lock()
	e.userParty[params.UserID] = p.id
	e.mu.Unlock()

	e.rt.JoinRoom(params.UserID, p.id)
	e.postSystemLocked(p, fmt.Sprintf("%s joined the party", name))

	snap := p.snapshot(now, e.cfg.SnapshotChat).ViewFor(params.UserID)
	e.rt.SendToUser(params.UserID, websocket.Message{
		Type:      websocket.TypePartyState,
		Timestamp: now,
		Fields: map[string]interface{}{
			"party_id": p.id,
			"party":    snap,
		},
	}, false)
	e.saveLocked(p)

	logging.Info().Str("party_id", p.id).Str("user_id", params.UserID).Int("members", len(p.members)).Msg("member joined watch party")
	return &snap, nil
}

// checkJoinable is a pre-flight check so a user is not pulled out of their
// current party for a join that would fail.
func (e *Engine) checkJoinable(p *party, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.state == StateEnded:
		return ErrPartyEnded
	case len(p.members) >= e.cfg.MaxMembers:
		if _, ok := p.members[userID]; !ok {
			return ErrPartyFull
		}
	}
	return nil
}

// LeaveParty removes the user from their party. A departing host is
// replaced by the earliest remaining member; the last member ends the party.
func (e *Engine) LeaveParty(userID string) bool {
	return e.LeavePartyE(userID) == nil
}

// LeavePartyE is LeaveParty with an error.
func (e *Engine) LeavePartyE(userID string) error {
	unlock := e.lockUser(userID)
	defer unlock()
	return e.leaveParty(userID)
}

func (e *Engine) leaveParty(userID string) error {
	p := e.partyOfUser(userID)
	if p == nil {
		return ErrNotMember
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.members[userID]
	if !ok || p.state == StateEnded {
		return ErrNotMember
	}
	wasHost := p.hostID == userID
	p.removeMember(userID)
	e.mu.Lock()
	if e.userParty[userID] == p.id {
		delete(e.userParty, userID)
	}
	e.mu.Unlock()

	e.rt.LeaveRoom(userID, p.id)

	logging.Info().Str("party_id", p.id).Str("user_id", userID).Int("members", len(p.members)).Msg("member left watch party")

	if len(p.memberOrder) == 0 {
		e.endLocked(p)
		return nil
	}

	e.postSystemLocked(p, fmt.Sprintf("%s left the party", m.DisplayName))
	if wasHost {
		next := p.members[p.memberOrder[0]]
		next.IsHost = true
		p.hostID = next.UserID
		e.postSystemLocked(p, fmt.Sprintf("%s is now the host", next.DisplayName))
		logging.Info().Str("party_id", p.id).Str("host_id", next.UserID).Msg("watch party host reassigned")
	}
	e.saveLocked(p)
	return nil
}

// EndParty ends a party and removes its room.
func (e *Engine) EndParty(partyID string) bool {
	return e.EndPartyE(partyID) == nil
}

// EndPartyE is EndParty with an error.
func (e *Engine) EndPartyE(partyID string) error {
	p := e.lookup(partyID)
	if p == nil {
		return ErrPartyNotFound
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateEnded {
		return ErrPartyEnded
	}
	e.endLocked(p)
	return nil
}

func (e *Engine) endLocked(p *party) {
	now := e.now()
	p.currentPosition = p.position(now)
	p.state = StateEnded

	e.rt.SendToRoom(p.id, websocket.Message{
		Type:      websocket.TypePartyEnded,
		Timestamp: now,
		Fields:    map[string]interface{}{"party_id": p.id},
	}, "")

	e.mu.Lock()
	for _, uid := range p.memberOrder {
		if e.userParty[uid] == p.id {
			delete(e.userParty, uid)
		}
	}
	delete(e.parties, p.id)
	if p.inviteCode != "" {
		delete(e.inviteCodes, p.inviteCode)
	}
	active := len(e.parties)
	e.mu.Unlock()

	p.members = make(map[string]*Member)
	p.memberOrder = nil
	e.rt.DeleteRoom(p.id)

	if err := e.repo.DeleteParty(context.Background(), p.id); err != nil {
		logging.Warn().Err(err).Str("party_id", p.id).Msg("failed to delete party record")
	}
	metrics.ActiveParties.Set(float64(active))
	metrics.RecordPartyEvent("end")
	logging.Info().Str("party_id", p.id).Msg("watch party ended")
}

// Play starts or resumes playback.
func (e *Engine) Play(userID string) bool { return e.PlayE(userID) == nil }

// PlayE is Play with an error. Legal from lobby or paused.
func (e *Engine) PlayE(userID string) error {
	return e.control(userID, "play", func(p *party, now time.Time) error {
		if p.state != StateLobby && p.state != StatePaused {
			return ErrInvalidTransition
		}
		p.state = StatePlaying
		p.playStartedAt = now
		return nil
	})
}

// Pause pauses playback.
func (e *Engine) Pause(userID string) bool { return e.PauseE(userID) == nil }

// PauseE is Pause with an error. Legal only while playing.
func (e *Engine) PauseE(userID string) error {
	return e.control(userID, "pause", func(p *party, now time.Time) error {
		if !p.state.CanTransition(StatePaused) {
			return ErrInvalidTransition
		}
		p.currentPosition = p.position(now)
		p.state = StatePaused
		return nil
	})
}

// Seek moves playback to position, clamped to the content duration.
func (e *Engine) Seek(userID string, position float64) bool { return e.SeekE(userID, position) == nil }

// SeekE is Seek with an error.
func (e *Engine) SeekE(userID string, position float64) error {
	return e.control(userID, "seek", func(p *party, now time.Time) error {
		if math.IsNaN(position) {
			position = 0
		}
		p.currentPosition = p.clamp(position)
		if p.state == StatePlaying {
			p.playStartedAt = now
		}
		return nil
	})
}

// control applies a playback change after the authority check and
// broadcasts the resulting sync event.
func (e *Engine) control(userID, event string, apply func(p *party, now time.Time) error) error {
	p, err := e.lockMember(userID)
	if err != nil {
		return err
	}
	defer p.mu.Unlock()

	if !p.canControl(userID) {
		return ErrNotAuthorized
	}
	now := e.now()
	if err := apply(p, now); err != nil {
		return err
	}
	e.rt.SendToRoom(p.id, websocket.Message{
		Type:      websocket.TypePartySync,
		Timestamp: now,
		Fields: map[string]interface{}{
			"party_id":     p.id,
			"event":        event,
			"state":        string(p.state),
			"position":     p.position(now),
			"initiated_by": userID,
		},
	}, "")
	e.saveLocked(p)
	metrics.RecordPartyEvent(event)
	return nil
}

// ReportPosition records a member's local playback position. If the party is
// playing, the member is not buffering and the drift exceeds the threshold,
// a corrective seek is sent to that member only. It reports whether a
// correction was sent.
func (e *Engine) ReportPosition(userID string, position float64, isBuffering bool) bool {
	corrected, _ := e.ReportPositionE(userID, position, isBuffering)
	return corrected
}

// ReportPositionE is ReportPosition with an error.
func (e *Engine) ReportPositionE(userID string, position float64, isBuffering bool) (bool, error) {
	p, err := e.lockMember(userID)
	if err != nil {
		return false, err
	}
	defer p.mu.Unlock()

	m := p.members[userID]
	m.Position = position
	m.IsBuffering = isBuffering

	if p.state != StatePlaying || isBuffering {
		return false, nil
	}
	now := e.now()
	authoritative := p.position(now)
	if math.Abs(position-authoritative) <= e.cfg.DesyncThreshold {
		return false, nil
	}

	e.rt.SendToUser(userID, websocket.Message{
		Type:      websocket.TypePartySync,
		Timestamp: now,
		Fields: map[string]interface{}{
			"party_id":     p.id,
			"event":        "seek",
			"state":        string(p.state),
			"position":     authoritative,
			"initiated_by": serverActor,
			"correction":   true,
		},
	}, false)
	metrics.DesyncCorrections.Inc()
	logging.Debug().
		Str("party_id", p.id).
		Str("user_id", userID).
		Float64("reported", position).
		Float64("authoritative", authoritative).
		Msg("desync correction sent")
	return true, nil
}

// SetReady sets a member's ready flag and broadcasts it with all_ready.
func (e *Engine) SetReady(userID string, isReady bool) bool {
	return e.SetReadyE(userID, isReady) == nil
}

// SetReadyE is SetReady with an error.
func (e *Engine) SetReadyE(userID string, isReady bool) error {
	p, err := e.lockMember(userID)
	if err != nil {
		return err
	}
	defer p.mu.Unlock()

	p.members[userID].IsReady = isReady
	now := e.now()
	e.rt.SendToRoom(p.id, websocket.Message{
		Type:      websocket.TypePartySync,
		Timestamp: now,
		Fields: map[string]interface{}{
			"party_id":     p.id,
			"event":        "ready",
			"state":        string(p.state),
			"position":     p.position(now),
			"initiated_by": userID,
			"user_id":      userID,
			"is_ready":     isReady,
			"all_ready":    p.allReady(),
		},
	}, "")
	e.saveLocked(p)
	metrics.RecordPartyEvent("ready")
	return nil
}

// SendChat posts a chat message, truncated to the configured length.
func (e *Engine) SendChat(userID, content string) *ChatMessage {
	msg, err := e.SendChatE(userID, content)
	if err != nil {
		return nil
	}
	return msg
}

// SendChatE is SendChat with an error.
func (e *Engine) SendChatE(userID, content string) (*ChatMessage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	p, err := e.lockMember(userID)
	if err != nil {
		return nil, err
	}
	defer p.mu.Unlock()

	msg := ChatMessage{
		ID:          uuid.New().String(),
		UserID:      userID,
		DisplayName: p.members[userID].DisplayName,
		Content:     truncateRunes(content, e.cfg.MaxChatLength),
		Timestamp:   e.now(),
	}
	e.appendChatLocked(p, msg)
	metrics.RecordPartyEvent("chat")
	return &msg, nil
}

func (e *Engine) postSystemLocked(p *party, text string) {
	e.appendChatLocked(p, ChatMessage{
		ID:          uuid.New().String(),
		UserID:      systemUserID,
		DisplayName: systemName,
		Content:     text,
		Timestamp:   e.now(),
		IsSystem:    true,
	})
}

func (e *Engine) appendChatLocked(p *party, msg ChatMessage) {
	p.appendChat(msg, e.cfg.ChatHistory)
	e.rt.SendToRoom(p.id, websocket.Message{
		Type:      websocket.TypePartyChat,
		Timestamp: msg.Timestamp,
		Fields: map[string]interface{}{
			"party_id": p.id,
			"message":  msg,
		},
	}, "")
	if err := e.repo.AppendChatMessage(context.Background(), p.id, msg); err != nil {
		logging.Warn().Err(err).Str("party_id", p.id).Msg("failed to persist chat message")
	}
}

// SendReaction broadcasts an emoji reaction at the current position.
func (e *Engine) SendReaction(userID, emoji string) *Reaction {
	r, err := e.SendReactionE(userID, emoji)
	if err != nil {
		return nil
	}
	return r
}

// SendReactionE is SendReaction with an error.
func (e *Engine) SendReactionE(userID, emoji string) (*Reaction, error) {
	if emoji == "" || utf8.RuneCountInString(emoji) > e.cfg.MaxEmojiLength {
		return nil, ErrInvalidReaction
	}
	p, err := e.lockMember(userID)
	if err != nil {
		return nil, err
	}
	defer p.mu.Unlock()

	now := e.now()
	r := Reaction{UserID: userID, Emoji: emoji, Position: p.position(now), Timestamp: now}
	p.appendReaction(r, reactionLimit)
	e.rt.SendToRoom(p.id, websocket.Message{
		Type:      websocket.TypePartyReaction,
		Timestamp: now,
		Fields: map[string]interface{}{
			"party_id": p.id,
			"reaction": r,
		},
	}, "")
	metrics.RecordPartyEvent("reaction")
	return &r, nil
}

// GetParty returns a snapshot of a live party or nil.
func (e *Engine) GetParty(partyID string) *Party {
	p := e.lookup(partyID)
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateEnded {
		return nil
	}
	snap := p.snapshot(e.now(), e.cfg.SnapshotChat)
	return &snap
}

// GetPartyByInviteCode resolves an invite code (case-insensitive).
func (e *Engine) GetPartyByInviteCode(code string) *Party {
	e.mu.RLock()
	id, ok := e.inviteCodes[NormalizeInviteCode(code)]
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	return e.GetParty(id)
}

// GetUserParty returns the party the user belongs to, or nil.
func (e *Engine) GetUserParty(userID string) *Party {
	id, ok := e.userPartyID(userID)
	if !ok {
		return nil
	}
	return e.GetParty(id)
}

// ListPublicParties returns live non-private parties, oldest first, without chat.
func (e *Engine) ListPublicParties() []Party {
	e.mu.RLock()
	all := lo.Values(e.parties)
	e.mu.RUnlock()

	now := e.now()
	out := make([]Party, 0, len(all))
	for _, p := range all {
		p.mu.Lock()
		if !p.isPrivate && p.state != StateEnded {
			out = append(out, p.snapshot(now, 0))
		}
		p.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ActivePartyCount returns the number of live parties.
func (e *Engine) ActivePartyCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.parties)
}

// Reactions returns the in-memory reaction log of a party.
func (e *Engine) Reactions(partyID string) []Reaction {
	p := e.lookup(partyID)
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Reaction(nil), p.reactions...)
}

func (e *Engine) lookup(partyID string) *party {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.parties[partyID]
}

func (e *Engine) resolve(partyID, inviteCode string) *party {
	if partyID != "" {
		return e.lookup(partyID)
	}
	if inviteCode == "" {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if id, ok := e.inviteCodes[NormalizeInviteCode(inviteCode)]; ok {
		return e.parties[id]
	}
	return nil
}

func (e *Engine) userPartyID(userID string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, ok := e.userParty[userID]
	return id, ok
}

func (e *Engine) partyOfUser(userID string) *party {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, ok := e.userParty[userID]
	if !ok {
		return nil
	}
	return e.parties[id]
}

// lockMember returns the user's party locked, or an error with nothing held.
func (e *Engine) lockMember(userID string) (*party, error) {
	p := e.partyOfUser(userID)
	if p == nil {
		return nil, ErrNotMember
	}
	p.mu.Lock()
	if p.state == StateEnded {
		p.mu.Unlock()
		return nil, ErrPartyEnded
	}
	if _, ok := p.members[userID]; !ok {
		p.mu.Unlock()
		return nil, ErrNotMember
	}
	return p, nil
}

func (e *Engine) saveLocked(p *party) {
	if err := e.repo.SaveParty(context.Background(), p.snapshot(e.now(), 0)); err != nil {
		logging.Warn().Err(err).Str("party_id", p.id).Msg("failed to persist party")
	}
}

func displayName(name, userID string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return userID
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
