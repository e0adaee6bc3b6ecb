// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package watchparty

import (
	"sync"
	"time"

	"github.com/samber/lo"
)

// State is a party's playback state.
type State string

const (
	StateLobby    State = "lobby"
	StateStarting State = "starting"
	StatePlaying  State = "playing"
	StatePaused   State = "paused"
	StateEnded    State = "ended"
)

// transitions lists the permitted edges. Any state may move to ended.
var transitions = map[State][]State{
	StateLobby:    {StateStarting, StatePlaying, StateEnded},
	StateStarting: {StatePlaying, StateEnded},
	StatePlaying:  {StatePaused, StateEnded},
	StatePaused:   {StatePlaying, StateEnded},
}

// CanTransition reports whether s -> to is a permitted edge.
func (s State) CanTransition(to State) bool {
	return lo.Contains(transitions[s], to)
}

// Member is one participant of a party.
type Member struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	IsHost      bool      `json:"is_host"`
	IsReady     bool      `json:"is_ready"`
	Position    float64   `json:"position"`
	IsBuffering bool      `json:"is_buffering"`
	JoinedAt    time.Time `json:"joined_at"`
}

// ChatMessage is one party chat entry.
type ChatMessage struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	IsSystem    bool      `json:"is_system"`
}

// Reaction is an emoji sent at a playback position.
type Reaction struct {
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	Position  float64   `json:"position"`
	Timestamp time.Time `json:"timestamp"`
}

// Party is a read-only snapshot of a watch party.
type Party struct {
	ID               string        `json:"id"`
	HostID           string        `json:"host_id"`
	ContentID        string        `json:"content_id"`
	ContentType      string        `json:"content_type"`
	ContentTitle     string        `json:"content_title"`
	ContentDuration  float64       `json:"content_duration"`
	State            State         `json:"state"`
	CurrentPosition  float64       `json:"current_position"`
	Members          []Member      `json:"members"`
	Chat             []ChatMessage `json:"chat,omitempty"`
	AnyoneCanControl bool          `json:"anyone_can_control"`
	IsPrivate        bool          `json:"is_private"`
	InviteCode       string        `json:"invite_code,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

// Member returns the member record for userID.
func (p Party) Member(userID string) (Member, bool) {
	return lo.Find(p.Members, func(m Member) bool { return m.UserID == userID })
}

// ViewFor returns the snapshot as seen by userID: the invite code is only
// visible to the host.
func (p Party) ViewFor(userID string) Party {
	if userID != p.HostID {
		p.InviteCode = ""
	}
	return p
}

// party is the engine-owned mutable state. All fields are guarded by mu.
type party struct {
	mu sync.Mutex

	id               string
	hostID           string
	contentID        string
	contentType      string
	contentTitle     string
	contentDuration  float64
	anyoneCanControl bool
	isPrivate        bool
	inviteCode       string
	createdAt        time.Time

	state           State
	currentPosition float64
	playStartedAt   time.Time

	members     map[string]*Member
	memberOrder []string

	chat      []ChatMessage
	reactions []Reaction
}

func (p *party) clamp(pos float64) float64 {
	if pos < 0 {
		return 0
	}
	if pos > p.contentDuration {
		return p.contentDuration
	}
	return pos
}

// position returns the authoritative playback position at now. While
// playing, the clock advances from playStartedAt.
func (p *party) position(now time.Time) float64 {
	if p.state != StatePlaying {
		return p.currentPosition
	}
	return p.clamp(p.currentPosition + now.Sub(p.playStartedAt).Seconds())
}

func (p *party) canControl(userID string) bool {
	if _, ok := p.members[userID]; !ok {
		return false
	}
	return p.anyoneCanControl || p.hostID == userID
}

func (p *party) allReady() bool {
	return lo.EveryBy(p.memberOrder, func(uid string) bool { return p.members[uid].IsReady })
}

func (p *party) addMember(m *Member) {
	p.members[m.UserID] = m
	p.memberOrder = append(p.memberOrder, m.UserID)
}

func (p *party) removeMember(userID string) {
	delete(p.members, userID)
	p.memberOrder = lo.Without(p.memberOrder, userID)
}

func (p *party) appendChat(msg ChatMessage, limit int) {
	p.chat = append(p.chat, msg)
	if over := len(p.chat) - limit; over > 0 {
		p.chat = append([]ChatMessage(nil), p.chat[over:]...)
	}
}

func (p *party) appendReaction(r Reaction, limit int) {
	p.reactions = append(p.reactions, r)
	if over := len(p.reactions) - limit; over > 0 {
		p.reactions = append([]Reaction(nil), p.reactions[over:]...)
	}
}

// snapshot copies the party. chatLimit bounds the trailing chat messages
// included; zero omits chat.
func (p *party) snapshot(now time.Time, chatLimit int) Party {
	members := lo.Map(p.memberOrder, func(uid string, _ int) Member { return *p.members[uid] })
	var chat []ChatMessage
	if chatLimit > 0 && len(p.chat) > 0 {
		start := len(p.chat) - chatLimit
		if start < 0 {
			start = 0
		}
		chat = append([]ChatMessage(nil), p.chat[start:]...)
	}
	return Party{
		ID:               p.id,
		HostID:           p.hostID,
		ContentID:        p.contentID,
		ContentType:      p.contentType,
		ContentTitle:     p.contentTitle,
		ContentDuration:  p.contentDuration,
		State:            p.state,
		CurrentPosition:  p.position(now),
		Members:          members,
		Chat:             chat,
		AnyoneCanControl: p.anyoneCanControl,
		IsPrivate:        p.isPrivate,
		InviteCode:       p.inviteCode,
		CreatedAt:        p.createdAt,
	}
}
