// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package messaging

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/dopaminewatch/realtime/internal/logging"
	"github.com/dopaminewatch/realtime/internal/websocket"
)

var (
	// ErrEmptyMessage is returned for blank message content.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrInvalidRecipient is returned when the recipient is missing or is the sender.
	ErrInvalidRecipient = errors.New("invalid recipient")
)

// Realtime is the delivery surface the service needs; *websocket.Manager
// satisfies it.
type Realtime interface {
	SendToUser(userID string, msg websocket.Message, queueIfOffline bool) bool
	SendToConnection(conn *websocket.Connection, msg websocket.Message) bool
	UserConnections(userID string) []*websocket.Connection
	RegisterHandler(t websocket.MessageType, h websocket.Handler) error
}

// DirectMessage is one message between two users.
type DirectMessage struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	FromUserID     string     `json:"from_user_id"`
	ToUserID       string     `json:"to_user_id"`
	Content        string     `json:"content"`
	CreatedAt      time.Time  `json:"created_at"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
}

// Config holds messaging limits.
type Config struct {
	HistoryPerConversation int
	MaxMessageLength       int

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		HistoryPerConversation: 200,
		MaxMessageLength:       2000,
	}
}

// ConversationID returns the order-independent key for a pair of users.
func ConversationID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// pair is the in-memory conversation key. User IDs may contain ':', so the
// joined ConversationID is not used as a key.
type pair struct{ low, high string }

func pairOf(a, b string) pair {
	if b < a {
		a, b = b, a
	}
	return pair{low: a, high: b}
}

// other returns the member of the pair that is not userID.
func (p pair) other(userID string) (string, bool) {
	switch userID {
	case p.low:
		return p.high, true
	case p.high:
		return p.low, true
	default:
		return "", false
	}
}

// Service delivers direct messages through the connection manager and keeps
// a bounded in-memory history per conversation.
type Service struct {
	cfg Config
	rt  Realtime
	now func() time.Time

	mu            sync.RWMutex
	conversations map[pair][]DirectMessage
}

// NewService creates a messaging service delivering through rt.
func NewService(rt Realtime, cfg Config) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		cfg:           cfg,
		rt:            rt,
		now:           now,
		conversations: make(map[pair][]DirectMessage),
	}
}

// Send stores a message and delivers it to the recipient, queueing it if
// they are offline. Every connection of the sender receives a copy.
func (s *Service) Send(from, to, content string) (*DirectMessage, error) {
	return s.send(from, to, content, "")
}

// send echoes to the sender's connections except originConn.
func (s *Service) send(from, to, content, originConn string) (*DirectMessage, error) {
	if to == "" || to == from {
		return nil, ErrInvalidRecipient
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > s.cfg.MaxMessageLength {
		content = string([]rune(content)[:s.cfg.MaxMessageLength])
	}

	msg := DirectMessage{
		ID:             uuid.New().String(),
		ConversationID: ConversationID(from, to),
		FromUserID:     from,
		ToUserID:       to,
		Content:        content,
		CreatedAt:      s.now(),
	}

	s.mu.Lock()
	key := pairOf(from, to)
	history := append(s.conversations[key], msg)
	if over := len(history) - s.cfg.HistoryPerConversation; over > 0 {
		history = append([]DirectMessage(nil), history[over:]...)
	}
	s.conversations[key] = history
	s.mu.Unlock()

	frame := websocket.Message{
		Type:      websocket.TypeDMMessage,
		Timestamp: msg.CreatedAt,
		Fields:    map[string]interface{}{"message": msg},
	}
	delivered := s.rt.SendToUser(to, frame, true)
	for _, conn := range s.rt.UserConnections(from) {
		if conn.ID() != originConn {
			s.rt.SendToConnection(conn, frame)
		}
	}

	logging.Debug().
		Str("conversation_id", msg.ConversationID).
		Str("from_user_id", from).
		Str("to_user_id", to).
		Bool("delivered", delivered).
		Msg("direct message sent")
	return &msg, nil
}

// Typing forwards a typing indicator. Indicators are never queued.
func (s *Service) Typing(from, to string, isTyping bool) error {
	if to == "" || to == from {
		return ErrInvalidRecipient
	}
	s.rt.SendToUser(to, websocket.NewMessage(websocket.TypeDMTyping, map[string]interface{}{
		"conversation_id": ConversationID(from, to),
		"from_user_id":    from,
		"is_typing":       isTyping,
	}), false)
	return nil
}

// MarkRead marks every unread message from other to reader as read and
// notifies other. It returns the number of messages marked.
func (s *Service) MarkRead(reader, other string) int {
	if reader == "" || other == "" || reader == other {
		return 0
	}
	convID := ConversationID(reader, other)
	now := s.now()

	s.mu.Lock()
	history := s.conversations[pairOf(reader, other)]
	marked := 0
	for i := range history {
		if history[i].ToUserID == reader && history[i].ReadAt == nil {
			readAt := now
			history[i].ReadAt = &readAt
			marked++
		}
	}
	s.mu.Unlock()

	if marked == 0 {
		return 0
	}
	s.rt.SendToUser(other, websocket.Message{
		Type:      websocket.TypeDMRead,
		Timestamp: now,
		Fields: map[string]interface{}{
			"conversation_id": convID,
			"reader_id":       reader,
			"read_at":         now,
			"count":           marked,
		},
	}, false)
	return marked
}

// History returns up to limit of the latest messages between a and b,
// oldest first. A non-positive limit returns the whole retained history.
func (s *Service) History(a, b string, limit int) []DirectMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.conversations[pairOf(a, b)]
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return lo.Map(history, func(m DirectMessage, _ int) DirectMessage {
		if m.ReadAt != nil {
			readAt := *m.ReadAt
			m.ReadAt = &readAt
		}
		return m
	})
}

// UnreadCount returns how many messages addressed to userID are unread,
// keyed by sender.
func (s *Service) UnreadCount(userID string) map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, history := range s.conversations {
		for _, m := range history {
			if m.ToUserID == userID && m.ReadAt == nil {
				counts[m.FromUserID]++
			}
		}
	}
	return counts
}

// Contacts returns every user userID has exchanged messages with, sorted.
func (s *Service) Contacts(userID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for key := range s.conversations {
		if other, ok := key.other(userID); ok {
			out = append(out, other)
		}
	}
	sort.Strings(out)
	return out
}
