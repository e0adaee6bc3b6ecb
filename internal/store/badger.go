// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/dopaminewatch/realtime/internal/logging"
	"github.com/dopaminewatch/realtime/internal/watchparty"
)

// Key prefixes for BadgerDB storage
const (
	partyKeyPrefix = "party:"
	chatKeyPrefix  = "chat:"
)

// Options configures the Badger repository.
type Options struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
	// GCRatio is the discard ratio passed to value log GC.
	GCRatio float64
	// ChatLimit bounds the stored chat log per party; the oldest messages are
	// dropped on append. Zero means 100, the engine's in-memory default.
	ChatLimit int
}

// BadgerPartyRepository implements watchparty.Repository on BadgerDB.
//
// Layout:
//
//	party:<id>                      party snapshot without chat (JSON)
//	chat:<id>:<unix nanos>:<msg id> one chat message (JSON)
type BadgerPartyRepository struct {
	db        *badger.DB
	gcRatio   float64
	chatLimit int
}

var _ watchparty.Repository = (*BadgerPartyRepository)(nil)

// OpenBadger opens (or creates) the repository database.
func OpenBadger(opts Options) (*BadgerPartyRepository, error) {
	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.SyncWrites = opts.SyncWrites
	// Party records are small
	bopts.ValueLogFileSize = 16 << 20
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for parties: %w", err)
	}

	ratio := opts.GCRatio
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}

	chatLimit := opts.ChatLimit
	if chatLimit <= 0 {
		chatLimit = 100
	}

	logging.Info().
		Str("path", opts.Path).
		Bool("in_memory", opts.InMemory).
		Bool("sync_writes", opts.SyncWrites).
		Msg("party store opened")
	return &BadgerPartyRepository{db: db, gcRatio: ratio, chatLimit: chatLimit}, nil
}

func partyKey(id string) []byte { return []byte(partyKeyPrefix + id) }

func chatPrefix(partyID string) []byte { return []byte(chatKeyPrefix + partyID + ":") }

// chatKey orders messages by timestamp within a party.
func chatKey(partyID string, msg watchparty.ChatMessage) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", chatKeyPrefix, partyID, msg.Timestamp.UnixNano(), msg.ID))
}

// SaveParty stores the party snapshot. Chat is stored separately.
func (r *BadgerPartyRepository) SaveParty(_ context.Context, p watchparty.Party) error {
	p.Chat = nil
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal party: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(partyKey(p.ID), data); err != nil {
			return fmt.Errorf("set party: %w", err)
		}
		return nil
	})
}

// AppendChatMessage stores one chat message for a party and drops the oldest
// stored messages beyond the chat limit.
func (r *BadgerPartyRepository) AppendChatMessage(_ context.Context, partyID string, msg watchparty.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}
	key := chatKey(partyID, msg)
	return r.db.Update(func(txn *badger.Txn) error {
		keys := chatKeys(txn, partyID)
		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("set chat message: %w", err)
		}
		if !containsKey(keys, key) {
			keys = append(keys, key)
			sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
		}
		for _, k := range keys[:max(0, len(keys)-r.chatLimit)] {
			if err := txn.Delete(k); err != nil {
				return fmt.Errorf("trim chat log: %w", err)
			}
		}
		return nil
	})
}

// chatKeys returns a party's chat keys in timestamp order.
func chatKeys(txn *badger.Txn, partyID string) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	prefix := chatPrefix(partyID)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

func containsKey(keys [][]byte, key []byte) bool {
	for _, k := range keys {
		if bytes.Equal(k, key) {
			return true
		}
	}
	return false
}

// DeleteParty removes the party and its chat history.
func (r *BadgerPartyRepository) DeleteParty(_ context.Context, partyID string) error {
	var keys [][]byte
	if err := r.db.View(func(txn *badger.Txn) error {
		keys = chatKeys(txn, partyID)
		return nil
	}); err != nil {
		return fmt.Errorf("list chat keys: %w", err)
	}

	wb := r.db.NewWriteBatch()
	defer wb.Cancel()
	if err := wb.Delete(partyKey(partyID)); err != nil {
		return fmt.Errorf("delete party: %w", err)
	}
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("delete chat message: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush party delete: %w", err)
	}
	return nil
}

// LoadParty returns the stored party with its chat history in timestamp order.
func (r *BadgerPartyRepository) LoadParty(_ context.Context, partyID string) (watchparty.Party, error) {
	var p watchparty.Party
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(partyKey(partyID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return watchparty.ErrRecordNotFound
		}
		if err != nil {
			return fmt.Errorf("get party: %w", err)
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		}); err != nil {
			return fmt.Errorf("decode party: %w", err)
		}

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := chatPrefix(partyID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var msg watchparty.ChatMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return fmt.Errorf("decode chat message: %w", err)
			}
			p.Chat = append(p.Chat, msg)
		}
		return nil
	})
	if err != nil {
		return watchparty.Party{}, err
	}
	return p, nil
}

// RunGC reclaims value log space until a pass rewrites nothing.
func (r *BadgerPartyRepository) RunGC() error {
	for {
		err := r.db.RunValueLogGC(r.gcRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("value log gc: %w", err)
		}
	}
}

// Close closes the database.
func (r *BadgerPartyRepository) Close() error {
	return r.db.Close()
}
