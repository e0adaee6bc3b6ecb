// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/dopaminewatch/realtime/internal/logging"
	"github.com/dopaminewatch/realtime/internal/metrics"
	"github.com/dopaminewatch/realtime/internal/watchparty"
)

// BreakerConfig tunes the repository circuit breaker.
type BreakerConfig struct {
	Name string
	// ConsecutiveFailures opens the circuit.
	ConsecutiveFailures uint32
	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration
}

// DefaultBreakerConfig returns production settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:                "party-store",
		ConsecutiveFailures: 5,
		Timeout:             30 * time.Second,
	}
}

// BreakerRepository guards a Repository with a circuit breaker so a failing
// store is skipped instead of slowing every party mutation.
type BreakerRepository struct {
	next watchparty.Repository
	cb   *gobreaker.CircuitBreaker[interface{}]
	name string
}

var _ watchparty.Repository = (*BreakerRepository)(nil)

// NewBreakerRepository wraps next.
func NewBreakerRepository(next watchparty.Repository, cfg BreakerConfig) *BreakerRepository {
	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, watchparty.ErrRecordNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("store circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &BreakerRepository{next: next, cb: cb, name: cfg.Name}
}

// State returns the breaker state.
func (b *BreakerRepository) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerRepository) execute(op string, fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	metrics.RecordStoreOperation(op, err)

	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
	}
	return result, err
}

// SaveParty implements watchparty.Repository.
func (b *BreakerRepository) SaveParty(ctx context.Context, p watchparty.Party) error {
	_, err := b.execute("save", func() (interface{}, error) {
		return nil, b.next.SaveParty(ctx, p)
	})
	return err
}

// AppendChatMessage implements watchparty.Repository.
func (b *BreakerRepository) AppendChatMessage(ctx context.Context, partyID string, msg watchparty.ChatMessage) error {
	_, err := b.execute("append_chat", func() (interface{}, error) {
		return nil, b.next.AppendChatMessage(ctx, partyID, msg)
	})
	return err
}

// DeleteParty implements watchparty.Repository.
func (b *BreakerRepository) DeleteParty(ctx context.Context, partyID string) error {
	_, err := b.execute("delete", func() (interface{}, error) {
		return nil, b.next.DeleteParty(ctx, partyID)
	})
	return err
}

// LoadParty implements watchparty.Repository.
func (b *BreakerRepository) LoadParty(ctx context.Context, partyID string) (watchparty.Party, error) {
	result, err := b.execute("load", func() (interface{}, error) {
		return b.next.LoadParty(ctx, partyID)
	})
	if err != nil {
		return watchparty.Party{}, err
	}
	p, ok := result.(watchparty.Party)
	if !ok {
		return watchparty.Party{}, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return p, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
