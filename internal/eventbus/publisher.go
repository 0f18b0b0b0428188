// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ChrisMmbohe/gotruck-telemetry/internal/config"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/logging"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/metrics"
)

// Publisher wraps the bus publisher with circuit breaker protection.
// Ingestion calls it after durable writes; a broken distribution path
// must never fail the HTTP request, so callers treat errors as
// advisory.
type Publisher struct {
	publisher      message.Publisher
	circuitBreaker *gobreaker.CircuitBreaker[interface{}]
	mu             sync.RWMutex
	closed         bool
}

// NewPublisher creates a circuit-breaker-protected publisher on top of
// the bus.
func NewPublisher(bus *Bus, cfg config.BusConfig) *Publisher {
	settings := gobreaker.Settings{
		Name:        "fix-publisher",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Publisher circuit breaker state changed")
		},
	}

	return &Publisher{
		publisher:      bus.Publisher(),
		circuitBreaker: gobreaker.NewCircuitBreaker[interface{}](settings),
	}
}

// PublishFixEvent serializes and publishes a fix event to the bus.
func (p *Publisher) PublishFixEvent(ctx context.Context, event *FixEvent) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("publisher is closed")
	}
	p.mu.RUnlock()

	data, err := event.Marshal()
	if err != nil {
		metrics.BusPublishesTotal.WithLabelValues("error").Inc()
		return err
	}

	msg := message.NewMessage(uuid.New().String(), data)
	msg.Metadata.Set("truck_id", event.TruckID)
	if event.Batch {
		msg.Metadata.Set("batch", "true")
	}

	_, err = p.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, p.publisher.Publish(TopicFix, msg)
	})

	switch {
	case err == nil:
		metrics.BusPublishesTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.BusPublishesTotal.WithLabelValues("open").Inc()
	default:
		metrics.BusPublishesTotal.WithLabelValues("error").Inc()
	}

	return err
}

// Close marks the publisher closed. The underlying bus is closed
// separately by its owner.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
