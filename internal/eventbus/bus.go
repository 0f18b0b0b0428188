// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package eventbus

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/ChrisMmbohe/gotruck-telemetry/internal/config"
)

// Bus is the in-process pub/sub connecting ingestion to the realtime
// hub. Messages are buffered per subscriber; a slow subscriber drops
// behind without blocking publishers beyond the buffer.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

// NewBus creates an in-process Watermill pub/sub.
func NewBus(cfg config.BusConfig, logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = NewLoggerAdapter()
	}

	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            cfg.OutputBufferSize,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		logger,
	)

	return &Bus{pubsub: pubsub, logger: logger}
}

// Publisher returns the raw Watermill publisher for wrapping.
func (b *Bus) Publisher() message.Publisher {
	return b.pubsub
}

// Subscribe returns a channel of messages for the topic. The channel
// closes when ctx is cancelled or the bus shuts down.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Close shuts down the pub/sub and closes all subscriber channels.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
