// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package bus fans player status updates out to in-process subscribers
// such as the server-sent event stream.
package bus

import "context"

// Message is an opaque payload.
type Message any

// Bus publishes messages to topic subscribers.
type Bus interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Subscribe(ctx context.Context, topic string) (Subscriber, error)
}

// Subscriber receives messages until Close.
type Subscriber interface {
	C() <-chan Message
	Close() error
}
