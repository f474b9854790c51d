package transport

import (
	"context"
	"errors"
	"time"
)

// Returned (wrapped) by Subscribe and Poll when the connection is
// lost and must be re-established. Any other Poll error is
// transient.
var ErrDisconnected = errors.New("transport disconnected")

// A thing capable of subscribing to a pub/sub topic
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

type Subscription interface {
	// Waits up to timeout for the next message. Returns nil, nil
	// if nothing arrived in time.
	Poll(ctx context.Context, timeout time.Duration) ([]byte, error)

	Close() error
}
