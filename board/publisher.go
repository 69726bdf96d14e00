package board

import (
	"context"

	"messageboard/models"
)

// Publisher hands a stored message to whatever fans it out to readers.
type Publisher interface {
	Publish(ctx context.Context, msg models.Message) error
}

// ChannelPublisher publishes onto an in-process channel. Everything it sends
// is local: the message is already in this instance's store.
type ChannelPublisher struct {
	C chan<- models.Delivery
}

func (p ChannelPublisher) Publish(ctx context.Context, msg models.Message) error {
	select {
	case p.C <- models.Delivery{Message: msg}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
