package cmd

import (
	"context"
	"time"
)

// ControllerService defines the interface that cmd.run expects from the node
// server controller.
type ControllerService interface {
	Start(ctx context.Context) error
	ShortPoll(ctx context.Context) error
	LongPoll(ctx context.Context) error
}

// DatabaseCleaner trims stored driver history.
type DatabaseCleaner interface {
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}
