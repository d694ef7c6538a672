package contxt

import (
	"context"
	"os"
	"time"
)

// NewContext returns a detached context bounded by timeout. Setting
// CONTEXT_TEST disables the deadline.
func NewContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if os.Getenv("CONTEXT_TEST") != "" {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}
