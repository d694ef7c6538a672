package cmd

import (
	"context"
	"sync/atomic"
	"time"
)

// MockControllerService is a mock implementation of the ControllerService
// interface.
type MockControllerService struct {
	StartFunc     func(ctx context.Context) error
	ShortPollFunc func(ctx context.Context) error
	LongPollFunc  func(ctx context.Context) error

	StartCalls     atomic.Int32
	ShortPollCalls atomic.Int32
	LongPollCalls  atomic.Int32
}

func (m *MockControllerService) Start(ctx context.Context) error {
	m.StartCalls.Add(1)
	if m.StartFunc != nil {
		return m.StartFunc(ctx)
	}
	return nil
}

func (m *MockControllerService) ShortPoll(ctx context.Context) error {
	m.ShortPollCalls.Add(1)
	if m.ShortPollFunc != nil {
		return m.ShortPollFunc(ctx)
	}
	return nil
}

func (m *MockControllerService) LongPoll(ctx context.Context) error {
	m.LongPollCalls.Add(1)
	if m.LongPollFunc != nil {
		return m.LongPollFunc(ctx)
	}
	return nil
}

// MockDatabaseCleaner is a mock implementation of DatabaseCleaner.
type MockDatabaseCleaner struct {
	CleanupFunc func(ctx context.Context, retention time.Duration) (int64, error)
	Calls       atomic.Int32
}

func (m *MockDatabaseCleaner) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	m.Calls.Add(1)
	if m.CleanupFunc != nil {
		return m.CleanupFunc(ctx, retention)
	}
	return 0, nil
}
