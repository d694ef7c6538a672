package hub

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/pool-integration/internal/pkg/model"
)

type recordingSink struct {
	mu         sync.Mutex
	registered []model.NodeInfo
	published  []model.Driver
	reported   []model.Driver
}

func (s *recordingSink) RegisterNode(_ context.Context, info model.NodeInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registered = append(s.registered, info)
	return nil
}

func (s *recordingSink) PublishDrivers(_ context.Context, _ string, drivers []model.Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, drivers...)
	return nil
}

func (s *recordingSink) ReportDrivers(_ context.Context, _ string, drivers []model.Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reported = append(s.reported, drivers...)
	return nil
}

type fakeNode struct {
	address  string
	commands map[string]CommandFunc
}

func (n *fakeNode) Address() string                               { return n.address }
func (n *fakeNode) Name() string                                  { return "Fake " + n.address }
func (n *fakeNode) NodeDefID() string                             { return "FAKE" }
func (n *fakeNode) Commands() map[string]CommandFunc              { return n.commands }
func (n *fakeNode) Update(context.Context, *model.Snapshot) error { return nil }

func (n *fakeNode) Drivers() []model.Driver {
	return []model.Driver{{Code: model.DriverStatus, UOM: model.UOMIndex}}
}

func TestRegistry_AddNodeOnce(t *testing.T) {
	sink := &recordingSink{}
	r := New("controller", sink)

	added, err := r.AddNode(context.Background(), &fakeNode{address: "circuit1"})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = r.AddNode(context.Background(), &fakeNode{address: "circuit1"})
	require.NoError(t, err)
	assert.False(t, added)

	_, err = r.AddNode(context.Background(), &fakeNode{address: "circuit2"})
	require.NoError(t, err)

	assert.Len(t, r.Nodes(), 2)
	assert.Equal(t, "circuit1", r.Nodes()[0].Address())
	require.Len(t, sink.registered, 2)
	assert.Equal(t, "controller", sink.registered[0].Primary)
}

func TestRegistry_SetDriverReportsChangesOnly(t *testing.T) {
	sink := &recordingSink{}
	r := New("controller", sink)
	_, err := r.AddNode(context.Background(), &fakeNode{address: "circuit1"})
	require.NoError(t, err)

	require.NoError(t, r.SetDriver(context.Background(), "circuit1", model.DriverStatus, 1))
	require.NoError(t, r.SetDriver(context.Background(), "circuit1", model.DriverStatus, 1))
	assert.Len(t, sink.published, 1)

	drivers, err := r.Drivers("circuit1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, drivers[0].Value)

	require.NoError(t, r.ReportDrivers(context.Background(), "circuit1"))
	assert.Len(t, sink.reported, 1)

	assert.ErrorIs(t, r.SetDriver(context.Background(), "circuit1", model.DriverGV0, 1), ErrUnknownDriver)
	assert.ErrorIs(t, r.SetDriver(context.Background(), "nope", model.DriverStatus, 1), ErrUnknownNode)
}

func TestRegistry_SetDriverForwardsFirstZero(t *testing.T) {
	sink := &recordingSink{}
	r := New("controller", sink)
	_, err := r.AddNode(context.Background(), &fakeNode{address: "circuit1"})
	require.NoError(t, err)

	require.NoError(t, r.SetDriver(context.Background(), "circuit1", model.DriverStatus, 0))
	require.Len(t, sink.published, 1)
	assert.Equal(t, model.Driver{Code: model.DriverStatus, Value: 0, UOM: model.UOMIndex}, sink.published[0])

	require.NoError(t, r.SetDriver(context.Background(), "circuit1", model.DriverStatus, 0))
	assert.Len(t, sink.published, 1)

	require.NoError(t, r.SetDriver(context.Background(), "circuit1", model.DriverStatus, 1))
	assert.Len(t, sink.published, 2)
}

func TestRegistry_Dispatch(t *testing.T) {
	var got model.Command
	boom := errors.New("boom")
	r := New("controller", nil)
	_, err := r.AddNode(context.Background(), &fakeNode{
		address: "spa_heat",
		commands: map[string]CommandFunc{
			model.CommandSetTemp: func(_ context.Context, cmd model.Command) error {
				got = cmd
				return nil
			},
			model.CommandOff: func(context.Context, model.Command) error {
				return boom
			},
		},
	})
	require.NoError(t, err)

	cmd := model.Command{Address: "spa_heat", Cmd: model.CommandSetTemp, Value: "78"}
	require.NoError(t, r.Dispatch(context.Background(), cmd))
	assert.Equal(t, cmd, got)

	assert.ErrorIs(t, r.Dispatch(context.Background(), model.Command{Address: "spa_heat", Cmd: model.CommandOff}), boom)
	assert.ErrorIs(t, r.Dispatch(context.Background(), model.Command{Address: "spa_heat", Cmd: model.CommandOn}), ErrUnknownCommand)
	assert.ErrorIs(t, r.Dispatch(context.Background(), model.Command{Address: "pool_heat", Cmd: model.CommandOn}), ErrUnknownNode)

	info, ok := r.NodeInfo("spa_heat")
	require.True(t, ok)
	assert.Equal(t, []string{model.CommandOff, model.CommandSetTemp}, info.Commands)
}
