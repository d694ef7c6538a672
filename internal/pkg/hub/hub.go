package hub

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/pool-integration/internal/pkg/model"
)

var (
	ErrUnknownNode    = errors.New("unknown node")
	ErrUnknownDriver  = errors.New("unknown driver")
	ErrUnknownCommand = errors.New("unknown command")
)

// CommandFunc handles one hub command addressed to a node.
type CommandFunc func(ctx context.Context, cmd model.Command) error

// Node is anything the hub can address: the controller itself, a circuit or a
// heating zone.
type Node interface {
	Address() string
	Name() string
	NodeDefID() string
	// Drivers is the ordered driver table with initial values.
	Drivers() []model.Driver
	Commands() map[string]CommandFunc
	// Update refreshes the node from a poll tick snapshot.
	Update(ctx context.Context, snap *model.Snapshot) error
}

// Sink receives node registrations and driver changes.
type Sink interface {
	RegisterNode(ctx context.Context, info model.NodeInfo) error
	PublishDrivers(ctx context.Context, address string, drivers []model.Driver) error
	ReportDrivers(ctx context.Context, address string, drivers []model.Driver) error
}

// Registry is the hub-side view of the node server: the set of added nodes and
// the last value of every driver. Addresses are never reused.
type Registry struct {
	primary string
	sink    Sink
	logger  *zap.Logger

	mu      sync.RWMutex
	nodes   map[string]Node
	order   []string
	drivers map[string][]model.Driver
	// sent holds the drivers forwarded to the sink at least once.
	sent map[string]map[model.DriverCode]bool

	// exec serialises commands and poll ticks.
	exec sync.Mutex
}

func New(primary string, sink Sink) *Registry {
	return &Registry{
		primary: primary,
		sink:    sink,
		logger:  zap.L(),
		nodes:   make(map[string]Node),
		drivers: make(map[string][]model.Driver),
		sent:    make(map[string]map[model.DriverCode]bool),
	}
}

func (r *Registry) Has(address string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.nodes[address]
	return ok
}

// AddNode registers n unless a node is already present at its address. It
// reports whether the node was added.
func (r *Registry) AddNode(ctx context.Context, n Node) (bool, error) {
	r.mu.Lock()
	if _, ok := r.nodes[n.Address()]; ok {
		r.mu.Unlock()
		return false, nil
	}
	r.nodes[n.Address()] = n
	r.order = append(r.order, n.Address())
	r.drivers[n.Address()] = append([]model.Driver(nil), n.Drivers()...)
	r.sent[n.Address()] = make(map[model.DriverCode]bool)
	info := r.nodeInfoLocked(n)
	r.mu.Unlock()

	r.logger.Info("added node", zap.String("address", info.Address), zap.String("name", info.Name), zap.String("node_def", info.NodeDefID))
	if r.sink == nil {
		return true, nil
	}
	if err := r.sink.RegisterNode(ctx, info); err != nil {
		return true, fmt.Errorf("register node %s: %w", info.Address, err)
	}
	return true, nil
}

func (r *Registry) Node(address string) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[address]
	return n, ok
}

// Nodes returns every node in the order it was added.
func (r *Registry) Nodes() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.order, func(addr string, _ int) Node {
		return r.nodes[addr]
	})
}

func (r *Registry) NodeInfos() []model.NodeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.order, func(addr string, _ int) model.NodeInfo {
		return r.nodeInfoLocked(r.nodes[addr])
	})
}

func (r *Registry) NodeInfo(address string) (model.NodeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[address]
	if !ok {
		return model.NodeInfo{}, false
	}
	return r.nodeInfoLocked(n), true
}

func (r *Registry) nodeInfoLocked(n Node) model.NodeInfo {
	commands := lo.Keys(n.Commands())
	slices.Sort(commands)
	return model.NodeInfo{
		Address:   n.Address(),
		Name:      n.Name(),
		NodeDefID: n.NodeDefID(),
		Primary:   r.primary,
		Drivers:   append([]model.Driver(nil), r.drivers[n.Address()]...),
		Commands:  commands,
	}
}

// Drivers returns the cached driver values of a node.
func (r *Registry) Drivers(address string) ([]model.Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	drivers, ok := r.drivers[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, address)
	}
	return append([]model.Driver(nil), drivers...), nil
}

// SetDriver stores a driver value and forwards it to the sink when it changed.
// The first value set for a driver is always forwarded, even when it equals the
// initial value of the driver table.
func (r *Registry) SetDriver(ctx context.Context, address string, code model.DriverCode, value float64) error {
	r.mu.Lock()
	drivers, ok := r.drivers[address]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownNode, address)
	}
	idx := -1
	for i, d := range drivers {
		if d.Code == code {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s on %s", ErrUnknownDriver, code, address)
	}
	changed := drivers[idx].Value != value || !r.sent[address][code]
	drivers[idx].Value = value
	r.sent[address][code] = true
	d := drivers[idx]
	r.mu.Unlock()

	if !changed || r.sink == nil {
		return nil
	}
	return r.sink.PublishDrivers(ctx, address, []model.Driver{d})
}

// ReportDrivers forwards every driver of the node regardless of change.
func (r *Registry) ReportDrivers(ctx context.Context, address string) error {
	drivers, err := r.Drivers(address)
	if err != nil {
		return err
	}
	if r.sink == nil {
		return nil
	}
	return r.sink.ReportDrivers(ctx, address, drivers)
}

// Dispatch routes a hub command to the addressed node's handler. Dispatch
// holds the exec lock so a command never interleaves with a poll tick.
func (r *Registry) Dispatch(ctx context.Context, cmd model.Command) error {
	n, ok := r.Node(cmd.Address)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, cmd.Address)
	}
	fn, ok := n.Commands()[cmd.Cmd]
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrUnknownCommand, cmd.Cmd, cmd.Address)
	}

	r.exec.Lock()
	defer r.exec.Unlock()
	if err := fn(ctx, cmd); err != nil {
		r.logger.Error("command failed", zap.String("address", cmd.Address), zap.String("cmd", cmd.Cmd), zap.Error(err))
		return fmt.Errorf("%s on %s: %w", cmd.Cmd, cmd.Address, err)
	}
	r.logger.Info("command handled", zap.String("address", cmd.Address), zap.String("cmd", cmd.Cmd), zap.String("value", cmd.Value))
	return nil
}

// Exclusive runs fn under the same lock Dispatch uses.
func (r *Registry) Exclusive(fn func() error) error {
	r.exec.Lock()
	defer r.exec.Unlock()
	return fn()
}
