package publisher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/pool-integration/internal/pkg/model"
)

var errAlreadyRegistered = errors.New("publisher already registered")

type publisher interface {
	RegisterNode(ctx context.Context, node model.NodeInfo) error
	Write(ctx context.Context, address string, drivers []model.Driver) error
}

// Publisher fans node registrations and driver values out to every registered
// adapter. A failing adapter is logged and the others still receive the data.
type Publisher struct {
	mu         sync.RWMutex
	publishers map[string]publisher
	drivers    sync.Map
	logger     *zap.Logger
}

func New() *Publisher {
	return &Publisher{
		publishers: make(map[string]publisher),
		logger:     zap.L(),
	}
}

func (p *Publisher) Register(name string, pub publisher) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.publishers[name]; ok {
		return fmt.Errorf("%w: %s", errAlreadyRegistered, name)
	}
	p.publishers[name] = pub
	return nil
}

func (p *Publisher) each(fn func(name string, pub publisher)) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := lo.Keys(p.publishers)
	slices.Sort(names)
	for _, name := range names {
		fn(name, p.publishers[name])
	}
}

func (p *Publisher) RegisterNode(ctx context.Context, node model.NodeInfo) error {
	p.each(func(name string, pub publisher) {
		if err := pub.RegisterNode(ctx, node); err != nil {
			p.logger.Error("failed to register node", zap.Error(err), zap.String("publisher", name), zap.String("address", node.Address))
			return
		}
		p.logger.Debug("registered node", zap.String("address", node.Address), zap.String("publisher", name))
	})
	return nil
}

// PublishDrivers forwards only the drivers whose value differs from the last
// one published for the node.
func (p *Publisher) PublishDrivers(ctx context.Context, address string, drivers []model.Driver) error {
	changed := lo.Filter(drivers, func(d model.Driver, _ int) bool {
		return p.shouldUpdate(address, d)
	})
	if len(changed) == 0 {
		return nil
	}
	p.write(ctx, address, changed)
	return nil
}

// ReportDrivers forwards every driver regardless of its last published value.
func (p *Publisher) ReportDrivers(ctx context.Context, address string, drivers []model.Driver) error {
	for _, d := range drivers {
		p.drivers.Store(key(address, d.Code), d.Value)
	}
	p.write(ctx, address, drivers)
	return nil
}

func (p *Publisher) write(ctx context.Context, address string, drivers []model.Driver) {
	p.each(func(name string, pub publisher) {
		if err := pub.Write(ctx, address, drivers); err != nil {
			p.logger.Error("failed to publish drivers", zap.Error(err), zap.String("publisher", name), zap.String("address", address))
			return
		}
		p.logger.Debug("updated drivers", zap.Int("count", len(drivers)), zap.String("address", address), zap.String("publisher", name))
	})
}

func (p *Publisher) shouldUpdate(address string, d model.Driver) bool {
	k := key(address, d.Code)
	old, exists := p.drivers.Load(k)
	if exists && old.(float64) == d.Value {
		return false
	}
	if !exists {
		p.logger.Info("configured driver", zap.String("address", address), zap.String("driver", d.Code.String()), zap.String("value", strconv.FormatFloat(d.Value, 'f', -1, 64)))
	}
	p.drivers.Store(k, d.Value)
	return true
}

func key(address string, code model.DriverCode) string {
	return address + "_" + code.String()
}
