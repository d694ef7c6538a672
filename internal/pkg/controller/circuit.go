package controller

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/anicoll/pool-integration/internal/pkg/config"
	"github.com/anicoll/pool-integration/internal/pkg/hub"
	"github.com/anicoll/pool-integration/internal/pkg/model"
)

const CircuitNodeDefID = "CIRCUIT"

// CircuitNode is one controller circuit (pump, light, spa jets, ...).
type CircuitNode struct {
	ctrl    *Controller
	number  int
	address string
	name    string
}

func (n *CircuitNode) Address() string   { return n.address }
func (n *CircuitNode) Name() string      { return n.name }
func (n *CircuitNode) NodeDefID() string { return CircuitNodeDefID }

func (n *CircuitNode) Drivers() []model.Driver {
	return []model.Driver{
		{Code: model.DriverStatus, UOM: model.UOMIndex},
	}
}

func (n *CircuitNode) Commands() map[string]hub.CommandFunc {
	return map[string]hub.CommandFunc{
		model.CommandOn: func(ctx context.Context, _ model.Command) error {
			return n.setState(ctx, true)
		},
		model.CommandOff: func(ctx context.Context, _ model.Command) error {
			return n.setState(ctx, false)
		},
		model.CommandQuery: func(ctx context.Context, _ model.Command) error {
			return n.query(ctx)
		},
	}
}

// Update takes the circuit status from the tick snapshot, falling back to a
// direct fetch when the circuit is missing from it.
func (n *CircuitNode) Update(ctx context.Context, snap *model.Snapshot) error {
	if snap != nil && snap.EquipmentErr == nil {
		if info, ok := snap.Equipment.Circuit(n.number); ok {
			return n.ctrl.registry.SetDriver(ctx, n.address, model.DriverStatus, float64(info.Status))
		}
	}
	return n.Refresh(ctx)
}

// Refresh reads GET /circuit/{n} and sets ST.
func (n *CircuitNode) Refresh(ctx context.Context) error {
	info, err := n.ctrl.client.Circuit(ctx, n.number)
	if err != nil {
		return fmt.Errorf("circuit %d status: %w", n.number, err)
	}
	return n.ctrl.registry.SetDriver(ctx, n.address, model.DriverStatus, float64(info.Status))
}

// setState drives the circuit towards on. The controller only exposes a
// toggle, so in toggle mode DON and DOF are the same request.
func (n *CircuitNode) setState(ctx context.Context, on bool) error {
	if n.ctrl.params.CircuitControl == config.CircuitControlSet {
		info, err := n.ctrl.client.Circuit(ctx, n.number)
		if err != nil {
			return fmt.Errorf("circuit %d status: %w", n.number, err)
		}
		if info.IsOn() == on {
			n.ctrl.logger.Debug("circuit already in requested state", zap.String("name", n.name), zap.Bool("on", on))
			return n.ctrl.registry.SetDriver(ctx, n.address, model.DriverStatus, float64(info.Status))
		}
	}

	if err := n.ctrl.client.ToggleCircuit(ctx, n.number); err != nil {
		return fmt.Errorf("toggle circuit %d: %w", n.number, err)
	}
	if on {
		n.ctrl.logger.Info("circuit turned on", zap.String("name", n.name))
	} else {
		n.ctrl.logger.Info("circuit turned off", zap.String("name", n.name))
	}
	return n.Refresh(ctx)
}

func (n *CircuitNode) query(ctx context.Context) error {
	if err := n.Refresh(ctx); err != nil {
		return err
	}
	return n.ctrl.registry.ReportDrivers(ctx, n.address)
}
