package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/anicoll/pool-integration/internal/pkg/hub"
	"github.com/anicoll/pool-integration/internal/pkg/model"
)

const ZoneNodeDefID = "TEMPERATURE"

var ErrInvalidSetpoint = errors.New("setpoint must be an integer")

// ZoneNode is the heater of the pool or the spa.
type ZoneNode struct {
	ctrl *Controller
	zone model.Zone
	name string
}

func (n *ZoneNode) Address() string   { return n.zone.Address() }
func (n *ZoneNode) Name() string      { return n.name }
func (n *ZoneNode) NodeDefID() string { return ZoneNodeDefID }

func (n *ZoneNode) Drivers() []model.Driver {
	return []model.Driver{
		{Code: model.DriverStatus, UOM: model.UOMIndex},
		{Code: model.DriverHeatSetpoint, UOM: model.UOMFahrenheit},
		{Code: model.DriverClimateTemp, UOM: model.UOMFahrenheit},
	}
}

func (n *ZoneNode) Commands() map[string]hub.CommandFunc {
	return map[string]hub.CommandFunc{
		model.CommandOn: func(ctx context.Context, _ model.Command) error {
			return n.setHeat(ctx, true)
		},
		model.CommandOff: func(ctx context.Context, _ model.Command) error {
			return n.setHeat(ctx, false)
		},
		model.CommandSetTemp: n.setTemp,
		model.CommandQuery: func(ctx context.Context, _ model.Command) error {
			if err := n.Refresh(ctx); err != nil {
				return err
			}
			return n.ctrl.registry.ReportDrivers(ctx, n.Address())
		},
	}
}

func (n *ZoneNode) Update(ctx context.Context, snap *model.Snapshot) error {
	if snap != nil && snap.TemperaturesErr == nil && snap.Temperatures != nil {
		return n.apply(ctx, snap.Temperatures.Zone(n.zone))
	}
	return n.Refresh(ctx)
}

// Refresh reads GET /temperatures and applies this zone's values.
func (n *ZoneNode) Refresh(ctx context.Context) error {
	temps, err := n.ctrl.client.Temperatures(ctx)
	if err != nil {
		return fmt.Errorf("%s temperatures: %w", n.zone, err)
	}
	return n.apply(ctx, temps.Zone(n.zone))
}

func (n *ZoneNode) apply(ctx context.Context, r model.ZoneReading) error {
	return errors.Join(
		n.ctrl.registry.SetDriver(ctx, n.Address(), model.DriverStatus, float64(r.HeatMode)),
		n.ctrl.registry.SetDriver(ctx, n.Address(), model.DriverHeatSetpoint, r.SetPoint),
		n.ctrl.registry.SetDriver(ctx, n.Address(), model.DriverClimateTemp, r.Temperature),
	)
}

// setHeat writes the heat mode only when it differs from the current one.
func (n *ZoneNode) setHeat(ctx context.Context, on bool) error {
	temps, err := n.ctrl.client.Temperatures(ctx)
	if err != nil {
		return fmt.Errorf("%s temperatures: %w", n.zone, err)
	}
	current := temps.Zone(n.zone)
	if (current.HeatMode != 0) == on {
		return n.apply(ctx, current)
	}

	mode := 0
	if on {
		mode = 1
	}
	if err := n.ctrl.client.SetHeatMode(ctx, n.zone, mode); err != nil {
		return fmt.Errorf("%s heat mode %d: %w", n.zone, mode, err)
	}
	n.ctrl.logger.Info("heat mode changed", zap.String("zone", n.zone.String()), zap.Int("mode", mode))
	return n.Refresh(ctx)
}

func (n *ZoneNode) setTemp(ctx context.Context, cmd model.Command) error {
	value, err := strconv.Atoi(strings.TrimSpace(cmd.Value))
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidSetpoint, cmd.Value)
	}
	if err := n.ctrl.client.SetSetpoint(ctx, n.zone, value); err != nil {
		return fmt.Errorf("%s setpoint %d: %w", n.zone, value, err)
	}
	n.ctrl.logger.Info("setpoint changed", zap.String("zone", n.zone.String()), zap.Int("setpoint", value))
	return n.Refresh(ctx)
}
