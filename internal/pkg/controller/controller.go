package controller

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/anicoll/pool-integration/internal/pkg/config"
	"github.com/anicoll/pool-integration/internal/pkg/hub"
	"github.com/anicoll/pool-integration/internal/pkg/model"
	"github.com/anicoll/pool-integration/internal/pkg/poolctl"
)

const (
	Address   = "controller"
	Name      = "Pool Controller"
	NodeDefID = "CONTROLLER"
)

// Controller is the node server's primary node. It owns the configuration,
// discovers circuit and zone nodes, and drives every poll tick.
type Controller struct {
	rawParams map[string]string
	timeout   time.Duration
	registry  *hub.Registry
	logger    *zap.Logger

	params  *config.Params
	client  *poolctl.Client
	roles   roles
	started bool
}

func New(params map[string]string, registry *hub.Registry, httpTimeout time.Duration) *Controller {
	return &Controller{
		rawParams: params,
		timeout:   httpTimeout,
		registry:  registry,
		logger:    zap.L(),
	}
}

func (c *Controller) Address() string   { return Address }
func (c *Controller) Name() string      { return Name }
func (c *Controller) NodeDefID() string { return NodeDefID }

func (c *Controller) Drivers() []model.Driver {
	return []model.Driver{
		{Code: model.DriverStatus, UOM: model.UOMBool},
		{Code: model.DriverGV0, UOM: model.UOMBool},
		{Code: model.DriverClimateTemp, UOM: model.UOMFahrenheit},
		{Code: model.DriverGV1, UOM: model.UOMIndex},
		{Code: model.DriverGV2, UOM: model.UOMFahrenheit},
		{Code: model.DriverGV3, UOM: model.UOMFahrenheit},
		{Code: model.DriverGV4, UOM: model.UOMIndex},
		{Code: model.DriverGV5, UOM: model.UOMFahrenheit},
		{Code: model.DriverGV6, UOM: model.UOMFahrenheit},
		{Code: model.DriverGV7, UOM: model.UOMBool},
	}
}

func (c *Controller) Commands() map[string]hub.CommandFunc {
	return map[string]hub.CommandFunc{
		model.CommandDiscover: func(ctx context.Context, _ model.Command) error {
			return c.rediscover(ctx)
		},
		model.CommandQuery: func(ctx context.Context, _ model.Command) error {
			return c.query(ctx)
		},
	}
}

// Start parses the custom parameters, takes the initial snapshots and runs
// discovery. On failure the service stays up with no device nodes and Start
// may be called again.
func (c *Controller) Start(ctx context.Context) error {
	return c.registry.Exclusive(func() error {
		return c.start(ctx)
	})
}

func (c *Controller) start(ctx context.Context) error {
	if c.started {
		return nil
	}
	c.logger.Info("starting pool controller node server")

	params, err := config.ParseParams(c.rawParams)
	if err != nil {
		if errors.Is(err, config.ErrMissingAPIURL) {
			c.logger.Error("api_url must be set in the custom parameters, e.g. http://localhost:3000")
		} else {
			c.logger.Error("invalid custom parameters", zap.Error(err))
		}
		return err
	}
	client, err := poolctl.New(params.APIURL, c.timeout)
	if err != nil {
		c.logger.Error("invalid api_url", zap.Error(err))
		return err
	}
	c.params = params
	c.client = client
	if params.CircuitControl == config.CircuitControlToggle {
		c.logger.Warn("circuit_control is toggle: DON and DOF both flip the circuit, so a command sent in the current state inverts it")
	}

	if _, err := c.registry.AddNode(ctx, c); err != nil {
		return err
	}

	snap := c.client.Snapshot(ctx)
	if snap.EquipmentErr != nil || snap.TemperaturesErr != nil {
		_ = c.Update(ctx, snap)
		err := errors.Join(snap.EquipmentErr, snap.TemperaturesErr)
		c.logger.Error("unable to read the pool controller, discovery skipped", zap.Error(err))
		return fmt.Errorf("initial snapshot: %w", err)
	}

	circuits := c.workingSet(snap.Equipment)
	c.roles, err = resolveRoles(circuits, params)
	if err != nil {
		c.logger.Error("unable to resolve pool and spa circuits", zap.Error(err))
		return err
	}
	c.logger.Info("resolved circuit roles", zap.Int("pool", c.roles.pool), zap.Int("spa", c.roles.spa))

	if err := c.discover(ctx, snap); err != nil {
		return err
	}
	c.started = true
	if err := c.registry.SetDriver(ctx, Address, model.DriverStatus, 1); err != nil {
		return err
	}
	c.updateNodes(ctx, snap)
	return nil
}

// ShortPoll takes one snapshot and updates every node from it.
func (c *Controller) ShortPoll(ctx context.Context) error {
	return c.registry.Exclusive(func() error {
		if !c.started {
			c.logger.Debug("node server not started, skipping poll")
			return nil
		}
		c.updateNodes(ctx, c.client.Snapshot(ctx))
		return nil
	})
}

// LongPoll picks up circuits that appeared since the last discovery, or
// retries Start if it never succeeded.
func (c *Controller) LongPoll(ctx context.Context) error {
	return c.registry.Exclusive(func() error {
		if !c.started {
			return c.start(ctx)
		}
		return c.rediscover(ctx)
	})
}

func (c *Controller) updateNodes(ctx context.Context, snap *model.Snapshot) {
	for _, n := range c.registry.Nodes() {
		if err := n.Update(ctx, snap); err != nil {
			c.logger.Error("node update failed", zap.String("address", n.Address()), zap.Error(err))
		}
	}
}

func (c *Controller) rediscover(ctx context.Context) error {
	snap := c.client.Snapshot(ctx)
	if snap.EquipmentErr != nil {
		return fmt.Errorf("discover: %w", snap.EquipmentErr)
	}
	c.refreshRoles(snap)
	return c.discover(ctx, snap)
}

// refreshRoles picks up a pool or spa circuit that appeared after start. An
// unresolvable set of circuits keeps the roles already in use.
func (c *Controller) refreshRoles(snap *model.Snapshot) {
	resolved, err := resolveRoles(c.workingSet(snap.Equipment), c.params)
	if err != nil {
		c.logger.Warn("keeping current pool and spa circuits", zap.Error(err))
		return
	}
	if resolved != c.roles {
		c.logger.Info("resolved circuit roles", zap.Int("pool", resolved.pool), zap.Int("spa", resolved.spa))
		c.roles = resolved
	}
}

// discover adds a node for every working circuit and both heating zones.
// Nodes already present are left untouched.
func (c *Controller) discover(ctx context.Context, snap *model.Snapshot) error {
	circuits := c.workingSet(snap.Equipment)
	c.logger.Info("found circuits", zap.Int("count", len(circuits)))

	var errs []error
	caser := cases.Title(language.English)
	for _, info := range circuits {
		n := &CircuitNode{
			ctrl:    c,
			number:  info.Number,
			address: info.Address(),
			name:    caser.String(info.DisplayName()),
		}
		added, err := c.registry.AddNode(ctx, n)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !added {
			c.logger.Info("circuit already configured", zap.String("name", n.name))
			continue
		}
		if err := c.registry.SetDriver(ctx, n.address, model.DriverStatus, float64(info.Status)); err != nil {
			errs = append(errs, err)
		}
	}

	for _, zone := range model.Zones {
		n := &ZoneNode{
			ctrl: c,
			zone: zone,
			name: caser.String(zone.String() + " heat"),
		}
		added, err := c.registry.AddNode(ctx, n)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !added {
			c.logger.Info("temperature already configured", zap.String("name", n.name))
		}
	}
	return errors.Join(errs...)
}

// workingSet is every circuit minus the exclusions, sorted by number.
func (c *Controller) workingSet(equipment *model.EquipmentSnapshot) []model.CircuitInfo {
	if equipment == nil {
		return nil
	}
	circuits := make([]model.CircuitInfo, 0, len(equipment.Circuits))
	for key := range equipment.Circuits {
		number, err := strconv.Atoi(key)
		if err != nil {
			c.logger.Warn("ignoring circuit with non-numeric id", zap.String("id", key))
			continue
		}
		if c.params.Excluded(number) {
			continue
		}
		info, _ := equipment.Circuit(number)
		circuits = append(circuits, info)
	}
	slices.SortFunc(circuits, func(a, b model.CircuitInfo) int {
		return a.Number - b.Number
	})
	return circuits
}

// Update pushes the summary drivers. Reachability is set first and does not
// stop the remaining drivers from updating.
func (c *Controller) Update(ctx context.Context, snap *model.Snapshot) error {
	var errs []error
	set := func(code model.DriverCode, value float64) {
		if err := c.registry.SetDriver(ctx, Address, code, value); err != nil {
			errs = append(errs, err)
		}
	}

	if poolctl.Reachable(snap.EquipmentErr) {
		set(model.DriverGV0, 1)
	} else {
		set(model.DriverGV0, 0)
		errs = append(errs, fmt.Errorf("pool controller unreachable: %w", snap.EquipmentErr))
	}

	if snap.TemperaturesErr != nil {
		errs = append(errs, fmt.Errorf("temperatures: %w", snap.TemperaturesErr))
	} else if t := snap.Temperatures; t != nil {
		set(model.DriverClimateTemp, t.AirTemp)
		set(model.DriverGV2, t.PoolTemp)
		set(model.DriverGV3, t.PoolSetPoint)
		set(model.DriverGV5, t.SpaTemp)
		set(model.DriverGV6, t.SpaSetPoint)
	}

	pool, poolOK := c.roleCircuit(snap, model.CircuitFunctionPool)
	if poolOK {
		set(model.DriverGV1, float64(pool.Status))
	}
	spa, spaOK := c.roleCircuit(snap, model.CircuitFunctionSpa)
	if spaOK {
		set(model.DriverGV4, float64(spa.Status))
	}
	if snap.Temperatures != nil && snap.TemperaturesErr == nil && snap.EquipmentErr == nil {
		heating := (snap.Temperatures.PoolHeatMode != 0 && poolOK && pool.IsOn()) ||
			(snap.Temperatures.SpaHeatMode != 0 && spaOK && spa.IsOn())
		set(model.DriverGV7, boolValue(heating))
	}
	return errors.Join(errs...)
}

func (c *Controller) roleCircuit(snap *model.Snapshot, fn model.CircuitFunction) (model.CircuitInfo, bool) {
	number := c.roles.circuit(fn)
	if number == 0 {
		return model.CircuitInfo{}, false
	}
	return snap.Equipment.Circuit(number)
}

func (c *Controller) query(ctx context.Context) error {
	if err := c.Update(ctx, c.client.Snapshot(ctx)); err != nil {
		return err
	}
	return c.registry.ReportDrivers(ctx, Address)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
