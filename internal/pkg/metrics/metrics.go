package metrics

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anicoll/pool-integration/internal/pkg/controller"
	"github.com/anicoll/pool-integration/internal/pkg/model"
)

// Metrics exposes driver values as Prometheus gauges.
type Metrics struct {
	registry *prometheus.Registry

	driverValue         *prometheus.GaugeVec
	waterTemperature    *prometheus.GaugeVec
	heatSetpoint        *prometheus.GaugeVec
	airTemperature      prometheus.Gauge
	circuitStatus       *prometheus.GaugeVec
	controllerReachable prometheus.Gauge
	lastUpdate          prometheus.Gauge

	mu    sync.RWMutex
	nodes map[string]model.NodeInfo
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		driverValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pool_driver_value",
				Help: "Last reported value of a node driver",
			},
			[]string{"address", "name", "driver"},
		),
		waterTemperature: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "water_temperature_fahrenheit",
				Help: "Current water temperature in Fahrenheit",
			},
			[]string{"body"},
		),
		heatSetpoint: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "heat_setpoint_fahrenheit",
				Help: "Heating target temperature in Fahrenheit",
			},
			[]string{"body"},
		),
		airTemperature: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "air_temperature_fahrenheit",
				Help: "Current outdoor air temperature in Fahrenheit",
			},
		),
		circuitStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_status",
				Help: "Circuit on/off status (1=on, 0=off)",
			},
			[]string{"circuit", "name"},
		),
		controllerReachable: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pool_controller_reachable",
				Help: "1 if the last poll of the controller API returned 200, 0 otherwise",
			},
		),
		lastUpdate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pool_last_update_timestamp_seconds",
				Help: "Unix timestamp of the last driver update",
			},
		),
		nodes: make(map[string]model.NodeInfo),
	}
	m.registry.MustRegister(
		m.driverValue,
		m.waterTemperature,
		m.heatSetpoint,
		m.airTemperature,
		m.circuitStatus,
		m.controllerReachable,
		m.lastUpdate,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RegisterNode(_ context.Context, node model.NodeInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[node.Address] = node
	return nil
}

func (m *Metrics) Write(_ context.Context, address string, drivers []model.Driver) error {
	m.mu.RLock()
	node, ok := m.nodes[address]
	m.mu.RUnlock()
	if !ok {
		node = model.NodeInfo{Address: address, Name: address}
	}

	for _, d := range drivers {
		m.driverValue.WithLabelValues(address, node.Name, d.Code.String()).Set(d.Value)

		switch {
		case node.NodeDefID == controller.CircuitNodeDefID && d.Code == model.DriverStatus:
			m.circuitStatus.WithLabelValues(address, node.Name).Set(d.Value)
		case node.NodeDefID == controller.ZoneNodeDefID && d.Code == model.DriverClimateTemp:
			m.waterTemperature.WithLabelValues(body(address)).Set(d.Value)
		case node.NodeDefID == controller.ZoneNodeDefID && d.Code == model.DriverHeatSetpoint:
			m.heatSetpoint.WithLabelValues(body(address)).Set(d.Value)
		case node.NodeDefID == controller.NodeDefID && d.Code == model.DriverClimateTemp:
			m.airTemperature.Set(d.Value)
		case node.NodeDefID == controller.NodeDefID && d.Code == model.DriverGV0:
			m.controllerReachable.Set(d.Value)
		}
	}
	m.lastUpdate.Set(float64(time.Now().Unix()))
	return nil
}

// body turns a zone address ("spa_heat") into its body name ("spa").
func body(address string) string {
	return strings.TrimSuffix(address, "_heat")
}
