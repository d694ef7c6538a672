package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"github.com/anicoll/pool-integration/internal/pkg/controller"
	"github.com/anicoll/pool-integration/internal/pkg/model"
)

const (
	manufacturer  = "nodejs-poolController"
	valueTemplate = "{{ value_json.value }}"
	minSetpoint   = 40
	maxSetpoint   = 104
)

type discovery struct {
	component string
	msg       model.RegisterMessage
}

type statePayload struct {
	Value string `json:"value"`
	UOM   int    `json:"uom"`
}

func (s *service) Write(_ context.Context, address string, drivers []model.Driver) error {
	for _, d := range drivers {
		if err := s.publishDriver(address, d); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) publishDriver(address string, d model.Driver) error {
	topic := fmt.Sprintf("%s/%s/%s/state", s.prefix, address, strings.ToLower(d.Code.String()))
	payload, err := json.Marshal(statePayload{
		Value: strconv.FormatFloat(d.Value, 'f', -1, 64),
		UOM:   int(d.UOM),
	})
	if err != nil {
		return err
	}
	return wait(s.client.Publish(topic, 0, true, payload), time.Second*10)
}

// RegisterNode publishes retained Home Assistant discovery configs for every
// driver and command of the node. Each node is announced once per process.
func (s *service) RegisterNode(_ context.Context, node model.NodeInfo) error {
	s.mu.Lock()
	_, exists := s.configured[node.Address]
	s.mu.Unlock()
	if exists {
		return nil
	}

	for _, d := range s.registerMessages(node) {
		topic := fmt.Sprintf("%s/%s/%s/config", discoveryPrefix, d.component, d.msg.ID)
		payload, err := json.Marshal(d.msg)
		if err != nil {
			return err
		}
		if err := wait(s.client.Publish(topic, 1, true, payload), time.Second*5); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
	}

	s.mu.Lock()
	s.configured[node.Address] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *service) registerMessages(node model.NodeInfo) []discovery {
	device := model.RegisterDevice{
		Name:         node.Name,
		Identifiers:  []string{slug.Make(s.prefix + " " + node.Address)},
		Model:        node.NodeDefID,
		Manufacturer: manufacturer,
	}
	base := func(name, suffix string) model.RegisterMessage {
		id := slug.Make(s.prefix + " " + node.Address + " " + suffix)
		return model.RegisterMessage{
			Tilda:    s.prefix + "/" + node.Address,
			Name:     name,
			ID:       id,
			ObjectID: id,
			Device:   device,
		}
	}
	stateTopic := func(code model.DriverCode) string {
		return "~/" + strings.ToLower(code.String()) + "/state"
	}

	out := make([]discovery, 0, len(node.Drivers)+2)
	for _, d := range node.Drivers {
		msg := base(node.Name+" "+driverLabel(node.NodeDefID, d.Code), d.Code.String())
		msg.StateTopic = stateTopic(d.Code)
		msg.ValueTemplate = valueTemplate
		msg.UnitOfMeasurement = d.UOM.Unit()
		if d.UOM == model.UOMFahrenheit {
			msg.DeviceClass = "temperature"
		}
		out = append(out, discovery{component: "sensor", msg: msg})
	}

	if node.HasCommand(model.CommandOn) && node.HasCommand(model.CommandOff) {
		msg := base(node.Name, "switch")
		msg.StateTopic = stateTopic(model.DriverStatus)
		msg.ValueTemplate = valueTemplate
		msg.CommandTopic = "~/cmd"
		msg.PayloadOn = model.CommandOn
		msg.PayloadOff = model.CommandOff
		msg.StateOn = "1"
		msg.StateOff = "0"
		out = append(out, discovery{component: "switch", msg: msg})
	}
	if node.HasCommand(model.CommandSetTemp) {
		msg := base(node.Name+" Setpoint", "setpoint")
		msg.StateTopic = stateTopic(model.DriverHeatSetpoint)
		msg.ValueTemplate = valueTemplate
		msg.CommandTopic = "~/cmd/" + model.CommandSetTemp
		msg.UnitOfMeasurement = model.UOMFahrenheit.Unit()
		msg.Min = intPtr(minSetpoint)
		msg.Max = intPtr(maxSetpoint)
		out = append(out, discovery{component: "number", msg: msg})
	}
	if node.HasCommand(model.CommandDiscover) {
		msg := base(node.Name+" Discover", "discover")
		msg.CommandTopic = "~/cmd"
		msg.PayloadPress = model.CommandDiscover
		out = append(out, discovery{component: "button", msg: msg})
	}
	return out
}

func driverLabel(nodeDefID string, code model.DriverCode) string {
	switch code {
	case model.DriverStatus:
		return "Status"
	case model.DriverGV0:
		return "Reachable"
	case model.DriverClimateTemp:
		if nodeDefID == controller.NodeDefID {
			return "Air Temperature"
		}
		return "Temperature"
	case model.DriverHeatSetpoint:
		return "Heat Setpoint"
	case model.DriverGV1:
		return "Pool Circuit"
	case model.DriverGV2:
		return "Pool Temperature"
	case model.DriverGV3:
		return "Pool Setpoint"
	case model.DriverGV4:
		return "Spa Circuit"
	case model.DriverGV5:
		return "Spa Temperature"
	case model.DriverGV6:
		return "Spa Setpoint"
	case model.DriverGV7:
		return "Heating"
	default:
		return code.String()
	}
}

func intPtr(v int) *int {
	return &v
}
