package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type CircuitFunction string

const (
	CircuitFunctionPool CircuitFunction = "Pool"
	CircuitFunctionSpa  CircuitFunction = "Spa"
)

// CircuitInfo is a single entry of the circuits map returned by GET /all.
type CircuitInfo struct {
	Number          int             `json:"number"`
	NumberStr       string          `json:"numberStr"`
	Name            string          `json:"name"`
	FriendlyName    string          `json:"friendlyName"`
	Status          int             `json:"status"`
	CircuitFunction CircuitFunction `json:"circuitFunction"`
}

// Address is the hub address for the circuit. The controller supplies it as
// numberStr (e.g. "circuit6"); it is lower-cased because hub addresses are.
func (c CircuitInfo) Address() string {
	if c.NumberStr != "" {
		return strings.ToLower(c.NumberStr)
	}
	return fmt.Sprintf("circuit%d", c.Number)
}

// DisplayName prefers the friendly name, falling back to the controller name.
func (c CircuitInfo) DisplayName() string {
	if c.FriendlyName != "" {
		return c.FriendlyName
	}
	return c.Name
}

func (c CircuitInfo) IsOn() bool {
	return c.Status != 0
}

// EquipmentSnapshot is the aggregate document returned by GET /all. Circuits
// are keyed by the circuit number as a string and are not sequential.
type EquipmentSnapshot struct {
	Circuits map[string]CircuitInfo `json:"circuits"`
}

// Circuit looks a circuit up by number.
func (s *EquipmentSnapshot) Circuit(number int) (CircuitInfo, bool) {
	if s == nil {
		return CircuitInfo{}, false
	}
	c, ok := s.Circuits[strconv.Itoa(number)]
	if ok && c.Number == 0 {
		c.Number = number
	}
	return c, ok
}

type Zone string

const (
	ZonePool Zone = "pool"
	ZoneSpa  Zone = "spa"
)

// Zones is the fixed order zone nodes are discovered in.
var Zones = []Zone{ZoneSpa, ZonePool}

func (z Zone) String() string {
	return string(z)
}

// Address is the hub address of the zone node, e.g. "spa_heat".
func (z Zone) Address() string {
	return string(z) + "_heat"
}

// Function is the circuit role that powers the zone.
func (z Zone) Function() CircuitFunction {
	if z == ZoneSpa {
		return CircuitFunctionSpa
	}
	return CircuitFunctionPool
}

// Temperatures is the document returned by GET /temperatures.
type Temperatures struct {
	AirTemp      float64 `json:"airTemp"`
	PoolTemp     float64 `json:"poolTemp"`
	PoolSetPoint float64 `json:"poolSetPoint"`
	PoolHeatMode int     `json:"poolHeatMode"`
	SpaTemp      float64 `json:"spaTemp"`
	SpaSetPoint  float64 `json:"spaSetPoint"`
	SpaHeatMode  int     `json:"spaHeatMode"`
}

// UnmarshalJSON accepts both the flat document and the {"temperature": {...}}
// envelope used by newer controller releases.
func (t *Temperatures) UnmarshalJSON(data []byte) error {
	type flat Temperatures
	var wrapped struct {
		Temperature *flat `json:"temperature"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	if wrapped.Temperature != nil {
		*t = Temperatures(*wrapped.Temperature)
		return nil
	}
	var f flat
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*t = Temperatures(f)
	return nil
}

type ZoneReading struct {
	HeatMode    int
	Temperature float64
	SetPoint    float64
}

func (t Temperatures) Zone(z Zone) ZoneReading {
	if z == ZoneSpa {
		return ZoneReading{HeatMode: t.SpaHeatMode, Temperature: t.SpaTemp, SetPoint: t.SpaSetPoint}
	}
	return ZoneReading{HeatMode: t.PoolHeatMode, Temperature: t.PoolTemp, SetPoint: t.PoolSetPoint}
}

// Snapshot is everything fetched once per poll tick and handed to every node.
type Snapshot struct {
	Equipment       *EquipmentSnapshot
	EquipmentErr    error
	Temperatures    *Temperatures
	TemperaturesErr error
}
