package model

type DriverCode string

const (
	DriverStatus       DriverCode = "ST"
	DriverClimateTemp  DriverCode = "CLITEMP"
	DriverHeatSetpoint DriverCode = "CLISPH"
	DriverGV0          DriverCode = "GV0"
	DriverGV1          DriverCode = "GV1"
	DriverGV2          DriverCode = "GV2"
	DriverGV3          DriverCode = "GV3"
	DriverGV4          DriverCode = "GV4"
	DriverGV5          DriverCode = "GV5"
	DriverGV6          DriverCode = "GV6"
	DriverGV7          DriverCode = "GV7"
)

func (d DriverCode) String() string {
	return string(d)
}

// UOM is the hub's unit-of-measure index. The index UOM must match the
// custom states defined in the hub profile.
type UOM int

const (
	UOMBool       UOM = 2
	UOMFahrenheit UOM = 17
	UOMIndex      UOM = 25
)

func (u UOM) Unit() string {
	switch u {
	case UOMFahrenheit:
		return "°F"
	default:
		return ""
	}
}

type Driver struct {
	Code  DriverCode `json:"driver"`
	Value float64    `json:"value"`
	UOM   UOM        `json:"uom"`
}

// NodeInfo describes a node to the hub and to every publisher.
type NodeInfo struct {
	Address   string   `json:"address"`
	Name      string   `json:"name"`
	NodeDefID string   `json:"node_def_id"`
	Primary   string   `json:"primary"`
	Drivers   []Driver `json:"drivers"`
	Commands  []string `json:"commands"`
}

func (n NodeInfo) HasCommand(cmd string) bool {
	for _, c := range n.Commands {
		if c == cmd {
			return true
		}
	}
	return false
}

const (
	CommandOn       = "DON"
	CommandOff      = "DOF"
	CommandSetTemp  = "SET_TEMP"
	CommandQuery    = "QUERY"
	CommandDiscover = "DISCOVER"
)

// Command is a hub-issued command addressed to one node.
type Command struct {
	Address string `json:"address"`
	Cmd     string `json:"cmd"`
	Value   string `json:"value,omitempty"`
	UOM     UOM    `json:"uom,omitempty"`
}
