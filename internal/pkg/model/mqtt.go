package model

type RegisterDevice struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

// RegisterMessage is a Home Assistant MQTT discovery payload.
type RegisterMessage struct {
	Tilda             string         `json:"~"`
	Name              string         `json:"name"`
	ID                string         `json:"unique_id"`
	ObjectID          string         `json:"object_id,omitempty"`
	StateTopic        string         `json:"state_topic,omitempty"`
	CommandTopic      string         `json:"command_topic,omitempty"`
	UnitOfMeasurement string         `json:"unit_of_measurement,omitempty"`
	DeviceClass       string         `json:"device_class,omitempty"`
	PayloadOn         string         `json:"payload_on,omitempty"`
	PayloadOff        string         `json:"payload_off,omitempty"`
	PayloadPress      string         `json:"payload_press,omitempty"`
	ValueTemplate     string         `json:"value_template,omitempty"`
	StateOn           string         `json:"state_on,omitempty"`
	StateOff          string         `json:"state_off,omitempty"`
	Min               *int           `json:"min,omitempty"`
	Max               *int           `json:"max,omitempty"`
	Device            RegisterDevice `json:"device"`
}
