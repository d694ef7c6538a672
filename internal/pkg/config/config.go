package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

var (
	ErrMissingAPIURL         = errors.New("api_url is required")
	ErrInvalidAPIURL         = errors.New("api_url must be an absolute http(s) url")
	ErrInvalidCircuitControl = errors.New("circuit_control must be toggle or set")
)

type Config struct {
	// Params are the node server custom parameters, keyed the way the hub
	// stores them (api_url, circuits_not_used, ...).
	Params           map[string]string
	PollInterval     time.Duration
	LongPollInterval time.Duration
	HTTPTimeout      time.Duration
	MqttCfg          *MqttConfig
	DatabaseCfg      *DatabaseConfig
	ServerCfg        *ServerConfig
	LogLevel         string
}

type MqttConfig struct {
	Host        string
	Username    string
	Password    string
	ClientID    string
	TopicPrefix string
}

type DatabaseConfig struct {
	URL              string
	MigrationsFolder string
	Retention        time.Duration
}

type ServerConfig struct {
	Addr      string
	TokenHash string
}

type CircuitControl string

const (
	// CircuitControlToggle sends the controller's toggle for both DON and DOF.
	CircuitControlToggle CircuitControl = "toggle"
	// CircuitControlSet reads the circuit first and toggles only when needed.
	CircuitControlSet CircuitControl = "set"
)

// Params is the parsed form of the node server custom parameters.
type Params struct {
	APIURL          string         `env:"api_url,required,notEmpty"`
	CircuitsNotUsed []int          `env:"circuits_not_used" envSeparator:","`
	CircuitControl  CircuitControl `env:"circuit_control" envDefault:"toggle"`
	PoolCircuit     int            `env:"pool_circuit"`
	SpaCircuit      int            `env:"spa_circuit"`
}

// ParseParams reads the custom parameters map. A missing api_url yields
// ErrMissingAPIURL; a malformed exclusion list yields a parse error.
func ParseParams(raw map[string]string) (*Params, error) {
	if strings.TrimSpace(raw["api_url"]) == "" {
		return nil, ErrMissingAPIURL
	}

	environment := make(map[string]string, len(raw))
	for k, v := range raw {
		v = strings.TrimSpace(v)
		if k == "circuits_not_used" {
			v = strings.Trim(strings.ReplaceAll(v, " ", ""), ",")
			if v == "" {
				continue
			}
		}
		environment[k] = v
	}

	var p Params
	if err := env.ParseWithOptions(&p, env.Options{Environment: environment}); err != nil {
		return nil, fmt.Errorf("parse node server params: %w", err)
	}

	u, err := url.Parse(p.APIURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAPIURL, p.APIURL)
	}
	p.APIURL = strings.TrimRight(p.APIURL, "/")

	p.CircuitControl = CircuitControl(strings.ToLower(string(p.CircuitControl)))
	if p.CircuitControl != CircuitControlToggle && p.CircuitControl != CircuitControlSet {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidCircuitControl, p.CircuitControl)
	}

	return &p, nil
}

// Excluded reports whether the circuit number is in circuits_not_used.
func (p *Params) Excluded(number int) bool {
	for _, n := range p.CircuitsNotUsed {
		if n == number {
			return true
		}
	}
	return false
}
