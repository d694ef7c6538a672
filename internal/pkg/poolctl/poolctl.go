package poolctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/pool-integration/internal/pkg/model"
)

// ErrDecode wraps a 200 response whose body could not be decoded.
var ErrDecode = errors.New("failed to decode response")

// StatusError is returned for any non-200 response.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s failed with status %d: %s", e.Path, e.Code, e.Body)
}

// Client talks to the pool controller REST API. Every method is a single
// request with no retries.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *zap.Logger
}

func New(apiURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url %q: %w", apiURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api url %q: missing scheme or host", apiURL)
	}
	return &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: zap.L(),
	}, nil
}

func (c *Client) get(ctx context.Context, out any, elem ...string) error {
	u := c.baseURL.JoinPath(elem...)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", u.Path, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("pool controller request", zap.String("path", u.Path), zap.Int("status", resp.StatusCode), zap.Duration("took", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Path: u.Path, Code: resp.StatusCode, Body: string(body)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w from %s: %w", ErrDecode, u.Path, err)
	}
	return nil
}

// All fetches the aggregate equipment snapshot (GET /all).
func (c *Client) All(ctx context.Context) (*model.EquipmentSnapshot, error) {
	var snap model.EquipmentSnapshot
	if err := c.get(ctx, &snap, "all"); err != nil {
		return nil, err
	}
	if snap.Circuits == nil {
		snap.Circuits = map[string]model.CircuitInfo{}
	}
	return &snap, nil
}

// Temperatures fetches GET /temperatures.
func (c *Client) Temperatures(ctx context.Context) (*model.Temperatures, error) {
	var temps model.Temperatures
	if err := c.get(ctx, &temps, "temperatures"); err != nil {
		return nil, err
	}
	return &temps, nil
}

// Circuit fetches a single circuit (GET /circuit/{number}).
func (c *Client) Circuit(ctx context.Context, number int) (*model.CircuitInfo, error) {
	var circuit model.CircuitInfo
	if err := c.get(ctx, &circuit, "circuit", strconv.Itoa(number)); err != nil {
		return nil, err
	}
	if circuit.Number == 0 {
		circuit.Number = number
	}
	return &circuit, nil
}

// ToggleCircuit flips a circuit (GET /circuit/{number}/toggle). The
// controller has no idempotent on/off endpoint.
func (c *Client) ToggleCircuit(ctx context.Context, number int) error {
	return c.get(ctx, nil, "circuit", strconv.Itoa(number), "toggle")
}

// SetHeatMode writes GET /{zone}heat/mode/{mode}.
func (c *Client) SetHeatMode(ctx context.Context, zone model.Zone, mode int) error {
	return c.get(ctx, nil, zone.String()+"heat", "mode", strconv.Itoa(mode))
}

// SetSetpoint writes GET /{zone}heat/setpoint/{value}.
func (c *Client) SetSetpoint(ctx context.Context, zone model.Zone, value int) error {
	return c.get(ctx, nil, zone.String()+"heat", "setpoint", strconv.Itoa(value))
}

// Snapshot fetches the aggregate and temperature documents independently.
// A failure of one does not prevent the other.
func (c *Client) Snapshot(ctx context.Context) *model.Snapshot {
	snap := &model.Snapshot{}
	snap.Equipment, snap.EquipmentErr = c.All(ctx)
	snap.Temperatures, snap.TemperaturesErr = c.Temperatures(ctx)
	return snap
}

// Reachable reports whether an aggregate fetch error still means the
// controller answered with HTTP 200.
func Reachable(err error) bool {
	return err == nil || errors.Is(err, ErrDecode)
}
