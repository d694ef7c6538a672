package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/pool-integration/internal/pkg/controller"
	"github.com/anicoll/pool-integration/internal/pkg/hub"
	"github.com/anicoll/pool-integration/internal/pkg/model"
	"github.com/anicoll/pool-integration/internal/pkg/poolctl"
	"github.com/anicoll/pool-integration/pkg/hasher"
)

type fakeRegistry struct {
	nodes      []model.NodeInfo
	dispatched []model.Command
	err        error
}

func (f *fakeRegistry) NodeInfos() []model.NodeInfo { return f.nodes }

func (f *fakeRegistry) NodeInfo(address string) (model.NodeInfo, bool) {
	for _, n := range f.nodes {
		if n.Address == address {
			return n, true
		}
	}
	return model.NodeInfo{}, false
}

func (f *fakeRegistry) Dispatch(_ context.Context, cmd model.Command) error {
	f.dispatched = append(f.dispatched, cmd)
	return f.err
}

type fakeHistory struct {
	from, to  *time.Time
	values    model.DriverValues
	latest    model.DriverValues
	latestErr error
}

func (f *fakeHistory) GetLatestDrivers(_ context.Context, address string) (model.DriverValues, error) {
	return lo.Filter(f.latest, func(v model.DriverValue, _ int) bool { return v.Address == address }), f.latestErr
}

func (f *fakeHistory) GetDriverHistory(_ context.Context, _ string, _ model.DriverCode, from, to *time.Time) (model.DriverValues, error) {
	f.from, f.to = from, to
	return f.values, nil
}

func newRegistry() *fakeRegistry {
	return &fakeRegistry{nodes: []model.NodeInfo{
		{Address: "controller", Name: "Pool Controller", NodeDefID: "CONTROLLER"},
		{Address: "spa_heat", Name: "Spa Heat", NodeDefID: "TEMPERATURE"},
	}}
}

func do(t *testing.T, h http.Handler, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Nodes(t *testing.T) {
	h := New(newRegistry(), nil, nil, "")

	rec := do(t, h, http.MethodGet, "/nodes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var nodes []model.NodeInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nodes))
	assert.Len(t, nodes, 2)

	rec = do(t, h, http.MethodGet, "/nodes/spa_heat", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Spa Heat"`)

	rec = do(t, h, http.MethodGet, "/nodes/circuit99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_NodeWithStoredDrivers(t *testing.T) {
	hist := &fakeHistory{latest: model.DriverValues{
		{Address: "spa_heat", Driver: model.DriverStatus, Value: 0, UOM: model.UOMIndex},
		{Address: "spa_heat", Driver: model.DriverClimateTemp, Value: 85, UOM: model.UOMFahrenheit},
		{Address: "controller", Driver: model.DriverGV0, Value: 1, UOM: model.UOMBool},
	}}
	h := New(newRegistry(), hist, nil, "")

	rec := do(t, h, http.MethodGet, "/nodes/spa_heat", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got nodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Spa Heat", got.Name)
	require.Len(t, got.Stored, 2)
	assert.Equal(t, model.DriverStatus, got.Stored[0].Driver)
	assert.Equal(t, 85.0, got.Stored[1].Value)

	hist.latestErr = fmt.Errorf("connection refused")
	rec = do(t, h, http.MethodGet, "/nodes/controller", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"stored"`)
}

func TestServer_Command(t *testing.T) {
	reg := newRegistry()
	h := New(reg, nil, nil, "")

	rec := do(t, h, http.MethodPost, "/nodes/spa_heat/commands/SET_TEMP", `{"value":"78"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []model.Command{{Address: "spa_heat", Cmd: "SET_TEMP", Value: "78"}}, reg.dispatched)

	rec = do(t, h, http.MethodPost, "/nodes/spa_heat/commands/DON", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/nodes/spa_heat/commands/SET_TEMP", `{"value":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_CommandErrors(t *testing.T) {
	tests := map[string]struct {
		err  error
		want int
	}{
		"unknown node":     {err: fmt.Errorf("%w: x", hub.ErrUnknownNode), want: http.StatusNotFound},
		"unknown command":  {err: fmt.Errorf("%w: x", hub.ErrUnknownCommand), want: http.StatusBadRequest},
		"bad setpoint":     {err: fmt.Errorf("SET_TEMP: %w", controller.ErrInvalidSetpoint), want: http.StatusBadRequest},
		"controller error": {err: fmt.Errorf("DON: %w", &poolctl.StatusError{Code: 500}), want: http.StatusBadGateway},
		"other":            {err: assert.AnError, want: http.StatusInternalServerError},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			reg := newRegistry()
			reg.err = tt.err
			rec := do(t, New(reg, nil, nil, ""), http.MethodPost, "/nodes/spa_heat/commands/DON", "")
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestServer_History(t *testing.T) {
	hist := &fakeHistory{values: model.DriverValues{{Address: "spa_heat", Driver: model.DriverClimateTemp, Value: 85}}}
	h := New(newRegistry(), hist, nil, "")

	rec := do(t, h, http.MethodGet, "/nodes/spa_heat/drivers/CLITEMP/history?from=2026-01-01T00:00:00Z&to=2026-01-02T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, hist.from)
	assert.Equal(t, 2026, hist.from.Year())
	assert.Contains(t, rec.Body.String(), `"value":85`)

	rec = do(t, h, http.MethodGet, "/nodes/spa_heat/drivers/CLITEMP/history?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, New(newRegistry(), nil, nil, ""), http.MethodGet, "/nodes/spa_heat/drivers/CLITEMP/history", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServer_Auth(t *testing.T) {
	hash, err := hasher.HashToken([]byte("secret"))
	require.NoError(t, err)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	h := New(newRegistry(), nil, metrics, hash)

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/nodes", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/nodes", "", "Authorization", "Bearer wrong").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/nodes", "", "Authorization", "Bearer secret").Code)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/metrics", "").Code)
}
