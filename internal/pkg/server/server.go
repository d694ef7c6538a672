package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/anicoll/pool-integration/internal/pkg/controller"
	"github.com/anicoll/pool-integration/internal/pkg/hub"
	"github.com/anicoll/pool-integration/internal/pkg/model"
	"github.com/anicoll/pool-integration/internal/pkg/poolctl"
)

type nodeRegistry interface {
	NodeInfos() []model.NodeInfo
	NodeInfo(address string) (model.NodeInfo, bool)
	Dispatch(ctx context.Context, cmd model.Command) error
}

type driverHistory interface {
	GetDriverHistory(ctx context.Context, address string, driver model.DriverCode, from, to *time.Time) (model.DriverValues, error)
	GetLatestDrivers(ctx context.Context, address string) (model.DriverValues, error)
}

// nodeResponse is a node with the last value stored for each of its drivers.
// Stored values survive a restart, so they cover drivers the registry has not
// seen since it started.
type nodeResponse struct {
	model.NodeInfo
	Stored model.DriverValues `json:"stored,omitempty"`
}

type server struct {
	nodes   nodeRegistry
	history driverHistory
	logger  *zap.Logger
}

// New builds the local REST API. history and metrics may be nil.
func New(nodes nodeRegistry, history driverHistory, metrics http.Handler, tokenHash string) http.Handler {
	s := &server{nodes: nodes, history: history, logger: zap.L()}

	r := mux.NewRouter()
	r.Use(LoggingMiddleware)
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/nodes").Subrouter()
	api.Use(AuthMiddleware(tokenHash))
	api.HandleFunc("", s.listNodes).Methods(http.MethodGet)
	api.HandleFunc("/{address}", s.getNode).Methods(http.MethodGet)
	api.HandleFunc("/{address}/commands/{command}", s.postCommand).Methods(http.MethodPost)
	api.HandleFunc("/{address}/drivers/{driver}/history", s.getDriverHistory).Methods(http.MethodGet)
	return r
}

func (s *server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *server) listNodes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.nodes.NodeInfos())
}

func (s *server) getNode(w http.ResponseWriter, r *http.Request) {
	node, ok := s.nodes.NodeInfo(mux.Vars(r)["address"])
	if !ok {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}
	resp := nodeResponse{NodeInfo: node}
	if s.history != nil {
		stored, err := s.history.GetLatestDrivers(r.Context(), node.Address)
		if err != nil {
			s.logger.Warn("failed to read stored drivers", zap.String("address", node.Address), zap.Error(err))
		} else {
			resp.Stored = stored
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type commandRequest struct {
	Value string    `json:"value"`
	UOM   model.UOM `json:"uom"`
}

func (s *server) postCommand(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	req, err := unmarshalPayload[commandRequest](r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cmd := model.Command{Address: vars["address"], Cmd: vars["command"], Value: req.Value, UOM: req.UOM}
	if err := s.nodes.Dispatch(r.Context(), cmd); err != nil {
		handleError(w, err)
		return
	}
	node, _ := s.nodes.NodeInfo(cmd.Address)
	writeJSON(w, http.StatusOK, node)
}

func (s *server) getDriverHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotImplemented, "driver history requires a database")
		return
	}
	vars := mux.Vars(r)
	from, err := parseTime(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from: "+err.Error())
		return
	}
	to, err := parseTime(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to: "+err.Error())
		return
	}

	values, err := s.history.GetDriverHistory(r.Context(), vars["address"], model.DriverCode(vars["driver"]), from, to)
	if err != nil {
		s.logger.Error("failed to read driver history", zap.Error(err))
		handleError(w, err)
		return
	}
	if values == nil {
		values = model.DriverValues{}
	}
	writeJSON(w, http.StatusOK, values)
}

func parseTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func handleError(w http.ResponseWriter, err error) {
	var statusErr *poolctl.StatusError
	switch {
	case errors.Is(err, hub.ErrUnknownNode):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, hub.ErrUnknownCommand), errors.Is(err, controller.ErrInvalidSetpoint):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &statusErr):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// unmarshalPayload decodes the request body. An empty body yields the zero
// value.
func unmarshalPayload[T any](r *http.Request) (*T, error) {
	var out T
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
