package controller

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/anicoll/pool-integration/internal/pkg/model"
)

// fakePool is an in-memory pool controller API.
type fakePool struct {
	mu        sync.Mutex
	circuits  map[string]model.CircuitInfo
	temps     model.Temperatures
	allStatus int
	requests  []string
	mux       *http.ServeMux
}

func newFakePool() *fakePool {
	fp := &fakePool{
		circuits: map[string]model.CircuitInfo{
			"1": {Number: 1, NumberStr: "circuit1", Name: "POOL", FriendlyName: "POOL", CircuitFunction: model.CircuitFunctionPool},
			"2": {Number: 2, NumberStr: "circuit2", Name: "POOL LIGHT", FriendlyName: "POOL LIGHT", Status: 1, CircuitFunction: "Light"},
			"6": {Number: 6, NumberStr: "circuit6", Name: "SPA", FriendlyName: "SPA", Status: 1, CircuitFunction: model.CircuitFunctionSpa},
			"9": {Number: 9, NumberStr: "circuit9", Name: "AUX EXTRA", FriendlyName: "AUX EXTRA", CircuitFunction: "Generic"},
		},
		temps: model.Temperatures{
			AirTemp:      70,
			PoolTemp:     80,
			PoolSetPoint: 82,
			PoolHeatMode: 0,
			SpaTemp:      85,
			SpaSetPoint:  90,
			SpaHeatMode:  1,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /all", func(w http.ResponseWriter, _ *http.Request) {
		if fp.allStatus != 0 {
			http.Error(w, "unavailable", fp.allStatus)
			return
		}
		writeJSON(w, map[string]any{"circuits": fp.circuits})
	})
	mux.HandleFunc("GET /temperatures", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"temperature": fp.temps})
	})
	mux.HandleFunc("GET /circuit/{n}", func(w http.ResponseWriter, r *http.Request) {
		c, ok := fp.circuits[r.PathValue("n")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, c)
	})
	mux.HandleFunc("GET /circuit/{n}/toggle", func(w http.ResponseWriter, r *http.Request) {
		c, ok := fp.circuits[r.PathValue("n")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		c.Status = 1 - c.Status
		fp.circuits[r.PathValue("n")] = c
		writeJSON(w, map[string]any{"status": "ok"})
	})
	for _, zone := range model.Zones {
		mux.HandleFunc("GET /"+zone.String()+"heat/mode/{m}", func(w http.ResponseWriter, r *http.Request) {
			mode, err := strconv.Atoi(r.PathValue("m"))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if zone == model.ZoneSpa {
				fp.temps.SpaHeatMode = mode
			} else {
				fp.temps.PoolHeatMode = mode
			}
			writeJSON(w, map[string]any{"status": "ok"})
		})
		mux.HandleFunc("GET /"+zone.String()+"heat/setpoint/{v}", func(w http.ResponseWriter, r *http.Request) {
			v, err := strconv.Atoi(r.PathValue("v"))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if zone == model.ZoneSpa {
				fp.temps.SpaSetPoint = float64(v)
			} else {
				fp.temps.PoolSetPoint = float64(v)
			}
			writeJSON(w, map[string]any{"status": "ok"})
		})
	}
	fp.mux = mux
	return fp
}

func (fp *fakePool) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.requests = append(fp.requests, r.URL.Path)
	fp.mux.ServeHTTP(w, r)
}

func (fp *fakePool) do(fn func()) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fn()
}

func (fp *fakePool) resetRequests() {
	fp.do(func() { fp.requests = nil })
}

func (fp *fakePool) requestLog() []string {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return append([]string(nil), fp.requests...)
}

func (fp *fakePool) count(prefix string) int {
	n := 0
	for _, p := range fp.requestLog() {
		if strings.HasPrefix(p, prefix) {
			n++
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
