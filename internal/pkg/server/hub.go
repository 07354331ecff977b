package server

import (
	"context"
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/hub"
	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/state"
	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/unit"
)

type ingestor interface {
	Ingest(ctx context.Context, unit string, data []byte) ([]unit.Event, error)
}

type toggler interface {
	ToggleIndex(unit string, index int) (string, error)
}

type snapshotter interface {
	Snapshot() state.Snapshot
}

type subscriberServer interface {
	Serve(w http.ResponseWriter, r *http.Request)
}

// HubOptions configures the hub router.
type HubOptions struct {
	StaticDir string
	Port      int
	Addresses []string
}

// LatchPayload is the body of POST /latch.
type LatchPayload struct {
	Unit  string `json:"unit"`
	Frame string `json:"frame"`
}

// ControlResponse answers GET /control/{unit}/{index}.
type ControlResponse struct {
	Unit  string `json:"unit"`
	Index int    `json:"inx"`
}

type hubServer struct {
	ingest ingestor
	engine toggler
	store  snapshotter
	logger *zap.Logger
}

// NewHubRouter serves webhooks from the bridges, the control API and the
// browser-facing WebSocket.
func NewHubRouter(in ingestor, engine toggler, store snapshotter, subs subscriberServer, opts HubOptions) http.Handler {
	s := &hubServer{ingest: in, engine: engine, store: store, logger: zap.L()}

	r := mux.NewRouter()
	r.Use(LoggingMiddleware)
	r.HandleFunc("/switch/{unit}/{frame}", s.ingestPath).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/state/{unit}/{frame}", s.ingestPath).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/latch", s.ingestBody).Methods(http.MethodPost)
	r.HandleFunc("/control/{unit}/{index:[0-9]+}", s.control).Methods(http.MethodGet)
	r.HandleFunc("/state", s.snapshot).Methods(http.MethodGet)
	r.HandleFunc("/ws", subs.Serve)
	r.Path("/").MatcherFunc(func(r *http.Request, _ *mux.RouteMatch) bool {
		return hub.IsUpgrade(r)
	}).HandlerFunc(subs.Serve)
	r.HandleFunc("/settings.js", settingsJS(opts.Addresses, opts.Port)).Methods(http.MethodGet)
	r.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(preflight("GET, POST"))
	if opts.StaticDir != "" {
		r.PathPrefix("/").Methods(http.MethodGet, http.MethodHead).Handler(http.FileServer(http.Dir(opts.StaticDir)))
	}
	return r
}

func (s *hubServer) ingestPath(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	data, err := decodeHex(vars["frame"])
	if err != nil {
		handleError(w, err)
		return
	}
	s.apply(w, r, vars["unit"], data)
}

func (s *hubServer) ingestBody(w http.ResponseWriter, r *http.Request) {
	payload, err := unmarshalPayload[LatchPayload](r)
	if err != nil {
		handleError(w, err)
		return
	}
	data, err := decodeHex(payload.Frame)
	if err != nil {
		handleError(w, err)
		return
	}
	s.apply(w, r, payload.Unit, data)
}

func (s *hubServer) apply(w http.ResponseWriter, r *http.Request, unitID string, data []byte) {
	if _, err := s.ingest.Ingest(r.Context(), unitID, data); err != nil {
		handleError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(unitID + "=" + hex.EncodeToString(data)))
}

func (s *hubServer) control(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		handleError(w, err)
		return
	}
	key, err := s.engine.ToggleIndex(vars["unit"], index)
	if err != nil {
		handleError(w, err)
		return
	}
	s.logger.Info("manual toggle", zap.String("key", key))
	writeJSON(w, ControlResponse{Unit: vars["unit"], Index: index})
}

func (s *hubServer) snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.store.Snapshot())
}
