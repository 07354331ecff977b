package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/bridge"
	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/config"
	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/unit"
)

type bridgeService interface {
	Apply(req unit.ChangeRequest) ([]byte, error)
	WriteFrame(frame []byte) error
	Stats() bridge.Stats
}

// ChangeRequestPayload is the body of POST / on a bridge.
type ChangeRequestPayload struct {
	Header struct {
		StateChange bool `json:"state change"`
		StateSync   bool `json:"state sync"`
	} `json:"header"`
	Switch map[string]bool `json:"switch"`
}

type bridgeServer struct {
	bridge bridgeService
	reg    *config.Registration
	logger *zap.Logger
}

// NewBridgeRouter serves the device-facing API of one bridge.
func NewBridgeRouter(b bridgeService, reg *config.Registration) http.Handler {
	s := &bridgeServer{bridge: b, reg: reg, logger: zap.L()}

	r := mux.NewRouter()
	r.Use(LoggingMiddleware)
	r.HandleFunc("/", s.getRegistration).Methods(http.MethodGet)
	r.HandleFunc("/", s.postChangeRequest).Methods(http.MethodPost)
	r.HandleFunc("/stats", s.getStats).Methods(http.MethodGet)
	r.HandleFunc("/{frame:[0-9a-fA-F]+}", s.getFrame).Methods(http.MethodGet)
	r.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(preflight("GET, POST"))
	return r
}

func (s *bridgeServer) getRegistration(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.reg)
}

func (s *bridgeServer) postChangeRequest(w http.ResponseWriter, r *http.Request) {
	payload, err := unmarshalPayload[ChangeRequestPayload](r)
	if err != nil {
		handleError(w, err)
		return
	}

	frame, err := s.bridge.Apply(unit.ChangeRequest{
		Unit:        s.reg.ID,
		StateChange: payload.Header.StateChange,
		StateSync:   payload.Header.StateSync,
		Switch:      payload.Switch,
	})
	if err != nil {
		handleError(w, err)
		return
	}
	s.logger.Info("change request applied", zap.Int("keys", len(payload.Switch)), zap.Int("bytes", len(frame)))
	w.WriteHeader(http.StatusOK)
}

func (s *bridgeServer) getFrame(w http.ResponseWriter, r *http.Request) {
	frame, err := decodeHex(mux.Vars(r)["frame"])
	if err != nil {
		handleError(w, err)
		return
	}
	if err := s.bridge.WriteFrame(frame); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *bridgeServer) getStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.bridge.Stats())
}
