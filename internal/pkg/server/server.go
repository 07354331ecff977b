package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/bridge"
	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/unit"
	"github.com/yuhuachang/mt7688-control-unit/pkg/protocol"
)

const maxBodySize = 64 << 10

var errBadRequest = errors.New("bad request")

func handleError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(err.Error()))
}

func statusFor(err error) int {
	var decodeErr *protocol.DecodeError
	switch {
	case errors.Is(err, unit.ErrUnknownUnit):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, unit.ErrUnknownKey),
		errors.Is(err, protocol.ErrUnitByteCountUnset),
		errors.Is(err, protocol.ErrRequestLength),
		errors.Is(err, bridge.ErrWidthMismatch):
		return http.StatusBadRequest
	case errors.As(err, &decodeErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func unmarshalPayload[T any](r *http.Request) (*T, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return &out, nil
}

func decodeHex(s string) ([]byte, error) {
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: frame %q: %v", errBadRequest, s, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty frame", errBadRequest)
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		handleError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
