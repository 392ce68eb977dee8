package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/chiwei-platform/config-service/internal/domain"
)

type envelope struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	writeBody(w, status, envelope{Data: data})
}

// writeBody 直接输出 data，不套 envelope。客户端协议接口（配置、通知、服务发现）使用这种格式。
func writeBody(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeNotModified(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNotModified)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"

	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		msg = err.Error()
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
		msg = err.Error()
	default:
		slog.Error("internal error", "error", err)
	}

	writeBody(w, status, envelope{Error: msg})
}
