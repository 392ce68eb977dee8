package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/chiwei-platform/config-service/internal/domain"
	"github.com/chiwei-platform/config-service/internal/service"
	"github.com/go-chi/chi/v5"
)

type ConfigHandler struct {
	svc *service.ConfigService
}

func NewConfigHandler(svc *service.ConfigService) *ConfigHandler {
	return &ConfigHandler{svc: svc}
}

func configQueryFrom(r *http.Request) service.ConfigQuery {
	q := r.URL.Query()
	return service.ConfigQuery{
		AppID:         chi.URLParam(r, "appId"),
		ClusterName:   chi.URLParam(r, "cluster"),
		NamespaceName: chi.URLParam(r, "namespace"),
		DataCenter:    q.Get("dataCenter"),
		ReleaseKey:    q.Get("releaseKey"),
		ClientIP:      q.Get("ip"),
		ClientLabel:   q.Get("label"),
	}
}

// Query GET /configs/{appId}/{cluster}/{namespace}
func (h *ConfigHandler) Query(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.QueryConfig(r.Context(), configQueryFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if result.NotModified {
		writeNotModified(w)
		return
	}
	writeBody(w, http.StatusOK, result)
}

// ConfigFile GET /configfiles/json/{appId}/{cluster}/{namespace}
func (h *ConfigHandler) ConfigFile(w http.ResponseWriter, r *http.Request) {
	configurations, err := h.svc.ConfigFile(r.Context(), configQueryFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeBody(w, http.StatusOK, configurations)
}

// Compare GET /releases/compare?baseReleaseId=&toReleaseId=
func (h *ConfigHandler) Compare(w http.ResponseWriter, r *http.Request) {
	baseID, err := parseID(r, "baseReleaseId", true)
	if err != nil {
		writeError(w, err)
		return
	}
	toID, err := parseID(r, "toReleaseId", false)
	if err != nil {
		writeError(w, err)
		return
	}
	changes, err := h.svc.CompareReleases(r.Context(), baseID, toID)
	if err != nil {
		writeError(w, err)
		return
	}
	if changes == nil {
		changes = []domain.ConfigChange{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"changes": changes})
}

func parseID(r *http.Request, name string, optional bool) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		if optional {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %s is required", domain.ErrInvalidInput, name)
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidInput, name)
	}
	return id, nil
}
