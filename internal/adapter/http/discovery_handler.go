package http

import (
	"net/http"

	"github.com/chiwei-platform/config-service/internal/service"
)

type DiscoveryHandler struct {
	svc *service.DiscoveryService
}

func NewDiscoveryHandler(svc *service.DiscoveryService) *DiscoveryHandler {
	return &DiscoveryHandler{svc: svc}
}

// ConfigServices GET /services/config
func (h *DiscoveryHandler) ConfigServices(w http.ResponseWriter, r *http.Request) {
	writeBody(w, http.StatusOK, h.svc.Instances())
}
