package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(
	configH *ConfigHandler,
	notificationH *NotificationHandler,
	discoveryH *DiscoveryHandler,
	healthH *HealthHandler,
	apiToken string,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware)
	r.Use(bodySizeLimitMiddleware)

	r.Get("/healthz", healthH.Live)
	r.Get("/readyz", healthH.Ready)
	r.Handle("/metrics", promhttp.Handler())

	// 客户端协议
	r.Get("/configs/{appId}/{cluster}/{namespace}", configH.Query)
	r.Get("/configfiles/json/{appId}/{cluster}/{namespace}", configH.ConfigFile)
	r.Get("/notifications/v2", notificationH.Poll)
	r.Get("/services/config", discoveryH.ConfigServices)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(apiToken))
		r.Get("/releases/compare", configH.Compare)
	})

	return r
}
