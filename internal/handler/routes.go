package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes builds the full router: client API under /api/v1, admin API under
// /admin/api, plus health and metrics. Both limiters are owned by the
// caller, who stops their sweeps; tests can swap in permissive ones.
// authRL throttles login attempts, apiRL the client API per IP.
func (h *Handler) Routes(authRL, apiRL *RateLimiter) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	// CSRF protects the cookie-authenticated admin API. The client API
	// authenticates every request with an access code and carries no
	// cookies, so it skips the wrapper, as do the probes.
	csrfProtect := csrf.Protect(
		[]byte(h.Cfg.SessionSecret),
		csrf.Secure(strings.HasPrefix(h.Cfg.BaseURL, "https")),
		csrf.Path("/"),
		csrf.SameSite(csrf.SameSiteLaxMode),
	)
	r.Use(func(next http.Handler) http.Handler {
		protected := csrfProtect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if csrfExempt(req.URL.Path) {
				next.ServeHTTP(w, req)
				return
			}
			protected.ServeHTTP(w, req)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		renderJSON(w, http.StatusOK, map[string]interface{}{
			"ok":   true,
			"time": timeString(time.Now()),
		})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Client API — access-code auth inside each handler, shared limiter.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apiRL.Middleware)

		r.Get("/print/check", h.PrintCheck)
		r.Post("/print/report", h.PrintReport)
		r.Get("/clients/by-code", h.ClientsByCode)
		r.Get("/version", h.Version)
		r.Get("/mapping", h.Mapping)
		r.Get("/file/{tracking_no}", h.LabelFile)
		r.Get("/pdf-zips/dates", h.ZipDates)
		r.Get("/pdf-zips/daily", h.ZipDaily)
	})

	r.Route("/admin/api", func(r chi.Router) {
		r.Get("/csrf", h.AdminCSRF)
		r.Group(func(r chi.Router) {
			r.Use(authRL.Middleware)
			r.Post("/login", h.AdminLogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireAdmin)

			r.Post("/logout", h.AdminLogout)
			r.Get("/stats", h.AdminStats)

			r.Get("/codes", h.AdminCodeList)
			r.Post("/codes", h.AdminCodeCreate)
			r.Post("/codes/{id}/toggle", h.AdminCodeToggle)
			r.Delete("/codes/{id}", h.AdminCodeDelete)

			r.Get("/files", h.AdminFileList)
			r.Post("/reconcile", h.AdminReconcile)

			r.Get("/orders", h.AdminOrderList)
			r.Post("/orders", h.AdminOrderUpsert)
			r.Post("/orders/unbind", h.AdminOrderUnbind)
			r.Post("/orders/batch-delete", h.AdminOrderBatchDelete)

			r.Get("/zips", h.AdminZipList)
			r.Post("/zips/build", h.AdminZipBuild)
			r.Get("/jobs/{id}", h.AdminJobGet)
			r.Get("/jobs/{id}/events", h.JobEvents)

			r.Get("/settings", h.AdminSettingsGet)
			r.Put("/settings", h.AdminSettingsPut)
		})
	})

	return r
}

func csrfExempt(path string) bool {
	return strings.HasPrefix(path, "/api/v1/") ||
		path == "/healthz" || path == "/metrics"
}
