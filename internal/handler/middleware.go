package handler

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/relabel/relabel/internal/auth"
	"github.com/relabel/relabel/internal/db"
	"github.com/relabel/relabel/internal/metrics"
	"github.com/relabel/relabel/internal/model"
)

// clientCode authenticates a client request by access code, taken from the
// access_code (or legacy code) query parameter, or from the given body
// field for POSTs. Returns nil after writing the response; callers must
// stop. Rejections get the uniform 403 that never distinguishes wrong,
// inactive or locked codes; a storage failure during verification is a 500.
func (h *Handler) clientCode(w http.ResponseWriter, presented string) *model.AccessCode {
	code, err := h.Codes.Verify(presented)
	if err != nil {
		if errors.Is(err, auth.ErrCodeRejected) {
			metrics.AuthFailuresTotal.Inc()
			renderJSONError(w, http.StatusForbidden, "FORBIDDEN", "invalid access code")
			return nil
		}
		slog.Error("verify access code", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "verification failed")
		return nil
	}
	return code
}

func codeParam(r *http.Request) string {
	q := r.URL.Query()
	if v := q.Get("access_code"); v != "" {
		return v
	}
	return q.Get("code")
}

// requireAdmin gates the admin API behind a valid, unexpired session whose
// user still exists. Failures answer 401; this is a JSON surface, the HTML
// login page lives in the external admin UI.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := auth.GetSessionID(r, h.Cfg.SessionSecret)
		if !ok {
			renderJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "login required")
			return
		}
		session, err := db.GetSession(h.DB, sessionID)
		if err != nil || session == nil || session.ExpiresAt.Before(time.Now()) {
			auth.ClearSessionCookie(w)
			renderJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "login required")
			return
		}
		admin, err := db.GetAdminByID(h.DB, session.AdminID)
		if err != nil || admin == nil {
			auth.ClearSessionCookie(w)
			db.DeleteSession(h.DB, sessionID)
			renderJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "login required")
			return
		}
		ctx := auth.ContextWithAdmin(r.Context(), admin.ID, admin.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP prefers forwarding headers set by a front proxy, then falls back
// to the socket peer.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
