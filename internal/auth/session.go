package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

const (
	// CookieName carries the signed admin session token.
	CookieName    = "relabel_session"
	SessionMaxAge = 7 * 24 * time.Hour
)

type contextKey string

const (
	AdminIDKey   contextKey = "admin_id"
	AdminNameKey contextKey = "admin_name"
)

// SetSessionCookie writes the session cookie as "<id>.<hmac-sha256-hex>".
// Signing the ID keeps a tampered cookie from ever reaching the sessions
// table.
func SetSessionCookie(w http.ResponseWriter, sessionID, secret string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sessionID + "." + sessionMAC(sessionID, secret),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(SessionMaxAge.Seconds()),
	})
}

// ClearSessionCookie expires the session cookie immediately.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// GetSessionID extracts and verifies the session ID from the request cookie.
// A missing cookie, a malformed value, and a bad signature all report false.
func GetSessionID(r *http.Request, secret string) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	id, sig, ok := strings.Cut(cookie.Value, ".")
	if !ok || id == "" {
		return "", false
	}
	if !hmac.Equal([]byte(sessionMAC(id, secret)), []byte(sig)) {
		return "", false
	}
	return id, true
}

func AdminFromContext(ctx context.Context) string {
	v, _ := ctx.Value(AdminIDKey).(string)
	return v
}

func AdminNameFromContext(ctx context.Context) string {
	v, _ := ctx.Value(AdminNameKey).(string)
	return v
}

func ContextWithAdmin(ctx context.Context, adminID, username string) context.Context {
	ctx = context.WithValue(ctx, AdminIDKey, adminID)
	ctx = context.WithValue(ctx, AdminNameKey, username)
	return ctx
}

// GenerateToken returns n random bytes, hex encoded.
func GenerateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func sessionMAC(id, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(id))
	return hex.EncodeToString(mac.Sum(nil))
}
