package server

import (
	"encoding/base64"
	"net/http"
	"os"
	"time"

	"github.com/hnrobert/macusers/internal/auth"
	"github.com/hnrobert/macusers/internal/config"
	"github.com/hnrobert/macusers/internal/macusers"
	"github.com/hnrobert/macusers/internal/snapmon"
	"github.com/hnrobert/macusers/internal/token"
)

type App struct {
	secret     []byte
	cookieName string
	dir        *macusers.Directory
	authn      *auth.Authenticator
	cfg        *config.Store
	tokens     *token.Store
	snaps      *snapmon.Store
}

func newApp(dir *macusers.Directory, store *config.Store, tokens *token.Store, snaps *snapmon.Store) (*App, error) {
	secretText := os.Getenv("MACUSERS_JWT_SECRET")
	if secretText == "" {
		// Generate ephemeral secret if not configured.
		s, err := auth.NewRandomSecretB64(32)
		if err != nil {
			return nil, err
		}
		secretText = s
	}
	secretRaw, err := base64.RawURLEncoding.DecodeString(secretText)
	if err != nil {
		// Fallback: accept raw string.
		secretRaw = []byte(secretText)
	}
	if len(secretRaw) < 16 {
		// Avoid trivially weak secrets.
		pad := make([]byte, 16)
		copy(pad, secretRaw)
		secretRaw = pad
	}

	return &App{
		secret:     secretRaw,
		cookieName: auth.DefaultCookieName,
		dir:        dir,
		authn:      auth.New(dir, store),
		cfg:        store,
		tokens:     tokens,
		snaps:      snaps,
	}, nil
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/login", a.handleLogin)
	mux.HandleFunc("POST /api/logout", a.requireAuth(a.handleLogout))

	mux.HandleFunc("GET /api/console", a.requireAuth(a.handleConsole))
	mux.HandleFunc("GET /api/users", a.requireAuth(a.handleUsers))
	mux.HandleFunc("GET /api/users/{name}", a.requireAuth(a.handleUserLookup))
	mux.HandleFunc("GET /api/admins", a.requireAuth(a.handleAdmins))
	mux.HandleFunc("GET /api/groups/{name}", a.requireAuth(a.handleGroupLookup))
	mux.HandleFunc("GET /api/status", a.requireAuth(a.handleStatus))
	mux.HandleFunc("GET /api/filevault", a.requireAuth(a.handleFileVault))

	mux.HandleFunc("GET /api/snapshots", a.requireAuth(a.handleSnapshots))
	mux.HandleFunc("GET /api/snapshots/latest", a.requireAuth(a.handleSnapshotLatest))

	mux.HandleFunc("GET /api/tokens", a.requireAdmin(a.handleTokensList))
	mux.HandleFunc("POST /api/tokens", a.requireAdmin(a.handleTokensCreate))
	mux.HandleFunc("POST /api/tokens/revoke", a.requireAdmin(a.handleTokensRevoke))

	mux.HandleFunc("GET /api/config", a.requireAdmin(a.handleConfigGet))
	mux.HandleFunc("POST /api/config/listing", a.requireAdmin(a.handleConfigListing))
	mux.HandleFunc("POST /api/config/snapshots", a.requireAdmin(a.handleConfigSnapshots))
	mux.HandleFunc("POST /api/config/notice", a.requireAdmin(a.handleConfigNotice))

	mux.HandleFunc("GET /docs", a.handleDocs)

	mux.HandleFunc("GET /api/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{\"ok\":true}\n"))
	})

	return a.withAuthContext(mux)
}

func (a *App) issueCookie(w http.ResponseWriter, tok string) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    tok,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   false,
		MaxAge:   int((24 * time.Hour).Seconds()),
	})
}

func (a *App) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   false,
		MaxAge:   -1,
	})
}
