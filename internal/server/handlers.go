package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/hnrobert/macusers/internal/auth"
	"github.com/hnrobert/macusers/internal/logger"
	"github.com/hnrobert/macusers/internal/macusers"
	"github.com/hnrobert/macusers/internal/snapmon"
	"github.com/hnrobert/macusers/internal/token"
)

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// directoryError maps lookup failures onto API status codes.
func directoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, macusers.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, macusers.ErrGroupNotFound):
		writeError(w, http.StatusNotFound, "group not found")
	default:
		logger.Error("directory query failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// directory returns a query handle with the configured UID threshold
// applied, so threshold changes take effect without a restart.
func (a *App) directory() *macusers.Directory {
	d := *a.dir
	if cfg, err := a.cfg.Get(); err == nil {
		d.MinUserID = cfg.MinUserID
	}
	return &d
}

func (a *App) listOptions(r *http.Request) macusers.ListOptions {
	opts := macusers.ListOptions{}
	if cfg, err := a.cfg.Get(); err == nil {
		opts.IncludeRoot = cfg.IncludeRoot
	}
	if v := r.URL.Query().Get("include_root"); v != "" {
		opts.IncludeRoot = v == "true" || v == "1"
	}
	opts.Group = r.URL.Query().Get("group")
	return opts
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := a.authn.VerifyPassword(r.Context(), req.Username, req.Password); err != nil {
		logger.Info("Failed login attempt for user %s from %s", req.Username, remoteIP(r))
		writeError(w, http.StatusUnauthorized, auth.HumanAuthError(err))
		return
	}
	admin, err := a.authn.IsAdmin(r.Context(), req.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	tok, err := auth.SignHS256(a.secret, req.Username, admin, 24*time.Hour)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.issueCookie(w, tok)
	logger.Info("User %s logged in from %s", req.Username, remoteIP(r))
	writeJSON(w, http.StatusOK, map[string]any{
		"token":    tok,
		"username": req.Username,
		"admin":    admin,
	})
}

func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	a.clearCookie(w)
	logger.Info("User %s logged out from %s", usernameFrom(r), remoteIP(r))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) handleConsole(w http.ResponseWriter, r *http.Request) {
	username, err := a.directory().Console(r.Context())
	if err != nil {
		directoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"username": username})
}

func (a *App) handleUsers(w http.ResponseWriter, r *http.Request) {
	names, err := a.directory().Users(r.Context(), a.listOptions(r))
	if err != nil {
		directoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": names})
}

func (a *App) handleUserLookup(w http.ResponseWriter, r *http.Request) {
	u, err := a.directory().Lookup(r.Context(), r.PathValue("name"))
	if err != nil {
		directoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *App) handleAdmins(w http.ResponseWriter, r *http.Request) {
	names, err := a.directory().Admins(r.Context())
	if err != nil {
		directoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"admins": names})
}

func (a *App) handleGroupLookup(w http.ResponseWriter, r *http.Request) {
	g, err := a.directory().LookupGroup(r.Context(), r.PathValue("name"))
	if err != nil {
		directoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := a.directory().Report(r.Context(), a.listOptions(r))
	if err != nil {
		directoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": statuses})
}

func (a *App) handleFileVault(w http.ResponseWriter, r *http.Request) {
	names, err := a.directory().FileVaultList(r.Context())
	if err != nil {
		directoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": names})
}

func (a *App) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		since = t
	}
	samples := a.snaps.Since(since)
	if samples == nil {
		samples = []snapmon.Sample{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"samples": samples})
}

func (a *App) handleSnapshotLatest(w http.ResponseWriter, r *http.Request) {
	sample, ok := a.snaps.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no snapshots recorded")
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

func (a *App) handleTokensList(w http.ResponseWriter, r *http.Request) {
	list, err := a.tokens.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Values are secrets shown once at creation.
	for i := range list {
		list[i].Value = ""
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": list})
}

func (a *App) handleTokensCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label     string    `json:"label"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	tok, err := a.tokens.Create(usernameFrom(r), req.Label, req.ExpiresAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logger.Info("Admin %s created service token %q from %s", usernameFrom(r), tok.Label, remoteIP(r))
	writeJSON(w, http.StatusCreated, tok)
}

func (a *App) handleTokensRevoke(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.tokens.Revoke(req.ID); err != nil {
		if errors.Is(err, token.ErrNotFound) {
			writeError(w, http.StatusNotFound, "token not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("Admin %s revoked service token %s from %s", usernameFrom(r), req.ID, remoteIP(r))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.cfg.Get()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	cfg.OperatorHash = ""
	writeJSON(w, http.StatusOK, cfg)
}

func (a *App) handleConfigListing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MinUserID   int  `json:"min_user_id"`
		IncludeRoot bool `json:"include_root"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.cfg.SetListing(req.MinUserID, req.IncludeRoot); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logger.Info("Admin %s set listing threshold to %d (include_root=%v)", usernameFrom(r), req.MinUserID, req.IncludeRoot)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) handleConfigSnapshots(w http.ResponseWriter, r *http.Request) {
	var req snapmon.Config
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.cfg.SetSnapshots(req); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("Admin %s updated snapshot settings", usernameFrom(r))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) handleConfigNotice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notice string `json:"notice"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.cfg.SetNotice(req.Notice); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("Admin %s updated the docs notice", usernameFrom(r))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleDocs serves the operator-maintained notice as a rendered page.
func (a *App) handleDocs(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.cfg.Get()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	notice := cfg.Notice
	if notice == "" {
		notice = "# macusersd\n\nNo notice has been published."
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!doctype html>\n<html><head><title>macusersd</title></head><body>\n%s\n</body></html>\n", RenderMarkdown(notice))
}
