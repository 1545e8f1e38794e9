package server

import (
	"net/http"
	"time"

	"github.com/hnrobert/macusers/internal/config"
	"github.com/hnrobert/macusers/internal/macusers"
	"github.com/hnrobert/macusers/internal/snapmon"
	"github.com/hnrobert/macusers/internal/token"
)

type Config struct {
	ListenAddr string
}

type Server struct {
	cfg Config
	h   http.Handler
}

func New(cfg Config, dir *macusers.Directory, store *config.Store, tokens *token.Store, snaps *snapmon.Store) *Server {
	app, err := newApp(dir, store, tokens, snaps)
	if err != nil {
		// Defer error to ListenAndServe for a single error return path.
		return &Server{cfg: cfg, h: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		})}
	}
	return &Server{cfg: cfg, h: app.routes()}
}

func (s *Server) ListenAndServe() error {
	httpSrv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return httpSrv.ListenAndServe()
}
