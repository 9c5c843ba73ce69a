// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package api assembles the HTTP surface: job snapshot reads, bulk
// operations, automation rule management, settings, archive, and the SSE
// event stream that drives poller visibility.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/torboxd/internal/api/handlers"
	"github.com/autobrr/torboxd/internal/domain"
)

type Server struct {
	cfg *domain.Config

	jobs        *handlers.JobsHandler
	automations *handlers.AutomationsHandler
	settings    *handlers.SettingsHandler
	archive     *handlers.ArchiveHandler
	events      *handlers.EventsHandler

	httpServer *http.Server
}

func NewServer(cfg *domain.Config, jobs *handlers.JobsHandler, automations *handlers.AutomationsHandler, settings *handlers.SettingsHandler, archive *handlers.ArchiveHandler, events *handlers.EventsHandler) *Server {
	return &Server{
		cfg:         cfg,
		jobs:        jobs,
		automations: automations,
		settings:    settings,
		archive:     archive,
		events:      events,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.Health)
		r.Get("/version", handlers.Version)
		r.Get("/events", s.events.HandleSSE)

		r.Route("/jobs", s.jobs.Routes)
		r.Route("/automations", s.automations.Routes)
		r.Route("/settings", s.settings.Routes)
		r.Route("/archive", s.archive.Routes)
	})

	return r
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
		return err
	}
	return nil
}
