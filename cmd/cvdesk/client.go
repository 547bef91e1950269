package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/kalambet/cvdesk/internal/auth"
	"github.com/kalambet/cvdesk/internal/config"
	"github.com/kalambet/cvdesk/internal/cvapi"
	"github.com/kalambet/cvdesk/internal/storage"
)

// app holds what every command needs: the API client, the local store and
// the login session.
type app struct {
	cfg    config.Config
	api    *cvapi.Client
	store  *storage.Store
	auth   *auth.Manager
	logger *slog.Logger
}

var newApp = func() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	api := cvapi.New(cfg.Server.BaseURL,
		cvapi.WithHTTPClient(&http.Client{Timeout: cfg.Client.Timeout}),
		cvapi.WithUserAgent(cfg.Client.UserAgent),
		cvapi.WithLogger(logger),
	)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	return &app{
		cfg:    cfg,
		api:    api,
		store:  store,
		auth:   auth.NewManager(api, store, auth.WithLogger(logger)),
		logger: logger,
	}, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// Token returns CVDESK_TOKEN when set, otherwise the stored login.
func (a *app) Token() string {
	if a.cfg.Auth.Token != "" {
		return a.cfg.Auth.Token
	}
	return a.auth.Token()
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing storage", "error", err)
	}
}

func (a *app) recordSearch(p cvapi.SearchParameters, total int) {
	err := a.store.RecordSearch(storage.SearchEntry{
		Query:     p.Query,
		DateFrom:  p.DateFrom,
		DateTo:    p.DateTo,
		SortBy:    string(p.SortBy),
		SortOrder: string(p.SortOrder),
		Logic:     string(p.Logic),
		Total:     total,
	})
	if err != nil {
		a.logger.Warn("recording search failed", "error", err)
	}
}
