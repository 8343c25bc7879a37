// Package desk assembles the local clinic desk: persistent settings, the
// clinic API client, the session store, the queue poller and the payment
// adapter. Both the HTTP server and the CLI commands run on top of it.
package desk

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dukerupert/clinicdesk/internal/api"
	"github.com/dukerupert/clinicdesk/internal/config"
	"github.com/dukerupert/clinicdesk/internal/database"
	"github.com/dukerupert/clinicdesk/internal/logging"
	"github.com/dukerupert/clinicdesk/internal/payment"
	"github.com/dukerupert/clinicdesk/internal/queue"
	"github.com/dukerupert/clinicdesk/internal/session"
	"github.com/dukerupert/clinicdesk/internal/store"
)

type Desk struct {
	Config   *config.Config
	DB       *sql.DB
	Settings *store.SettingsStore
	Client   *api.Client
	Sessions *session.Store
	Queue    *queue.Supervisor
	Payments *payment.Adapter
	Logger   zerolog.Logger
}

// Open wires the desk. The session is not restored yet; call
// Sessions.Initialize.
func Open(cfg *config.Config, logger zerolog.Logger) (*Desk, error) {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	settings := store.NewSettingsStore(db)
	tokens, err := store.NewTokenStore(settings, cfg.TokenPassphrase)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open token store: %w", err)
	}

	client := api.NewClient(api.Config{
		BaseURL: cfg.APIURL,
		Timeout: cfg.RequestTimeout,
	}, logging.Component(logger, "api"))

	sessions := session.New(client, tokens, logging.Component(logger, "session"))
	client.SetTokenSource(sessions)
	client.OnUnauthorized(func(token string) {
		cleared, err := sessions.ClearIf(token)
		if err != nil {
			logger.Error().Err(err).Msg("clear session after 401")
			return
		}
		if !cleared {
			logger.Debug().Msg("401 for a replaced token ignored")
		}
	})

	supervisor := queue.NewSupervisor(client, queue.Config{
		Interval:   cfg.PollInterval,
		MinVisible: cfg.RefreshMinVisible,
	}, logging.Component(logger, "queue"))

	payments := payment.NewAdapter(client, sessions, cfg.PaymentCallbackTimeout, logging.Component(logger, "payment"))

	return &Desk{
		Config:   cfg,
		DB:       db,
		Settings: settings,
		Client:   client,
		Sessions: sessions,
		Queue:    supervisor,
		Payments: payments,
		Logger:   logger,
	}, nil
}

// Close stops polling and closes the database.
func (d *Desk) Close() error {
	d.Queue.Stop()
	return d.DB.Close()
}
