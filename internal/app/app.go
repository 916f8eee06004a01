// Package app assembles the application: configuration, Genkit provider
// plugins, PostgreSQL pool, knowledge store, audit trail, turn graph,
// and the session controller. Both the CLI and the HTTP server build on
// an App.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aulalab/maisa/internal/audit"
	"github.com/aulalab/maisa/internal/config"
	"github.com/aulalab/maisa/internal/knowledge"
	"github.com/aulalab/maisa/internal/log"
	"github.com/aulalab/maisa/internal/session"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder

	DBPool    *pgxpool.Pool
	Knowledge *knowledge.Store
	Audit     *audit.FileLogger
	Sessions  *session.Controller

	otelCleanup func()
}

// Close releases resources in reverse construction order. Safe to call
// on a partially constructed App.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down")
	}

	var firstErr error
	if a.Audit != nil {
		if err := a.Audit.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing audit log: %w", err)
		}
		if dropped := a.Audit.Dropped(); dropped > 0 && a.Logger != nil {
			a.Logger.Warn("audit events were dropped during this run", "count", dropped)
		}
	}
	if a.DBPool != nil {
		a.DBPool.Close()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return firstErr
}

// Ping verifies database connectivity, for readiness probes.
func (a *App) Ping(ctx context.Context) error {
	if a.DBPool == nil {
		return fmt.Errorf("database pool not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return a.DBPool.Ping(ctx)
}
