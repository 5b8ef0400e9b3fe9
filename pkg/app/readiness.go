package app

import (
	"context"
	"fmt"

	"github.com/otherjamesbrown/vidq/pkg/db"
	"github.com/otherjamesbrown/vidq/pkg/server"
	"github.com/otherjamesbrown/vidq/pkg/store"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func pingCheck(p pinger) server.ReadinessCheck {
	return func(ctx context.Context) (any, error) {
		return nil, p.Ping(ctx)
	}
}

// Readiness returns /readyz probes for the network backends in use. It
// opens those backends, so call it after the assistant is built.
func (a *App) Readiness() map[string]server.ReadinessCheck {
	checks := make(map[string]server.ReadinessCheck)

	if st, err := a.Store(); err == nil {
		if pg, ok := st.(*store.Postgres); ok {
			checks["postgres"] = postgresCheck(pg)
		}
	}
	if h, err := a.History(); err == nil && h != nil {
		checks["history"] = pingCheck(h)
	}
	if q, err := a.ScrapeQueue(); err == nil && q != nil {
		if p, ok := q.(pinger); ok {
			checks["redis"] = pingCheck(p)
		}
	}
	return checks
}

// postgresCheck probes the pool and fails while schema migrations are
// pending, which happens when another process is mid-upgrade.
func postgresCheck(pg *store.Postgres) server.ReadinessCheck {
	return func(ctx context.Context) (any, error) {
		status, err := db.Probe(ctx, pg.Pool())
		if err != nil {
			return status, err
		}
		migrations, err := db.Status(ctx, pg.Pool(), store.Migrations())
		if err != nil {
			return status, fmt.Errorf("reading migration status: %w", err)
		}
		if n := len(migrations.Pending); n > 0 {
			return status, fmt.Errorf("%d schema migrations pending", n)
		}
		return status, nil
	}
}
