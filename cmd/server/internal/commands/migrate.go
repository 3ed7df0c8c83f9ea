package commands

import (
	"context"
	"errors"

	"github.com/wolfeidau/wishroom/internal/logger"
)

// MigrateCmd applies the embedded PostgreSQL migrations.
type MigrateCmd struct {
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

func (c *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Dev)

	if c.PostgresStore.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or WISHROOM_POSTGRES_CONNECTION_STRING)")
	}

	b, err := openBackend(ctx, log, &BackendFlags{
		StoreType:     "postgres",
		PostgresStore: c.PostgresStore,
		LockType:      "auto",
	}, true)
	if err != nil {
		return err
	}
	b.Close()

	return nil
}
