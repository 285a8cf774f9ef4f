package bootstrap

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/etf-team/tariffbot/core/config"
	coredatabase "github.com/etf-team/tariffbot/core/database"
)

func noLogger(*coreconfig.Config) error { return nil }

func TestRun_Pipeline(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	var migrated coredatabase.Config
	res, err := Run(Options{
		Config:     &coreconfig.Config{},
		LoggerInit: noLogger,
		Connect: func(cfg coredatabase.Config) (*sqlx.DB, error) {
			return sqlx.NewDb(raw, "sqlmock"), nil
		},
		Migrate: func(cfg coredatabase.Config) error {
			migrated = cfg
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, coredatabase.DriverSQLite, migrated.Driver)
	require.NoError(t, res.DB.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_MigrationFailureClosesDB(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	_, err = Run(Options{
		Config:     &coreconfig.Config{},
		LoggerInit: noLogger,
		Connect:    func(coredatabase.Config) (*sqlx.DB, error) { return sqlx.NewDb(raw, "sqlmock"), nil },
		Migrate:    func(coredatabase.Config) error { return errors.New("dirty") },
	})
	assert.ErrorContains(t, err, "migrations failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_NilConfig(t *testing.T) {
	_, err := Run(Options{})
	assert.Error(t, err)
}
