package storage

import (
	"database/sql"
	"fmt"

	"trade-scanner/src/logger"
	"trade-scanner/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresSetupStore struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresSetupStore(cfg *models.MConfig, log *logger.Logger) (*PostgresSetupStore, error) {
	return &PostgresSetupStore{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresSetupStore) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	query := `
		CREATE TABLE IF NOT EXISTS setups (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			setup_type TEXT NOT NULL,
			status TEXT NOT NULL,
			direction TEXT NOT NULL,
			entry DOUBLE PRECISION,
			stop DOUBLE PRECISION,
			targets TEXT,
			targets_hit TEXT,
			confluence_score INTEGER,
			confidence TEXT,
			timestamp BIGINT,
			last_update BIGINT
		);
	`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create setups table: %w", err)
	}

	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_setups_symbol ON setups (symbol, timestamp)"); err != nil {
		return fmt.Errorf("failed to create setups index: %w", err)
	}

	d.Logger.Info("PostgresSetupStore initialized successfully")
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresSetupStore) SaveSetup(setup models.MSetup) error {
	targets, targetsHit, confidence, err := encodeSetupColumns(setup)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO setups (id, symbol, setup_type, status, direction, entry, stop,
			targets, targets_hit, confluence_score, confidence, timestamp, last_update)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			targets_hit = EXCLUDED.targets_hit,
			last_update = EXCLUDED.last_update;
	`
	_, err = d.DB.Exec(query,
		setup.ID, setup.Symbol, setup.SetupType, setup.Status, setup.Direction,
		setup.Entry, setup.Stop, targets, targetsHit, setup.ConfluenceScore,
		confidence, setup.Timestamp, setup.LastUpdate)
	if err != nil {
		return fmt.Errorf("failed to save setup %s: %w", setup.ID, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresSetupStore) ListSetups(symbol string, limit int) ([]models.MSetup, error) {
	query := `
		SELECT id, symbol, setup_type, status, direction, entry, stop,
			targets, targets_hit, confluence_score, confidence, timestamp, last_update
		FROM setups
	`
	args := []interface{}{}
	if symbol != "" {
		query += " WHERE symbol = $1 ORDER BY timestamp DESC LIMIT $2"
		args = append(args, symbol, limit)
	} else {
		query += " ORDER BY timestamp DESC LIMIT $1"
		args = append(args, limit)
	}

	rows, err := d.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query setups: %w", err)
	}
	defer rows.Close()

	return scanSetupRows(rows)
}

// -----------------------------------------------------------------------------

func (d *PostgresSetupStore) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
