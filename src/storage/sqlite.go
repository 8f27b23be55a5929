package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"trade-scanner/src/logger"
	"trade-scanner/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type SQLiteSetupStore struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSQLiteSetupStore(cfg *models.MConfig, log *logger.Logger) (*SQLiteSetupStore, error) {
	return &SQLiteSetupStore{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteSetupStore) Initialize() error {
	dsn := d.Config.Storage.DBPath

	// Open DB
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	// SQLite types: INTEGER for int64, REAL for float64, TEXT for string
	query := `
		CREATE TABLE IF NOT EXISTS setups (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			setup_type TEXT NOT NULL,
			status TEXT NOT NULL,
			direction TEXT NOT NULL,
			entry REAL,
			stop REAL,
			targets TEXT,
			targets_hit TEXT,
			confluence_score INTEGER,
			confidence TEXT,
			timestamp INTEGER,
			last_update INTEGER
		);
	`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create setups table: %w", err)
	}

	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_setups_symbol ON setups (symbol, timestamp)"); err != nil {
		return fmt.Errorf("failed to create setups index: %w", err)
	}

	d.Logger.Info("SQLiteSetupStore initialized (%s)", dsn)
	return nil
}

// -----------------------------------------------------------------------------

// SaveSetup upserts by ID so lifecycle transitions overwrite the
// earlier row instead of accumulating duplicates.
func (d *SQLiteSetupStore) SaveSetup(setup models.MSetup) error {
	targets, targetsHit, confidence, err := encodeSetupColumns(setup)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO setups (id, symbol, setup_type, status, direction, entry, stop,
			targets, targets_hit, confluence_score, confidence, timestamp, last_update)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			targets_hit = excluded.targets_hit,
			last_update = excluded.last_update;
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

func (d *SQLiteSetupStore) ListSetups(symbol string, limit int) ([]models.MSetup, error) {
	query := `
		SELECT id, symbol, setup_type, status, direction, entry, stop,
			targets, targets_hit, confluence_score, confidence, timestamp, last_update
		FROM setups
	`
	args := []interface{}{}
	if symbol != "" {
		query += " WHERE symbol = ?"
		args = append(args, symbol)
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := d.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query setups: %w", err)
	}
	defer rows.Close()

	return scanSetupRows(rows)
}

// -----------------------------------------------------------------------------

func (d *SQLiteSetupStore) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}

// -----------------------------------------------------------------------------
// Shared Row Codec
// -----------------------------------------------------------------------------

// Targets, hit flags and the confidence breakdown are stored as JSON
// text columns. They are read back whole, never filtered on.
func encodeSetupColumns(setup models.MSetup) (targets, targetsHit, confidence string, err error) {
	t, err := json.Marshal(setup.Targets)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode targets for %s: %w", setup.ID, err)
	}
	h, err := json.Marshal(setup.TargetsHit)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode targets_hit for %s: %w", setup.ID, err)
	}
	c, err := json.Marshal(setup.Confidence)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode confidence for %s: %w", setup.ID, err)
	}
	return string(t), string(h), string(c), nil
}

// -----------------------------------------------------------------------------

func scanSetupRows(rows *sql.Rows) ([]models.MSetup, error) {
	var setups []models.MSetup
	for rows.Next() {
		var setup models.MSetup
		var targets, targetsHit, confidence string

		err := rows.Scan(&setup.ID, &setup.Symbol, &setup.SetupType, &setup.Status,
			&setup.Direction, &setup.Entry, &setup.Stop, &targets, &targetsHit,
			&setup.ConfluenceScore, &confidence, &setup.Timestamp, &setup.LastUpdate)
		if err != nil {
			return nil, fmt.Errorf("failed to scan setup row: %w", err)
		}

		if err := json.Unmarshal([]byte(targets), &setup.Targets); err != nil {
			return nil, fmt.Errorf("corrupt targets column for %s: %w", setup.ID, err)
		}
		if err := json.Unmarshal([]byte(targetsHit), &setup.TargetsHit); err != nil {
			return nil, fmt.Errorf("corrupt targets_hit column for %s: %w", setup.ID, err)
		}
		if err := json.Unmarshal([]byte(confidence), &setup.Confidence); err != nil {
			return nil, fmt.Errorf("corrupt confidence column for %s: %w", setup.ID, err)
		}

		setups = append(setups, setup)
	}
	return setups, rows.Err()
}
