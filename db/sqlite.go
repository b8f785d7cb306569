package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration

	"rig-vibration/models"
	"rig-vibration/utils"
)

type SQLiteClient struct {
	db *sql.DB
}

func NewSQLiteClient(dataSourceName string) (*SQLiteClient, error) {
	// Extract the file path before query parameters
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}

	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" {
		if err := utils.CreateFolder(dbDir); err != nil {
			return nil, fmt.Errorf("error creating database directory: %s", err)
		}
	}

	// Add busy timeout param to DSN (milliseconds)
	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000"
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %s", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %s", err)
	}

	return &SQLiteClient{db: db}, nil
}

func createTables(db *sql.DB) error {
	createPredictionsTable := `
    CREATE TABLE IF NOT EXISTS predictions (
        id TEXT PRIMARY KEY,
        session_id TEXT,
        timestamp DATETIME NOT NULL,
        inputs TEXT NOT NULL,
        outputs TEXT NOT NULL,
        risk_score REAL NOT NULL DEFAULT 0,
        risk_band TEXT,
        advisories TEXT,
        latency_ms REAL NOT NULL DEFAULT 0
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_timestamp ON predictions(timestamp);
    `

	if _, err := db.Exec(createPredictionsTable); err != nil {
		return fmt.Errorf("error creating predictions table: %s", err)
	}
	return nil
}

func (db *SQLiteClient) Close() error {
	if db.db != nil {
		return db.db.Close()
	}
	return nil
}

// StorePrediction inserts one record, assigning an ID and timestamp when unset.
func (db *SQLiteClient) StorePrediction(ctx context.Context, record *models.PredictionRecord) error {
	prepareRecord(record)

	inputsJSON, err := json.Marshal(record.Inputs)
	if err != nil {
		return fmt.Errorf("error marshaling inputs: %s", err)
	}
	outputsJSON, err := json.Marshal(record.Values)
	if err != nil {
		return fmt.Errorf("error marshaling outputs: %s", err)
	}
	advisoriesJSON, err := json.Marshal(record.Advisories)
	if err != nil {
		return fmt.Errorf("error marshaling advisories: %s", err)
	}

	_, err = db.db.ExecContext(ctx, `
		INSERT INTO predictions (
			id, session_id, timestamp, inputs, outputs,
			risk_score, risk_band, advisories, latency_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		record.SessionID,
		record.Timestamp,
		string(inputsJSON),
		string(outputsJSON),
		record.RiskScore,
		record.RiskBand,
		string(advisoriesJSON),
		record.LatencyMs,
	)
	if err != nil {
		return fmt.Errorf("error storing prediction: %s", err)
	}
	return nil
}

// ListPredictions retrieves the most recent predictions.
func (db *SQLiteClient) ListPredictions(ctx context.Context, limit int) ([]models.PredictionRecord, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, session_id, timestamp, inputs, outputs,
		       risk_score, risk_band, advisories, latency_ms
		FROM predictions
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`, normaliseLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("error querying predictions: %s", err)
	}
	defer rows.Close()

	records := []models.PredictionRecord{}
	for rows.Next() {
		var r models.PredictionRecord
		var sessionID, riskBand, advisoriesJSON sql.NullString
		var inputsJSON, outputsJSON string

		err := rows.Scan(
			&r.ID,
			&sessionID,
			&r.Timestamp,
			&inputsJSON,
			&outputsJSON,
			&r.RiskScore,
			&riskBand,
			&advisoriesJSON,
			&r.LatencyMs,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning prediction: %s", err)
		}

		r.SessionID = sessionID.String
		r.RiskBand = riskBand.String
		if err := json.Unmarshal([]byte(inputsJSON), &r.Inputs); err != nil {
			return nil, fmt.Errorf("error unmarshaling inputs: %s", err)
		}
		if err := json.Unmarshal([]byte(outputsJSON), &r.Values); err != nil {
			return nil, fmt.Errorf("error unmarshaling outputs: %s", err)
		}
		if advisoriesJSON.Valid && advisoriesJSON.String != "" {
			if err := json.Unmarshal([]byte(advisoriesJSON.String), &r.Advisories); err != nil {
				return nil, fmt.Errorf("error unmarshaling advisories: %s", err)
			}
		}

		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating predictions: %s", err)
	}

	return records, nil
}

func prepareRecord(record *models.PredictionRecord) {
	if record.ID == "" {
		record.ID = utils.GenerateUniqueID()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	record.Timestamp = record.Timestamp.UTC()
}
