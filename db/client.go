package db

import (
	"context"
	"fmt"
	"path/filepath"

	"rig-vibration/models"
	"rig-vibration/utils"
)

// DefaultListLimit applies when a caller asks for a non-positive limit.
const DefaultListLimit = 50

// DBClient stores prediction history.
type DBClient interface {
	Close() error
	StorePrediction(ctx context.Context, record *models.PredictionRecord) error
	// ListPredictions returns up to limit records, newest first.
	ListPredictions(ctx context.Context, limit int) ([]models.PredictionRecord, error)
}

// NewDBClient opens the backend named by DB_TYPE.
func NewDBClient() (DBClient, error) {
	dbType := utils.GetEnv("DB_TYPE", "sqlite")

	switch dbType {
	case "mongo":
		uri := utils.GetEnv("MONGO_URI", "mongodb://localhost:27017")
		return NewMongoClient(uri, utils.GetEnv("MONGO_DB", "rig_vibration"))

	case "sqlite":
		path := utils.GetEnv("SQLITE_PATH", filepath.Join("db", "predictions.sqlite3"))
		return NewSQLiteClient(path)

	case "file":
		return NewFileClient(utils.GetEnv("HISTORY_FILE", filepath.Join("db", "predictions.json"))), nil

	case "none":
		return discardClient{}, nil

	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

func normaliseLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

// discardClient keeps no history.
type discardClient struct{}

func (discardClient) Close() error { return nil }

func (discardClient) StorePrediction(context.Context, *models.PredictionRecord) error { return nil }

func (discardClient) ListPredictions(context.Context, int) ([]models.PredictionRecord, error) {
	return []models.PredictionRecord{}, nil
}
