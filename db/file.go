package db

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"rig-vibration/models"
	"rig-vibration/utils"
)

// FileClient keeps prediction history in a single JSON file. It suits
// a single dashboard process; concurrent processes would overwrite each other.
type FileClient struct {
	path string
	mu   sync.RWMutex
}

func NewFileClient(path string) *FileClient {
	return &FileClient{path: path}
}

func (c *FileClient) Close() error { return nil }

// load reads all records; callers hold the lock.
func (c *FileClient) load() ([]models.PredictionRecord, error) {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return []models.PredictionRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading history file: %v", err)
	}
	if len(data) == 0 {
		return []models.PredictionRecord{}, nil
	}

	var records []models.PredictionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("error unmarshaling history: %v", err)
	}
	return records, nil
}

func (c *FileClient) StorePrediction(_ context.Context, record *models.PredictionRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.load()
	if err != nil {
		return err
	}
	prepareRecord(record)
	records = append(records, *record)

	dir := filepath.Dir(c.path)
	if dir != "." && dir != "" {
		if err := utils.CreateFolder(dir); err != nil {
			return fmt.Errorf("error creating directory: %v", err)
		}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling history: %v", err)
	}

	tempPath := c.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("error writing history file: %v", err)
	}
	if err := os.Rename(tempPath, c.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("error replacing history file: %v", err)
	}
	return nil
}

func (c *FileClient) ListPredictions(_ context.Context, limit int) ([]models.PredictionRecord, error) {
	c.mu.RLock()
	records, err := c.load()
	c.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	// Records are appended in arrival order; reverse it before the stable
	// sort so equal timestamps still come out newest first.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})

	if limit = normaliseLimit(limit); len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
