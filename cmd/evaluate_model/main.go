package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"rig-vibration/dataset"
	"rig-vibration/training"
	"rig-vibration/utils"
	"rig-vibration/vibration"
)

// EvaluationResult is written with -json.
type EvaluationResult struct {
	Dataset   string                     `json:"dataset"`
	Rows      int                        `json:"rows"`
	HeldOut   bool                       `json:"heldOut"`
	R2        float64                    `json:"r2"`
	Scores    []training.TargetScore     `json:"scores"`
	Training  *vibration.TrainingSummary `json:"training,omitempty"`
	Timestamp time.Time                  `json:"timestamp"`
}

func main() {
	datasetPath := flag.String("dataset", "Data.csv", "CSV dataset to score against")
	_ = godotenv.Load()
	modelsDir := flag.String("models", utils.GetEnv("MODELS_DIR", "models"), "Directory holding the model and scaler artifacts")
	heldOut := flag.Bool("held-out", false, "Score only the rows the training run held out (same seed and ratio)")
	testRatio := flag.Float64("test-ratio", utils.GetEnvFloat("TEST_RATIO", 0.2), "Held-out fraction used at training time")
	jsonOut := flag.String("json", "", "Optional path to write the evaluation as JSON")
	flag.Parse()

	modelPath, scalerPath := utils.ArtifactPaths(*modelsDir)
	artifact, scaler, err := vibration.LoadArtifacts(modelPath, scalerPath)
	if err != nil {
		log.Fatalf("failed to load artifacts: %v", err)
	}
	if artifact.Training == nil || len(artifact.Training.InputColumns) == 0 {
		log.Fatalf("model artifact carries no training columns; retrain with cmd/train_model")
	}

	table, err := dataset.LoadCSV(*datasetPath)
	if err != nil {
		log.Fatalf("failed to load dataset: %v", err)
	}
	frame, err := table.Select(artifact.Training.InputColumns, artifact.Training.TargetColumns)
	if err != nil {
		log.Fatalf("dataset does not match the model: %v", err)
	}
	if _, err := frame.ImputeMean(); err != nil {
		log.Fatalf("failed to impute dataset: %v", err)
	}

	x, y := frame.X, frame.Y
	if *heldOut {
		_, test, err := dataset.TrainTestSplit(len(frame.X), *testRatio, artifact.Training.Seed)
		if err != nil {
			log.Fatalf("failed to split dataset: %v", err)
		}
		x, y = frame.Rows(test)
	}

	xs, err := scaler.TransformAll(x)
	if err != nil {
		log.Fatalf("failed to scale dataset: %v", err)
	}
	scores, overall, err := training.Score(artifact.Forest, xs, y, artifact.Targets)
	if err != nil {
		log.Fatalf("failed to score model: %v", err)
	}

	fmt.Println("=== Model Evaluation ===")
	fmt.Printf("Model trained: %s on %s (%d rows)\n",
		artifact.Training.TrainedAt.Format(time.RFC3339), artifact.Training.Dataset, artifact.Training.Rows)
	fmt.Printf("Evaluated:     %d rows from %s (held-out only: %v)\n\n", len(x), *datasetPath, *heldOut)
	fmt.Printf("%-22s %10s %12s\n", "Target", "R^2", "MAE")
	for _, s := range scores {
		metric, _ := vibration.MetricByKey(s.Target)
		fmt.Printf("%-22s %10.4f %12.4f %s\n", metric.Label, s.R2, s.MAE, metric.Unit)
	}
	fmt.Printf("%-22s %10.4f\n", "Mean", overall)

	if *jsonOut != "" {
		result := EvaluationResult{
			Dataset:   *datasetPath,
			Rows:      len(x),
			HeldOut:   *heldOut,
			R2:        overall,
			Scores:    scores,
			Training:  artifact.Training,
			Timestamp: time.Now().UTC(),
		}
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatalf("failed to encode evaluation: %v", err)
		}
		if err := os.WriteFile(*jsonOut, data, 0o644); err != nil {
			log.Fatalf("failed to write %s: %v", *jsonOut, err)
		}
		fmt.Printf("\nWrote %s\n", *jsonOut)
	}
}
