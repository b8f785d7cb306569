package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/joho/godotenv"

	"rig-vibration/dataset"
	"rig-vibration/models"
	"rig-vibration/utils"
	"rig-vibration/vibration"
)

// Checks that identical inputs always give identical predictions, across
// repeated calls and across independent loads of the same artifacts.
func main() {
	_ = godotenv.Load()
	modelsDir := flag.String("models", utils.GetEnv("MODELS_DIR", "models"), "Directory holding the model and scaler artifacts")
	datasetPath := flag.String("dataset", "", "Optional CSV to draw input rows from")
	rows := flag.Int("rows", 20, "Rows to check when -dataset is set")
	runs := flag.Int("runs", 5, "Predictions per row")
	flag.Parse()

	modelPath, scalerPath := utils.ArtifactPaths(*modelsDir)
	cfg := vibration.EngineConfig{ModelPath: modelPath, ScalerPath: scalerPath}
	// Cache disabled so every call runs the forest.
	first, err := vibration.LoadEngine(cfg)
	if err != nil {
		log.Fatalf("failed to load engine: %v", err)
	}
	second, err := vibration.LoadEngine(cfg)
	if err != nil {
		log.Fatalf("failed to reload engine: %v", err)
	}

	vectors, err := inputVectors(first, *datasetPath, *rows)
	if err != nil {
		log.Fatalf("failed to build inputs: %v", err)
	}
	log.Printf("Testing determinism with %d input vector(s), %d run(s) each\n", len(vectors), *runs)

	ctx := context.Background()
	allIdentical := true
	maxDiff := 0.0
	for i, fv := range vectors {
		reference, err := first.Predict(ctx, fv)
		if err != nil {
			log.Fatalf("row %d: prediction failed: %v", i, err)
		}
		want := reference.Raw()

		for run := 0; run < *runs; run++ {
			engine := first
			if run%2 == 1 {
				engine = second
			}
			got, err := engine.Predict(ctx, fv)
			if err != nil {
				log.Fatalf("row %d run %d: prediction failed: %v", i, run+1, err)
			}
			for o, v := range got.Raw() {
				diff := math.Abs(v - want[o])
				maxDiff = math.Max(maxDiff, diff)
				if diff != 0 {
					allIdentical = false
					fmt.Printf("❌ Row %d output %d differs on run %d: %.15f vs %.15f\n", i, o, run+1, want[o], v)
				}
			}
		}
	}

	fmt.Println("\n=== Determinism Check ===")
	if !allIdentical {
		fmt.Printf("❌ Predictions are NON-DETERMINISTIC (max diff: %e)\n", maxDiff)
		os.Exit(1)
	}
	fmt.Println("✅ All runs produced IDENTICAL predictions (deterministic)")
}

func inputVectors(engine *vibration.Engine, datasetPath string, limit int) ([]models.FeatureVector, error) {
	layout := engine.Layout()
	if datasetPath == "" {
		return []models.FeatureVector{{
			Depth: 9500, WOB: 25, RPM: 120, FlowIn: 650, Torque: 18, SPP: 3200,
			ROP: 45, MudWeightIn: 10.2, MudTempIn: 95, MudTempOut: 120, SurfaceStickSlip: 7,
		}}, nil
	}

	info := engine.Info()
	if info.Training == nil || len(info.Training.InputColumns) == 0 {
		return nil, fmt.Errorf("model artifact carries no training columns")
	}
	table, err := dataset.LoadCSV(datasetPath)
	if err != nil {
		return nil, err
	}
	frame, err := table.Select(info.Training.InputColumns, info.Training.TargetColumns)
	if err != nil {
		return nil, err
	}
	if _, err := frame.ImputeMean(); err != nil {
		return nil, err
	}

	n := min(limit, len(frame.X))
	vectors := make([]models.FeatureVector, 0, n)
	for _, row := range frame.X[:n] {
		fv, err := models.FeatureVectorFromRow(layout, row)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, fv)
	}
	return vectors, nil
}
