package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"

	"rig-vibration/training"
	"rig-vibration/utils"
)

const usage = "Expected 'serve' or 'train' subcommand"

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}
	_ = godotenv.Load()

	switch os.Args[1] {
	case "serve":
		serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
		protocol := serveCmd.String("proto", "http", "Protocol to use (http or https)")
		port := serveCmd.String("p", "5000", "Port to use")
		serveCmd.Parse(os.Args[2:])
		serve(*protocol, *port)

	case "train":
		trainCmd := flag.NewFlagSet("train", flag.ExitOnError)
		datasetPath := trainCmd.String("dataset", "Data.csv", "Historical drilling dataset (CSV)")
		modelsDir := trainCmd.String("models", utils.GetEnv("MODELS_DIR", "models"), "Directory for model and scaler artifacts")
		trees := trainCmd.Int("trees", 100, "Number of trees in the forest")
		seed := trainCmd.Int64("seed", 44, "Seed for the split and the forest")
		trainCmd.Parse(os.Args[2:])
		if err := runTraining(*datasetPath, *modelsDir, *trees, *seed); err != nil {
			os.Exit(1)
		}

	default:
		fmt.Println(usage)
		os.Exit(1)
	}
}

func runTraining(datasetPath, modelsDir string, trees int, seed int64) error {
	ctx := context.Background()
	logger := utils.GetLogger()

	cfg := training.DefaultConfig(datasetPath, modelsDir)
	cfg.ModelPath, cfg.ScalerPath = utils.ArtifactPaths(modelsDir)
	cfg.Forest.Trees = trees
	cfg.Seed = seed

	report, err := training.Run(ctx, cfg)
	if err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "training failed, no artifacts written", slog.Any("error", err))
		return err
	}

	log.Printf("Trained on %d rows (%d train / %d test), R^2 = %.4f",
		report.Summary.Rows, report.Summary.TrainRows, report.Summary.TestRows, report.Summary.R2)
	for _, s := range report.Scores {
		log.Printf("  %-22s R^2 %.4f  MAE %.4f", s.Target, s.R2, s.MAE)
	}
	log.Printf("Saved %s and %s", report.ModelPath, report.ScalerPath)
	return nil
}
