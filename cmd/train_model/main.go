package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"rig-vibration/models"
	"rig-vibration/training"
	"rig-vibration/utils"
	"rig-vibration/vibration"
)

// Config holds training configuration
type Config struct {
	DatasetPath string
	ModelsDir   string
	Layout      string
	Inputs      string
	Targets     string
	Metrics     string
	Trees       int
	MaxDepth    int
	MaxFeatures int
	Seed        int64
	TestRatio   float64
	Verbose     bool
}

func main() {
	_ = godotenv.Load()
	config := parseFlags()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("=== Vibration Model Training Pipeline ===\n")
	log.Printf("Dataset: %s\n", config.DatasetPath)
	log.Printf("Artifacts: %s\n", config.ModelsDir)
	log.Println()

	cfg, err := buildTrainingConfig(config)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}

	if config.Verbose {
		log.Printf("Layout:  %s\n", cfg.Layout)
		log.Printf("Inputs:  %s\n", strings.Join(cfg.InputColumns, ", "))
		log.Printf("Targets: %s -> %s\n", strings.Join(cfg.TargetColumns, ", "), strings.Join(cfg.Targets, ", "))
		log.Printf("Forest:  %d trees, max depth %d, seed %d\n", cfg.Forest.Trees, cfg.Forest.MaxDepth, cfg.Seed)
		log.Println()
	}

	startTime := time.Now()
	report, err := training.Run(context.Background(), cfg)
	if err != nil {
		log.Fatalf("ERROR: training failed, no artifacts written: %v", err)
	}

	if config.Verbose {
		fmt.Println("\n=== Input Column Profile ===")
		fmt.Printf("%-14s %12s %12s %12s %12s %8s\n", "Column", "Min", "Max", "Mean", "Std", "Missing")
		for _, p := range report.Profile {
			fmt.Printf("%-14s %12.4f %12.4f %12.4f %12.4f %8d\n", p.Name, p.Min, p.Max, p.Mean, p.Std, p.Missing)
		}
	}
	for _, issue := range report.Issues {
		fmt.Printf("WARNING: %s\n", issue)
	}

	fmt.Println("\n=== Training Summary ===")
	fmt.Printf("Rows:        %d (train %d / test %d)\n", report.Summary.Rows, report.Summary.TrainRows, report.Summary.TestRows)
	fmt.Printf("R^2 (mean):  %.4f\n", report.Summary.R2)
	for _, s := range report.Scores {
		fmt.Printf("  %-22s R^2 %8.4f   MAE %10.4f\n", s.Target, s.R2, s.MAE)
	}
	fmt.Printf("Model:       %s\n", report.ModelPath)
	fmt.Printf("Scaler:      %s\n", report.ScalerPath)
	fmt.Printf("Elapsed:     %s\n", time.Since(startTime).Round(time.Millisecond))
}

func parseFlags() Config {
	config := Config{}

	flag.StringVar(&config.DatasetPath, "dataset", "Data.csv", "Historical drilling dataset (CSV with header)")
	flag.StringVar(&config.ModelsDir, "output", utils.GetEnv("MODELS_DIR", "models"), "Directory for model.json and scaler.json")
	flag.StringVar(&config.Layout, "layout", "training", "Feature layout: training (SSS_H input) or dashboard (ROP input)")
	flag.StringVar(&config.Inputs, "inputs", "", "Comma separated input columns (defaults follow -layout)")
	flag.StringVar(&config.Targets, "targets", strings.Join(training.DefaultTargetColumns, ","), "Comma separated target columns")
	flag.StringVar(&config.Metrics, "metrics", "", "Comma separated metric keys for the targets (defaults to catalogue order)")
	flag.IntVar(&config.Trees, "trees", 100, "Number of trees")
	flag.IntVar(&config.MaxDepth, "max-depth", 0, "Maximum tree depth (0 = unlimited)")
	flag.IntVar(&config.MaxFeatures, "max-features", 0, "Features tried per split (0 = all)")
	flag.Int64Var(&config.Seed, "seed", 44, "Seed for the split and the forest")
	flag.Float64Var(&config.TestRatio, "test-ratio", utils.GetEnvFloat("TEST_RATIO", 0.2), "Fraction of rows held out for scoring")
	flag.BoolVar(&config.Verbose, "v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Train the drill-string vibration forest and its feature scaler.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  %s -dataset Data.csv -output models -trees 200\n", os.Args[0])
	}

	flag.Parse()
	return config
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func buildTrainingConfig(config Config) (training.Config, error) {
	cfg := training.DefaultConfig(config.DatasetPath, config.ModelsDir)
	cfg.ModelPath, cfg.ScalerPath = utils.ArtifactPaths(config.ModelsDir)

	switch config.Layout {
	case "training":
		cfg.Layout = models.LayoutTraining
		cfg.InputColumns = training.DefaultInputColumns
	case "dashboard":
		cfg.Layout = models.LayoutDashboard
		cfg.InputColumns = training.DashboardInputColumns
	default:
		return cfg, fmt.Errorf("unknown layout %q", config.Layout)
	}
	if inputs := splitList(config.Inputs); len(inputs) > 0 {
		cfg.InputColumns = inputs
	}

	cfg.TargetColumns = splitList(config.Targets)
	cfg.Targets = vibration.DefaultTargets(len(cfg.TargetColumns))
	if metrics := splitList(config.Metrics); len(metrics) > 0 {
		cfg.Targets = metrics
	}

	cfg.Forest.Trees = config.Trees
	cfg.Forest.MaxDepth = config.MaxDepth
	cfg.Forest.MaxFeatures = config.MaxFeatures
	cfg.Seed = config.Seed
	cfg.TestRatio = config.TestRatio
	return cfg, nil
}
