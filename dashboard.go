package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/mdobak/go-xerrors"

	"rig-vibration/advisory"
	"rig-vibration/assistant"
	"rig-vibration/db"
	"rig-vibration/models"
	"rig-vibration/utils"
	"rig-vibration/vibration"
)

// briefer produces operator briefings for a prediction.
type briefer interface {
	Brief(ctx context.Context, req assistant.BriefingRequest) (string, error)
	BriefStream(ctx context.Context, req assistant.BriefingRequest, onChunk func(string) error) error
}

// dashboard is the shared application context behind the HTTP and
// socket.io surfaces. Its fields are set once at startup.
type dashboard struct {
	engine         *vibration.Engine
	thresholds     advisory.Config
	history        db.DBClient
	assistant      briefer // nil when no API key is configured
	rejectNegative bool
}

type predictionResponse struct {
	ID         string                     `json:"id"`
	Prediction vibration.PredictionResult `json:"prediction"`
	Assessment advisory.Assessment        `json:"assessment"`
	LatencyMs  float64                    `json:"latencyMs"`
}

// inputError marks a request the operator has to correct.
type inputError struct {
	err error
}

func (e *inputError) Error() string { return e.err.Error() }

func (e *inputError) Unwrap() error { return e.err }

func newDashboardFromEnv(ctx context.Context) (*dashboard, func()) {
	logger := utils.GetLogger()

	modelPath, scalerPath := utils.ArtifactPaths(utils.GetEnv("MODELS_DIR", "models"))
	engineCfg := vibration.EngineConfig{
		ModelPath:   modelPath,
		ScalerPath:  scalerPath,
		OutputArity: utils.GetEnvInt("MODEL_OUTPUT_ARITY", 3),
		CacheSize:   utils.GetEnvInt("PREDICTION_CACHE_SIZE", 256),
	}
	engine, err := vibration.LoadEngine(engineCfg)
	if err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "prediction engine offline", slog.Any("error", err))
		engine = vibration.OfflineEngine(err)
	}

	thresholds, err := advisory.LoadConfig(utils.GetEnv("ADVISORY_CONFIG", ""))
	if err != nil {
		log.Fatalf("failed to load advisory thresholds: %v", err)
	}

	history, err := db.NewDBClient()
	if err != nil {
		log.Fatalf("failed to open prediction history: %v", err)
	}

	d := &dashboard{
		engine:         engine,
		thresholds:     thresholds,
		history:        history,
		rejectNegative: utils.GetEnvBool("REJECT_NEGATIVE_INPUTS", false),
	}

	cleanup := func() {
		if err := history.Close(); err != nil {
			logger.WarnContext(ctx, "failed to close prediction history", slog.Any("error", err))
		}
	}

	gemini, err := assistant.NewGeminiClient(ctx, utils.GetEnv("GEMINI_API_KEY", ""), utils.GetEnv("GEMINI_MODEL", assistant.DefaultModel))
	switch {
	case errors.Is(err, assistant.ErrNotConfigured):
		log.Println("GEMINI_API_KEY not set, assistant briefings disabled")
	case err != nil:
		logger.WarnContext(ctx, "assistant unavailable", slog.Any("error", err))
	default:
		d.assistant = gemini
	}

	return d, cleanup
}

// assess runs a prediction and evaluates the advisory tables without
// recording it.
func (d *dashboard) assess(ctx context.Context, fv models.FeatureVector) (*predictionResponse, error) {
	if d.rejectNegative {
		if err := fv.CheckNonNegative(); err != nil {
			return nil, &inputError{err: err}
		}
	}

	started := time.Now()
	result, err := d.engine.Predict(ctx, fv)
	if err != nil {
		return nil, err
	}

	return &predictionResponse{
		Prediction: result,
		Assessment: advisory.Assess(result, d.thresholds),
		LatencyMs:  float64(time.Since(started).Microseconds()) / 1000,
	}, nil
}

// predict is assess plus a history record. A history failure is logged
// and does not fail the prediction.
func (d *dashboard) predict(ctx context.Context, sessionID string, fv models.FeatureVector) (*predictionResponse, error) {
	resp, err := d.assess(ctx, fv)
	if err != nil {
		return nil, err
	}

	record := &models.PredictionRecord{
		ID:         utils.GenerateUniqueID(),
		SessionID:  sessionID,
		Timestamp:  time.Now(),
		Inputs:     fv,
		Values:     resp.Prediction.Raw(),
		RiskScore:  resp.Assessment.RiskScore,
		RiskBand:   string(resp.Assessment.RiskBand),
		Advisories: resp.Assessment.Messages(),
		LatencyMs:  resp.LatencyMs,
	}
	resp.ID = record.ID

	if err := d.history.StorePrediction(ctx, record); err != nil {
		utils.GetLogger().WarnContext(ctx, "failed to store prediction",
			slog.String("id", record.ID),
			slog.Any("error", xerrors.New(err)))
	}
	return resp, nil
}

// predictionFailure maps a prediction error to a status code and the
// message shown to the operator.
func predictionFailure(err error) (int, string) {
	var inErr *inputError
	switch {
	case errors.Is(err, vibration.ErrEngineOffline):
		return http.StatusServiceUnavailable, "engine offline"
	case errors.As(err, &inErr):
		return http.StatusBadRequest, fmt.Sprintf("invalid input: %v", inErr.err)
	default:
		return http.StatusInternalServerError, "prediction failed"
	}
}
