package utils

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	loggerOnce sync.Once
	logger     *slog.Logger
)

// GetLogger returns the process-wide structured logger.
//
// Output goes to stdout and, when LOG_FILE is set, to a size-rotated file.
func GetLogger() *slog.Logger {
	loggerOnce.Do(func() {
		logger = newLogger(os.Stdout)
	})
	return logger
}

func newLogger(stdout io.Writer) *slog.Logger {
	var out io.Writer = stdout
	if path := GetEnv("LOG_FILE", ""); path != "" {
		rotator := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    GetEnvInt("LOG_MAX_SIZE_MB", 50),
			MaxBackups: GetEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAge:     GetEnvInt("LOG_MAX_AGE_DAYS", 14),
			Compress:   true,
		}
		out = io.MultiWriter(stdout, rotator)
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: parseLevel(GetEnv("LOG_LEVEL", "info")),
	})
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetEnv reads an environment variable, falling back when unset or empty.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func GetEnvInt(key string, fallback int) int {
	val := GetEnv(key, "")
	if val == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(val); err == nil {
		return parsed
	}
	return fallback
}

func GetEnvFloat(key string, fallback float64) float64 {
	val := GetEnv(key, "")
	if val == "" {
		return fallback
	}
	if parsed, err := strconv.ParseFloat(val, 64); err == nil {
		return parsed
	}
	return fallback
}

func GetEnvBool(key string, fallback bool) bool {
	val := GetEnv(key, "")
	if val == "" {
		return fallback
	}
	if parsed, err := strconv.ParseBool(val); err == nil {
		return parsed
	}
	return fallback
}

// ArtifactPaths returns the model and scaler file paths under modelsDir,
// honouring MODEL_FILE and SCALER_FILE.
func ArtifactPaths(modelsDir string) (modelPath, scalerPath string) {
	modelPath = filepath.Join(modelsDir, GetEnv("MODEL_FILE", "model.json"))
	scalerPath = filepath.Join(modelsDir, GetEnv("SCALER_FILE", "scaler.json"))
	return modelPath, scalerPath
}

// CreateFolder creates the directory tree if it is missing.
func CreateFolder(folderPath string) error {
	return os.MkdirAll(folderPath, 0o755)
}

// GenerateUniqueID returns a random identifier for records and sessions.
func GenerateUniqueID() string {
	return uuid.NewString()
}
