// Package app loads configuration and wires the GCP adapters into the stage
// handlers for each deployed function.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Lllllllleong/idpflow/internal/gcp"
	"github.com/Lllllllleong/idpflow/internal/services"
)

// Config holds all configuration shared by the functions.
type Config struct {
	ProjectID           string
	DocumentBucket      string
	FirestoreCollection string
	UploadPrefix        string
	VertexAIRegion      string
	VertexModel         string
	SignerEmail         string
	MetricsPushURL      string
	FunctionTarget      string
	UploadURLTTL        time.Duration
	OCRTimeout          time.Duration
	ClassifyTimeout     time.Duration
	SummarizeTimeout    time.Duration
	MaxPDFBytes         int
	ClassifyChars       int
	SummarizeChars      int
	StaleAfter          time.Duration
	GiveUpAfter         time.Duration
	ReconcileWorkers    int
	ReconcileBatch      int
	CORSOrigins         []string
}

// LoadConfig loads and validates all environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ProjectID:           gcp.GetEnv("PROJECT_ID", ""),
		DocumentBucket:      gcp.GetEnv("DOCUMENT_BUCKET", ""),
		FirestoreCollection: gcp.GetEnv("FIRESTORE_COLLECTION", "documents"),
		UploadPrefix:        gcp.GetEnv("UPLOAD_PREFIX", services.DefaultUploadPrefix),
		VertexAIRegion:      gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		VertexModel:         gcp.GetEnv("VERTEX_MODEL", "gemini-1.5-pro"),
		SignerEmail:         gcp.GetEnv("SIGNER_EMAIL", ""),
		MetricsPushURL:      gcp.GetEnv("METRICS_PUSH_URL", ""),
		FunctionTarget:      gcp.GetEnv("FUNCTION_TARGET", "idpflow"),
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	if cfg.DocumentBucket == "" {
		return nil, fmt.Errorf("DOCUMENT_BUCKET environment variable must be set")
	}
	if !strings.HasSuffix(cfg.UploadPrefix, "/") {
		cfg.UploadPrefix += "/"
	}
	if origins := gcp.GetEnv("CORS_ALLOW_ORIGINS", "*"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	var errs []error
	duration := func(dst *time.Duration, key string, fallback time.Duration) {
		d, err := gcp.GetEnvDuration(key, fallback)
		errs = append(errs, err)
		*dst = d
	}
	integer := func(dst *int, key string, fallback int) {
		n, err := gcp.GetEnvInt(key, fallback)
		errs = append(errs, err)
		*dst = n
	}
	duration(&cfg.UploadURLTTL, "UPLOAD_URL_TTL", time.Hour)
	duration(&cfg.OCRTimeout, "OCR_TIMEOUT", 5*time.Minute)
	duration(&cfg.ClassifyTimeout, "CLASSIFY_TIMEOUT", 2*time.Minute)
	duration(&cfg.SummarizeTimeout, "SUMMARIZE_TIMEOUT", 2*time.Minute)
	duration(&cfg.StaleAfter, "RECONCILE_STALE_AFTER", 15*time.Minute)
	duration(&cfg.GiveUpAfter, "RECONCILE_GIVE_UP_AFTER", 24*time.Hour)
	integer(&cfg.MaxPDFBytes, "MAX_PDF_BYTES", 50<<20)
	integer(&cfg.ClassifyChars, "CLASSIFY_MAX_CHARS", services.DefaultClassifyChars)
	integer(&cfg.SummarizeChars, "SUMMARIZE_MAX_CHARS", services.DefaultSummarizeChars)
	integer(&cfg.ReconcileWorkers, "RECONCILE_CONCURRENCY", 5)
	integer(&cfg.ReconcileBatch, "RECONCILE_BATCH_SIZE", 100)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if cfg.GiveUpAfter <= cfg.StaleAfter {
		return nil, fmt.Errorf("RECONCILE_GIVE_UP_AFTER (%s) must be longer than RECONCILE_STALE_AFTER (%s)", cfg.GiveUpAfter, cfg.StaleAfter)
	}
	return cfg, nil
}

// SetupLogging installs a JSON slog handler on stdout as the default logger.
// The level comes from LOG_LEVEL (debug, info, warn, error); anything else is info.
func SetupLogging() {
	level := slog.LevelInfo
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			level = slog.LevelInfo
		}
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}
