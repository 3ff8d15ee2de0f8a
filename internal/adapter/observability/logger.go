package observability

import (
	"log/slog"
	"os"

	"github.com/fairyhunter13/ai-release-gate/internal/config"
)

// SetupLogger configures a JSON slog logger with environment fields.
// Each process passes its own service name (gateway, orchestrator,
// arbiter, agent-security, ...) so aggregated output stays filterable.
func SetupLogger(cfg config.Config, service string) *slog.Logger {
	opts := &slog.HandlerOptions{}
	// In dev, show debug level; in prod, default to info
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(h).With(
		slog.String("service", service),
		slog.String("env", cfg.AppEnv),
	)
	return logger
}
