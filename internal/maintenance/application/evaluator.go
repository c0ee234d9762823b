package application

import (
	"errors"
	"log/slog"

	maintenance "efd-cmms-bridge/internal/maintenance/domain"
)

// Evaluator decides whether a configuration's trigger is met.
type Evaluator struct {
	logger *slog.Logger
}

// NewEvaluator constructs an evaluator. A nil logger uses slog.Default.
func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{logger: logger}
}

// IsTriggered reports whether value satisfies cfg's trigger. Missing values,
// cast failures and unset triggers are logged and never trigger.
func (e *Evaluator) IsTriggered(value any, cfg maintenance.TriggerConfig) bool {
	if cfg.Trigger == nil {
		e.logger.Warn("trigger config has no trigger", "config_id", cfg.ID, "error", maintenance.ErrMisconfiguredTrigger)
		return false
	}
	ok, err := cfg.Trigger.Matches(value)
	switch {
	case errors.Is(err, maintenance.ErrNoValue):
		e.logger.Warn("no value to evaluate", "config_id", cfg.ID, "asset_id", cfg.AssetID)
		return false
	case err != nil:
		e.logger.Warn("trigger cast failed",
			"config_id", cfg.ID,
			"kind", cfg.Trigger.Kind(),
			"value", value,
			"error", err,
		)
		return false
	}
	return ok
}
