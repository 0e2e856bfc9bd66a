// Package retention runs the scheduled eviction pass: messages older than
// the retention window are dropped from the local replica. Eviction is
// local-only; peers holding newer replicas are unaffected.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"meshchat/pkg/config"
	"meshchat/pkg/logger"
)

var storedCfg *config.RetentionConfig

// SetConfig stores the retention config so tests (or admin triggers) can
// invoke retention runs on-demand.
func SetConfig(cfg config.RetentionConfig) {
	storedCfg = &cfg
}

// RunImmediate triggers a single retention run using the stored config.
// Returns an error if no config was registered.
func RunImmediate() error {
	if storedCfg == nil {
		return fmt.Errorf("no retention config registered")
	}
	return runOnce(context.Background(), *storedCfg)
}

// Start starts the retention scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, cfg config.RetentionConfig) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	// map empty cron to default daily @02:00
	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", cfg.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Cron)
	}
	if cfg.Days <= 0 {
		cfg.Days = 30
	}

	logger.Info("retention_enabled", "cron", cronExpr, "days", cfg.Days, "dry_run", cfg.DryRun)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cfg, cronExpr)
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured cron
// expression and sleeps until that time.
func runScheduler(ctx context.Context, cfg config.RetentionConfig, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				logger.Info("retention_scheduler_stopping")
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
			if err := runOnce(ctx, cfg); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}
