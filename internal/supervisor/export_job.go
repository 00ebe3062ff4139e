package supervisor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/orcd/internal/state"
)

// StartScheduledExport periodically exports the State Monitor's
// AnomalyHistory to the scratch directory according to a cron expression
// (e.g. "0 * * * *" for hourly), until ctx is canceled. Optional: only
// meaningful in the enhanced variant, where a State Monitor exists.
func (s *Supervisor) StartScheduledExport(ctx context.Context, cronExpr string) {
	if s.stateMonitor == nil || cronExpr == "" {
		return
	}
	gron := gronx.New()
	if !gron.IsValid(cronExpr) {
		s.log.Warn("invalid anomaly export cron expression, export job disabled", slog.String("cron", cronExpr))
		return
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				due, err := gron.IsDue(cronExpr)
				if err != nil || !due {
					continue
				}
				s.runExport()
			}
		}
	}()
}

func (s *Supervisor) runExport() {
	text, err := s.stateMonitor.History().Export(state.ExportJSON, state.QueryFilter{})
	if err != nil {
		s.log.Warn("scheduled anomaly export failed", slog.Any("error", err))
		return
	}
	path := filepath.Join(s.cfg.ScratchDir, "anomaly_export_"+time.Now().Format("20060102T150405")+".json")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		s.log.Warn("scheduled anomaly export write failed", slog.Any("error", err))
		return
	}
	s.log.Info("anomaly history exported", slog.String("path", path))
}
