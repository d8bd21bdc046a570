package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/model"
)

// LogWriter is a Writer for dry runs: it logs the record instead of
// submitting it.
type LogWriter struct{}

func (LogWriter) Write(_ context.Context, lead model.Lead, profile model.Profile, pattern model.EmailPattern) error {
	zap.L().Info("dry run: would write contact",
		zap.String("domain", lead.Domain),
		zap.String("phone", profile.Phone),
		zap.String("headquarters", profile.Headquarters),
		zap.String("employees", profile.Employees),
		zap.String("revenue", profile.Revenue),
		zap.String("email_pattern", pattern.String()),
	)
	return nil
}
