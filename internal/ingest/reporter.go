package ingest

import "go.uber.org/zap"

// Reporter is the single error-reporting port of the pipeline. Every
// skipped or errored unit of work produces one structured failure record:
// the transaction hash, the stage that failed, and free-form context.
type Reporter interface {
	Report(txHash, stage string, err error, fields map[string]any)
}

// ZapReporter emits failure records as structured log entries.
type ZapReporter struct {
	Logger *zap.Logger
}

// Report logs one failure record.
func (r *ZapReporter) Report(txHash, stage string, err error, fields map[string]any) {
	zf := make([]zap.Field, 0, len(fields)+3)
	zf = append(zf,
		zap.String("tx", txHash),
		zap.String("stage", stage),
		zap.Error(err))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	r.Logger.Warn("unit of work skipped", zf...)
}
