package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commute-cli/internal/fetcher"
	"github.com/sells-group/commute-cli/internal/monitoring"
	"github.com/sells-group/commute-cli/internal/pipeline"
)

// newPipeline wires the HTTP retriever and run metrics from config.
func newPipeline() (*pipeline.Pipeline, *monitoring.Metrics) {
	metrics := monitoring.NewMetrics()
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  cfg.Fetch.UserAgent,
		Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries: cfg.Fetch.MaxRetries,
		RatePerSec: cfg.Fetch.RatePerSec,
	})
	r := fetcher.NewRetriever(f, metrics)
	return pipeline.New(cfg, r, pipeline.WithMetrics(metrics)), metrics
}

// finishRun prints the summary, exports metrics and alerts, and turns failed
// units into a non-zero exit once the rest of the work is done.
func finishRun(ctx context.Context, p *pipeline.Pipeline, metrics *monitoring.Metrics, runErr error) error {
	snap := p.Finish()
	p.Summary().Print(os.Stdout)

	// The run context may already be cancelled.
	exportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := metrics.Push(exportCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
		zap.L().Warn("metrics push failed", zap.Error(err))
	}
	alerter := monitoring.NewAlerter(cfg.Metrics)
	alerter.SendAlerts(exportCtx, alerter.Evaluate(snap))

	if runErr != nil {
		return runErr
	}
	if snap.Failed > 0 {
		return eris.Errorf("%d unit(s) failed", snap.Failed)
	}
	return nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func printf(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format, args...)
}
