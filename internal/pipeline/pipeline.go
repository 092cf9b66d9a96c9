// Package pipeline wires the retrieval and computation stages into the
// pull, process, graph and load runs.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commute-cli/internal/config"
	"github.com/sells-group/commute-cli/internal/fetcher"
	"github.com/sells-group/commute-cli/internal/manifest"
	"github.com/sells-group/commute-cli/internal/model"
	"github.com/sells-group/commute-cli/internal/monitoring"
	"github.com/sells-group/commute-cli/internal/reference"
	"github.com/sells-group/commute-cli/internal/tiger"
)

// Pipeline orchestrates one run.
type Pipeline struct {
	cfg       *config.Config
	retriever fetcher.FileRetriever
	clock     clockwork.Clock
	metrics   *monitoring.Metrics
	summary   *Summary
	runID     string
	started   time.Time
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithClock replaces the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithMetrics attaches run metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a Pipeline with a fresh run id.
func New(cfg *config.Config, r fetcher.FileRetriever, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		retriever: r,
		clock:     clockwork.NewRealClock(),
		runID:     uuid.NewString(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.summary = NewSummary(p.runID, p.metrics)
	p.started = p.clock.Now()
	return p
}

// RunID identifies this run in logs and metrics.
func (p *Pipeline) RunID() string { return p.runID }

// Summary returns the run's unit outcomes.
func (p *Pipeline) Summary() *Summary { return p.summary }

// Finish logs the summary and stamps the run end on the metrics.
func (p *Pipeline) Finish() *monitoring.Snapshot {
	now := p.clock.Now()
	d := now.Sub(p.started)
	p.summary.Log(d)
	if p.metrics != nil {
		p.metrics.Finish(now)
	}
	return p.summary.Snapshot(d)
}

// track runs fn as a named stage, logging and timing it.
func (p *Pipeline) track(stage string, fn func() error) error {
	log := zap.L().With(zap.String("run_id", p.runID), zap.String("stage", stage))
	log.Info("pipeline: stage starting")

	start := p.clock.Now()
	err := fn()
	d := p.clock.Since(start)
	if p.metrics != nil {
		p.metrics.ObserveStage(stage, d)
	}

	if err != nil {
		log.Error("pipeline: stage failed", zap.Duration("duration", d), zap.Error(err))
		return eris.Wrapf(err, "pipeline: %s", stage)
	}
	log.Info("pipeline: stage complete", zap.Duration("duration", d))
	return nil
}

func (p *Pipeline) stateCodesPath() string {
	return filepath.Join(p.cfg.Data.External(), "state_codes.db")
}

func (p *Pipeline) countyCodesPath() string {
	return filepath.Join(p.cfg.Data.External(), "county_codes.db")
}

func (p *Pipeline) movsPath() string {
	return filepath.Join(p.cfg.Data.External(), filepath.Base(p.cfg.Census.MOVSURL))
}

func (p *Pipeline) processedPath(name string) string {
	return filepath.Join(p.cfg.Data.Processed(), name+".db")
}

// loadManifest reads the persisted manifest, or starts an empty one.
func (p *Pipeline) loadManifest() (*manifest.Manifest, error) {
	path := p.cfg.Data.ManifestPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return manifest.New(), nil
	}
	return manifest.Load(path)
}

// requireManifest reads the manifest a previous pull saved.
func (p *Pipeline) requireManifest() (*manifest.Manifest, error) {
	path := p.cfg.Data.ManifestPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, eris.Errorf("pipeline: no manifest at %s, run pull first", path)
	}
	return manifest.Load(path)
}

// stateCodes reads the cached state reference table.
func (p *Pipeline) stateCodes(ctx context.Context) ([]model.ReferenceCode, error) {
	return reference.LoadOrBuildStateCodes(ctx, p.stateCodesPath(), p.movsPath())
}

func (p *Pipeline) ingestor(m *manifest.Manifest) *tiger.Ingestor {
	return tiger.NewIngestor(p.retriever, m, p.cfg.Data.Interim(), p.summary)
}

func stateList(codes []model.ReferenceCode) []int {
	out := make([]int, len(codes))
	for i, c := range codes {
		out[i] = c.StateFIPS
	}
	return out
}
