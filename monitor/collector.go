package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/s0up4200/seedbrake/config"
	"github.com/s0up4200/seedbrake/filter"
	"github.com/s0up4200/seedbrake/lucky"
	"github.com/s0up4200/seedbrake/metrics"
)

// MaxConcurrency bounds concurrent source fetches per cycle.
const MaxConcurrency = 8

// Fetcher polls one source.
type Fetcher interface {
	Fetch(ctx context.Context) ([]lucky.ServiceRecord, error)
}

// Source binds a source's configuration to its fetcher and optional rules.
type Source struct {
	Config  config.SourceConfig
	Fetcher Fetcher
	Rules   *filter.Rules
}

// ServiceStatus is one service as seen in the last collection.
type ServiceStatus struct {
	Name        string `json:"name"`
	Key         string `json:"key"`
	Label       string `json:"label,omitempty"`
	Rule        string `json:"rule,omitempty"`
	Connections int64  `json:"connections"`
	Enabled     bool   `json:"enabled"`
	Matched     string `json:"matched,omitempty"`
	Excluded    bool   `json:"excluded,omitempty"`
}

// SourceResult is the outcome of collecting one source.
type SourceResult struct {
	Name        string          `json:"name"`
	Weight      float64         `json:"weight"`
	Enabled     bool            `json:"enabled"`
	Connections int64           `json:"connections"`
	Weighted    float64         `json:"weighted"`
	Services    []ServiceStatus `json:"services,omitempty"`
	Duration    time.Duration   `json:"duration"`
	Error       string          `json:"error,omitempty"`

	Err       error             `json:"-"`
	Decisions []filter.Decision `json:"-"`
}

// Snapshot is one cycle's collection across all sources.
type Snapshot struct {
	Metric  float64
	Sources []SourceResult
}

// Failed returns the names of sources whose fetch failed.
func (s Snapshot) Failed() []string {
	var out []string
	for _, r := range s.Sources {
		if r.Err != nil {
			out = append(out, r.Name)
		}
	}
	return out
}

// Collector fans out to all sources and aggregates the result.
type Collector struct {
	sources []Source
	filter  *filter.Filter
	logger  zerolog.Logger
}

// NewCollector creates a collector over already constructed sources.
func NewCollector(sources []Source, f *filter.Filter, logger zerolog.Logger) *Collector {
	return &Collector{
		sources: sources,
		filter:  f,
		logger:  logger.With().Str("component", "monitor").Logger(),
	}
}

// FromConfig builds a Lucky client and compiles the exclusion rules for every
// configured source. Disabled sources get a client too so they can be enabled
// without a restart of the collection layer.
func FromConfig(cfgs []config.SourceConfig, ctrl config.ControllerConfig, f *filter.Filter, logger zerolog.Logger) (*Collector, error) {
	compiler := filter.NewCompiler(len(cfgs))
	sources := make([]Source, 0, len(cfgs))

	for _, sc := range cfgs {
		opts := []lucky.Option{
			lucky.WithTimeout(ctrl.RequestTimeout),
			lucky.WithMaxRetries(ctrl.MaxRetries),
			lucky.WithRetryDelay(ctrl.RetryBackoff),
		}
		if sc.Token != "" {
			opts = append(opts, lucky.WithToken(sc.Token))
		}
		if sc.Username != "" {
			opts = append(opts, lucky.WithBasicAuth(sc.Username, sc.Password))
		}

		client, err := lucky.NewClient(sc.Name, sc.URL, logger, opts...)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.Name, err)
		}

		rules, err := compiler.Compile(sc.Exclude)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.Name, err)
		}

		sources = append(sources, Source{Config: sc, Fetcher: client, Rules: rules})
	}

	return NewCollector(sources, f, logger), nil
}

// Sources returns the configured sources.
func (c *Collector) Sources() []Source {
	return c.sources
}

// Collect fetches every enabled source concurrently and aggregates the
// result. A failing source is isolated: it is reported in its SourceResult
// and contributes 0.
func (c *Collector) Collect(ctx context.Context) Snapshot {
	results := make([]SourceResult, len(c.sources))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrency)

	for i, src := range c.sources {
		results[i] = SourceResult{
			Name:    src.Config.Name,
			Weight:  src.Config.Weight,
			Enabled: src.Config.Enabled,
		}
		if !src.Config.Enabled {
			continue
		}

		g.Go(func() error {
			results[i] = c.collectOne(ctx, src, results[i])
			// Failures are isolated per source.
			return nil
		})
	}
	_ = g.Wait()

	inputs := make([]SourceInput, len(results))
	for i, r := range results {
		inputs[i] = SourceInput{
			Name:      r.Name,
			Weight:    r.Weight,
			Enabled:   r.Enabled,
			Decisions: r.Decisions,
		}
	}

	return Snapshot{
		Metric:  Aggregate(inputs),
		Sources: results,
	}
}

func (c *Collector) collectOne(ctx context.Context, src Source, res SourceResult) SourceResult {
	start := time.Now()
	records, err := src.Fetcher.Fetch(ctx)
	res.Duration = time.Since(start)

	if err != nil {
		res.Err = err
		res.Error = err.Error()
		metrics.RecordCollection(res.Name, false, 0, res.Duration.Seconds())

		event := c.logger.Warn()
		if errors.Is(err, context.Canceled) {
			event = c.logger.Debug()
		}
		event.Err(err).Str("source", res.Name).Msg("Failed to collect from source")
		return res
	}

	decisions, err := c.filter.Apply(res.Name, records, src.Rules)
	if err != nil {
		c.logger.Warn().Err(err).Str("source", res.Name).Msg("Service filter degraded")
	}

	res.Decisions = decisions
	res.Connections = filter.EnabledConnections(decisions)
	res.Weighted = SourceInput{Weight: res.Weight, Enabled: true, Decisions: decisions}.Weighted()
	res.Services = make([]ServiceStatus, 0, len(decisions))
	for _, d := range decisions {
		res.Services = append(res.Services, ServiceStatus{
			Name:        d.Record.Name(),
			Key:         d.Record.Key,
			Label:       d.Record.Label,
			Rule:        d.Record.Rule,
			Connections: d.Record.Connections,
			Enabled:     d.Enabled,
			Matched:     d.Matched,
			Excluded:    d.Excluded,
		})
	}

	metrics.RecordCollection(res.Name, true, res.Connections, res.Duration.Seconds())
	c.logger.Debug().
		Str("source", res.Name).
		Int("services", len(records)).
		Int64("connections", res.Connections).
		Float64("weighted", res.Weighted).
		Msg("Collected source")

	return res
}

// Close releases the sources' connection pools.
func (c *Collector) Close() {
	for _, src := range c.sources {
		if closer, ok := src.Fetcher.(interface{ Close() }); ok {
			closer.Close()
		}
	}
}
