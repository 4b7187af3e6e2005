package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/gauthierbraillon/flaneur/internal/location"
	"github.com/gauthierbraillon/flaneur/internal/logging"
	"github.com/gauthierbraillon/flaneur/internal/metrics"
	"github.com/gauthierbraillon/flaneur/internal/paginator"
)

// ErrUnknownProvider is returned when a single-provider run names no registered source.
var ErrUnknownProvider = errors.New("unknown provider")

// Option configures the Aggregator.
type Option func(*Aggregator)

// WithRunTimeout bounds every provider run. Zero disables the bound.
func WithRunTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		a.runTimeout = d
	}
}

// Aggregator runs location providers and merges their results.
type Aggregator struct {
	sources    map[string]Source
	order      []string
	runTimeout time.Duration
	logger     zerolog.Logger
}

// New creates an Aggregator over sources. A later source replaces an earlier one with the same name.
func New(sources []Source, opts ...Option) *Aggregator {
	a := &Aggregator{
		sources: make(map[string]Source, len(sources)),
		logger:  logging.WithComponent("aggregator"),
	}
	for _, src := range sources {
		if _, dup := a.sources[src.Name]; !dup {
			a.order = append(a.order, src.Name)
		}
		a.sources[src.Name] = src
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Providers returns the registered provider names in registration order.
func (a *Aggregator) Providers() []string {
	return append([]string(nil), a.order...)
}

// Has reports whether name is a registered provider.
func (a *Aggregator) Has(name string) bool {
	_, ok := a.sources[name]
	return ok
}

// Aggregate runs every recognized provider of req concurrently and waits for
// all of them. Unknown provider names are ignored. A failing or panicking run
// only affects its own Outcome.
func (a *Aggregator) Aggregate(ctx context.Context, req Request) Result {
	var names []string
	for _, name := range a.order {
		_, run := req.Runs[name]
		_, invalid := req.Invalid[name]
		if run || invalid {
			names = append(names, name)
		}
	}
	a.logIgnored(req)

	outcomes := make([]Outcome, len(names))
	p := pool.New()
	for i, name := range names {
		if err, invalid := req.Invalid[name]; invalid {
			outcomes[i] = Outcome{Err: err}
			continue
		}
		opts := req.Runs[name]
		p.Go(func() {
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error().Str("provider", name).Interface("panic", r).Msg("provider run panicked")
					outcomes[i] = Outcome{Err: location.UpstreamError(name, 0, fmt.Sprintf("provider run panicked: %v", r), nil)}
				}
			}()
			records, err := a.Collect(ctx, name, opts)
			outcomes[i] = Outcome{Records: records, Err: err}
		})
	}
	p.Wait()

	result := make(Result, len(names))
	for i, name := range names {
		result[name] = outcomes[i]
	}
	return result
}

// Collect runs one provider to completion and returns its records.
func (a *Aggregator) Collect(ctx context.Context, name string, opts location.Options) ([]location.Record, error) {
	src, opts, err := a.prepare(name, opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.runContext(ctx)
	defer cancel()

	start := time.Now()
	records, err := paginator.Collect(ctx, metrics.Fetcher(name, src.Fetcher), src.Normalizer, opts)
	err = a.finish(name, start, len(records), err)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Stream runs one provider and pushes every page to sink as it arrives.
func (a *Aggregator) Stream(ctx context.Context, name string, opts location.Options, sink paginator.Sink) (location.Summary, error) {
	src, opts, err := a.prepare(name, opts)
	if err != nil {
		return location.Summary{}, err
	}

	ctx, cancel := a.runContext(ctx)
	defer cancel()

	start := time.Now()
	summary, err := paginator.Stream(ctx, metrics.Fetcher(name, src.Fetcher), src.Normalizer, opts, sink)
	return summary, a.finish(name, start, summary.Records, err)
}

// prepare applies the source defaults to opts.
func (a *Aggregator) prepare(name string, opts location.Options) (Source, location.Options, error) {
	src, ok := a.sources[name]
	if !ok {
		return Source{}, opts, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	if opts.PageSize == 0 {
		opts.PageSize = src.PageSize
	}
	return src, opts, nil
}

func (a *Aggregator) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.runTimeout > 0 {
		return context.WithTimeout(ctx, a.runTimeout)
	}
	return context.WithCancel(ctx)
}

// finish classifies err for name, records metrics and logs the run.
func (a *Aggregator) finish(name string, start time.Time, records int, err error) error {
	elapsed := time.Since(start)
	if err != nil {
		err = classify(name, err)
	}
	metrics.RecordRun(name, elapsed, records, err)

	if err != nil {
		a.logger.Warn().Err(err).Str("provider", name).Dur("elapsed", elapsed).Msg("provider run failed")
		return err
	}
	a.logger.Debug().Str("provider", name).Int("records", records).Dur("elapsed", elapsed).Msg("provider run finished")
	return nil
}

// classify turns any run error into a *location.Error for provider name.
func classify(name string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &location.Error{Provider: name, Kind: location.KindNetwork, Message: "run timed out", Err: err}
	case errors.Is(err, context.Canceled):
		return &location.Error{Provider: name, Kind: location.KindNetwork, Message: "run canceled", Err: err}
	}

	le := location.AsError(name, err)
	if le.Provider == "" {
		cp := *le
		cp.Provider = name
		return &cp
	}
	return le
}

func (a *Aggregator) logIgnored(req Request) {
	for name := range req.Runs {
		if !a.Has(name) {
			a.logger.Debug().Str("provider", name).Msg("ignoring unknown provider")
		}
	}
	for name := range req.Invalid {
		if !a.Has(name) {
			a.logger.Debug().Str("provider", name).Msg("ignoring unknown provider")
		}
	}
}
