package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jonboulle/clockwork"
)

const DefaultWatchWindow = 300 * time.Millisecond

// PushFunc pushes records and returns one result per record in input order.
type PushFunc func(ctx context.Context, recs []*BuildableRecord) []Result

// ResolverFunc returns a resolver for the current manifest.
type ResolverFunc func() (*ContextResolver, error)

// ReportFunc receives the outcome for one changed file.
type ReportFunc func(fc *FileContext, res Result)

// WatchAggregator batches changed paths. Every enqueued path restarts a single quiet-period
// timer; when it fires the queued paths are deduplicated, grouped into records and pushed
// while new paths collect into the next batch.
type WatchAggregator struct {
	window  time.Duration
	clock   clockwork.Clock
	resolve ResolverFunc
	push    PushFunc
	report  ReportFunc

	events  chan string
	done    chan struct{}
	batches sync.WaitGroup
}

type AggregatorOption func(*WatchAggregator)

func WithWindow(d time.Duration) AggregatorOption {
	return func(a *WatchAggregator) { a.window = d }
}

func WithClock(c clockwork.Clock) AggregatorOption {
	return func(a *WatchAggregator) { a.clock = c }
}

func WithReporter(r ReportFunc) AggregatorOption {
	return func(a *WatchAggregator) { a.report = r }
}

func NewWatchAggregator(resolve ResolverFunc, push PushFunc, opts ...AggregatorOption) *WatchAggregator {
	a := &WatchAggregator{
		window:  DefaultWatchWindow,
		clock:   clockwork.NewRealClock(),
		resolve: resolve,
		push:    push,
		report:  logFileResult,
		events:  make(chan string),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Enqueue hands a changed path to the aggregator. It returns once the path is queued, or
// immediately when the aggregator has stopped.
func (a *WatchAggregator) Enqueue(path string) {
	select {
	case a.events <- path:
	case <-a.done:
	}
}

// Run owns the queue until ctx is done, then waits for in-flight batches.
func (a *WatchAggregator) Run(ctx context.Context) {
	defer func() {
		close(a.done)
		a.batches.Wait()
	}()

	var queue []string
	var timer clockwork.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case path := <-a.events:
			queue = append(queue, path)
			if timer == nil {
				timer = a.clock.NewTimer(a.window)
				fire = timer.Chan()
			} else {
				timer.Stop()
				timer.Reset(a.window)
			}

		case <-fire:
			if len(queue) == 0 {
				continue
			}
			batch := queue
			queue = nil

			a.batches.Add(1)
			go func() {
				defer a.batches.Done()
				a.process(ctx, batch)
			}()
		}
	}
}

func (a *WatchAggregator) process(ctx context.Context, batch []string) {
	seen := mapset.NewThreadUnsafeSet[string]()
	paths := make([]string, 0, len(batch))
	for _, p := range batch {
		if seen.Add(p) {
			paths = append(paths, p)
		}
	}

	resolver, err := a.resolve()
	if err != nil {
		slog.Error("watch batch", "paths", len(paths), "error", err)
		return
	}

	ctxs := make([]*FileContext, 0, len(paths))
	for _, p := range paths {
		fc, ok := resolver.Resolve(p)
		if !ok {
			slog.Debug("watch skip untracked path", "path", p)
			continue
		}
		ctxs = append(ctxs, fc)
	}
	if len(ctxs) == 0 {
		return
	}

	recs := GroupAppFiles(ctxs)
	results := a.push(ctx, recs)

	byKey := make(map[string]Result, len(results))
	for i, res := range results {
		byKey[recs[i].Key()] = res
	}
	for _, fc := range ctxs {
		a.report(fc, byKey[fc.Key()])
	}
}

func logFileResult(fc *FileContext, res Result) {
	if res.Success {
		slog.Info("push", "file", fc.String(), "result", res.Message)
	} else {
		slog.Error("push", "file", fc.String(), "result", res.Message)
	}
}
