package workers

import (
	"context"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"go.uber.org/zap"

	"shortlink/links"
	"shortlink/metrics"
)

// ClickEvent represents one resolve of a code.
type ClickEvent struct {
	Code        string
	Fingerprint string
	Time        time.Time
}

// ClickWorker batches click events and writes one increment per code per
// flush. Counts are approximate analytics: events still buffered when the
// process dies are lost, but a flushed batch is never applied twice.
type ClickWorker struct {
	store         links.Store
	log           *zap.Logger
	in            chan ClickEvent
	flushReq      chan chan struct{}
	quit          chan struct{}
	closed        chan struct{}
	batchSize     int
	flushInterval time.Duration
	flushTimeout  time.Duration
	startOnce     sync.Once
	stopOnce      sync.Once
}

// NewClickWorker creates the worker. It flushes every flushInterval or as soon
// as batchSize events are pending; buffer bounds the events in flight.
func NewClickWorker(store links.Store, log *zap.Logger, batchSize int, flushInterval time.Duration, buffer int) *ClickWorker {
	if batchSize <= 0 {
		batchSize = 1
	}
	if buffer <= 0 {
		buffer = batchSize
	}
	return &ClickWorker{
		store:         store,
		log:           log,
		in:            make(chan ClickEvent, buffer),
		flushReq:      make(chan chan struct{}),
		quit:          make(chan struct{}),
		closed:        make(chan struct{}),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		flushTimeout:  6 * time.Second,
	}
}

func (w *ClickWorker) Start() {
	w.startOnce.Do(func() { go w.loop() })
}

// Stop flushes what is pending and waits for the loop to exit.
func (w *ClickWorker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
	<-w.closed
}

// Run starts the worker and stops it when ctx is done.
func (w *ClickWorker) Run(ctx context.Context) error {
	w.Start()
	<-ctx.Done()
	w.Stop()
	return ctx.Err()
}

// Record enqueues a click without blocking. It reports false when the event
// was dropped because the buffer is full or the worker stopped.
func (w *ClickWorker) Record(code, fingerprint string) bool {
	select {
	case <-w.quit:
		metrics.ClicksDropped.Inc()
		return false
	default:
	}

	select {
	case w.in <- ClickEvent{Code: code, Fingerprint: fingerprint, Time: time.Now()}:
		metrics.ClicksRecorded.Inc()
		return true
	default:
		metrics.ClicksDropped.Inc()
		w.log.Debug("click buffer full, dropping event", zap.String("code", code))
		return false
	}
}

// Flush writes every event recorded before the call and waits for the write.
func (w *ClickWorker) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case w.flushReq <- done:
	case <-w.closed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *ClickWorker) loop() {
	var tick <-chan time.Time
	if w.flushInterval > 0 {
		ticker := time.NewTicker(w.flushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer close(w.closed)

	counts := make(map[string]int64)
	visitors := make(map[string]struct{})
	total := 0

	add := func(ev ClickEvent) {
		counts[ev.Code]++
		if ev.Fingerprint != "" {
			visitors[ev.Fingerprint] = struct{}{}
		}
		total++
	}

	drain := func() {
		for {
			select {
			case ev := <-w.in:
				add(ev)
			default:
				return
			}
		}
	}

	flush := func() {
		if total == 0 {
			return
		}
		toFlush, events, unique := counts, total, len(visitors)
		counts = make(map[string]int64)
		visitors = make(map[string]struct{})
		total = 0

		ctx, cancel := context.WithTimeout(context.Background(), w.flushTimeout)
		defer cancel()
		w.write(ctx, toFlush, events, unique)
	}

	for {
		select {
		case ev := <-w.in:
			add(ev)
			if total >= w.batchSize {
				flush()
			}
		case <-tick:
			flush()
		case done := <-w.flushReq:
			drain()
			flush()
			close(done)
		case <-w.quit:
			drain()
			flush()
			return
		}
	}
}

func (w *ClickWorker) write(ctx context.Context, rows map[string]int64, events, unique int) {
	batch, ok := w.store.(links.BatchIncrementer)
	if !ok {
		w.perCode(ctx, rows)
		return
	}

	err := retry.Do(
		func() error { return batch.IncrementClicksBatch(ctx, rows) },
		retry.Attempts(3),
		retry.Delay(125*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			w.log.Warn("retrying click batch", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		// the batch is transactional, so nothing of it was applied
		metrics.FlushFailures.Inc()
		w.log.Error("click batch failed; attempting per-code fallback", zap.Int("unique_codes", len(rows)), zap.Error(err))
		w.perCode(ctx, rows)
		return
	}

	metrics.ClicksFlushed.Add(float64(events))
	w.log.Debug("click batch flushed",
		zap.Int("unique_codes", len(rows)),
		zap.Int("events", events),
		zap.Int("unique_visitors", unique),
	)
}

// perCode writes each code on its own; a failing code loses its clicks only.
func (w *ClickWorker) perCode(ctx context.Context, rows map[string]int64) {
	for code, cnt := range rows {
		if cnt <= 0 {
			continue
		}
		if err := w.store.IncrementClicks(ctx, code, cnt); err != nil {
			metrics.ClicksDropped.Add(float64(cnt))
			w.log.Error("IncrementClicks failed", zap.String("code", code), zap.Int64("count", cnt), zap.Error(err))
			continue
		}
		metrics.ClicksFlushed.Add(float64(cnt))
	}
}
