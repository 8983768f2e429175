package sink

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"biotune/backend/services/bridge-service/internal/metrics"
	"biotune/backend/services/bridge-service/internal/models"
)

// Dispatcher moves readings off the ingestion path. Dispatch never blocks; a
// single worker uploads queued readings in order. When the queue is full the
// oldest reading is discarded, since the store only keeps the latest value.
type Dispatcher struct {
	sink    Sink
	queue   chan models.Reading
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewDispatcher starts the upload worker.
func NewDispatcher(s Sink, queueSize int, timeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sink:    s,
		queue:   make(chan models.Reading, queueSize),
		timeout: timeout,
		logger:  logger,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Dispatch queues r for upload and reports whether it was accepted.
func (d *Dispatcher) Dispatch(r models.Reading) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx.Err() != nil {
		return false
	}
	for {
		select {
		case d.queue <- r:
			return true
		default:
		}
		select {
		case old := <-d.queue:
			d.metrics.UploadQueueDropped.Inc()
			d.logger.Debug("upload queue full, dropping oldest reading", zap.Int("value", old.Value))
		default:
		}
	}
}

// Close cancels any in-flight upload, discards queued readings and waits for
// the worker. No upload starts after Close returns.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.cancel()
		d.mu.Unlock()
		<-d.done
		if n := len(d.queue); n > 0 {
			d.logger.Debug("discarding queued readings", zap.Int("count", n))
		}
	})
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case <-d.ctx.Done():
			return
		case r := <-d.queue:
			if d.ctx.Err() != nil {
				return
			}
			d.upload(r)
		}
	}
}

func (d *Dispatcher) upload(r models.Reading) {
	ctx := d.ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(d.ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	err := d.sink.Upload(ctx, r)
	d.metrics.UploadLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		d.metrics.Uploads.WithLabelValues("failed").Inc()
		d.logger.Warn("upload failed",
			zap.String("sink", d.sink.Name()),
			zap.String("session_id", r.SessionID),
			zap.Int("value", r.Value),
			zap.Error(err))
		return
	}
	d.metrics.Uploads.WithLabelValues("ok").Inc()
	d.logger.Debug("reading uploaded",
		zap.String("sink", d.sink.Name()),
		zap.String("kind", string(r.Kind)),
		zap.Int("value", r.Value))
}
