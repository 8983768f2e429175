package ingest

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"biotune/backend/services/bridge-service/internal/device"
	"biotune/backend/services/bridge-service/internal/frame"
	"biotune/backend/services/bridge-service/internal/metrics"
	"biotune/backend/services/bridge-service/internal/models"
)

// Dispatcher accepts readings for upload without blocking.
type Dispatcher interface {
	Dispatch(r models.Reading) bool
	Close()
}

// Options tunes the poll cadence.
type Options struct {
	PollInterval time.Duration `yaml:"pollInterval" env:"BRIDGE_INGEST_POLL_INTERVAL"`
	ErrorBackoff time.Duration `yaml:"errorBackoff" env:"BRIDGE_INGEST_ERROR_BACKOFF"`
}

// ApplyDefaults fills zero values.
func (o *Options) ApplyDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Millisecond
	}
	if o.ErrorBackoff <= 0 {
		o.ErrorBackoff = 500 * time.Millisecond
	}
}

// Loop drains the device link for one session.
type Loop struct {
	link       device.Link
	dispatcher Dispatcher
	opts       Options
	logger     *zap.Logger
	metrics    *metrics.Metrics
	sessionID  string
	now        func() time.Time
}

// NewLoop builds a loop bound to one session. The loop owns dispatcher and
// closes it when Run returns.
func NewLoop(link device.Link, dispatcher Dispatcher, opts Options, logger *zap.Logger, m *metrics.Metrics, sessionID string) *Loop {
	opts.ApplyDefaults()
	return &Loop{
		link:       link,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger.With(zap.String("session_id", sessionID)),
		metrics:    m,
		sessionID:  sessionID,
		now:        time.Now,
	}
}

// Run reads until ctx is done or the link fails for good. It returns nil on
// cancellation and the terminal link error otherwise.
func (l *Loop) Run(ctx context.Context) error {
	defer l.dispatcher.Close()

	l.logger.Info("ingestion loop started")
	defer l.logger.Info("ingestion loop stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := l.link.ReadLine()
		switch {
		case err == nil:
			l.handleLine(line)
		case errors.Is(err, device.ErrEmpty):
			if !wait(ctx, l.opts.PollInterval) {
				return nil
			}
		case errors.Is(err, device.ErrLinkClosed), errors.Is(err, device.ErrDeviceAbsent):
			l.logger.Error("device link lost", zap.Error(err))
			return err
		default:
			l.metrics.ReadErrors.Inc()
			l.logger.Warn("serial read failed", zap.Error(err), zap.Duration("backoff", l.opts.ErrorBackoff))
			if !wait(ctx, l.opts.ErrorBackoff) {
				return nil
			}
		}
	}
}

func (l *Loop) handleLine(line []byte) {
	l.metrics.LinesRead.Inc()

	reading, err := frame.Parse(line)
	if err != nil {
		reason := frame.Reason(err)
		l.metrics.FramesSkipped.WithLabelValues(reason).Inc()
		if reason != "empty" {
			l.logger.Debug("frame skipped", zap.String("reason", reason), zap.ByteString("line", line))
		}
		return
	}

	reading.ObservedAt = l.now().UTC()
	reading.SessionID = l.sessionID
	l.logger.Info("reading", zap.String("kind", string(reading.Kind)), zap.Int("value", reading.Value))

	if l.dispatcher.Dispatch(reading) {
		l.metrics.ReadingsDispatched.Inc()
	}
}

func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
