package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.bug.st/serial"
	"go.uber.org/zap"
)

// maxPendingBytes bounds an unterminated line; anything longer is noise.
const maxPendingBytes = 4096

type port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

type portOpener func(name string, mode *serial.Mode) (port, error)

func openSerialPort(name string, mode *serial.Mode) (port, error) {
	return serial.Open(name, mode)
}

// SerialLink reads newline delimited frames from a serial port. A background
// reader drains the port into a bounded line buffer so ReadLine never blocks.
type SerialLink struct {
	cfg    Config
	port   port
	logger *zap.Logger

	lines chan []byte
	errs  chan error

	writeMu  sync.Mutex
	resetReq chan chan struct{}
	gone     atomic.Bool
	dropped  atomic.Uint64

	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// Open acquires the serial port, trying OpenAttempts times OpenBackoff apart,
// then waits OpenSettle for the board to come out of reset. The returned
// error wraps ErrLinkUnavailable.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*SerialLink, error) {
	return open(ctx, cfg, logger, openSerialPort)
}

func open(ctx context.Context, cfg Config, logger *zap.Logger, opener portOpener) (*SerialLink, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLinkUnavailable, err)
	}

	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	var (
		p       port
		attempt int
	)
	openOnce := func() error {
		attempt++
		opened, err := opener(cfg.Port, mode)
		if err != nil {
			return err
		}
		if err := opened.SetReadTimeout(cfg.ReadTimeout); err != nil {
			_ = opened.Close()
			return err
		}
		p = opened
		return nil
	}
	retry := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.OpenBackoff), uint64(cfg.OpenAttempts-1)),
		ctx,
	)
	logRetry := func(err error, wait time.Duration) {
		logger.Warn("serial port open failed, retrying",
			zap.String("port", cfg.Port),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.OpenAttempts),
			zap.Duration("retry_in", wait),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(openOnce, retry, logRetry); err != nil {
		logger.Warn("serial port open gave up",
			zap.String("port", cfg.Port),
			zap.Int("attempts", attempt),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrLinkUnavailable, cfg.Port, err)
	}

	logger.Info("serial port opened",
		zap.String("port", cfg.Port),
		zap.Int("baud", cfg.Baud),
		zap.Int("attempt", attempt))
	if !sleepWithContext(ctx, cfg.OpenSettle) {
		_ = p.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrLinkUnavailable, cfg.Port, ctx.Err())
	}
	return newSerialLink(p, cfg, logger), nil
}

func newSerialLink(p port, cfg Config, logger *zap.Logger) *SerialLink {
	l := &SerialLink{
		cfg:      cfg,
		port:     p,
		logger:   logger,
		lines:    make(chan []byte, cfg.LineBuffer),
		errs:     make(chan error, 1),
		resetReq: make(chan chan struct{}),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go l.readLoop()
	return l
}

// ReadLine implements Link.
func (l *SerialLink) ReadLine() ([]byte, error) {
	select {
	case line := <-l.lines:
		return line, nil
	default:
	}

	select {
	case err := <-l.errs:
		return nil, err
	default:
	}

	if l.gone.Load() {
		return nil, ErrLinkClosed
	}
	return nil, ErrEmpty
}

// WriteCommand implements Link.
func (l *SerialLink) WriteCommand(cmd Command) error {
	if l.gone.Load() {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, cmd, ErrLinkClosed)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if _, err := l.port.Write(cmd.Bytes()); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, cmd, err)
	}
	l.logger.Debug("command written", zap.String("command", string(cmd)))
	return nil
}

// ResetInput implements Link. It flushes the OS buffer and then waits for the
// reader to discard everything it holds, including a read still in flight,
// so no byte received before the call can surface as a line afterwards.
func (l *SerialLink) ResetInput() error {
	if err := l.port.ResetInputBuffer(); err != nil {
		return err
	}

	ack := make(chan struct{})
	select {
	case l.resetReq <- ack:
	case <-l.done:
		return ErrLinkClosed
	}
	select {
	case <-ack:
		return nil
	case <-l.done:
		return ErrLinkClosed
	}
}

// Present implements Link.
func (l *SerialLink) Present() bool { return true }

// Dropped returns how many lines were discarded because the buffer was full.
func (l *SerialLink) Dropped() uint64 { return l.dropped.Load() }

// Close stops the reader and releases the port.
func (l *SerialLink) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closing)
		err = l.port.Close()
		<-l.done
	})
	return err
}

func (l *SerialLink) readLoop() {
	defer close(l.done)

	buf := make([]byte, 256)
	var pending []byte

	for {
		select {
		case <-l.closing:
			l.gone.Store(true)
			return
		default:
		}

		n, err := l.port.Read(buf)
		if l.serveReset() {
			n, pending = 0, pending[:0]
		}
		if n > 0 {
			pending = l.emitLines(append(pending, buf[:n]...))
		}
		if err == nil {
			continue
		}

		if isPortGone(err) {
			l.gone.Store(true)
			l.logger.Warn("serial port closed", zap.String("port", l.cfg.Port), zap.Error(err))
			return
		}

		select {
		case l.errs <- err:
		default:
		}
		l.logger.Debug("serial read failed", zap.Error(err))

		backoff := time.NewTimer(l.cfg.ReadBackoff)
	wait:
		for {
			select {
			case <-l.closing:
				backoff.Stop()
				l.gone.Store(true)
				return
			case ack := <-l.resetReq:
				pending = pending[:0]
				l.discard()
				close(ack)
			case <-backoff.C:
				break wait
			}
		}
	}
}

// serveReset answers a pending ResetInput. The caller drops whatever its
// last read returned.
func (l *SerialLink) serveReset() bool {
	select {
	case ack := <-l.resetReq:
		l.discard()
		close(ack)
		return true
	default:
		return false
	}
}

func (l *SerialLink) discard() {
	for {
		select {
		case <-l.lines:
		case <-l.errs:
		default:
			return
		}
	}
}

// emitLines pushes every complete line in buf and returns the unterminated tail.
func (l *SerialLink) emitLines(buf []byte) []byte {
	for {
		frame, rest, ok := popFrame(buf)
		if !ok {
			break
		}
		buf = rest
		if len(frame) > 0 {
			l.pushLine(frame)
		}
	}
	if len(buf) > maxPendingBytes {
		l.logger.Debug("discarding oversized partial line", zap.Int("bytes", len(buf)))
		return buf[:0]
	}
	return buf
}

func (l *SerialLink) pushLine(frame []byte) {
	line := make([]byte, len(frame))
	copy(line, frame)

	for {
		select {
		case l.lines <- line:
			return
		default:
		}
		select {
		case <-l.lines:
			l.dropped.Add(1)
		default:
		}
	}
}

// popFrame splits off the first \r or \n terminated frame, swallowing the
// whole run of delimiters after it.
func popFrame(buf []byte) (frame, rest []byte, ok bool) {
	idx := -1
	for i, b := range buf {
		if b == '\r' || b == '\n' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, buf, false
	}

	j := idx
	for j < len(buf) && (buf[j] == '\r' || buf[j] == '\n') {
		j++
	}
	return buf[:idx], buf[j:], true
}

func isPortGone(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		return portErr.Code() == serial.PortClosed
	}
	return false
}

var _ Link = (*SerialLink)(nil)
