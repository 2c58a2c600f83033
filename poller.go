package sensormux

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
)

// PollerConfig holds the parameters of a Poller.
type PollerConfig struct {
	Token     string        // selector written before every read, e.g. "temp"
	Interval  time.Duration // pause between two samples
	Delimiter string        // default "\n"

	// RetryInitial and RetryMax bound the backoff used while the source is
	// unavailable. RetryMax of zero retries until Close.
	RetryInitial time.Duration
	RetryMax     time.Duration
}

// Poller samples one source of a channel in a loop, the way a shell loop
// around cat would, and hands every line of every sample to a callback.
// It is safe to Close from another goroutine.
type Poller struct {
	rw        io.ReadWriter
	config    PollerConfig
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewPoller returns a Poller over rw, usually a *Channel.
func NewPoller(rw io.ReadWriter, cfg PollerConfig) *Poller {
	if cfg.Delimiter == "" {
		cfg.Delimiter = "\n"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = 25 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{rw: rw, config: cfg, ctx: ctx, cancel: cancel}
}

// ReadLinesLoop selects the configured source, reads it to end-of-stream and
// invokes onLine for each line, once per interval. Unavailable sources are
// retried with exponential backoff without selecting again. Any other error
// is passed to onError and the loop exits. Close ends the loop, also while a
// read is blocked on a source implementing ContextReader.
func (p *Poller) ReadLinesLoop(onLine func(string), onError func(error)) {
	buf := make([]byte, DefaultCapacity)
	for {
		if _, err := p.rw.Write([]byte(p.config.Token)); err != nil {
			onError(err)
			return
		}

		var sample []byte
		op := func() error {
			sample = sample[:0]
			for {
				n, err := p.read(buf)
				sample = append(sample, buf[:n]...)
				if errors.Is(err, io.EOF) || (n == 0 && err == nil) {
					return nil
				}
				if errors.Is(err, ErrSourceUnavailable) {
					return err
				}
				if err != nil {
					return backoff.Permanent(err)
				}
			}
		}
		err := backoff.Retry(op, backoff.WithContext(p.newBackOff(), p.ctx))
		select {
		case <-p.ctx.Done():
			return
		default:
		}
		if err != nil {
			var perm *backoff.PermanentError
			if errors.As(err, &perm) {
				err = perm.Err
			}
			onError(err)
			return
		}

		for _, line := range splitLines(string(sample), p.config.Delimiter) {
			onLine(line)
		}

		select {
		case <-p.ctx.Done():
			return
		case <-time.After(p.config.Interval):
		}
	}
}

// read abandons a read blocked on the source once the poller is closed,
// when rw supports it.
func (p *Poller) read(buf []byte) (int, error) {
	if cr, ok := p.rw.(ContextReader); ok {
		return cr.ReadContext(p.ctx, buf)
	}
	return p.rw.Read(buf)
}

func (p *Poller) newBackOff() backoff.BackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     p.config.RetryInitial,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         p.config.Interval,
		MaxElapsedTime:      p.config.RetryMax,
		Clock:               backoff.SystemClock}
}

// Close stops ReadLinesLoop.
// Safe to call multiple times; subsequent calls are no-ops.
func (p *Poller) Close() error {
	p.closeOnce.Do(p.cancel)
	return nil
}

func splitLines(s, delim string) []string {
	var lines []string
	for {
		idx := strings.Index(s, delim)
		if idx < 0 {
			break
		}
		lines = append(lines, s[:idx])
		s = s[idx+len(delim):]
	}
	if s != "" {
		lines = append(lines, s)
	}
	return lines
}
