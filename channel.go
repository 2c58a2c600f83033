package sensormux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// DefaultCapacity is the width of a sensor payload in bytes.
const DefaultCapacity = 64

// Channel multiplexes reads over the registered sources. A write selects the
// source; the next read returns its current value and the read after that
// reports end-of-stream until the source is selected again.
//
// A Channel is shared by all of its callers: the selection, the read cursor
// and the buffers are not per client. Calls are serialized by a single lock.
type Channel struct {
	mu sync.Mutex

	registry *Registry
	opener   Opener
	boundary Boundary
	logger   *zap.SugaredLogger

	capacity int
	selected *SourceDescriptor
	offset   int
	scratch  []byte // staged write
	buf      []byte // staged read
}

var _ ContextReader = (*Channel)(nil)

// Option configures a Channel.
type Option func(*Channel)

// WithOpener sets how source locators are opened. The default is FileOpener.
func WithOpener(o Opener) Option {
	return func(c *Channel) { c.opener = o }
}

// WithBoundary sets the boundary used to move caller bytes.
func WithBoundary(b Boundary) Option {
	return func(c *Channel) { c.boundary = b }
}

// WithLogger sets the diagnostics logger. The default discards everything.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Channel) { c.logger = l }
}

// WithCapacity sets the transfer buffer size.
func WithCapacity(n int) Option {
	return func(c *Channel) { c.capacity = n }
}

// NewChannel returns an unset channel reading from the sources in reg.
func NewChannel(reg *Registry, opts ...Option) (*Channel, error) {
	if reg == nil {
		return nil, errors.New("nil registry")
	}
	c := &Channel{
		registry: reg,
		opener:   FileOpener{},
		boundary: MemoryBoundary{},
		logger:   zap.NewNop().Sugar(),
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.capacity <= 0 {
		return nil, fmt.Errorf("invalid capacity %d", c.capacity)
	}
	c.scratch = make([]byte, c.capacity)
	c.buf = make([]byte, c.capacity)
	return c, nil
}

// Select consumes a selector token written by the caller. A recognized token
// switches the channel to that source and arms a fresh read. An unrecognized
// one is logged and leaves the selection alone. Either way the whole input
// counts as consumed.
func (c *Channel) Select(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(p) > c.capacity {
		return 0, fmt.Errorf("%w: write of %d bytes exceeds capacity %d", ErrBoundaryFault, len(p), c.capacity)
	}
	token := c.scratch[:len(p)]
	defer clear(token)
	if _, err := c.boundary.CopyIn(token, p); err != nil {
		return 0, wrapFault(err)
	}

	d, ok := c.registry.Resolve(token)
	if !ok {
		c.logger.Warnw("unrecognized selector", "token", string(token))
		return len(p), nil
	}
	c.selected = &d
	c.offset = 0
	c.logger.Debugw("source selected", "source", d.Selector, "locator", d.Locator)
	return len(p), nil
}

// Fetch copies the current value of the selected source into dst. It returns
// 0 and no error once the value has been delivered since the last Select.
func (c *Channel) Fetch(dst []byte) (int, error) {
	return c.FetchContext(context.Background(), dst)
}

// FetchContext is Fetch with a read that is abandoned when ctx is done, for
// sources implementing ContextReader. An abandoned read fails with
// ErrSourceUnavailable and may be retried.
func (c *Channel) FetchContext(ctx context.Context, dst []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.offset != 0 {
		return 0, nil
	}
	if c.selected == nil {
		return 0, ErrNotConfigured
	}
	if len(dst) == 0 {
		return 0, nil
	}
	d := *c.selected

	src, err := c.opener.Open(d.Locator)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, d.Selector, err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			c.logger.Warnw("closing source", "source", d.Selector, "error", err)
		}
	}()

	buf := c.buf[:min(c.capacity, len(dst))]
	defer clear(buf)
	var n int
	if cr, ok := src.(ContextReader); ok {
		n, err = cr.ReadContext(ctx, buf)
	} else {
		n, err = src.Read(buf)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, d.Selector, err)
	}
	if n == 0 {
		return 0, nil
	}
	if _, err := c.boundary.CopyOut(dst[:n], buf[:n]); err != nil {
		return 0, wrapFault(err)
	}
	c.offset = n
	return n, nil
}

// Write implements io.Writer on top of Select.
func (c *Channel) Write(p []byte) (int, error) {
	return c.Select(p)
}

// Read implements io.Reader on top of Fetch, reporting end-of-stream as io.EOF.
func (c *Channel) Read(p []byte) (int, error) {
	return c.ReadContext(context.Background(), p)
}

// ReadContext is Read on top of FetchContext.
func (c *Channel) ReadContext(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := c.FetchContext(ctx, p)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Selected returns the currently selected source, if any.
func (c *Channel) Selected() (SourceDescriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == nil {
		return SourceDescriptor{}, false
	}
	return *c.selected, true
}

// Offset returns the read cursor: 0 when a fresh read is due.
func (c *Channel) Offset() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// Capacity returns the transfer buffer size, the most a single read delivers.
func (c *Channel) Capacity() int {
	return c.capacity
}

func wrapFault(err error) error {
	if errors.Is(err, ErrBoundaryFault) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBoundaryFault, err)
}
