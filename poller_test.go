package sensormux

import (
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
)

func TestPoller_ReadLinesLoop(t *testing.T) {
	ch, src := newTestChannel(t)
	p := NewPoller(ch, PollerConfig{Token: "pres", Interval: 10 * time.Millisecond})
	t.Cleanup(func() { p.Close() })

	lines := make(chan string, 16)
	errors := make(chan error, 1)
	go p.ReadLinesLoop(
		func(line string) { lines <- line },
		func(err error) { errors <- err },
	)

	for i := 0; i < 3; i++ {
		select {
		case l := <-lines:
			require.Equal(t, "101.325", l)
		case err := <-errors:
			t.Fatalf("unexpected error: %v", err)
		case <-time.After(500 * time.Millisecond):
			t.Fatal("timeout waiting for line")
		}
	}
	require.NoError(t, p.Close())
	require.Zero(t, src.openHandles())
}

func TestPoller_RetriesUnavailableSource(t *testing.T) {
	ch, src := newTestChannel(t)
	src.setDown(tempLocator, true)

	p := NewPoller(ch, PollerConfig{
		Token:        "temp",
		Interval:     20 * time.Millisecond,
		RetryInitial: 5 * time.Millisecond,
	})
	t.Cleanup(func() { p.Close() })

	lines := make(chan string, 16)
	errors := make(chan error, 1)
	go p.ReadLinesLoop(
		func(line string) { lines <- line },
		func(err error) { errors <- err },
	)

	time.Sleep(30 * time.Millisecond)
	src.setDown(tempLocator, false)

	select {
	case l := <-lines:
		require.Equal(t, "21500", l)
	case err := <-errors:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for line after source came back")
	}
	src.mu.Lock()
	require.Greater(t, src.opens[tempLocator], 1)
	src.mu.Unlock()
}

func TestPoller_GivesUpAfterRetryMax(t *testing.T) {
	ch, src := newTestChannel(t)
	src.setDown(tempLocator, true)

	p := NewPoller(ch, PollerConfig{
		Token:        "temp",
		Interval:     10 * time.Millisecond,
		RetryInitial: 2 * time.Millisecond,
		RetryMax:     30 * time.Millisecond,
	})
	t.Cleanup(func() { p.Close() })

	errors := make(chan error, 1)
	go p.ReadLinesLoop(func(string) {}, func(err error) { errors <- err })

	select {
	case err := <-errors:
		require.ErrorIs(t, err, ErrSourceUnavailable)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for the poller to give up")
	}
}

func TestPoller_NotConfiguredEndsLoop(t *testing.T) {
	ch, _ := newTestChannel(t)
	p := NewPoller(ch, PollerConfig{Token: "xyz", Interval: 10 * time.Millisecond})
	t.Cleanup(func() { p.Close() })

	errors := make(chan error, 1)
	go p.ReadLinesLoop(func(string) {}, func(err error) { errors <- err })

	select {
	case err := <-errors:
		require.ErrorIs(t, err, ErrNotConfigured)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for error")
	}
}

// countingRW ends every sample after one line and counts the samples taken.
type countingRW struct {
	samples atomic.Int32
	pending atomic.Bool
}

func (c *countingRW) Write(p []byte) (int, error) {
	c.pending.Store(true)
	return len(p), nil
}

func (c *countingRW) Read(p []byte) (int, error) {
	if !c.pending.Swap(false) {
		return 0, io.EOF
	}
	c.samples.Add(1)
	return copy(p, "1\r\n2\r\n"), nil
}

func TestPoller_Killability(t *testing.T) {
	rw := &countingRW{}
	p := NewPoller(rw, PollerConfig{Token: "temp", Interval: time.Hour, Delimiter: "\r\n"})

	lines := make(chan string, 4)
	done := make(chan struct{})
	go func() {
		p.ReadLinesLoop(func(line string) { lines <- line }, func(error) {})
		close(done)
	}()

	require.Equal(t, "1", <-lines)
	require.Equal(t, "2", <-lines)

	// the loop is now waiting out the interval
	require.NoError(t, p.Close())
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for ReadLinesLoop to exit after Close")
	}
	require.NoError(t, p.Close()) // no-op
	require.Equal(t, int32(1), rw.samples.Load())
}

func TestPoller_KillabilityWhileReadBlocks(t *testing.T) {
	// A tty that never answers keeps the read blocked until Close.
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	reg, err := NewRegistry(Locators{Temperature: slave.Name(), Pressure: slave.Name()})
	require.NoError(t, err)
	ch, err := NewChannel(reg)
	require.NoError(t, err)

	p := NewPoller(ch, PollerConfig{Token: "temp", Interval: 10 * time.Millisecond})
	done := make(chan struct{})
	exitError := make(chan error, 1)
	go func() {
		p.ReadLinesLoop(func(string) {}, func(err error) {
			select {
			case exitError <- err:
			default:
			}
		})
		close(done)
	}()

	// Give the goroutine a chance to block in the read
	time.Sleep(50 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("ReadLinesLoop exited before Close")
	default:
	}

	require.NoError(t, p.Close())
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for ReadLinesLoop to exit after Close")
	}
	select {
	case err := <-exitError:
		t.Fatalf("unexpected error on Close: %v", err)
	default:
	}

	// the abandoned read left the selection armed
	require.Zero(t, ch.Offset())
	_, ok := ch.Selected()
	require.True(t, ok)
}

// emptyRW answers every read with no data and no error.
type emptyRW struct {
	reads atomic.Int32
}

func (e *emptyRW) Write(p []byte) (int, error) { return len(p), nil }

func (e *emptyRW) Read(p []byte) (int, error) {
	e.reads.Add(1)
	return 0, nil
}

func TestPoller_EmptyReadEndsSample(t *testing.T) {
	rw := &emptyRW{}
	p := NewPoller(rw, PollerConfig{Token: "temp", Interval: time.Hour})

	done := make(chan struct{})
	go func() {
		p.ReadLinesLoop(func(line string) { t.Errorf("unexpected line %q", line) }, func(error) {})
		close(done)
	}()

	require.Eventually(t, func() bool { return rw.reads.Load() == 1 }, 500*time.Millisecond, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(1), rw.reads.Load())

	require.NoError(t, p.Close())
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for ReadLinesLoop to exit after Close")
	}
}

func TestSplitLines(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, splitLines("a\nb\n", "\n"))
	require.Equal(t, []string{"a", "b"}, splitLines("a\nb", "\n"))
	require.Equal(t, []string{"", "x"}, splitLines("\r\nx", "\r\n"))
	require.Nil(t, splitLines("", "\n"))
}
