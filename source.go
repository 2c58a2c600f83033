package sensormux

import (
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sys/unix"
)

// Opener gives access to the data behind a source locator.
type Opener interface {
	Open(locator string) (io.ReadCloser, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(locator string) (io.ReadCloser, error)

func (f OpenerFunc) Open(locator string) (io.ReadCloser, error) {
	return f(locator)
}

// ContextReader is implemented by sources whose reads can be abandoned
// when ctx is done.
type ContextReader interface {
	ReadContext(ctx context.Context, p []byte) (int, error)
}

// FileOpener opens attribute files such as hwmon or IIO sysfs entries with raw
// syscalls, so each read goes straight to the driver without buffering.
type FileOpener struct{}

var (
	_ Opener        = FileOpener{}
	_ ContextReader = (*fileSource)(nil)
)

func (FileOpener) Open(locator string) (io.ReadCloser, error) {
	fd, err := unix.Open(locator, unix.O_RDONLY|unix.O_CLOEXEC|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("open failed: %w", err)
	}
	return &fileSource{fd: fd, name: locator}, nil
}

type fileSource struct {
	fd        int
	name      string
	closeOnce sync.Once
}

func (f *fileSource) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(f.fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", f.name, err)
		}
		if n == 0 && len(p) > 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}

// ReadContext is Read, but returns ctx.Err() once ctx is done, even while
// the source has no data ready. A self-pipe wakes the poll.
func (f *fileSource) ReadContext(ctx context.Context, p []byte) (int, error) {
	if ctx.Done() == nil {
		return f.Read(p)
	}
	var pipe [2]int
	if err := unix.Pipe2(pipe[:], unix.O_CLOEXEC); err != nil {
		return 0, fmt.Errorf("pipe: %w", err)
	}
	quit := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			unix.Write(pipe[1], []byte{1})
		case <-quit:
		}
	}()
	defer func() {
		close(quit)
		wg.Wait()
		unix.Close(pipe[0])
		unix.Close(pipe[1])
	}()

	for {
		pfd := []unix.PollFd{
			{Fd: int32(f.fd), Events: unix.POLLIN},
			{Fd: int32(pipe[0]), Events: unix.POLLIN},
		}
		_, err := unix.Poll(pfd, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("poll %s: %w", f.name, err)
		}
		if pfd[1].Revents&unix.POLLIN != 0 {
			return 0, ctx.Err()
		}
		if pfd[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			return f.Read(p)
		}
	}
}

// Close releases the descriptor. Safe to call multiple times.
func (f *fileSource) Close() error {
	var err error
	f.closeOnce.Do(func() {
		err = unix.Close(f.fd)
	})
	return err
}
