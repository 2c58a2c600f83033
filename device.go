package sensormux

import (
	"errors"
	"fmt"
	"sync"
)

// Op is a read or write callback handed to a Registrar.
type Op func(p []byte) (int, error)

// Handle identifies a registered device node.
type Handle interface {
	Name() string
}

// Registrar publishes device nodes to their clients, for example as
// character devices or HTTP endpoints.
type Registrar interface {
	Register(name string, read, write Op) (Handle, error)
	Unregister(h Handle) error
}

// Device owns the channel behind one registered device node.
type Device struct {
	Name    string
	Channel *Channel

	registrar Registrar
	handle    Handle
	closeOnce sync.Once
}

// Open builds the channel described by cfg and registers it with r.
func Open(cfg Config, r Registrar, opts ...Option) (*Device, error) {
	if r == nil {
		return nil, errors.New("nil registrar")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	reg, err := NewRegistry(cfg.Sources.Locators())
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithCapacity(cfg.Capacity)}, opts...)
	ch, err := NewChannel(reg, opts...)
	if err != nil {
		return nil, err
	}
	h, err := r.Register(cfg.Name, ch.Fetch, ch.Select)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", cfg.Name, err)
	}
	return &Device{
		Name:      cfg.Name,
		Channel:   ch,
		registrar: r,
		handle:    h,
	}, nil
}

// Close unregisters the device node.
// Safe to call multiple times; subsequent calls are no-ops.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		err = d.registrar.Unregister(d.handle)
	})
	return err
}
