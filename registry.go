package sensormux

import (
	"bytes"
	"fmt"
)

// Selector identifies which sensor source the channel reads from.
type Selector int

const (
	Unset Selector = iota
	Temperature
	Pressure
)

// tokenPrefixLen is the number of leading bytes of a write that select a source.
const tokenPrefixLen = 4

func (s Selector) String() string {
	switch s {
	case Temperature:
		return "temperature"
	case Pressure:
		return "pressure"
	default:
		return "unset"
	}
}

// Token returns the short selector token a client writes to pick s.
func (s Selector) Token() string {
	switch s {
	case Temperature:
		return "temp"
	case Pressure:
		return "pres"
	default:
		return ""
	}
}

// SourceDescriptor locates the data behind one selector.
type SourceDescriptor struct {
	Selector Selector
	Token    string
	Locator  string
}

// Locators holds the host-specific locator of every source, for example
// "/sys/class/hwmon/hwmon0/temp1_input".
type Locators struct {
	Temperature string
	Pressure    string
}

// Registry maps selector tokens to source descriptors. It is immutable once built.
type Registry struct {
	descriptors []SourceDescriptor
}

// NewRegistry builds the registry of temperature and pressure sources.
func NewRegistry(loc Locators) (*Registry, error) {
	r := &Registry{}
	for _, d := range []SourceDescriptor{
		{Selector: Temperature, Token: Temperature.Token(), Locator: loc.Temperature},
		{Selector: Pressure, Token: Pressure.Token(), Locator: loc.Pressure},
	} {
		if d.Locator == "" {
			return nil, fmt.Errorf("empty locator for %s source", d.Selector)
		}
		r.descriptors = append(r.descriptors, d)
	}
	return r, nil
}

// Resolve matches the first four bytes of token against the known selector
// tokens. Anything after the prefix is ignored, so "temp", "temperature" and
// "temp\n" all select the temperature source.
func (r *Registry) Resolve(token []byte) (SourceDescriptor, bool) {
	if len(token) < tokenPrefixLen {
		return SourceDescriptor{}, false
	}
	prefix := token[:tokenPrefixLen]
	for _, d := range r.descriptors {
		if bytes.Equal(prefix, []byte(d.Token)) {
			return d, true
		}
	}
	return SourceDescriptor{}, false
}

// Lookup returns the descriptor registered for sel.
func (r *Registry) Lookup(sel Selector) (SourceDescriptor, bool) {
	for _, d := range r.descriptors {
		if d.Selector == sel {
			return d, true
		}
	}
	return SourceDescriptor{}, false
}

// Descriptors returns a copy of all registered descriptors.
func (r *Registry) Descriptors() []SourceDescriptor {
	out := make([]SourceDescriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}
