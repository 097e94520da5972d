// Package resolve maps DNS names to addresses.
//
// Three interchangeable backends implement Resolver: System (the host
// resolver), Protocol (direct DNS queries over UDP) and Synthetic
// (deterministic addresses derived from the name). The backend is chosen once
// at construction with New.
package resolve

import (
	"context"
	"fmt"
	"net/netip"
	"time"
)

// Resolver resolves a name to its addresses.
// Implementations are safe for concurrent use.
type Resolver interface {
	Resolve(ctx context.Context, name string) ([]Address, error)
}

// Address is a resolved IPv4 or IPv6 address.
type Address struct {
	addr netip.Addr
}

// AddressFrom wraps addr. IPv4-mapped IPv6 addresses are unmapped.
func AddressFrom(addr netip.Addr) Address {
	return Address{addr: addr.Unmap()}
}

// Addr returns the underlying address.
func (a Address) Addr() netip.Addr { return a.addr }

// Bytes returns the 4-byte (IPv4) or 16-byte (IPv6) binary form.
func (a Address) Bytes() []byte {
	if a.addr.Is4() {
		b := a.addr.As4()
		return b[:]
	}
	b := a.addr.As16()
	return b[:]
}

func (a Address) String() string { return a.addr.String() }

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return a.addr.MarshalText()
}

// Backend names a resolver implementation.
type Backend string

const (
	BackendSystem    Backend = "system"
	BackendProtocol  Backend = "protocol"
	BackendSynthetic Backend = "synthetic"
)

// Config selects and configures a backend.
type Config struct {
	Backend Backend

	// Protocol backend.
	Servers   []string
	Strategy  Strategy
	StickyTTL time.Duration
	Timeout   time.Duration
	Attempts  int
	CacheTTL  time.Duration
	CacheSize int

	// Synthetic backend.
	Width int
}

// New constructs the resolver named by cfg.Backend.
// An empty backend selects the system resolver.
func New(cfg Config) (Resolver, error) {
	switch cfg.Backend {
	case BackendSystem, "":
		return NewSystem(nil), nil
	case BackendProtocol:
		return NewProtocol(ProtocolConfig{
			Servers:   cfg.Servers,
			Strategy:  cfg.Strategy,
			StickyTTL: cfg.StickyTTL,
			Timeout:   cfg.Timeout,
			Attempts:  cfg.Attempts,
			CacheTTL:  cfg.CacheTTL,
			CacheSize: cfg.CacheSize,
		})
	case BackendSynthetic:
		return NewSynthetic(cfg.Width)
	default:
		return nil, fmt.Errorf("unknown resolver backend %q", cfg.Backend)
	}
}
