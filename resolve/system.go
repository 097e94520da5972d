package resolve

import (
	"context"
	"errors"
	"net"
)

// System resolves names through the host resolver.
type System struct {
	resolver *net.Resolver
}

var _ Resolver = (*System)(nil)

// NewSystem creates a system resolver. A nil r uses net.DefaultResolver.
func NewSystem(r *net.Resolver) *System {
	if r == nil {
		r = net.DefaultResolver
	}
	return &System{resolver: r}
}

// Resolve returns addresses in the order the host resolver reports them.
func (s *System) Resolve(ctx context.Context, name string) ([]Address, error) {
	if name == "" {
		return nil, permanent(name, ErrEmptyName)
	}

	addrs, err := s.resolver.LookupNetIP(ctx, "ip", name)
	if err != nil {
		return nil, classifySystemError(name, err)
	}
	if len(addrs) == 0 {
		return nil, permanent(name, ErrNoAddresses)
	}

	out := make([]Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, AddressFrom(a))
	}
	return out, nil
}

func classifySystemError(name string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return temporary(name, err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			return permanent(name, errors.Join(ErrNotFound, err))
		case dnsErr.IsTimeout, dnsErr.IsTemporary:
			return temporary(name, err)
		}
	}
	return permanent(name, err)
}
