package resolve

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/netip"
	"strings"
	"time"

	"golang.org/x/net/dns/dnsmessage"
)

// Protocol defaults.
const (
	DefaultTimeout  = 2 * time.Second
	DefaultCacheTTL = 5 * time.Minute
	maxUDPResponse  = 4096
)

// ProtocolConfig configures a Protocol resolver.
type ProtocolConfig struct {
	// Servers are nameserver host:port addresses.
	Servers []string
	// Strategy selects a server per query. Default round-robin.
	Strategy Strategy
	// StickyTTL bounds sticky assignments. Zero keeps them for the resolver lifetime.
	StickyTTL time.Duration
	// Timeout bounds each query. Default DefaultTimeout.
	Timeout time.Duration
	// Attempts is the number of servers tried on temporary failure. Default len(Servers).
	Attempts int
	// CacheTTL caps how long answers are cached. Zero uses DefaultCacheTTL; negative disables.
	CacheTTL time.Duration
	// CacheSize caps the number of cached names. Zero uses DefaultCacheSize.
	CacheSize int
}

// Protocol resolves names by querying nameservers directly over UDP.
// A and AAAA questions are sent separately; IPv4 answers precede IPv6.
type Protocol struct {
	selector *Selector
	timeout  time.Duration
	attempts int
	cache    *cache
	dialer   net.Dialer
}

var _ Resolver = (*Protocol)(nil)

// NewProtocol creates a protocol resolver.
func NewProtocol(cfg ProtocolConfig) (*Protocol, error) {
	sel, err := NewSelector(cfg.Servers, cfg.Strategy, cfg.StickyTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid nameservers: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = len(cfg.Servers)
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	return &Protocol{
		selector: sel,
		timeout:  cfg.Timeout,
		attempts: cfg.Attempts,
		cache:    newCache(cfg.CacheTTL, cfg.CacheSize),
	}, nil
}

// Selector returns the nameserver selector.
func (p *Protocol) Selector() *Selector { return p.selector }

// Resolve queries A then AAAA records for name.
// On a temporary failure the next server is tried, up to the configured attempts.
func (p *Protocol) Resolve(ctx context.Context, name string) ([]Address, error) {
	key := strings.ToLower(strings.TrimSuffix(name, "."))
	if key == "" {
		return nil, permanent(name, ErrEmptyName)
	}
	if addrs, ok := p.cache.get(key); ok {
		return addrs, nil
	}

	qname, err := dnsmessage.NewName(key + ".")
	if err != nil {
		return nil, permanent(name, err)
	}

	server, err := p.selector.Select(key, true)
	if err != nil {
		return nil, temporary(name, err)
	}

	var lastErr error
	for attempt := 0; attempt < p.attempts; attempt++ {
		if attempt > 0 {
			server = p.selector.Next(server)
		}
		addrs, ttl, err := p.lookup(ctx, server, qname)
		if err == nil {
			p.cache.put(key, addrs, ttl)
			return addrs, nil
		}
		lastErr = err
		if !IsTemporary(err) || ctx.Err() != nil {
			break
		}
	}
	var rerr *NameResolutionError
	if errors.As(lastErr, &rerr) {
		rerr.Name = name
	}
	return nil, lastErr
}

func (p *Protocol) lookup(ctx context.Context, server string, qname dnsmessage.Name) ([]Address, time.Duration, error) {
	v4, ttl4, err := p.query(ctx, server, qname, dnsmessage.TypeA)
	if err != nil {
		return nil, 0, err
	}
	v6, ttl6, err := p.query(ctx, server, qname, dnsmessage.TypeAAAA)
	if err != nil {
		return nil, 0, err
	}

	addrs := append(v4, v6...)
	if len(addrs) == 0 {
		return nil, 0, permanent(qname.String(), ErrNoAddresses)
	}
	return addrs, max(minTTL(ttl4, ttl6), 0), nil
}

// noTTL marks an answer set without address records.
const noTTL time.Duration = -1

// minTTL returns the smaller of two TTLs, ignoring noTTL. A real TTL of
// zero wins, so one uncacheable record keeps the whole answer uncached.
func minTTL(a, b time.Duration) time.Duration {
	switch {
	case a == noTTL:
		return b
	case b == noTTL:
		return a
	default:
		return min(a, b)
	}
}

// query sends one question and returns its address answers and minimum
// TTL, or noTTL when there are none.
func (p *Protocol) query(ctx context.Context, server string, qname dnsmessage.Name, qtype dnsmessage.Type) ([]Address, time.Duration, error) {
	name := qname.String()
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dialer.DialContext(ctx, "udp", server)
	if err != nil {
		return nil, 0, temporary(name, fmt.Errorf("dial %s: %w", server, err))
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	id := uint16(rand.Uint32())
	msg := dnsmessage.Message{
		Header: dnsmessage.Header{ID: id, RecursionDesired: true},
		Questions: []dnsmessage.Question{{
			Name:  qname,
			Type:  qtype,
			Class: dnsmessage.ClassINET,
		}},
	}
	packed, err := msg.Pack()
	if err != nil {
		return nil, 0, permanent(name, fmt.Errorf("pack query: %w", err))
	}
	if _, err := conn.Write(packed); err != nil {
		return nil, 0, temporary(name, fmt.Errorf("send to %s: %w", server, err))
	}

	buf := make([]byte, maxUDPResponse)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return nil, 0, temporary(name, fmt.Errorf("read from %s: %w", server, err))
		}

		var parser dnsmessage.Parser
		hdr, err := parser.Start(buf[:n])
		if err != nil || !hdr.Response || hdr.ID != id || !answersQuestion(&parser, qname, qtype) {
			// Not a reply to this query; keep waiting until the deadline.
			continue
		}
		return parseAnswers(name, &parser, hdr)
	}
}

// answersQuestion reports whether the reply's first question is the one
// that was asked. Names compare case-insensitively.
func answersQuestion(parser *dnsmessage.Parser, qname dnsmessage.Name, qtype dnsmessage.Type) bool {
	q, err := parser.Question()
	if err != nil {
		return false
	}
	return q.Type == qtype && q.Class == dnsmessage.ClassINET &&
		strings.EqualFold(q.Name.String(), qname.String())
}

func parseAnswers(name string, parser *dnsmessage.Parser, hdr dnsmessage.Header) ([]Address, time.Duration, error) {
	if hdr.Truncated {
		return nil, 0, temporary(name, ErrTruncated)
	}
	switch hdr.RCode {
	case dnsmessage.RCodeSuccess:
	case dnsmessage.RCodeNameError:
		return nil, 0, permanent(name, ErrNotFound)
	case dnsmessage.RCodeServerFailure:
		return nil, 0, temporary(name, ErrServFail)
	case dnsmessage.RCodeRefused:
		return nil, 0, temporary(name, ErrRefused)
	default:
		return nil, 0, permanent(name, fmt.Errorf("rcode %s", hdr.RCode))
	}

	if err := parser.SkipAllQuestions(); err != nil {
		return nil, 0, temporary(name, fmt.Errorf("malformed response: %w", err))
	}

	var addrs []Address
	ttl := noTTL
	for {
		h, err := parser.AnswerHeader()
		if errors.Is(err, dnsmessage.ErrSectionDone) {
			break
		}
		if err != nil {
			return nil, 0, temporary(name, fmt.Errorf("malformed answer: %w", err))
		}

		switch h.Type {
		case dnsmessage.TypeA:
			r, err := parser.AResource()
			if err != nil {
				return nil, 0, temporary(name, fmt.Errorf("malformed A record: %w", err))
			}
			addrs = append(addrs, Address{addr: netip.AddrFrom4(r.A)})
		case dnsmessage.TypeAAAA:
			r, err := parser.AAAAResource()
			if err != nil {
				return nil, 0, temporary(name, fmt.Errorf("malformed AAAA record: %w", err))
			}
			addrs = append(addrs, Address{addr: netip.AddrFrom16(r.AAAA)})
		default:
			if err := parser.SkipAnswer(); err != nil {
				return nil, 0, temporary(name, fmt.Errorf("malformed answer: %w", err))
			}
			continue
		}

		ttl = minTTL(ttl, time.Duration(h.TTL)*time.Second)
	}
	return addrs, ttl, nil
}
