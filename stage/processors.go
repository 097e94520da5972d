package stage

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/justapithecus/sieve/metrics"
	"github.com/justapithecus/sieve/resolve"
	"github.com/justapithecus/sieve/types"
)

// ErrNoTarget is returned by processors that need a target URI and find none.
var ErrNoTarget = errors.New("record has no target URI")

// KindFilter keeps records of the listed kinds.
// The value is {"kind", "uri"}.
type KindFilter struct {
	kinds map[types.Kind]bool
}

// NewKindFilter creates a kind filter. An empty list keeps every kind.
func NewKindFilter(kinds ...types.Kind) *KindFilter {
	f := &KindFilter{kinds: make(map[types.Kind]bool, len(kinds))}
	for _, k := range kinds {
		f.kinds[k] = true
	}
	return f
}

// Process drops records whose kind is not listed.
func (f *KindFilter) Process(_ context.Context, rec *types.Record) (Outcome, error) {
	if len(f.kinds) > 0 && !f.kinds[rec.Kind] {
		return Dropped(), nil
	}
	return Transformed(map[string]any{
		"kind": string(rec.Kind),
		"uri":  rec.TargetURI(),
	}), nil
}

// HeaderExtractor extracts named header fields.
// The value maps each requested name to its first value.
type HeaderExtractor struct {
	names       []string
	dropMissing bool
}

// NewHeaderExtractor creates a header extractor. With dropMissing, records
// carrying none of the names are dropped.
func NewHeaderExtractor(names []string, dropMissing bool) (*HeaderExtractor, error) {
	if len(names) == 0 {
		return nil, errors.New("header extractor requires at least one name")
	}
	return &HeaderExtractor{names: names, dropMissing: dropMissing}, nil
}

// Process extracts the configured headers.
func (h *HeaderExtractor) Process(_ context.Context, rec *types.Record) (Outcome, error) {
	fields := make(map[string]any, len(h.names))
	for _, name := range h.names {
		if v, ok := rec.Headers.Lookup(name); ok {
			fields[name] = v
		}
	}
	if len(fields) == 0 && h.dropMissing {
		return Dropped(), nil
	}
	return Transformed(fields), nil
}

// DomainExtractor derives the registrable domain of the record's target URI.
// The value is {"uri", "host", "domain"}. Records without a target URI are dropped.
type DomainExtractor struct {
	allow map[string]bool
}

// NewDomainExtractor creates a domain extractor. If allow is non-empty, only
// records whose registrable domain is listed are kept.
func NewDomainExtractor(allow ...string) *DomainExtractor {
	d := &DomainExtractor{allow: make(map[string]bool, len(allow))}
	for _, a := range allow {
		d.allow[strings.ToLower(a)] = true
	}
	return d
}

// Process computes the registrable domain.
func (d *DomainExtractor) Process(_ context.Context, rec *types.Record) (Outcome, error) {
	uri := rec.TargetURI()
	if uri == "" {
		return Dropped(), nil
	}
	host, err := hostOf(uri)
	if err != nil {
		return Outcome{}, err
	}

	domain := host
	if net.ParseIP(host) == nil {
		domain, err = publicsuffix.EffectiveTLDPlusOne(host)
		if err != nil {
			return Outcome{}, fmt.Errorf("registrable domain of %q: %w", host, err)
		}
	}
	if len(d.allow) > 0 && !d.allow[domain] {
		return Dropped(), nil
	}
	return Transformed(map[string]any{
		"uri":    uri,
		"host":   host,
		"domain": domain,
	}), nil
}

// Resolver resolves the host of each record's target URI.
// The value is {"host", "addresses"}. Resolution errors fail the stage for
// that record; the error keeps its temporary/permanent classification.
type Resolver struct {
	resolver resolve.Resolver
	metrics  *metrics.Collector
}

// NewResolver creates a resolving processor. collector may be nil.
func NewResolver(r resolve.Resolver, collector *metrics.Collector) (*Resolver, error) {
	if r == nil {
		return nil, errors.New("resolve processor requires a resolver")
	}
	return &Resolver{resolver: r, metrics: collector}, nil
}

// Process resolves the target host. IP literals are returned as-is.
func (p *Resolver) Process(ctx context.Context, rec *types.Record) (Outcome, error) {
	uri := rec.TargetURI()
	if uri == "" {
		return Dropped(), nil
	}
	host, err := hostOf(uri)
	if err != nil {
		return Outcome{}, err
	}
	if ip := net.ParseIP(host); ip != nil {
		return Transformed(map[string]any{"host": host, "addresses": []string{ip.String()}}), nil
	}

	addrs, err := p.resolver.Resolve(ctx, host)
	if err != nil {
		if resolve.IsTemporary(err) {
			p.metrics.IncLookupTemporary()
		} else {
			p.metrics.IncLookupPermanent()
		}
		return Outcome{}, err
	}
	p.metrics.IncLookupSuccess()

	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return Transformed(map[string]any{"host": host, "addresses": out}), nil
}

// Digest computes the SHA-256 of the record body.
// The value is {"sha256", "length"}.
type Digest struct{}

// Process hashes the body.
func (Digest) Process(_ context.Context, rec *types.Record) (Outcome, error) {
	sum := sha256.Sum256(rec.Body)
	return Transformed(map[string]any{
		"sha256": hex.EncodeToString(sum[:]),
		"length": len(rec.Body),
	}), nil
}

// StatusFilter parses the HTTP status line of response records.
// The value is {"uri", "status", "reason"}. Non-response records are dropped.
type StatusFilter struct {
	codes map[int]bool
}

// NewStatusFilter creates a status filter. If codes is non-empty, only
// responses with a listed status are kept.
func NewStatusFilter(codes ...int) *StatusFilter {
	f := &StatusFilter{codes: make(map[int]bool, len(codes))}
	for _, c := range codes {
		f.codes[c] = true
	}
	return f
}

// Process parses the status line. A malformed status line fails the stage.
func (f *StatusFilter) Process(_ context.Context, rec *types.Record) (Outcome, error) {
	if rec.Kind != types.KindResponse {
		return Dropped(), nil
	}
	code, reason, err := parseStatusLine(rec.Body)
	if err != nil {
		return Outcome{}, err
	}
	if len(f.codes) > 0 && !f.codes[code] {
		return Dropped(), nil
	}
	return Transformed(map[string]any{
		"uri":    rec.TargetURI(),
		"status": code,
		"reason": reason,
	}), nil
}

func parseStatusLine(body []byte) (int, string, error) {
	line, err := bufio.NewReader(bytes.NewReader(body)).ReadString('\n')
	if err != nil && line == "" {
		return 0, "", errors.New("empty response body")
	}
	line = strings.TrimRight(line, "\r\n")

	proto, rest, ok := strings.Cut(line, " ")
	if !ok || !strings.HasPrefix(proto, "HTTP/") {
		return 0, "", fmt.Errorf("malformed status line %.80q", line)
	}
	codeStr, reason, _ := strings.Cut(rest, " ")
	code, err := strconv.Atoi(codeStr)
	if err != nil || code < 100 || code > 999 {
		return 0, "", fmt.Errorf("malformed status code in %.80q", line)
	}
	return code, reason, nil
}

func hostOf(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse target URI: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("target URI %q has no host", uri)
	}
	return host, nil
}
