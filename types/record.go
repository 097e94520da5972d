// Package types defines core domain types for the sieve runtime.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"strings"
)

// Kind classifies an archived record.
type Kind string

// Record kinds found in capture archives.
const (
	KindResponse Kind = "response"
	KindRequest  Kind = "request"
	KindMetadata Kind = "metadata"
	KindResource Kind = "resource"
	KindRevisit  Kind = "revisit"
	KindInfo     Kind = "warcinfo"
	KindDNS      Kind = "dns"
)

// Header is a single record header field.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered list of header fields.
// Insertion order is preserved; lookups are case-insensitive and the first match wins.
type Headers []Header

// Get returns the first value for name, or "" if absent.
func (h Headers) Get(name string) string {
	v, _ := h.Lookup(name)
	return v
}

// Lookup returns the first value for name and whether it was present.
func (h Headers) Lookup(name string) (string, bool) {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Position locates a record in its container.
// Offset is the byte offset of the record frame, or of the enclosing block for
// block-compressed containers. Index is the ordinal of the record inside that
// block and is always 0 for uncompressed containers.
type Position struct {
	Offset int64 `json:"offset" msgpack:"offset"`
	Index  int   `json:"index" msgpack:"index"`
}

// Less reports whether p sorts before o in container order.
func (p Position) Less(o Position) bool {
	if p.Offset != o.Offset {
		return p.Offset < o.Offset
	}
	return p.Index < o.Index
}

func (p Position) String() string {
	if p.Index == 0 {
		return fmt.Sprintf("%d", p.Offset)
	}
	return fmt.Sprintf("%d#%d", p.Offset, p.Index)
}

// Record is an immutable unit of archived data.
// Records are produced by the container reader and never mutated afterwards.
type Record struct {
	Kind    Kind
	Headers Headers
	Body    []byte
	Pos     Position
}

// TargetURI returns the captured target URI, if the record carries one.
func (r *Record) TargetURI() string {
	if v := r.Headers.Get("WARC-Target-URI"); v != "" {
		return v
	}
	return r.Headers.Get("Target-URI")
}
