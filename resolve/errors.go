package resolve

import (
	"errors"
	"fmt"
)

// NameResolutionError reports a failed lookup.
// Temporary failures (timeouts, server failures) may succeed on retry;
// permanent failures (nonexistent names, invalid names) will not.
type NameResolutionError struct {
	Name      string
	Temporary bool
	Err       error
}

func (e *NameResolutionError) Error() string {
	kind := "permanent"
	if e.Temporary {
		kind = "temporary"
	}
	return fmt.Sprintf("resolve %q: %s failure: %v", e.Name, kind, e.Err)
}

func (e *NameResolutionError) Unwrap() error {
	return e.Err
}

// Sentinel causes wrapped by NameResolutionError.
var (
	ErrNotFound    = errors.New("name not found")
	ErrNoAddresses = errors.New("name has no addresses")
	ErrServFail    = errors.New("server failure")
	ErrTruncated   = errors.New("truncated response")
	ErrRefused     = errors.New("query refused")
	ErrEmptyName   = errors.New("empty name")
)

// IsTemporary returns true if err is a temporary NameResolutionError.
func IsTemporary(err error) bool {
	var rerr *NameResolutionError
	return errors.As(err, &rerr) && rerr.Temporary
}

// IsPermanent returns true if err is a permanent NameResolutionError.
func IsPermanent(err error) bool {
	var rerr *NameResolutionError
	return errors.As(err, &rerr) && !rerr.Temporary
}

func temporary(name string, err error) error {
	return &NameResolutionError{Name: name, Temporary: true, Err: err}
}

func permanent(name string, err error) error {
	return &NameResolutionError{Name: name, Err: err}
}
