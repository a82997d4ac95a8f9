// Package idempotency reads client-supplied idempotency keys.
package idempotency

import (
	"errors"
	"net/http"
	"strings"
)

const (
	Header = "Idempotency-Key"
	MaxLen = 128
)

var ErrInvalidKey = errors.New("idempotency key must be 1-128 printable ASCII characters")

// Key returns the request's idempotency key, or "" when the header is
// absent.
func Key(r *http.Request) (string, error) {
	k := strings.TrimSpace(r.Header.Get(Header))
	if k == "" {
		return "", nil
	}
	if len(k) > MaxLen {
		return "", ErrInvalidKey
	}
	for i := 0; i < len(k); i++ {
		if k[i] < 0x21 || k[i] > 0x7e {
			return "", ErrInvalidKey
		}
	}
	return k, nil
}
