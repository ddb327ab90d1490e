package xid

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxInboundLen = 64

// New returns a time-ordered id such as "req-018e0c4f-...". It falls back to
// a nanosecond stamp if the random source fails.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return prefix + "-" + id.String()
}

// Accept reports whether an id supplied by a caller is safe to echo into
// headers and logs.
func Accept(id string) bool {
	if id == "" || len(id) > maxInboundLen {
		return false
	}
	return strings.IndexFunc(id, func(r rune) bool {
		return !(r == '-' || r == '_' || r == '.' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'))
	}) < 0
}

// FromHeader keeps an acceptable inbound id or mints a fresh one.
func FromHeader(value string, prefix string) string {
	value = strings.TrimSpace(value)
	if Accept(value) {
		return value
	}
	return New(prefix)
}
