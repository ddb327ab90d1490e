package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"
)

const csrfBucket = time.Hour

// csrfSigner derives stateless CSRF tokens from an hourly time bucket. A token
// stays valid for the bucket it was issued in and the following one.
type csrfSigner struct {
	key []byte
	now func() time.Time
}

func newCSRFSigner() *csrfSigner {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		key = []byte("csrf-fallback-secret-change-me!!")
	}
	return &csrfSigner{key: key, now: time.Now}
}

func (s *csrfSigner) bucket(offset int) int64 {
	return s.now().UTC().Truncate(csrfBucket).Add(time.Duration(offset) * csrfBucket).Unix()
}

func (s *csrfSigner) tokenFor(bucket int64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(bucket))
	mac := hmac.New(sha256.New, s.key)
	mac.Write(buf[:])
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *csrfSigner) Issue() string {
	return s.tokenFor(s.bucket(0))
}

func (s *csrfSigner) Valid(token string) bool {
	if token == "" {
		return false
	}
	for _, offset := range []int{0, -1} {
		if hmac.Equal([]byte(token), []byte(s.tokenFor(s.bucket(offset)))) {
			return true
		}
	}
	return false
}
