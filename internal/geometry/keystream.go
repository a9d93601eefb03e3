package geometry

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// keystream is an HMAC-SHA256 counter-mode byte stream. Each block is
// HMAC(secret, prefix|c={counter}).
type keystream struct {
	secret  []byte
	prefix  string
	counter int
	buf     []byte
}

func newKeystream(secret []byte, mediaID int64, layout Layout) *keystream {
	return &keystream{
		secret: secret,
		prefix: fmt.Sprintf("v1|geom|m=%d|l=%s", mediaID, layout),
	}
}

func (k *keystream) refill() {
	h := hmac.New(sha256.New, k.secret)
	fmt.Fprintf(h, "%s|c=%d", k.prefix, k.counter)
	k.counter++
	k.buf = append(k.buf, h.Sum(nil)...)
}

// fraction returns the next big-endian uint32 divided by 2^32, in [0, 1).
func (k *keystream) fraction() float64 {
	if len(k.buf) < 4 {
		k.refill()
	}
	v := binary.BigEndian.Uint32(k.buf[:4])
	k.buf = k.buf[4:]
	return float64(v) / (1 << 32)
}
