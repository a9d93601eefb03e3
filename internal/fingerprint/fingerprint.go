package fingerprint

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// IdentityBytes is the truncated HMAC length backing an Identity.
const IdentityBytes = 16

var (
	ErrEmptySecret     = errors.New("fingerprint secret is empty")
	ErrInvalidUserID   = errors.New("user id must be positive")
	ErrInvalidMediaID  = errors.New("media id must be positive")
	ErrInvalidIdentity = errors.New("fingerprint identity must be 32 lowercase hex characters")
)

// Variant is one of the two renditions a segment can be served from.
type Variant byte

const (
	// VariantNone marks an observed sample too weak to classify.
	VariantNone Variant = 0
	VariantA    Variant = 'A'
	VariantB    Variant = 'B'
)

// String returns "A", "B" or "?" for VariantNone.
func (v Variant) String() string {
	if v == VariantNone {
		return "?"
	}
	return string(v)
}

// Dir returns the rendition subdirectory name for the variant.
func (v Variant) Dir() string {
	return strings.ToLower(string(v))
}

// Identity is the opaque 32-hex-character fingerprint of a (user, media) pair.
type Identity string

// ParseIdentity validates s as an Identity.
func ParseIdentity(s string) (Identity, error) {
	if len(s) != IdentityBytes*2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentity, s)
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("%w: %q", ErrInvalidIdentity, s)
		}
	}
	return Identity(s), nil
}

// Oracle computes identities and expected variant bits under one secret.
// It holds no mutable state and is safe for concurrent use.
type Oracle struct {
	secret []byte
}

// NewOracle returns an Oracle keyed by secret.
func NewOracle(secret string) (*Oracle, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Oracle{secret: []byte(secret)}, nil
}

// IdentityFor returns the canonical identity for a viewer of a media item.
// The first 16 bytes of HMAC-SHA256(secret, "v1|u{user}|m{media}"), hex encoded.
func (o *Oracle) IdentityFor(userID, mediaID int64) (Identity, error) {
	if userID <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidUserID, userID)
	}
	if mediaID <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidMediaID, mediaID)
	}

	sum := o.mac(fmt.Sprintf("v1|u%d|m%d", userID, mediaID))
	return Identity(hex.EncodeToString(sum[:IdentityBytes])), nil
}

// ExpectedBit returns the variant served to identity for a segment.
// Negative segment indices are clamped to zero.
func (o *Oracle) ExpectedBit(id Identity, mediaID int64, segment int) (Variant, error) {
	if err := validate(id, mediaID); err != nil {
		return 0, err
	}
	return o.bit(id, mediaID, segment), nil
}

// Sequence returns the expected variants for segments start..start+n-1.
func (o *Oracle) Sequence(id Identity, mediaID int64, start, n int) ([]Variant, error) {
	if err := validate(id, mediaID); err != nil {
		return nil, err
	}
	if n < 0 {
		n = 0
	}

	seq := make([]Variant, n)
	for i := range seq {
		seq[i] = o.bit(id, mediaID, start+i)
	}
	return seq, nil
}

func (o *Oracle) bit(id Identity, mediaID int64, segment int) Variant {
	if segment < 0 {
		segment = 0
	}
	sum := o.mac(fmt.Sprintf("v1|fp=%s|m=%d|s=%d", id, mediaID, segment))
	if sum[0]&1 == 0 {
		return VariantA
	}
	return VariantB
}

func (o *Oracle) mac(msg string) []byte {
	h := hmac.New(sha256.New, o.secret)
	h.Write([]byte(msg))
	return h.Sum(nil)
}

func validate(id Identity, mediaID int64) error {
	if _, err := ParseIdentity(string(id)); err != nil {
		return err
	}
	if mediaID <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMediaID, mediaID)
	}
	return nil
}
