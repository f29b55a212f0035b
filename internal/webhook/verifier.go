package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Signature headers sent with every callback.
const (
	HeaderID        = "svix-id"
	HeaderTimestamp = "svix-timestamp"
	HeaderSignature = "svix-signature"
)

// DefaultTolerance is the accepted distance between the signed timestamp
// and the receiver's clock.
const DefaultTolerance = 5 * time.Minute

const (
	secretPrefix    = "whsec_"
	signatureScheme = "v1"
)

// Verification errors.
var (
	ErrNoSecret          = errors.New("webhook signing secret not configured")
	ErrMissingHeaders    = errors.New("missing signature headers")
	ErrInvalidTimestamp  = errors.New("invalid signature timestamp")
	ErrTimestampSkew     = errors.New("signature timestamp outside tolerance")
	ErrSignatureMismatch = errors.New("no matching signature")
)

// Verifier checks callback signatures.
type Verifier struct {
	key       []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier builds a verifier for secret. A "whsec_"-prefixed secret is
// base64 decoded; if decoding fails the full string is used as the key.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{key: decodeSecret(secret), tolerance: tolerance, now: time.Now}
}

func decodeSecret(secret string) []byte {
	if rest, ok := strings.CutPrefix(secret, secretPrefix); ok {
		if key, err := base64.StdEncoding.DecodeString(rest); err == nil {
			return key
		}
	}
	return []byte(secret)
}

// Configured reports whether a signing key is present.
func (v *Verifier) Configured() bool {
	return v != nil && len(v.key) > 0
}

// Verify authenticates body against the signature headers.
func (v *Verifier) Verify(header http.Header, body []byte) error {
	if !v.Configured() {
		return ErrNoSecret
	}

	id := header.Get(HeaderID)
	ts := header.Get(HeaderTimestamp)
	sigs := header.Get(HeaderSignature)
	if id == "" || ts == "" || sigs == "" {
		return ErrMissingHeaders
	}

	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTimestamp, ts)
	}
	skew := v.now().Sub(time.Unix(sec, 0))
	if skew > v.tolerance || skew < -v.tolerance {
		return ErrTimestampSkew
	}

	expected := []byte(v.sign(id, ts, body))
	for _, token := range strings.Fields(sigs) {
		scheme, sig, ok := strings.Cut(token, ",")
		if !ok || scheme != signatureScheme {
			continue
		}
		if hmac.Equal([]byte(sig), expected) {
			return nil
		}
	}
	return ErrSignatureMismatch
}

func (v *Verifier) sign(id, ts string, body []byte) string {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(id))
	mac.Write([]byte("."))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Sign returns the signature headers for body, for local testing and the
// operator CLI.
func Sign(secret, id string, at time.Time, body []byte) http.Header {
	v := &Verifier{key: decodeSecret(secret)}
	ts := strconv.FormatInt(at.Unix(), 10)
	h := http.Header{}
	h.Set(HeaderID, id)
	h.Set(HeaderTimestamp, ts)
	h.Set(HeaderSignature, signatureScheme+","+v.sign(id, ts, body))
	return h
}
