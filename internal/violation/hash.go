package violation

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// DigestSize is the length of a violation digest in bytes.
const DigestSize = md5.Size

// ErrHashInput is returned when the hash input cannot identify a violation.
var ErrHashInput = errors.New("invalid violation hash input")

// Digest identifies "this rule fired for this semantic violation".
type Digest [DigestSize]byte

// String encodes the digest as standard base64 (24 characters).
func (d Digest) String() string {
	return base64.StdEncoding.EncodeToString(d[:])
}

// ParseDigest decodes the base64 form produced by Digest.String.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("decode digest %q: %w", s, err)
	}
	if len(raw) != DigestSize {
		return d, fmt.Errorf("decode digest %q: expected %d bytes, got %d", s, DigestSize, len(raw))
	}
	copy(d[:], raw)
	return d, nil
}

// Hash computes the identity digest for a rule and its violation-defining values.
//
// Values are treated as a set: they are de-duplicated and sorted before hashing,
// so enumeration order never changes the result. Every field is length-prefixed,
// which makes the encoding unambiguous without escaping delimiters.
func Hash(ruleID string, values []string) (Digest, error) {
	if ruleID == "" {
		return Digest{}, fmt.Errorf("%w: empty rule id", ErrHashInput)
	}

	canonical := canonicalValues(values)

	h := md5.New()
	var lenBuf [8]byte
	writeField := func(data []byte) {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(data)))
		h.Write(lenBuf[:])
		h.Write(data)
	}

	writeField([]byte(ruleID))
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(canonical)))
	h.Write(lenBuf[:])
	for _, v := range canonical {
		writeField([]byte(v))
	}

	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

func canonicalValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
