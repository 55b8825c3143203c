// Package domain defines the core identifiers and entities shared across the
// gateway's stores, runner, and HTTP surface: content-addressed Input/Version
// ids, completion ids, and the Experiment/Deployment/Annotation/View model.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"golang.org/x/crypto/blake2s"
)

// contentHashLength is the number of hex characters kept from the BLAKE2s
// digest for content-addressed ids. Not a security boundary: collisions only
// cost a cache miss, never an authorization bypass.
const contentHashLength = 32

// HashObject computes a stable content hash for v by marshaling it to JSON
// with sorted keys and hashing the result with BLAKE2s, truncated to
// contentHashLength hex characters. It is used to derive Input and Version
// ids so that identical content always resolves to the same id without a
// round trip to the store.
//
// This is not a security hash; SecureHash exists for that.
func HashObject(v any) (string, error) {
	canon, err := canonicalJSON(v)
	if err != nil {
		return "", err
	}
	return HashString(canon), nil
}

// HashString returns the BLAKE2s digest of s as a lowercase hex string,
// truncated to contentHashLength characters.
func HashString(s string) string {
	sum := blake2s.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:contentHashLength]
}

// SecureHash returns the full SHA-256 digest of s as a lowercase hex string.
// Use this, never HashString, for anything security-sensitive such as
// at-rest API key hashing: BLAKE2s here is chosen for speed over a content
// hash that is never compared in a security context.
func SecureHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// canonicalJSON marshals v with map keys sorted so that the resulting bytes
// are a deterministic function of v's content, independent of struct field
// order or map iteration order.
func canonicalJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}
	var buf []byte
	buf, err = appendCanonical(buf, generic)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func appendCanonical(buf []byte, v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, kb...)
			buf = append(buf, ':')
			buf, err = appendCanonical(buf, val[k])
			if err != nil {
				return nil, err
			}
		}
		buf = append(buf, '}')
		return buf, nil
	case []any:
		buf = append(buf, '[')
		for i, elem := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			buf, err = appendCanonical(buf, elem)
			if err != nil {
				return nil, err
			}
		}
		buf = append(buf, ']')
		return buf, nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return append(buf, b...), nil
	}
}
