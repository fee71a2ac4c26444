package internal

import (
	"crypto/subtle"
	"sort"
	"strings"

	"gitee.com/golang-module/dongle"
)

// hashField is excluded from every signed payload and appended afterwards.
const hashField = "hash"

// Sign computes the request hash for the gateway client API: field values are
// concatenated in ascending key order (values only, not keys), the shared
// secret is appended and the result is digested once. The hash field itself
// never takes part in the computation.
func Sign(fields map[string]string, secret string) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		if key == hashField {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var payload strings.Builder
	for _, key := range keys {
		payload.WriteString(fields[key])
	}
	payload.WriteString(secret)

	return dongle.Encrypt.FromString(payload.String()).ByMd5().ToHexString()
}

// ServerKeyDigest returns the digest of the shared secret sent as the key
// field on server API requests.
func ServerKeyDigest(secret string) string {
	return dongle.Encrypt.FromString(secret).ByMd5().ToHexString()
}

// VerifyHash recomputes the signature over fields and compares it with the
// received hash in constant time. The processor protocol does not require
// this check on responses; it is an optional hardening controlled by
// configuration.
func VerifyHash(fields map[string]string, secret, hash string) bool {
	expected := Sign(fields, secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(hash)) == 1
}
