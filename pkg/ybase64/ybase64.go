// Package ybase64 implements the base64 variant ZMS uses for detached
// signatures and for public keys in athenz.conf: the standard alphabet with
// '+' and '/' replaced by '.' and '_', and '-' as the padding character.
// The output is safe in URLs, headers and file names without escaping.
package ybase64

import "encoding/base64"

var encoding = base64.NewEncoding("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789._").WithPadding('-')

func Encode(b []byte) string {
	return encoding.EncodeToString(b)
}

// Decode accepts ybase64 and, for records produced by older tooling, plain
// standard or URL-safe base64.
func Decode(s string) ([]byte, error) {
	b, err := encoding.DecodeString(s)
	if err == nil {
		return b, nil
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if alt, altErr := enc.DecodeString(s); altErr == nil {
			return alt, nil
		}
	}
	return nil, err
}
