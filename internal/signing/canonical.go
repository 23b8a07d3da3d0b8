package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"net/url"
	"sort"
	"strings"
)

type Digest int

const (
	SHA256 Digest = iota
	SHA512
)

type Encoding int

const (
	Hex Encoding = iota
	HexUpper
	Base64
)

// CanonicalQuery sorts params by key and joins them as key=value pairs with
// '&'. Values are query escaped; keys are expected to be plain identifiers.
func CanonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(escape(params[k]))
	}
	return b.String()
}

// escape matches RFC 3986 escaping, which is what the venues hash.
func escape(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}

func HMAC(digest Digest, key, message []byte) []byte {
	mac := hmac.New(hashFunc(digest), key)
	mac.Write(message)
	return mac.Sum(nil)
}

func Sum(digest Digest, message []byte) []byte {
	h := hashFunc(digest)()
	h.Write(message)
	return h.Sum(nil)
}

func Encode(enc Encoding, sum []byte) string {
	switch enc {
	case Base64:
		return base64.StdEncoding.EncodeToString(sum)
	case HexUpper:
		return strings.ToUpper(hex.EncodeToString(sum))
	default:
		return hex.EncodeToString(sum)
	}
}

func hashFunc(digest Digest) func() hash.Hash {
	if digest == SHA512 {
		return sha512.New
	}
	return sha256.New
}
