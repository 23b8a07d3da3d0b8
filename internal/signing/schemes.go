package signing

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kraken signs a private endpoint request:
// base64(HMAC-SHA512(base64decode(secret), path + SHA256(nonce + postdata))).
// postdata must already contain the nonce parameter.
func Kraken(secret, path string, nonce uint64, postData string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("kraken secret is not base64: %w", err)
	}
	inner := Sum(SHA256, []byte(strconv.FormatUint(nonce, 10)+postData))
	message := append([]byte(path), inner...)
	return Encode(Base64, HMAC(SHA512, key, message)), nil
}

// Bitstamp signs nonce + customer id + api key with HMAC-SHA256, upper hex.
func Bitstamp(secret, customerID, apiKey string, nonce uint64) (string, error) {
	if customerID == "" || apiKey == "" || secret == "" {
		return "", errors.New("bitstamp customer id, key and secret are required")
	}
	message := strconv.FormatUint(nonce, 10) + customerID + apiKey
	return Encode(HexUpper, HMAC(SHA256, []byte(secret), []byte(message))), nil
}

const huobiTimeLayout = "2006-01-02T15:04:05"

// HuobiParams adds the v2 authentication parameters to params and returns
// them with the Signature field set.
func HuobiParams(method, host, path, apiKey, secret string, params map[string]string, now time.Time) map[string]string {
	signed := make(map[string]string, len(params)+5)
	for k, v := range params {
		signed[k] = v
	}
	signed["AccessKeyId"] = apiKey
	signed["SignatureMethod"] = "HmacSHA256"
	signed["SignatureVersion"] = "2"
	signed["Timestamp"] = now.UTC().Format(huobiTimeLayout)
	payload := RequestPayload(method, host, path, signed)
	signed["Signature"] = Encode(Base64, HMAC(SHA256, []byte(secret), []byte(payload)))
	return signed
}

// RequestPayload is the METHOD\nhost\npath\ncanonical-query string signed by
// Huobi style venues.
func RequestPayload(method, host, path string, params map[string]string) string {
	return strings.Join([]string{
		strings.ToUpper(method),
		strings.ToLower(host),
		path,
		CanonicalQuery(params),
	}, "\n")
}

// WhaleExParams adds WhaleEx authentication parameters. The canonical string
// is built like Huobi's but the timestamp is unix milliseconds.
func WhaleExParams(method, host, path, apiKey, secret string, params map[string]string, now time.Time) map[string]string {
	signed := make(map[string]string, len(params)+5)
	for k, v := range params {
		signed[k] = v
	}
	signed["APIKey"] = apiKey
	signed["SignatureMethod"] = "HmacSHA256"
	signed["SignatureVersion"] = "1"
	signed["Timestamp"] = strconv.FormatInt(now.UnixMilli(), 10)
	payload := RequestPayload(method, host, path, signed)
	signed["Signature"] = Encode(Base64, HMAC(SHA256, []byte(secret), []byte(payload)))
	return signed
}
