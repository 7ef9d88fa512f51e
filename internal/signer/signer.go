// Package signer implements AWS Signature Version 4 request signing for
// S3-compatible endpoints.
//
// Signing is a pure function of the request descriptor, the credentials, and
// the signing time: identical inputs always produce identical signatures.
// Callers must sign immediately before dispatch, since servers reject
// requests whose timestamp drifts outside their skew tolerance.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	oserrors "gominio/errors"
	"gominio/storetypes"
)

const (
	// Algorithm is the signing scheme identifier attached to requests.
	Algorithm = "AWS4-HMAC-SHA256"

	// ServiceName is the service component of the credential scope.
	ServiceName = "s3"

	// UnsignedPayload is the payload hash placeholder for streamed bodies
	// whose digest is not known up front.
	UnsignedPayload = "UNSIGNED-PAYLOAD"

	// EmptyPayloadHash is the SHA-256 of a zero-byte payload.
	EmptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	timeFormat = "20060102T150405Z"
	dateFormat = "20060102"
)

// Sign computes the Signature Version 4 authorization for req and attaches
// the resulting headers (Host, X-Amz-Date, X-Amz-Content-Sha256, optional
// X-Amz-Security-Token, Authorization) in place.
//
// payloadHash must be the lowercase hex SHA-256 of the request body,
// EmptyPayloadHash for bodies of length zero, or UnsignedPayload when the
// body is streamed without a precomputed digest.
func Sign(req *http.Request, creds storetypes.Credentials, region string, payloadHash string, signingTime time.Time) error {
	if creds.IsZero() {
		return oserrors.ErrCredentialsMissing
	}
	if payloadHash == "" {
		payloadHash = EmptyPayloadHash
	}

	signingTime = signingTime.UTC()
	amzDate := signingTime.Format(timeFormat)
	dateStamp := signingTime.Format(dateFormat)

	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	req.Header.Set("X-Amz-Date", amzDate)
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)
	if creds.SessionToken != "" {
		req.Header.Set("X-Amz-Security-Token", creds.SessionToken)
	}

	signedNames := signedHeaderNames(req)
	canonicalReq := buildCanonicalRequest(req, host, signedNames, payloadHash)
	crHash := sha256.Sum256([]byte(canonicalReq))

	scope := strings.Join([]string{dateStamp, region, ServiceName, "aws4_request"}, "/")
	stringToSign := Algorithm + "\n" + amzDate + "\n" + scope + "\n" + hex.EncodeToString(crHash[:])

	signingKey := deriveSigningKey(creds.SecretKey, dateStamp, region)
	signature := hex.EncodeToString(hmacSHA256(signingKey, stringToSign))

	auth := Algorithm + " " +
		"Credential=" + creds.AccessKey + "/" + scope + ", " +
		"SignedHeaders=" + strings.Join(signedNames, ";") + ", " +
		"Signature=" + signature
	req.Header.Set("Authorization", auth)

	return nil
}

// signedHeaderNames returns the lowercase, sorted header names included in
// the signature. Host is always signed; everything else already set on the
// request is signed except headers that proxies commonly rewrite.
func signedHeaderNames(req *http.Request) []string {
	names := []string{"host"}
	for name := range req.Header {
		lower := strings.ToLower(name)
		switch lower {
		case "authorization", "user-agent", "accept-encoding", "connection":
			continue
		}
		names = append(names, lower)
	}
	sort.Strings(names)
	return names
}

func buildCanonicalRequest(req *http.Request, host string, signedNames []string, payloadHash string) string {
	var hdr strings.Builder
	for _, name := range signedNames {
		var value string
		if name == "host" {
			value = host
		} else {
			value = req.Header.Get(name)
		}
		hdr.WriteString(name)
		hdr.WriteString(":")
		hdr.WriteString(canonicalHeaderValue(value))
		hdr.WriteString("\n")
	}

	var b strings.Builder
	b.WriteString(req.Method)
	b.WriteString("\n")
	b.WriteString(uriEncode(req.URL.EscapedPath(), false))
	b.WriteString("\n")
	b.WriteString(canonicalQueryString(req.URL))
	b.WriteString("\n")
	b.WriteString(hdr.String())
	b.WriteString("\n")
	b.WriteString(strings.Join(signedNames, ";"))
	b.WriteString("\n")
	b.WriteString(payloadHash)
	return b.String()
}

// canonicalQueryString sorts query parameters by key and value and encodes
// them with the strict URI encoding the signature scheme requires.
func canonicalQueryString(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}

	values := u.Query()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		vs := values[k]
		sort.Strings(vs)
		for _, v := range vs {
			parts = append(parts, uriEncode(k, true)+"="+uriEncode(v, true))
		}
	}
	return strings.Join(parts, "&")
}

// canonicalHeaderValue trims and collapses internal runs of whitespace.
func canonicalHeaderValue(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	return strings.Join(strings.Fields(v), " ")
}

// uriEncode percent-encodes per the SigV4 rules: unreserved characters pass
// through, everything else becomes uppercase %XX. Slashes are preserved in
// path mode.
func uriEncode(s string, encodeSlash bool) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
			c == '-' || c == '_' || c == '.' || c == '~' {
			b.WriteByte(c)
			continue
		}
		if c == '/' && !encodeSlash {
			b.WriteByte(c)
			continue
		}
		if c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			// Already percent-encoded by EscapedPath; normalize to uppercase.
			b.WriteByte('%')
			b.WriteString(strings.ToUpper(s[i+1 : i+3]))
			i += 2
			continue
		}
		b.WriteString("%")
		b.WriteString(strings.ToUpper(hex.EncodeToString([]byte{c})))
	}
	return b.String()
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// deriveSigningKey chains the date, region, and service HMACs off the
// secret key per the SigV4 key derivation.
func deriveSigningKey(secretKey, dateStamp, region string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secretKey), dateStamp)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, ServiceName)
	return hmacSHA256(kService, "aws4_request")
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

// HashPayload returns the lowercase hex SHA-256 of data, the form expected
// in the X-Amz-Content-Sha256 header.
func HashPayload(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
