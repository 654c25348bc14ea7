// Package signing computes request signatures using the AWS Signature
// Version 4 scheme required by the partner API.
//
// Signing is a pure function of the request, the body hash, the signing
// identity, and the clock: identical inputs always produce identical
// signatures. The signing key is derived fresh for every request from
// the request's UTC date (the derived chain is date-scoped and must not
// be cached across date boundaries). The secret and all derived keys
// stay inside this package; they are never logged and never attached to
// the request.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	algorithm       = "AWS4-HMAC-SHA256"
	scopeTerminator = "aws4_request"
	amzDateFormat   = "20060102T150405Z"
	scopeDateFormat = "20060102"
)

// EmptyBodyHash is the hex SHA-256 of an empty payload, used for
// requests without a body.
const EmptyBodyHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// ignoredHeaders are never part of the canonical header set, so they
// may change after signing without invalidating the signature.
var ignoredHeaders = map[string]struct{}{
	"authorization":   {},
	"user-agent":      {},
	"content-length":  {},
	"connection":      {},
	"x-amzn-trace-id": {},
}

// Identity is the signing identity: key pair plus region/service scope.
type Identity struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string

	// Service is the credential scope service (default: execute-api).
	Service string
}

// Signer signs requests for one identity.
type Signer struct {
	identity Identity
}

// New creates a Signer.
func New(identity Identity) (*Signer, error) {
	if identity.AccessKeyID == "" {
		return nil, fmt.Errorf("signing: access key id is required")
	}
	if identity.SecretAccessKey == "" {
		return nil, fmt.Errorf("signing: secret access key is required")
	}
	if identity.Region == "" {
		return nil, fmt.Errorf("signing: region is required")
	}
	if identity.Service == "" {
		identity.Service = "execute-api"
	}
	return &Signer{identity: identity}, nil
}

// Sign computes the signature for req at the given instant and sets the
// x-amz-date and Authorization headers. bodyHash is the hex SHA-256 of
// the request payload (EmptyBodyHash when there is none). All headers
// already on the request, except the ignored set, become part of the
// signed header list, so callers must add headers before signing.
func (s *Signer) Sign(req *http.Request, bodyHash string, at time.Time) error {
	if req == nil {
		return fmt.Errorf("signing: request cannot be nil")
	}
	if bodyHash == "" {
		bodyHash = EmptyBodyHash
	}

	at = at.UTC()
	amzDate := at.Format(amzDateFormat)
	scopeDate := at.Format(scopeDateFormat)

	req.Header.Set("x-amz-date", amzDate)

	canonical, signedHeaders := canonicalRequest(req, bodyHash)

	scope := strings.Join([]string{scopeDate, s.identity.Region, s.identity.Service, scopeTerminator}, "/")
	stringToSign := strings.Join([]string{
		algorithm,
		amzDate,
		scope,
		hashHex(canonical),
	}, "\n")

	key := s.signingKey(scopeDate)
	signature := hex.EncodeToString(hmacSHA256(key, stringToSign))

	req.Header.Set("Authorization", fmt.Sprintf(
		"%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		algorithm, s.identity.AccessKeyID, scope, signedHeaders, signature,
	))

	return nil
}

// signingKey derives the date-scoped key: each stage's output keys the
// next hash (secret -> date -> region -> service -> terminator).
func (s *Signer) signingKey(scopeDate string) []byte {
	key := hmacSHA256([]byte("AWS4"+s.identity.SecretAccessKey), scopeDate)
	key = hmacSHA256(key, s.identity.Region)
	key = hmacSHA256(key, s.identity.Service)
	return hmacSHA256(key, scopeTerminator)
}

// canonicalRequest builds the canonical request string and the
// signed-header list for req.
func canonicalRequest(req *http.Request, bodyHash string) (string, string) {
	uri := req.URL.EscapedPath()
	if uri == "" {
		uri = "/"
	}

	host := req.Host
	if host == "" {
		host = req.URL.Host
	}

	// Lower-cased header names, sorted, values trimmed with internal
	// runs of whitespace collapsed.
	headerValues := map[string]string{"host": host}
	for name, values := range req.Header {
		lower := strings.ToLower(name)
		if _, ignored := ignoredHeaders[lower]; ignored {
			continue
		}
		trimmed := make([]string, len(values))
		for i, v := range values {
			trimmed[i] = strings.Join(strings.Fields(v), " ")
		}
		headerValues[lower] = strings.Join(trimmed, ",")
	}

	names := make([]string, 0, len(headerValues))
	for name := range headerValues {
		names = append(names, name)
	}
	sort.Strings(names)
	signedHeaders := strings.Join(names, ";")

	var b strings.Builder
	b.WriteString(req.Method)
	b.WriteByte('\n')
	b.WriteString(uri)
	b.WriteByte('\n')
	b.WriteString(CanonicalQuery(req.URL.Query()))
	b.WriteByte('\n')
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(headerValues[name])
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(signedHeaders)
	b.WriteByte('\n')
	b.WriteString(bodyHash)

	return b.String(), signedHeaders
}

// CanonicalQuery sorts query pairs by key then value and percent-encodes
// both with the unreserved-only alphabet the signature scheme requires
// (url.Values.Encode is close but encodes spaces as '+'). Callers build
// the wire query string with it so the sent form matches the signed form.
func CanonicalQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var pairs []string
	for _, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			pairs = append(pairs, uriEncode(k)+"="+uriEncode(v))
		}
	}
	return strings.Join(pairs, "&")
}

// uriEncode percent-encodes everything outside the unreserved set.
func uriEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z',
			c >= 'a' && c <= 'z',
			c >= '0' && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// HashPayload returns the hex SHA-256 of a request body.
func HashPayload(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}
