// Package broker is the outbound client for the broker-aggregation API.
//
// The upstream signing contract is not stable from the caller's side, so
// every logical request walks a fixed chain of signing strategies and
// advances only when the upstream answers 401.
package broker

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// SigningMethod identifies one request-authentication construction
type SigningMethod int

const (
	PrimaryApiKey SigningMethod = iota
	HmacStandard
	HmacAlternate
	JsonContentSigned
	ApiKeyHeaderFallback
)

func (m SigningMethod) String() string {
	switch m {
	case PrimaryApiKey:
		return "primary_api_key"
	case HmacStandard:
		return "hmac_standard"
	case HmacAlternate:
		return "hmac_alternate"
	case JsonContentSigned:
		return "json_content_signed"
	case ApiKeyHeaderFallback:
		return "api_key_header_fallback"
	default:
		return "unknown"
	}
}

// Header names understood by the upstream
const (
	HeaderAPIKey           = "x-api-key"
	HeaderSignature        = "Signature"
	HeaderSignatureVersion = "Signature-Version"
	HeaderTimestamp        = "Timestamp"
	HeaderClientID         = "ClientId"
)

// Credentials are the application-level signing secrets
type Credentials struct {
	ClientID    string
	ConsumerKey string
}

// Request is one logical call before signing
type Request struct {
	Method string
	Path   string     // e.g. /api/v1/accounts
	Query  url.Values // endpoint params such as userId, userSecret
	Body   []byte     // JSON or nil
}

// Signed is a request ready to send
type Signed struct {
	Query  url.Values
	Header http.Header
	Body   []byte
}

// SignFunc is a pure function of its inputs
type SignFunc func(creds Credentials, req Request, timestamp int64) (Signed, error)

type Strategy struct {
	Method SigningMethod
	Sign   SignFunc
}

// DefaultChain returns the five strategies in the order they are tried
func DefaultChain() []Strategy {
	return []Strategy{
		{Method: PrimaryApiKey, Sign: signPrimaryAPIKey},
		{Method: HmacStandard, Sign: signHMACStandard},
		{Method: HmacAlternate, Sign: signHMACAlternate},
		{Method: JsonContentSigned, Sign: signJSONContent},
		{Method: ApiKeyHeaderFallback, Sign: signAPIKeyHeader},
	}
}

func baseSigned(req Request) Signed {
	query := url.Values{}
	for k, v := range req.Query {
		query[k] = append([]string(nil), v...)
	}
	header := http.Header{}
	if len(req.Body) > 0 {
		header.Set("Content-Type", "application/json")
	}
	header.Set("Accept", "application/json")
	return Signed{Query: query, Header: header, Body: req.Body}
}

func signPrimaryAPIKey(creds Credentials, req Request, _ int64) (Signed, error) {
	s := baseSigned(req)
	s.Query.Set("clientId", creds.ClientID)
	s.Header.Set(HeaderAPIKey, creds.ConsumerKey)
	return s, nil
}

// HMACHex returns hex(HMAC-SHA256(key, message))
func HMACHex(key, message string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func signHMAC(creds Credentials, req Request, timestamp int64, sep string) Signed {
	ts := strconv.FormatInt(timestamp, 10)
	s := baseSigned(req)
	s.Query.Set("clientId", creds.ClientID)
	s.Header.Set(HeaderSignature, HMACHex(creds.ConsumerKey, creds.ClientID+sep+ts))
	s.Header.Set(HeaderTimestamp, ts)
	s.Header.Set(HeaderClientID, creds.ClientID)
	return s
}

func signHMACStandard(creds Credentials, req Request, timestamp int64) (Signed, error) {
	return signHMAC(creds, req, timestamp, ""), nil
}

func signHMACAlternate(creds Credentials, req Request, timestamp int64) (Signed, error) {
	return signHMAC(creds, req, timestamp, "&"), nil
}

// signingEnvelope field order is part of the signed bytes
type signingEnvelope struct {
	Content json.RawMessage `json:"content"`
	Path    string          `json:"path"`
	Query   string          `json:"query"`
}

// CanonicalEnvelope renders the JSON document signed by JsonContentSigned.
// The body is compacted; an empty body is signed as null.
func CanonicalEnvelope(body []byte, path, query string) ([]byte, error) {
	var content json.RawMessage
	if len(bytes.TrimSpace(body)) > 0 {
		var compact bytes.Buffer
		if err := json.Compact(&compact, body); err != nil {
			return nil, fmt.Errorf("request body is not valid JSON: %w", err)
		}
		content = compact.Bytes()
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false) // the query's '&' is signed literally
	if err := enc.Encode(signingEnvelope{Content: content, Path: path, Query: query}); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func signJSONContent(creds Credentials, req Request, timestamp int64) (Signed, error) {
	ts := strconv.FormatInt(timestamp, 10)
	s := baseSigned(req)
	s.Query.Set("clientId", creds.ClientID)
	s.Query.Set("timestamp", ts)

	// url.Values.Encode sorts by key, which keeps the signed query stable
	envelope, err := CanonicalEnvelope(req.Body, req.Path, s.Query.Encode())
	if err != nil {
		return Signed{}, err
	}
	mac := hmac.New(sha256.New, []byte(creds.ConsumerKey))
	mac.Write(envelope)

	s.Header.Set(HeaderSignature, base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	s.Header.Set(HeaderSignatureVersion, "2")
	s.Header.Set(HeaderTimestamp, ts)
	s.Header.Set(HeaderClientID, creds.ClientID)
	return s, nil
}

func signAPIKeyHeader(creds Credentials, req Request, timestamp int64) (Signed, error) {
	ts := strconv.FormatInt(timestamp, 10)
	s := baseSigned(req)
	s.Query.Set("clientId", creds.ClientID)
	s.Query.Set("timestamp", ts)
	s.Header.Set(HeaderAPIKey, creds.ConsumerKey)
	s.Header.Set(HeaderTimestamp, ts)
	s.Header.Set(HeaderClientID, creds.ClientID)
	return s, nil
}
