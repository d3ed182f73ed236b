package reqauth

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Signed request headers
const (
	HeaderSignature     = "X-Signature"
	HeaderTimestamp     = "X-Timestamp"
	HeaderNonce         = "X-Nonce"
	HeaderAuthorization = "Authorization"

	bearerPrefix = "Bearer "
)

// Request is an inbound signed request. Body must hold the exact bytes received.
type Request struct {
	Timestamp     string
	Nonce         string
	Signature     string
	Authorization string
	Body          []byte
}

// RequestFromHTTP collects the signing headers of r. body must be read before any parsing.
func RequestFromHTTP(r *http.Request, body []byte) Request {
	return Request{
		Timestamp:     r.Header.Get(HeaderTimestamp),
		Nonce:         r.Header.Get(HeaderNonce),
		Signature:     r.Header.Get(HeaderSignature),
		Authorization: r.Header.Get(HeaderAuthorization),
		Body:          body,
	}
}

// bearerToken extracts the credential of an "Authorization: Bearer <token>" header.
func bearerToken(header string) (string, bool) {
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

// Headers are the values a caller sends along with a signed body.
type Headers struct {
	Timestamp     string
	Nonce         string
	Signature     string
	Authorization string
}

func (h Headers) Apply(hdr http.Header) {
	hdr.Set(HeaderTimestamp, h.Timestamp)
	hdr.Set(HeaderNonce, h.Nonce)
	hdr.Set(HeaderSignature, h.Signature)
	if h.Authorization != "" {
		hdr.Set(HeaderAuthorization, h.Authorization)
	}
}

// Signer signs outbound server-to-server requests.
type Signer struct {
	secret   string
	bearer   string
	NowFunc  func() time.Time // mockable
	NewNonce func() string    // mockable
}

func NewSigner(secret, bearer string) *Signer {
	return &Signer{
		secret:   secret,
		bearer:   bearer,
		NowFunc:  time.Now,
		NewNonce: uuid.NewString,
	}
}

// Sign stamps body with the current time and a fresh nonce.
func (s *Signer) Sign(body []byte) Headers {
	return s.SignWith(strconv.FormatInt(s.NowFunc().Unix(), 10), s.NewNonce(), body)
}

// SignWith signs body with the given timestamp and nonce.
func (s *Signer) SignWith(timestamp, nonce string, body []byte) Headers {
	h := Headers{
		Timestamp: timestamp,
		Nonce:     nonce,
		Signature: ComputeSignature(s.secret, timestamp, nonce, body),
	}
	if s.bearer != "" {
		h.Authorization = bearerPrefix + s.bearer
	}
	return h
}

// NewRequest builds a signed JSON request.
func (s *Signer) NewRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	if err := ValidateSecret(s.secret); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")
	s.Sign(body).Apply(req.Header)
	return req, nil
}
