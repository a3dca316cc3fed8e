package decoupled

import (
	"net/http"
	"strings"
)

// Inbound protocol
const (
	HeaderCartToken     = "Cart-Token"
	HeaderVerifiedEmail = "X-WooPay-Verified-Email-Address"

	DecoupledUserAgent = "WooPay"
	StoreAPIPathPrefix = "/wp-json/wc/store/"
)

// Request is what the resolver reads from an inbound request
type Request struct {
	CartToken     string
	VerifiedEmail string
	UserAgent     string
	Path          string
}

// RequestFromHTTP extracts the resolver inputs from r
func RequestFromHTTP(r *http.Request) Request {
	return Request{
		CartToken:     strings.TrimSpace(r.Header.Get(HeaderCartToken)),
		VerifiedEmail: strings.TrimSpace(r.Header.Get(HeaderVerifiedEmail)),
		UserAgent:     r.UserAgent(),
		Path:          r.URL.Path,
	}
}

// IsDecoupled reports whether the request comes from the remote checkout
// through the store API.
func (r Request) IsDecoupled() bool {
	return strings.Contains(r.UserAgent, DecoupledUserAgent) && strings.HasPrefix(r.Path, StoreAPIPathPrefix)
}
