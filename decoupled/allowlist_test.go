package decoupled

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowlistPermits(t *testing.T) {
	allowlist := Allowlist{"woocommerce-points-and-rewards", "woocommerce-gift-cards"}

	tests := []struct {
		name      string
		active    []string
		allowlist Allowlist
		want      bool
	}{
		{"all listed", []string{"woocommerce-points-and-rewards"}, allowlist, true},
		{"none active", nil, allowlist, true},
		{"one unlisted", []string{"woocommerce-points-and-rewards", "custom-session-plugin"}, allowlist, false},
		{"empty allowlist", nil, Allowlist{}, false},
		{"unset allowlist", []string{"woocommerce-points-and-rewards"}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AllowlistPermits(tt.active, tt.allowlist))
		})
	}
}

func TestParseAllowlist(t *testing.T) {
	assert.Equal(t, Allowlist{"a", "b"}, ParseAllowlist(" a, ,b,"))
	assert.Empty(t, ParseAllowlist(""))
}

func TestRequestFromHTTP(t *testing.T) {
	r := httptest.NewRequest("POST", "/wp-json/wc/store/v1/checkout", nil)
	r.Header.Set(HeaderCartToken, " tok ")
	r.Header.Set(HeaderVerifiedEmail, "a@x.com")
	r.Header.Set("User-Agent", "WooPay")

	req := RequestFromHTTP(r)
	assert.Equal(t, "tok", req.CartToken)
	assert.Equal(t, "a@x.com", req.VerifiedEmail)
	assert.True(t, req.IsDecoupled())

	assert.False(t, Request{UserAgent: "Mozilla/5.0", Path: "/wp-json/wc/store/v1/checkout"}.IsDecoupled())
	assert.False(t, Request{UserAgent: "WooPay", Path: "/checkout/"}.IsDecoupled())
}
