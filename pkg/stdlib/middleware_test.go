package stdlib

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payelement/checkout/go/decoupled"
)

const adaptedPlugin = "woocommerce-points-and-rewards"

type whoami struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email"`
	Decoupled bool   `json:"decoupled"`
}

func TestDecoupledCheckout(t *testing.T) {
	store := decoupled.NewMemoryStore()
	userID := store.AddUser("shopper@example.com")
	store.PutSession("cart_1", decoupled.SessionCustomer{ID: "0", Email: "shopper@example.com"})

	codec, err := decoupled.NewTokenCodec([]byte("stdlib-test-secret"))
	require.NoError(t, err)
	token, err := codec.Issue("cart_1", 0)
	require.NoError(t, err)

	resolver := decoupled.NewResolver(codec, store, store,
		decoupled.WithAllowlist(decoupled.Allowlist{adaptedPlugin}),
		decoupled.WithRuntime(decoupled.StaticRuntime{Enabled: true}))

	handler := DecoupledCheckout(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(whoami{
			UserID:    UserID(r.Context()),
			Email:     VerifiedEmail(r.Context()),
			Decoupled: IsDecoupled(r.Context()),
		})
	}))

	call := func(t *testing.T, headers map[string]string) whoami {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, decoupled.StoreAPIPathPrefix+"v1/cart", nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var got whoami
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		return got
	}

	t.Run("verified email", func(t *testing.T) {
		got := call(t, map[string]string{
			decoupled.HeaderCartToken:     token,
			decoupled.HeaderVerifiedEmail: "shopper@example.com",
			"User-Agent":                  decoupled.DecoupledUserAgent,
		})
		assert.Equal(t, whoami{UserID: userID, Email: "shopper@example.com", Decoupled: true}, got)
	})

	t.Run("authenticated cart ignores a foreign hint", func(t *testing.T) {
		ownerToken, err := codec.Issue("cart_owner", 99)
		require.NoError(t, err)
		got := call(t, map[string]string{
			decoupled.HeaderCartToken:     ownerToken,
			decoupled.HeaderVerifiedEmail: "shopper@example.com",
			"User-Agent":                  decoupled.DecoupledUserAgent,
		})
		assert.Equal(t, whoami{UserID: 99, Decoupled: true}, got)
	})

	t.Run("forged token degrades to guest", func(t *testing.T) {
		got := call(t, map[string]string{
			decoupled.HeaderCartToken:     "forged",
			decoupled.HeaderVerifiedEmail: "shopper@example.com",
			"User-Agent":                  decoupled.DecoupledUserAgent,
		})
		assert.Equal(t, int64(0), got.UserID)
		assert.Empty(t, got.Email)
	})

	t.Run("no cart token", func(t *testing.T) {
		assert.Equal(t, whoami{}, call(t, nil))
	})
}
