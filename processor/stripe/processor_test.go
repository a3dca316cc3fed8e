package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stripe/stripe-go/v78"

	checkout "github.com/payelement/checkout/go"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantProcessor *checkout.ProcessorError
	}{
		{
			name: "card declined",
			err: &stripe.Error{
				Type:        stripe.ErrorTypeCard,
				Code:        stripe.ErrorCodeCardDeclined,
				DeclineCode: stripe.DeclineCodeInsufficientFunds,
				Msg:         "Your card has insufficient funds.",
				ChargeID:    "ch_1",
			},
			wantProcessor: &checkout.ProcessorError{
				Message: "Your card has insufficient funds.",
				Charge:  "ch_1",
				Code:    "insufficient_funds",
				Type:    "card_error",
			},
		},
		{
			name: "invalid request",
			err:  &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, Code: stripe.ErrorCodeResourceMissing, Msg: "No such payment_intent"},
			wantProcessor: &checkout.ProcessorError{
				Message: "No such payment_intent",
				Code:    "resource_missing",
				Type:    "invalid_request_error",
			},
		},
		{
			name: "api error",
			err:  &stripe.Error{Type: stripe.ErrorTypeAPI, Msg: "internal"},
		},
		{
			name: "network",
			err:  errors.New("connection reset"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := mapError(tt.err)
			pe, ok := checkout.AsProcessorError(mapped)
			if tt.wantProcessor == nil {
				if ok {
					t.Fatalf("Expected a generic error, got %v", pe)
				}
				if !errors.Is(mapped, tt.err) {
					t.Error("Expected the cause to be wrapped")
				}
				return
			}
			if diff := cmp.Diff(tt.wantProcessor, pe); diff != "" {
				t.Errorf("Processor error mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPaymentResult(t *testing.T) {
	p := &Processor{newNonce: func() string { return "nonce1" }}

	result := p.paymentResult(&stripe.PaymentIntent{
		ID:           "pi_1",
		ClientSecret: "pi_1_secret_x",
		Status:       stripe.PaymentIntentStatusRequiresAction,
		Metadata:     map[string]string{MetadataOrderID: "42"},
	})
	if result.RedirectURL != "#wcpay-confirm-pi:42:pi_1_secret_x:nonce1" {
		t.Errorf("Expected confirmation marker, got %s", result.RedirectURL)
	}
	pending, ok := checkout.ParseConfirmationMarker(result.RedirectURL)
	if !ok || pending.OrderID != "42" || pending.IntentID() != "pi_1" {
		t.Errorf("Expected a marker the checkout can resume from, got %+v", pending)
	}

	result = p.paymentResult(&stripe.PaymentIntent{
		ID:     "pi_2",
		Status: stripe.PaymentIntentStatusRequiresAction,
		NextAction: &stripe.PaymentIntentNextAction{
			RedirectToURL: &stripe.PaymentIntentNextActionRedirectToURL{URL: "https://bank.test/auth"},
		},
	})
	if result.RedirectURL != "https://bank.test/auth" {
		t.Errorf("Expected offsite redirect, got %s", result.RedirectURL)
	}

	result = p.paymentResult(&stripe.PaymentIntent{ID: "pi_3", Status: stripe.PaymentIntentStatusSucceeded})
	if result.RedirectURL != "" || result.Status != checkout.StatusSucceeded {
		t.Errorf("Expected plain success, got %+v", result)
	}

	setup := p.setupResult(&stripe.SetupIntent{ID: "seti_1", ClientSecret: "seti_1_secret_x", Status: stripe.SetupIntentStatusRequiresAction})
	if setup.RedirectURL != "#wcpay-confirm-si:0:seti_1_secret_x:nonce1" {
		t.Errorf("Expected setup marker, got %s", setup.RedirectURL)
	}
}

func TestShippingParams(t *testing.T) {
	if shippingParams(nil) != nil {
		t.Error("Expected nil params without shipping")
	}
	params := shippingParams(&checkout.ShippingDetails{
		Name:    "Ada",
		Address: checkout.Address{Line1: "1 Main St", City: "Springfield", Country: "US"},
	})
	if *params.Name != "Ada" || *params.Address.Country != "US" {
		t.Errorf("Unexpected params %+v", params)
	}
	if params.Address.Line2 != nil || params.Phone != nil {
		t.Error("Expected empty optional fields to be omitted")
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New("", nil); !errors.Is(err, ErrMissingKey) {
		t.Errorf("Expected ErrMissingKey, got %v", err)
	}
}

// newTestProcessor points the Stripe client at a local server
func newTestProcessor(t *testing.T, handler http.HandlerFunc) *Processor {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(server.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	pricer := PricerFunc(func(ctx context.Context, fp checkout.Fingerprint, orderID string) (int64, string, error) {
		if orderID == "free" {
			return 0, "usd", nil
		}
		return 1250, "usd", nil
	})
	p, err := New("sk_test_123", pricer,
		WithBackends(&stripe.Backends{API: backend, Connect: backend, Uploads: backend}),
		WithOrderReceivedURL("https://store.test/order-received/"))
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}
	return p
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestProcessorCreateIntent(t *testing.T) {
	p := newTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		_ = r.ParseForm()
		if r.PostForm.Get("amount") != "1250" {
			t.Errorf("Expected amount 1250, got %s", r.PostForm.Get("amount"))
		}
		if r.PostForm.Get("metadata[cart_fingerprint]") != "cart_1" {
			t.Errorf("Expected fingerprint metadata, got %s", r.PostForm.Get("metadata[cart_fingerprint]"))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":            "pi_1",
			"object":        "payment_intent",
			"client_secret": "pi_1_secret_x",
			"status":        "requires_payment_method",
			"amount":        1250,
			"currency":      "usd",
		})
	})

	intent, err := p.CreateIntent(context.Background(), "cart_1", "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := &checkout.Intent{
		ID:           "pi_1",
		ClientSecret: "pi_1_secret_x",
		Kind:         checkout.KindPayment,
		Status:       checkout.StatusRequiresPaymentMethod,
		Amount:       1250,
		Currency:     "usd",
	}
	if diff := cmp.Diff(want, intent); diff != "" {
		t.Errorf("Intent mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessorConfirmAttachesBilling(t *testing.T) {
	var paths []string
	var billing map[string]string
	p := newTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if err := r.ParseForm(); err != nil {
			t.Errorf("Failed to parse form: %v", err)
		}
		if strings.HasPrefix(r.URL.Path, "/v1/payment_methods/") {
			billing = map[string]string{
				"name":    r.PostForm.Get("billing_details[name]"),
				"email":   r.PostForm.Get("billing_details[email]"),
				"country": r.PostForm.Get("billing_details[address][country]"),
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"id": "pm_card_visa", "object": "payment_method"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": "pi_1", "object": "payment_intent", "status": "succeeded"})
	})

	elements := checkout.NewTokenElements("pi_1_secret_x", "pm_card_visa")
	params := checkout.ConfirmParams{BillingDetails: &checkout.BillingDetails{
		Name:    "Ada Shopper",
		Email:   "ada@example.com",
		Address: checkout.Address{Country: "DE"},
	}}
	if _, err := p.Confirm(context.Background(), elements, params, elements.ClientSecret()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	wantPaths := []string{"/v1/payment_methods/pm_card_visa", "/v1/payment_intents/pi_1/confirm"}
	if diff := cmp.Diff(wantPaths, paths); diff != "" {
		t.Errorf("Request mismatch (-want +got):\n%s", diff)
	}
	wantBilling := map[string]string{"name": "Ada Shopper", "email": "ada@example.com", "country": "DE"}
	if diff := cmp.Diff(wantBilling, billing); diff != "" {
		t.Errorf("Billing mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessorConfirmDeclined(t *testing.T) {
	p := newTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/confirm") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		writeJSON(w, http.StatusPaymentRequired, map[string]interface{}{
			"error": map[string]interface{}{
				"type":    "card_error",
				"code":    "card_declined",
				"message": "Your card was declined.",
				"charge":  "ch_9",
			},
		})
	})

	elements := checkout.NewTokenElements("pi_1_secret_x", "pm_card_chargeDeclined")
	_, err := p.Confirm(context.Background(), elements, checkout.ConfirmParams{}, elements.ClientSecret())
	pe, ok := checkout.AsProcessorError(err)
	if !ok {
		t.Fatalf("Expected a processor error, got %v", err)
	}
	if pe.Charge != "ch_9" || pe.Code != "card_declined" {
		t.Errorf("Unexpected processor error %+v", pe)
	}
}

func TestProcessorConfirmIncomplete(t *testing.T) {
	p := newTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("Expected no request")
	})
	_, err := p.Confirm(context.Background(), checkout.NewTokenElements("pi_1_secret_x", ""), checkout.ConfirmParams{}, "")
	if pe, ok := checkout.AsProcessorError(err); !ok || pe.Type != "validation_error" {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestProcessorUpdateIntent(t *testing.T) {
	t.Run("free order needs no payment", func(t *testing.T) {
		p := newTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/search") {
				writeJSON(w, http.StatusOK, map[string]interface{}{"object": "search_result", "data": []interface{}{}, "has_more": false})
				return
			}
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		})
		resp, err := p.UpdateIntent(context.Background(), checkout.UpdateIntentRequest{IntentID: "pi_1", OrderID: "free"})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if resp.NeedsPayment() {
			t.Error("Expected no payment needed")
		}
	})

	t.Run("order paid by another intent", func(t *testing.T) {
		p := newTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"object":   "search_result",
				"has_more": false,
				"data": []interface{}{
					map[string]interface{}{"id": "pi_old", "object": "payment_intent", "status": "succeeded"},
				},
			})
		})
		resp, err := p.UpdateIntent(context.Background(), checkout.UpdateIntentRequest{IntentID: "pi_1", OrderID: "7"})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if !resp.Duplicate {
			t.Error("Expected duplicate")
		}
		if resp.RedirectURL != "https://store.test/order-received/7" {
			t.Errorf("Expected order received URL, got %s", resp.RedirectURL)
		}
	})

	t.Run("order id is quoted in the search", func(t *testing.T) {
		var query string
		p := newTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/search") {
				query = r.URL.Query().Get("query")
				writeJSON(w, http.StatusOK, map[string]interface{}{"object": "search_result", "data": []interface{}{}, "has_more": false})
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"id": "pi_1", "object": "payment_intent"})
		})
		if _, err := p.UpdateIntent(context.Background(), checkout.UpdateIntentRequest{IntentID: "pi_1", OrderID: `7' OR status:'succeeded`}); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		want := `metadata['order_id']:'7\' OR status:\'succeeded' AND status:'succeeded'`
		if query != want {
			t.Errorf("Expected escaped query %q, got %q", want, query)
		}
	})
}
