package checkout

import (
	"context"
	"net/url"
	"testing"
)

func TestParseConfirmationMarker(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		ok       bool
		kind     IntentKind
		orderID  string
		secret   string
	}{
		{"payment", "#wcpay-confirm-pi:42:pi_1_secret_x:nonce1", true, KindPayment, "42", "pi_1_secret_x"},
		{"setup without hash", "wcpay-confirm-si:43:seti_1_secret_y:nonce2", true, KindSetup, "43", "seti_1_secret_y"},
		{"unknown kind", "#wcpay-confirm-xx:42:s:n", false, "", "", ""},
		{"missing part", "#wcpay-confirm-pi:42:pi_1_secret_x", false, "", "", ""},
		{"empty part", "#wcpay-confirm-pi::pi_1_secret_x:n", false, "", "", ""},
		{"other fragment", "#payment", false, "", "", ""},
		{"empty", "", false, "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pending, ok := ParseConfirmationMarker(tt.fragment)
			if ok != tt.ok {
				t.Fatalf("Expected ok=%v, got %v", tt.ok, ok)
			}
			if !ok {
				return
			}
			if pending.Kind != tt.kind || pending.OrderID != tt.orderID || pending.ClientSecret != tt.secret {
				t.Errorf("Unexpected pending authentication: %+v", pending)
			}
		})
	}
}

func TestPendingAuthentication_IntentID(t *testing.T) {
	p := PendingAuthentication{ClientSecret: "pi_123_secret_abc"}
	if p.IntentID() != "pi_123" {
		t.Errorf("Expected pi_123, got %s", p.IntentID())
	}
}

func TestResume_NoMarker(t *testing.T) {
	client := newMockClient()
	page := newMockPage()
	h := NewAuthenticationResumptionHandler(client, page)

	pending, err := h.Resume(context.Background(), &url.URL{Path: "/checkout/", Fragment: "payment"}, "")
	if pending || err != nil {
		t.Errorf("Expected nothing pending, got %v, %v", pending, err)
	}
	if client.pendingCalls != 0 || len(page.history) != 0 {
		t.Error("Expected no side effects without a marker")
	}
}

func TestResume_Success(t *testing.T) {
	client := newMockClient()
	page := newMockPage()
	h := NewAuthenticationResumptionHandler(client, page)

	location, _ := url.Parse("https://store.test/checkout/?step=2#wcpay-confirm-pi:42:pi_1_secret_x:nonce1")
	pending, err := h.Resume(context.Background(), location, "pm_123")
	if !pending || err != nil {
		t.Fatalf("Expected resumed authentication, got %v, %v", pending, err)
	}
	if len(page.history) != 1 || page.history[0] != "/checkout/?step=2" {
		t.Errorf("Expected marker to be removed from history, got %v", page.history)
	}
	if client.lastPending.OrderID != "42" || client.lastPending.Nonce != "nonce1" || client.lastPending.PaymentMethodToSave != "pm_123" {
		t.Errorf("Unexpected confirmation request: %+v", client.lastPending)
	}
	if len(page.navigated) != 1 || page.navigated[0] != "https://store.test/order-received/42" {
		t.Errorf("Expected redirect, got %v", page.navigated)
	}
	if page.isBlocked(RegionOrderReview) {
		t.Error("Expected order review untouched on the checkout page")
	}
}

func TestResume_OrderPayPage(t *testing.T) {
	client := newMockClient()
	page := newMockPage()
	h := NewAuthenticationResumptionHandler(client, page)

	location, _ := url.Parse("https://store.test/checkout/order-pay/42/?key=k#wcpay-confirm-pi:42:pi_1_secret_x:n")
	if _, err := h.Resume(context.Background(), location, ""); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !page.isBlocked(RegionOrderReview) {
		t.Error("Expected order review to be blocked while redirecting")
	}
	if visible, set := page.visible[RegionPaymentSection]; !set || visible {
		t.Error("Expected payment section to be hidden")
	}
}

func TestResume_Failure(t *testing.T) {
	client := newMockClient()
	client.confirmPending = func(ctx context.Context, pending PendingAuthentication) (string, error) {
		return "", &ProcessorError{Message: "We are unable to authenticate your payment method."}
	}
	page := newMockPage()
	h := NewAuthenticationResumptionHandler(client, page)

	location, _ := url.Parse("https://store.test/checkout/order-pay/42/#wcpay-confirm-pi:42:pi_1_secret_x:n")
	pending, err := h.Resume(context.Background(), location, "")
	if !pending {
		t.Error("Expected authentication to be reported as pending")
	}
	if !IsRecoverable(err) {
		t.Fatalf("Expected recoverable error, got %v", err)
	}
	if page.lastError() != "We are unable to authenticate your payment method." {
		t.Errorf("Unexpected message: %q", page.lastError())
	}
	if page.isBlocked(RegionOrderReview) {
		t.Error("Expected order review to be unblocked")
	}
	if !page.visible[RegionPaymentSection] {
		t.Error("Expected payment section to be shown again")
	}
	if len(page.navigated) != 0 {
		t.Errorf("Expected no redirect, got %v", page.navigated)
	}
}

func TestResume_FailureAllowsRetry(t *testing.T) {
	client := newMockClient()
	marker := "#wcpay-confirm-pi:42:pi_1_secret_test:n"
	client.confirm = func(ctx context.Context, params ConfirmParams, secret string) (*ConfirmResult, error) {
		return &ConfirmResult{Status: StatusRequiresAction, RedirectURL: marker}, nil
	}
	client.confirmPending = func(ctx context.Context, pending PendingAuthentication) (string, error) {
		return "", &ProcessorError{Message: "We are unable to authenticate your payment method."}
	}
	page := newMockPage()
	c, _ := newMountedController(client, page, "card")
	o := NewConfirmationOrchestrator(c)
	h := NewAuthenticationResumptionHandler(client, page, WithResumptionController(c))

	if err := o.Submit(context.Background(), Form{OrderID: "42"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if c.State() != StateRedirecting {
		t.Fatalf("Expected redirecting after the authentication redirect, got %s", c.State())
	}

	location, _ := url.Parse("https://store.test/checkout/" + marker)
	if _, err := h.Resume(context.Background(), location, ""); !IsRecoverable(err) {
		t.Fatalf("Expected recoverable error, got %v", err)
	}
	if c.State() != StateMounted {
		t.Fatalf("Expected mounted after a failed authentication, got %s", c.State())
	}

	client.confirm = nil
	if err := o.Submit(context.Background(), Form{OrderID: "42"}); err != nil {
		t.Fatalf("Unexpected error on retry: %v", err)
	}
	if _, _, confirms := client.counts(); confirms != 2 {
		t.Errorf("Expected the retry to confirm again, got %d confirmations", confirms)
	}
}
