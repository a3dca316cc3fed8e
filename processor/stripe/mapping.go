package stripe

import (
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v78"

	checkout "github.com/payelement/checkout/go"
)

// mapError turns shopper-facing Stripe errors into processor errors. API,
// authentication and network failures stay generic.
func mapError(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return fmt.Errorf("stripe request failed: %w", err)
	}
	switch se.Type {
	case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest, stripe.ErrorTypeIdempotency:
		return processorErrorFromStripe(se)
	}
	return fmt.Errorf("stripe %s: %w", se.Type, err)
}

func processorErrorFromStripe(se *stripe.Error) *checkout.ProcessorError {
	if se == nil {
		return nil
	}
	code := string(se.Code)
	if se.DeclineCode != "" {
		code = string(se.DeclineCode)
	}
	return &checkout.ProcessorError{
		Message: se.Msg,
		Charge:  se.ChargeID,
		Code:    code,
		Type:    string(se.Type),
	}
}

func incompleteError() *checkout.ProcessorError {
	return &checkout.ProcessorError{
		Message: "Your payment information is incomplete.",
		Code:    "incomplete",
		Type:    "validation_error",
	}
}

func intentFromPaymentIntent(pi *stripe.PaymentIntent) *checkout.Intent {
	intent := &checkout.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Kind:         checkout.KindPayment,
		Status:       checkout.IntentStatus(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
	if len(pi.PaymentMethodTypes) == 1 {
		intent.PaymentMethodType = pi.PaymentMethodTypes[0]
	}
	return intent
}

func intentFromSetupIntent(si *stripe.SetupIntent) *checkout.Intent {
	return &checkout.Intent{
		ID:           si.ID,
		ClientSecret: si.ClientSecret,
		Kind:         checkout.KindSetup,
		Status:       checkout.IntentStatus(si.Status),
		Metadata:     si.Metadata,
	}
}

func shippingParams(s *checkout.ShippingDetails) *stripe.ShippingDetailsParams {
	if s == nil {
		return nil
	}
	params := &stripe.ShippingDetailsParams{
		Name: stripe.String(s.Name),
		Address: &stripe.AddressParams{
			Line1:      stripe.String(s.Address.Line1),
			City:       stripe.String(s.Address.City),
			State:      stripe.String(s.Address.State),
			PostalCode: stripe.String(s.Address.PostalCode),
			Country:    stripe.String(s.Address.Country),
		},
	}
	if s.Address.Line2 != "" {
		params.Address.Line2 = stripe.String(s.Address.Line2)
	}
	if s.Phone != "" {
		params.Phone = stripe.String(s.Phone)
	}
	return params
}

// billingParams sets only the billing fields the store collected
func billingParams(b *checkout.BillingDetails) *stripe.PaymentMethodBillingDetailsParams {
	params := &stripe.PaymentMethodBillingDetailsParams{
		Name:  optional(b.Name),
		Email: optional(b.Email),
		Phone: optional(b.Phone),
	}
	if b.Address != (checkout.Address{}) {
		params.Address = &stripe.AddressParams{
			Line1:      optional(b.Address.Line1),
			Line2:      optional(b.Address.Line2),
			City:       optional(b.Address.City),
			State:      optional(b.Address.State),
			PostalCode: optional(b.Address.PostalCode),
			Country:    optional(b.Address.Country),
		}
	}
	return params
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return stripe.String(s)
}
