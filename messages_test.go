package checkout

import "testing"

func TestMessages_English(t *testing.T) {
	m := MustMessages("en")

	if got := m.Text(MsgIncompletePayment); got != "Your payment information is incomplete." {
		t.Errorf("Expected incomplete payment text, got %q", got)
	}
	if got := m.Text(MsgPreparingFormFailed); got != "An error was encountered when preparing the payment form. Please try again later." {
		t.Errorf("Expected preparing form text, got %q", got)
	}
}

func TestMessages_FallbackToEnglish(t *testing.T) {
	m := MustMessages("de-DE")

	if got := m.Text(MsgIncompletePayment); got != "Your payment information is incomplete." {
		t.Errorf("Expected English fallback, got %q", got)
	}
}

func TestMessages_French(t *testing.T) {
	m := MustMessages("fr-FR", "en")

	if got := m.Text(MsgIncompletePayment); got != "Vos informations de paiement sont incomplètes." {
		t.Errorf("Expected French text, got %q", got)
	}
}

func TestMessages_UnknownID(t *testing.T) {
	m := MustMessages()

	if got := m.Text("NoSuchMessage"); got != "NoSuchMessage" {
		t.Errorf("Expected id to be returned, got %q", got)
	}
}
