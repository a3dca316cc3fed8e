package checkout

import (
	"testing"
)

func TestTokenElementsComplete(t *testing.T) {
	elements := NewTokenElements("pi_1_secret_x", "")
	el, err := elements.Create(ElementOptions{Terms: TermsNever})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var changes []ElementChange
	el.OnChange(func(c ElementChange) { changes = append(changes, c) })

	if err := el.Mount(RegionElement); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := el.(*TokenElement).Mounted(); got != RegionElement {
		t.Errorf("Expected mounted in %s, got %s", RegionElement, got)
	}

	elements.Complete("pm_card", "card", "US")

	if elements.PaymentMethod() != "pm_card" {
		t.Errorf("Expected pm_card, got %s", elements.PaymentMethod())
	}
	if len(changes) != 1 || !changes[0].Complete || changes[0].Country != "US" {
		t.Errorf("Expected one complete change for US, got %+v", changes)
	}

	if err := el.Update(ElementOptions{Terms: TermsAlways}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if el.(*TokenElement).Options().Terms != TermsAlways {
		t.Error("Expected terms to be updated")
	}
	_ = el.Unmount()
	if el.(*TokenElement).Mounted() != "" {
		t.Error("Expected element to be unmounted")
	}
}
