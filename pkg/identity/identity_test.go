package identity

import (
	"context"
	"testing"
)

func TestPrincipalContextRoundTrip(t *testing.T) {
	p := &Principal{BuyerID: "buyer-1", Email: "asha@example.com", Roles: []string{"buyer"}}
	ctx := WithPrincipal(context.Background(), p)

	got, err := GetPrincipal(ctx)
	if err != nil {
		t.Fatalf("GetPrincipal: %v", err)
	}
	if got.BuyerID != "buyer-1" {
		t.Errorf("buyer id = %q", got.BuyerID)
	}

	id, err := BuyerID(ctx)
	if err != nil || id != "buyer-1" {
		t.Errorf("BuyerID = %q, %v", id, err)
	}
}

func TestGetPrincipal_Missing(t *testing.T) {
	if _, err := GetPrincipal(context.Background()); err == nil {
		t.Error("empty context must not yield a principal")
	}
	if _, err := BuyerID(context.Background()); err == nil {
		t.Error("empty context must not yield a buyer id")
	}
}

func TestHasRole(t *testing.T) {
	p := &Principal{Roles: []string{"buyer", "support"}}
	if !p.HasRole("support") {
		t.Error("expected role present")
	}
	if p.HasRole("admin") {
		t.Error("unexpected role")
	}
}
