package workflow

import (
	"errors"
	"testing"

	"github.com/mmdatafocus/kinship_backend/utils"
)

func TestNormalizeContactCanonicalizes(t *testing.T) {
	rec := &ExternalContactRecord{
		Name:  "  David   Oh ",
		Email: " David.Oh@Example.COM ",
		Phone: "+1 (650) 253-0000",
	}

	n, err := NormalizeContact(rec)
	if err != nil {
		t.Fatalf("NormalizeContact: %v", err)
	}
	if n.Name != "David Oh" {
		t.Errorf("name: got %q", n.Name)
	}
	if n.Email != "david.oh@example.com" {
		t.Errorf("email: got %q", n.Email)
	}
	if n.Phone != "+16502530000" {
		t.Errorf("phone: got %q", n.Phone)
	}
}

func TestNormalizeContactCanonicalizesNationalPhoneFormat(t *testing.T) {
	// National and international forms of one number must compare equal
	// after normalization.
	national, err := NormalizeContact(&ExternalContactRecord{Name: "A", Phone: "(650) 253-0000"})
	if err != nil {
		t.Fatalf("NormalizeContact: %v", err)
	}
	international, err := NormalizeContact(&ExternalContactRecord{Name: "A", Phone: "+1 650 253 0000"})
	if err != nil {
		t.Fatalf("NormalizeContact: %v", err)
	}
	if national.Phone != "+16502530000" || national.Phone != international.Phone {
		t.Fatalf("got %q and %q", national.Phone, international.Phone)
	}
}

func TestNormalizeContactRejectsMissingName(t *testing.T) {
	_, err := NormalizeContact(&ExternalContactRecord{Email: "a@b.co"})
	if !errors.Is(err, utils.ErrorInvalidContact) {
		t.Fatalf("expected ErrorInvalidContact, got %v", err)
	}
}

func TestNormalizeContactRejectsMalformedEmail(t *testing.T) {
	_, err := NormalizeContact(&ExternalContactRecord{Name: "A", Email: "not-an-email"})
	if !errors.Is(err, utils.ErrorInvalidContact) {
		t.Fatalf("expected ErrorInvalidContact, got %v", err)
	}
}

func TestNormalizeContactRejectsMalformedPhone(t *testing.T) {
	// "123" parses but fails validation; the others fail parsing outright.
	for _, phone := range []string{"call me", "123", "555-0100"} {
		_, err := NormalizeContact(&ExternalContactRecord{Name: "A", Phone: phone})
		if !errors.Is(err, utils.ErrorInvalidContact) {
			t.Errorf("phone %q: expected ErrorInvalidContact, got %v", phone, err)
		}
	}
}

func TestNormalizeContactAllowsEmptyOptionalFields(t *testing.T) {
	n, err := NormalizeContact(&ExternalContactRecord{Name: "Solo"})
	if err != nil {
		t.Fatalf("NormalizeContact: %v", err)
	}
	if n.Email != "" || n.Phone != "" {
		t.Fatalf("expected empty optional fields, got %+v", n)
	}
}

func TestNormalizeAllSkipsBadRecordsAndKeepsGoing(t *testing.T) {
	recs := []*ExternalContactRecord{
		{Name: "Good One", Email: "one@example.com"},
		{Name: "", Email: "no-name@example.com"},
		{Name: "Good Two"},
		{Name: "Bad Phone", Phone: "nope"},
	}

	normalized, skipped := NormalizeAll(recs)
	if len(normalized) != 2 {
		t.Fatalf("expected 2 normalized, got %d", len(normalized))
	}
	if len(skipped) != 2 {
		t.Fatalf("expected 2 skipped, got %d", len(skipped))
	}
	if skipped[0].Record.Email != "no-name@example.com" {
		t.Errorf("first skip should be the nameless record")
	}
	for _, s := range skipped {
		if s.Reason == "" {
			t.Errorf("skip reason must be set")
		}
	}
}
