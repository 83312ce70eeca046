package account

import "testing"

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleEndUser, RoleOrganization, RoleAdministrator} {
		if !r.Valid() {
			t.Fatalf("%q should be valid", r)
		}
	}
	for _, r := range []Role{"", "admin", "Administrator"} {
		if r.Valid() {
			t.Fatalf("%q should be invalid", r)
		}
	}
}

func TestUpdateApply(t *testing.T) {
	rec := Record{Email: "old@example.com", PasswordHash: "h1", Status: StatusPending}

	if !(Update{}).IsEmpty() {
		t.Fatalf("zero update should be empty")
	}

	email := "new@example.com"
	status := StatusValidated
	u := Update{Email: &email, Status: &status}
	if u.IsEmpty() {
		t.Fatalf("update reported empty")
	}
	u.Apply(&rec)

	if rec.Email != email || rec.Status != StatusValidated {
		t.Fatalf("update not applied: %+v", rec)
	}
	if rec.PasswordHash != "h1" {
		t.Fatalf("nil field overwritten: %q", rec.PasswordHash)
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Alice@Example.COM \n"); got != "alice@example.com" {
		t.Fatalf("NormalizeEmail = %q", got)
	}
}
