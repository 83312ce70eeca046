package credcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/credcore/account"
	"github.com/MrEthical07/credcore/notify"
	"github.com/MrEthical07/credcore/session"
)

func TestSignUpValidation(t *testing.T) {
	tests := []struct {
		name   string
		req    SignUpRequest
		reason Reason
		field  string
	}{
		{
			name:   "bad email",
			req:    SignUpRequest{Email: "not-an-email", Password: "Passw0rd!", Role: RoleEndUser, NationalID: "N1"},
			reason: ReasonInvalidInput,
			field:  "email",
		},
		{
			name:   "missing national id",
			req:    SignUpRequest{Email: "a@example.com", Password: "Passw0rd!", Role: RoleOrganization},
			reason: ReasonInvalidInput,
			field:  "national_id",
		},
		{
			name:   "unknown role",
			req:    SignUpRequest{Email: "a@example.com", Password: "Passw0rd!", Role: "guest", NationalID: "N1"},
			reason: ReasonInvalidInput,
			field:  "role",
		},
		{
			name:   "bad phone",
			req:    SignUpRequest{Email: "a@example.com", Password: "Passw0rd!", Role: RoleEndUser, NationalID: "N1", Phone: "0123"},
			reason: ReasonInvalidInput,
			field:  "phone",
		},
		{
			name:   "short password",
			req:    SignUpRequest{Email: "a@example.com", Password: "short", Role: RoleEndUser, NationalID: "N1"},
			reason: ReasonWeakPassword,
			field:  "password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.engine.SignUp(context.Background(), tt.req)
			requireReason(t, err, tt.reason)
			var ve *ValidationError
			errors.As(err, &ve)
			if ve.Field != tt.field {
				t.Fatalf("field = %q, want %q", ve.Field, tt.field)
			}
			if env.users.Len() != 0 {
				t.Fatalf("record created despite validation failure")
			}
		})
	}
}

func TestSignUpUniqueness(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	base := SignUpRequest{
		Email:      "alice@example.com",
		Password:   "Passw0rd!",
		Role:       RoleEndUser,
		NationalID: "A-1",
		Phone:      "+15551234567",
	}
	if _, err := env.engine.SignUp(ctx, base); err != nil {
		t.Fatalf("first sign up: %v", err)
	}

	dupEmail := base
	dupEmail.Email = " Alice@Example.com"
	dupEmail.NationalID = "A-2"
	dupEmail.Phone = ""
	_, err := env.engine.SignUp(ctx, dupEmail)
	requireReason(t, err, ReasonEmailTaken)

	dupNational := base
	dupNational.Email = "other@example.com"
	dupNational.Phone = ""
	_, err = env.engine.SignUp(ctx, dupNational)
	requireReason(t, err, ReasonNationalIDTaken)

	dupPhone := base
	dupPhone.Email = "third@example.com"
	dupPhone.NationalID = "A-3"
	_, err = env.engine.SignUp(ctx, dupPhone)
	requireReason(t, err, ReasonPhoneTaken)

	if env.users.Len() != 1 {
		t.Fatalf("records = %d", env.users.Len())
	}
}

func TestSignUpAdministratorRequiresAdministratorCaller(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := SignUpRequest{Email: "root@example.com", Password: "Passw0rd!", Role: RoleAdministrator}

	_, err := env.engine.SignUp(ctx, req)
	requireReason(t, err, ReasonForbidden)

	env.signUpConfirmed(t, "user@example.com", "user-password")
	if _, err := env.engine.SignIn(ctx, "user@example.com", "user-password"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	_, err = env.engine.SignUp(ctx, req)
	requireReason(t, err, ReasonForbidden)

	digest, _ := env.engine.hasher.Hash("admin-password")
	env.seedAccount(t, account.Record{
		Email:        "admin@example.com",
		PasswordHash: digest,
		Role:         RoleAdministrator,
		Status:       StatusValidated,
	})
	if _, err := env.engine.SignIn(ctx, "admin@example.com", "admin-password"); err != nil {
		t.Fatalf("admin sign in: %v", err)
	}

	res, err := env.engine.SignUp(ctx, req)
	if err != nil {
		t.Fatalf("admin-created sign up: %v", err)
	}
	if res.Status != StatusValidated {
		t.Fatalf("administrator status = %s", res.Status)
	}
	if _, ok := env.outbox.Last(notify.KindEmailConfirmation, "root@example.com"); ok {
		t.Fatalf("administrator received a confirmation")
	}
}

func TestSignUpForbiddenBeforeValidation(t *testing.T) {
	env := newTestEnv(t)
	// Invalid in every field; the role check still wins.
	_, err := env.engine.SignUp(context.Background(), SignUpRequest{Email: "x", Role: RoleAdministrator})
	requireReason(t, err, ReasonForbidden)
}

func TestSignUpNotificationFailureIsNonFatal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.outbox.FailWith(errors.New("smtp down"))

	res, err := env.engine.SignUp(ctx, SignUpRequest{
		Email: "alice@example.com", Password: "Passw0rd!", Role: RoleEndUser, NationalID: "A-1",
	})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if _, err := env.users.Store.FindByID(ctx, res.Identity.UserID); err != nil {
		t.Fatalf("record missing: %v", err)
	}

	env.outbox.FailWith(nil)
	if err := env.engine.ResendConfirmation(ctx, "alice@example.com"); err != nil {
		t.Fatalf("resend: %v", err)
	}
	msg, ok := env.outbox.Last(notify.KindEmailConfirmation, "alice@example.com")
	if !ok {
		t.Fatalf("resend did not dispatch")
	}
	if _, err := env.engine.ConfirmEmail(ctx, msg.Token); err != nil {
		t.Fatalf("confirm after resend: %v", err)
	}
}

func TestResendConfirmationIsSuccessShaped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signUpConfirmed(t, "alice@example.com", "Passw0rd!")
	sent := len(env.outbox.Messages())

	if err := env.engine.ResendConfirmation(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("unknown email: %v", err)
	}
	if err := env.engine.ResendConfirmation(ctx, "alice@example.com"); err != nil {
		t.Fatalf("validated email: %v", err)
	}
	if got := len(env.outbox.Messages()); got != sent {
		t.Fatalf("messages sent: %d", got-sent)
	}
}

func TestSignUpStoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.users.fail.Store(true)

	_, err := env.engine.SignUp(context.Background(), SignUpRequest{
		Email: "alice@example.com", Password: "Passw0rd!", Role: RoleEndUser, NationalID: "A-1",
	})
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected service error, got %v", err)
	}
}

func TestSignUpIgnoresRoleEditedIntoStoredSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.signUpConfirmed(t, "user@example.com", "user-password")
	if _, err := env.engine.SignIn(ctx, "user@example.com", "user-password"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	blob, err := env.storage.Load(ctx)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	s, err := session.Decode(blob)
	if err != nil {
		t.Fatalf("decode session: %v", err)
	}
	s.Identity.Role = string(RoleAdministrator)
	edited, err := session.Encode(s)
	if err != nil {
		t.Fatalf("encode session: %v", err)
	}
	if err := env.storage.Save(ctx, edited, time.Hour); err != nil {
		t.Fatalf("save session: %v", err)
	}

	_, err = env.engine.SignUp(ctx, SignUpRequest{Email: "root@example.com", Password: "Passw0rd!", Role: RoleAdministrator})
	requireReason(t, err, ReasonForbidden)
	if _, ok := env.engine.CurrentIdentity(ctx); ok {
		t.Fatal("edited session still accepted")
	}
}
