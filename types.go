package credcore

import (
	"github.com/MrEthical07/credcore/account"
	"github.com/MrEthical07/credcore/internal/audit"
	"github.com/MrEthical07/credcore/notify"
	"github.com/MrEthical07/credcore/session"
)

type (
	// Identity is the verified actor returned by sign-in and session reads.
	Identity = session.Identity
	// Session is the client-held credential bundle.
	Session = session.Session
	// Role is an account role.
	Role = account.Role
	// Status is an account validation status.
	Status = account.Status
	// CredentialRecord is the stored account.
	CredentialRecord = account.Record
	// UserStore is the external user record store.
	UserStore = account.Store
	// Notifier is the external notification dispatcher.
	Notifier = notify.Notifier

	// AuditEvent is one emitted security event.
	AuditEvent = audit.Event
	// AuditSink receives audit events.
	AuditSink = audit.Sink
)

const (
	RoleEndUser       = account.RoleEndUser
	RoleOrganization  = account.RoleOrganization
	RoleAdministrator = account.RoleAdministrator

	StatusPending   = account.StatusPending
	StatusValidated = account.StatusValidated
	StatusRejected  = account.StatusRejected
)

// SignUpRequest is the input of SignUp. Administrators do not need a
// national id.
type SignUpRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,max=1024"`
	Role        Role   `json:"role" validate:"required,oneof=end_user organization administrator"`
	DisplayName string `json:"display_name" validate:"max=128"`
	NationalID  string `json:"national_id" validate:"required_unless=Role administrator,max=64"`
	Phone       string `json:"phone" validate:"omitempty,e164"`
}

// SignUpResult is returned by SignUp.
type SignUpResult struct {
	Identity Identity
	Status   Status
}

// SignInResult is returned by SignIn and SignInExternal.
type SignInResult struct {
	Identity Identity
	Session  *Session
}

// ExternalIdentity is what an external identity provider hands back after
// its own redirect flow.
type ExternalIdentity struct {
	Provider string `json:"provider" validate:"required"`
	Subject  string `json:"subject" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
}
