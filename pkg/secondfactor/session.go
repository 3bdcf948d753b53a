package secondfactor

import (
	"context"
	"net/url"
)

// Session note keys owned by this package. The host session store persists
// them between the challenge and callback legs.
const (
	NoteState    = "DUO_STATE"
	NoteUsername = "DUO_USERNAME"
)

// Query parameter names on the second leg of the flow, echoed by the
// provider.
const (
	ParamState       = "state"
	ParamDuoCode     = "duo_code"
	ParamSessionCode = "session_code"
)

// SessionNotes is the narrow view of the host session store this package
// needs: get and set of named string notes on the current login session.
// Implementations must tolerate concurrent requests against the same session;
// the flow detects stale writes structurally instead of locking.
type SessionNotes interface {
	GetNote(ctx context.Context, name string) (string, error)
	SetNote(ctx context.Context, name, value string) error
}

// User is the host user record as far as this package cares: the login name,
// group memberships for the bypass policy, and attributes for the username
// override.
type User struct {
	Username   string
	Groups     []string
	Attributes map[string][]string
}

// FirstAttribute returns the first non-empty value of the named attribute, or
// the empty string.
func (u *User) FirstAttribute(name string) string {
	for _, value := range u.Attributes[name] {
		if value != "" {
			return value
		}
	}
	return ""
}

// Tenant identifies the realm and client the login belongs to. ClientID is
// the public client identifier carried on the callback URL; InternalClientID
// is the host-internal id the credential overrides match against.
type Tenant struct {
	Name             string
	ClientID         string
	InternalClientID string
}

// Execution identifies the current login step execution. Alternative is true
// when the user could pick a different verification path, which is the only
// case that needs the full continuation callback URL.
type Execution struct {
	ID          string
	Alternative bool
}

// ImpersonatorResolver resolves the impersonating identity when an
// impersonation session is active, or nil when there is none. Supplied by
// the host; this package never introspects sessions itself.
type ImpersonatorResolver func(ctx context.Context) (*User, error)

// FlowContext carries the per-request state the flow needs from the host
// engine: who is logging in, where the request came from, and how to reach
// the session notes.
type FlowContext struct {
	// BaseURI is the externally visible base URI of the host, used to root
	// the callback URL.
	BaseURI string

	// RefreshURL is the host's generic flow refresh URL, used as the
	// callback target when the execution is not alternative.
	RefreshURL string

	Tenant    Tenant
	Execution Execution

	// TabID identifies the browser tab within the login session.
	TabID string

	// Query holds the inbound request's query parameters.
	Query url.Values

	// User is the user resolved by the primary credential step; nil when the
	// host could not resolve one.
	User *User

	Session SessionNotes

	// GenerateCode returns a fresh continuation code from the host engine.
	GenerateCode func() (string, error)

	// ResolveImpersonator is optional; see ImpersonatorResolver.
	ResolveImpersonator ImpersonatorResolver
}

// Status is the terminal disposition of one flow entry.
type Status string

const (
	// StatusRedirect asks the host to send the browser to RedirectURL with
	// an HTTP see-other response.
	StatusRedirect Status = "redirect"

	// StatusSuccess marks the second factor step complete.
	StatusSuccess Status = "success"

	// StatusDenied rejects the login with a user-visible message.
	StatusDenied Status = "denied"

	// StatusError is a fatal internal error; the flow aborts.
	StatusError Status = "error"
)

// FlowResult is the outcome of one call to FlowService.Authenticate.
type FlowResult struct {
	Status      Status
	RedirectURL string

	// Message is the user-visible denial message, set for StatusDenied.
	Message string

	// Err carries the internal error for StatusError.
	Err error
}

func successResult() FlowResult {
	return FlowResult{Status: StatusSuccess}
}

func deniedResult(message string) FlowResult {
	return FlowResult{Status: StatusDenied, Message: message}
}

func errorResult(err error) FlowResult {
	return FlowResult{Status: StatusError, Err: err}
}

func redirectResult(redirectURL string) FlowResult {
	return FlowResult{Status: StatusRedirect, RedirectURL: redirectURL}
}
