package secondfactor

import "errors"

var (
	// ErrNotConfigured means the authenticator is missing required
	// configuration. Every login through a flow in this state fails.
	ErrNotConfigured = errors.New("duo authenticator is not configured")

	// ErrNoUser means no user could be resolved for the verification step.
	ErrNoUser = errors.New("no user resolved for second factor verification")
)

// DeniedMessage is shown to the user when the provider reports a non-allow
// verification result.
const DeniedMessage = "You did not pass multifactor verification."
