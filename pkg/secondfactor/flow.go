package secondfactor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tendant/duo-mfa/pkg/duo"
)

// FlowService runs the second factor state machine. It is stateless; all
// per-request state lives in the FlowContext and the session notes, so one
// instance can serve every login.
type FlowService struct {
	config  *AuthenticatorConfig
	clients duo.ClientFactory
}

// NewFlowService creates a flow service for the given configuration. When
// factory is nil the real Duo HTTP client is used; tests inject their own.
func NewFlowService(config *AuthenticatorConfig, factory duo.ClientFactory) *FlowService {
	if factory == nil {
		factory = func(clientID, secret, apiHostname, redirectURI string) (duo.Client, error) {
			return duo.NewHTTPClient(clientID, secret, apiHostname, redirectURI)
		}
	}
	return &FlowService{
		config:  config,
		clients: factory,
	}
}

// Authenticate handles one entry into the second factor step, either the
// initial request after the primary credential or the callback from the
// provider, and returns the disposition for the host engine to act on.
func (s *FlowService) Authenticate(ctx context.Context, flow *FlowContext) FlowResult {
	if err := s.config.Validate(); err != nil {
		slog.Error("Duo authenticator is not configured, all authentications will fail", "err", err)
		return errorResult(err)
	}

	user := flow.User
	if s.config.UseImpersonatorIdentity {
		user = s.impersonatorOrUser(ctx, flow)
	}

	if user == nil {
		slog.Error("Received a flow request with no user, returning internal error")
		return errorResult(ErrNoUser)
	}

	if !s.config.VerificationRequired(user) {
		slog.Info("Skipping Duo MFA based on group membership",
			"username", user.Username, "groups", strings.Join(user.Groups, ","))
		return successResult()
	}

	username := s.config.EffectiveUsername(user)

	// If a Duo state note is set, assume this is the second request.
	storedState, err := flow.Session.GetNote(ctx, NoteState)
	if err != nil {
		return errorResult(fmt.Errorf("failed to read session note: %w", err))
	}

	if storedState == "" {
		return s.startChallenge(ctx, flow, username)
	}

	if flow.Query.Get(ParamState) == "" || flow.Query.Get(ParamDuoCode) == "" {
		slog.Warn("Received a Duo callback that was missing information, starting over")
		return s.startChallenge(ctx, flow, username)
	}

	return s.handleCallback(ctx, flow, username, storedState)
}

// startChallenge issues a fresh challenge: health-check the provider, bind a
// new state token and the username to the session, and redirect to Duo.
// Provider unavailability routes through the fail-open/fail-secure policy
// instead.
func (s *FlowService) startChallenge(ctx context.Context, flow *FlowContext, username string) FlowResult {
	redirectURL, err := CallbackURL(flow, true)
	if err != nil {
		return errorResult(err)
	}

	client, err := s.newClient(flow, redirectURL)
	if err == nil {
		err = client.HealthCheck(ctx)
	}
	if err != nil {
		// Duo is not available
		slog.Warn("Duo initialization failed", "err", err)
		if s.config.FailOpenOnHealthCheck() {
			return successResult()
		}
		// fail secure, deny login
		return deniedResult("")
	}

	state, err := client.GenerateState()
	if err != nil {
		slog.Warn("Failed to generate Duo state token", "err", err)
		if s.config.FailOpenOnChallenge() {
			return successResult()
		}
		return deniedResult("")
	}

	if err := flow.Session.SetNote(ctx, NoteState, state); err != nil {
		return errorResult(fmt.Errorf("failed to store session note: %w", err))
	}
	if err := flow.Session.SetNote(ctx, NoteUsername, username); err != nil {
		return errorResult(fmt.Errorf("failed to store session note: %w", err))
	}

	authURL, err := client.CreateAuthURL(username, state)
	if err != nil {
		slog.Warn("Authentication against Duo failed", "err", err)
		if s.config.FailOpenOnChallenge() {
			return successResult()
		}
		// fail secure, deny login
		return deniedResult("")
	}

	return redirectResult(authURL)
}

// handleCallback processes the provider's redirect back: exchange the code,
// then sanity-check the echoed state and bound username before trusting the
// result. Any mismatch or exchange failure restarts the challenge rather than
// leaving the session half updated.
func (s *FlowService) handleCallback(ctx context.Context, flow *FlowContext, username, storedState string) FlowResult {
	echoedState := flow.Query.Get(ParamState)
	duoCode := flow.Query.Get(ParamDuoCode)

	redirectURL, err := CallbackURL(flow, false)
	if err != nil {
		return errorResult(err)
	}

	authSuccess := false
	client, err := s.newClient(flow, redirectURL)
	if err == nil {
		var token *duo.Token
		token, err = client.ExchangeAuthorizationCode(ctx, duoCode, username)
		if err == nil && token != nil {
			authSuccess = token.AuthResult.Allowed()
		}
	}
	if err != nil {
		slog.Warn("There was a problem exchanging the Duo token, returning start page", "err", err)
		return s.startChallenge(ctx, flow, username)
	}

	if !strings.EqualFold(storedState, echoedState) {
		// sanity check the session
		slog.Warn("Login state did not match saved value, returning start page")
		return s.startChallenge(ctx, flow, username)
	}

	storedUsername, err := flow.Session.GetNote(ctx, NoteUsername)
	if err != nil {
		return errorResult(fmt.Errorf("failed to read session note: %w", err))
	}
	if !strings.EqualFold(username, storedUsername) {
		// sanity check the session
		slog.Warn("Duo username did not match saved value, returning start page",
			"stored", storedUsername, "username", username)
		return s.startChallenge(ctx, flow, username)
	}

	if authSuccess {
		return successResult()
	}

	return deniedResult(DeniedMessage)
}

// newClient resolves per-tenant credentials and builds a provider client for
// the given redirect URL. Duo compares redirect URIs literally, so encoded
// spaces are normalized from + to %20.
func (s *FlowService) newClient(flow *FlowContext, redirectURL string) (duo.Client, error) {
	creds := s.config.ResolveCredentials(flow.Tenant.InternalClientID)
	redirectURL = strings.ReplaceAll(redirectURL, "+", "%20")
	return s.clients(creds.ClientID, creds.Secret, creds.APIHostname, redirectURL)
}

// impersonatorOrUser prefers the impersonating identity when the host reports
// an active impersonation session, falling back to the flow's user.
func (s *FlowService) impersonatorOrUser(ctx context.Context, flow *FlowContext) *User {
	if flow.ResolveImpersonator == nil {
		return flow.User
	}

	impersonator, err := flow.ResolveImpersonator(ctx)
	if err != nil {
		slog.Warn("Failed to resolve impersonator, using flow user", "err", err)
		return flow.User
	}
	if impersonator != nil {
		return impersonator
	}

	return flow.User
}
