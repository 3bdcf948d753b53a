package secondfactor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	sessionCookieName = "AUTH_SESSION_ID"
	accessTokenName   = "accessToken"

	// host-owned notes kept alongside the flow's own two notes
	noteAuthUsername = "AUTH_USERNAME"
	noteExecutionID  = "EXECUTION_ID"
	noteTabID        = "TAB_ID"

	continuationCodeTTL = 10 * time.Minute
	accessTokenTTL      = time.Hour
)

// UserLookup resolves a username to the host user record. Returning a nil
// user without an error means the user does not exist.
type UserLookup func(ctx context.Context, username string) (*User, error)

// Handle exposes the two HTTP legs of the second factor flow: the login
// execution endpoint and the tenant callback the provider redirects back to.
// Continuation codes are signed JWTs carrying the session id, so a callback
// can resume its session without server-side lookup tables.
type Handle struct {
	flowService   *FlowService
	sessions      SessionRepository
	users         UserLookup
	baseURI       string
	signingSecret []byte
	cookieSecure  bool
}

// HandleOption is a function that configures a Handle
type HandleOption func(*Handle)

// WithBaseURI pins the externally visible base URI instead of deriving it
// from the incoming request
func WithBaseURI(baseURI string) HandleOption {
	return func(h *Handle) {
		h.baseURI = baseURI
	}
}

// WithSecureCookies controls the Secure flag on issued cookies
func WithSecureCookies(secure bool) HandleOption {
	return func(h *Handle) {
		h.cookieSecure = secure
	}
}

// NewHandle creates a handle for the second factor endpoints. signingSecret
// signs continuation codes and the success access token.
func NewHandle(flowService *FlowService, sessions SessionRepository, users UserLookup, signingSecret []byte, opts ...HandleOption) Handle {
	h := Handle{
		flowService:   flowService,
		sessions:      sessions,
		users:         users,
		signingSecret: signingSecret,
		cookieSecure:  true,
	}
	for _, opt := range opts {
		opt(&h)
	}
	return h
}

// Handler returns the routes for the second factor flow.
func Handler(h Handle) http.Handler {
	r := chi.NewRouter()
	r.Get("/realms/{realm}/authenticate", h.Authenticate)
	r.Post("/realms/{realm}/authenticate", h.Authenticate)
	r.Get("/realms/{realm}/duo-universal/callback", h.Callback)
	return r
}

// Authenticate is the login execution leg: entered after the primary
// credential step, and re-entered by the host when the flow refreshes.
// (GET|POST /realms/{realm}/authenticate)
func (h Handle) Authenticate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	realm := chi.URLParam(r, "realm")

	sessionID, err := h.ensureSession(w, r)
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "session initialization failed"})
		return
	}
	notes := NotesForSession(h.sessions, sessionID)

	username, err := h.resolveUsername(ctx, r, notes)
	if err != nil || username == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "no authenticated username on session"})
		return
	}

	flow, err := h.buildFlowContext(ctx, r, realm, sessionID, username, r.URL.Query().Get("kc_client_id"))
	if err != nil {
		slog.Error("Failed to build flow context", "err", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "internal error"})
		return
	}

	h.respond(w, r, username, h.flowService.Authenticate(ctx, flow))
}

// Callback is the tenant callback leg the provider redirects back to.
// (GET /realms/{realm}/duo-universal/callback)
func (h Handle) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	realm := chi.URLParam(r, "realm")

	sessionCode := r.URL.Query().Get("kc_session_code")
	sessionID, err := h.parseContinuationCode(sessionCode)
	if err != nil {
		slog.Warn("Rejected callback with invalid continuation code", "err", err)
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "invalid continuation code"})
		return
	}
	notes := NotesForSession(h.sessions, sessionID)

	username, err := notes.GetNote(ctx, noteAuthUsername)
	if err != nil || username == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "no authenticated username on session"})
		return
	}

	flow, err := h.buildFlowContext(ctx, r, realm, sessionID, username, r.URL.Query().Get("kc_client_id"))
	if err != nil {
		slog.Error("Failed to build flow context", "err", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "internal error"})
		return
	}

	// the flow engine resumes with the provider's echo plus the plain
	// continuation parameter names
	flow.Query.Set(ParamSessionCode, sessionCode)
	if executionID := r.URL.Query().Get("kc_execution"); executionID != "" {
		flow.Execution.ID = executionID
	}
	if tabID := r.URL.Query().Get("kc_tab_id"); tabID != "" {
		flow.TabID = tabID
	}

	h.respond(w, r, username, h.flowService.Authenticate(ctx, flow))
}

func (h Handle) buildFlowContext(ctx context.Context, r *http.Request, realm, sessionID, username, clientID string) (*FlowContext, error) {
	user, err := h.users(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("user lookup failed: %w", err)
	}

	notes := NotesForSession(h.sessions, sessionID)

	executionID, err := h.stableNote(ctx, notes, noteExecutionID)
	if err != nil {
		return nil, err
	}
	tabID, err := h.stableNote(ctx, notes, noteTabID)
	if err != nil {
		return nil, err
	}

	if clientID == "" {
		clientID = "account"
	}

	baseURI := h.baseURI
	if baseURI == "" {
		scheme := "https"
		if r.TLS == nil {
			scheme = "http"
		}
		baseURI = scheme + "://" + r.Host
	}

	return &FlowContext{
		BaseURI:    baseURI,
		RefreshURL: baseURI + "/realms/" + realm + "/authenticate",
		Tenant: Tenant{
			Name:             realm,
			ClientID:         clientID,
			InternalClientID: clientID,
		},
		Execution: Execution{ID: executionID, Alternative: true},
		TabID:     tabID,
		Query:     r.URL.Query(),
		User:      user,
		Session:   notes,
		GenerateCode: func() (string, error) {
			return h.newContinuationCode(sessionID)
		},
	}, nil
}

func (h Handle) respond(w http.ResponseWriter, r *http.Request, username string, result FlowResult) {
	switch result.Status {
	case StatusRedirect:
		http.Redirect(w, r, result.RedirectURL, http.StatusSeeOther)
	case StatusSuccess:
		if err := h.issueAccessToken(w, username); err != nil {
			slog.Error("Failed to issue access token", "err", err)
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "internal error"})
			return
		}
		render.JSON(w, r, map[string]string{"status": "authenticated", "username": username})
	case StatusDenied:
		message := result.Message
		if message == "" {
			message = "Invalid credentials"
		}
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, map[string]string{"error": message})
	default:
		slog.Error("Second factor flow failed", "err", result.Err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "internal error"})
	}
}

// ensureSession returns the login session id from the cookie, creating a new
// session when there is none.
func (h Handle) ensureSession(w http.ResponseWriter, r *http.Request) (string, error) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	sessionID := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Path:     "/",
		Value:    sessionID,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return sessionID, nil
}

// resolveUsername prefers the username already bound to the session and falls
// back to the request parameter supplied by the primary credential step.
func (h Handle) resolveUsername(ctx context.Context, r *http.Request, notes SessionNotes) (string, error) {
	username, err := notes.GetNote(ctx, noteAuthUsername)
	if err != nil {
		return "", err
	}
	if username != "" {
		return username, nil
	}

	username = r.URL.Query().Get("username")
	if username == "" {
		username = r.PostFormValue("username")
	}
	if username == "" {
		return "", nil
	}

	if err := notes.SetNote(ctx, noteAuthUsername, username); err != nil {
		return "", err
	}
	return username, nil
}

// stableNote returns the named note, generating and storing a fresh id on
// first use so repeated requests see the same value.
func (h Handle) stableNote(ctx context.Context, notes SessionNotes, name string) (string, error) {
	value, err := notes.GetNote(ctx, name)
	if err != nil {
		return "", err
	}
	if value != "" {
		return value, nil
	}

	value = uuid.NewString()
	if err := notes.SetNote(ctx, name, value); err != nil {
		return "", err
	}
	return value, nil
}

func (h Handle) newContinuationCode(sessionID string) (string, error) {
	code := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sid": sessionID,
		"exp": time.Now().Add(continuationCodeTTL).Unix(),
	})
	return code.SignedString(h.signingSecret)
}

func (h Handle) parseContinuationCode(code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("continuation code is required")
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(code, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return h.signingSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid continuation code: %w", err)
	}

	sessionID, ok := claims["sid"].(string)
	if !ok || sessionID == "" {
		return "", fmt.Errorf("continuation code has no session id")
	}
	return sessionID, nil
}

// issueAccessToken sets the post-login access token cookie.
func (h Handle) issueAccessToken(w http.ResponseWriter, username string) error {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": username,
		"iat": now.Unix(),
		"exp": now.Add(accessTokenTTL).Unix(),
	})
	signed, err := token.SignedString(h.signingSecret)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenName,
		Path:     "/",
		Value:    signed,
		Expires:  now.Add(accessTokenTTL),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
