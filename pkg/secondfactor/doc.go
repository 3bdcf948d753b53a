// Package secondfactor orchestrates the Duo Universal second-factor step of a
// login flow.
//
// After the primary credential is accepted, the host flow engine hands the
// request to FlowService.Authenticate. On first entry the service resolves
// per-tenant Duo credentials, health-checks the provider, binds a CSRF state
// token and the verified username to the session, and answers with a redirect
// to the Duo challenge. When the browser returns from Duo, the same entry
// point exchanges the authorization code, sanity-checks the echoed state and
// username against the session, and produces the final verdict.
//
// The host flow engine stays behind narrow interfaces: SessionNotes for the
// two session fields this package owns, and an injected impersonator resolver
// for hosts that support impersonation sessions. Provider access goes through
// duo.Client, so tests can drive the whole state machine without a network.
//
// # Overview
//
// The package provides:
//   - AuthenticatorConfig building and validation from the host's raw key map
//   - Per-tenant credential overrides (last match wins)
//   - Callback URL construction that survives the external redirect round trip
//   - Username rewriting via regex and custom attribute override
//   - Group-based bypass and fail-open/fail-secure availability policy
//   - The two-leg challenge/callback state machine
//   - Session note storage backends (memory, file, Redis, Postgres)
package secondfactor
