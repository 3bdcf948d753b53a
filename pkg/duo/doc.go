// Package duo provides the client contract for the Duo Universal Prompt
// service and an HTTP implementation of it.
//
// The login flow only depends on the Client interface: a health check, state
// token generation, challenge URL creation, and the authorization code
// exchange. The HTTP implementation signs its requests with HS512 client
// assertion JWTs using the integration secret, as required by the Duo OAuth
// endpoints.
//
// # Basic Usage
//
//	client, err := duo.NewHTTPClient(clientID, secret, "api-xxxx.duosecurity.com", redirectURI)
//	if err != nil {
//		return err
//	}
//
//	if err := client.HealthCheck(ctx); err != nil {
//		// Duo is unreachable, apply fail-open/fail-secure policy
//	}
//
//	state, err := client.GenerateState()
//	authURL, err := client.CreateAuthURL("alice", state)
//	// redirect the browser to authURL ...
//
//	token, err := client.ExchangeAuthorizationCode(ctx, duoCode, "alice")
//	if token.AuthResult.Allowed() {
//		// verified
//	}
package duo
