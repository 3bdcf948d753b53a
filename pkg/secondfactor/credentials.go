package secondfactor

import "strings"

// Credentials is the effective Duo credential triple for one tenant client.
type Credentials struct {
	ClientID    string
	Secret      string
	APIHostname string
}

// ResolveCredentials returns the credentials to use for the given tenant's
// internal client id. The base triple applies unless an override entry
// matches; when several entries match the same client the last one wins.
func (c *AuthenticatorConfig) ResolveCredentials(tenantClientID string) Credentials {
	creds := Credentials{
		ClientID:    c.ClientID,
		Secret:      c.Secret,
		APIHostname: c.APIHostname,
	}

	for _, override := range c.Overrides {
		if !strings.EqualFold(override.TenantClientID, tenantClientID) {
			continue
		}

		creds.ClientID = override.ProviderClientID
		creds.Secret = override.ProviderSecret
		if override.APIHostname != "" {
			creds.APIHostname = override.APIHostname
		} else {
			creds.APIHostname = c.APIHostname
		}
	}

	return creds
}
