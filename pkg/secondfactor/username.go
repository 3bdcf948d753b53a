package secondfactor

import "log/slog"

// EffectiveUsername derives the identity presented to the provider. The
// regex rewrite runs first; a non-empty custom attribute value then replaces
// the result entirely. Operators pick one mapping strategy, the attribute is
// the override of last resort.
func (c *AuthenticatorConfig) EffectiveUsername(user *User) string {
	username := user.Username

	if c.UsernameRegex != nil {
		rewritten := c.UsernameRegex.ReplaceAllString(username, c.UsernameReplace)
		slog.Info("Used regex to update username", "username", rewritten, "user", username)
		username = rewritten
	}

	if c.UsernameAttribute != "" {
		if value := user.FirstAttribute(c.UsernameAttribute); value != "" {
			slog.Info("Using custom attribute as username", "username", value, "user", username)
			username = value
		}
	}

	return username
}
