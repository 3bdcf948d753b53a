package secondfactor

// VerificationRequired reports whether the user must complete the second
// factor. Verification is required for everyone unless a group filter is
// configured, in which case only members of a listed group are challenged.
func (c *AuthenticatorConfig) VerificationRequired(user *User) bool {
	if len(c.GroupFilter) == 0 {
		return true
	}

	filtered := make(map[string]bool, len(c.GroupFilter))
	for _, group := range c.GroupFilter {
		filtered[group] = true
	}

	for _, group := range user.Groups {
		if filtered[group] {
			return true
		}
	}

	return false
}
