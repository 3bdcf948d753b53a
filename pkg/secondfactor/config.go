package secondfactor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Configuration keys recognized on the host's raw authenticator config map.
const (
	ConfigAPIHostname             = "api_hostname"
	ConfigIntegrationKey          = "integration_key"
	ConfigSecretKey               = "secret_key"
	ConfigGroups                  = "groups"
	ConfigFailSafe                = "fail_safe"
	ConfigCustomClientIDs         = "custom_client_ids"
	ConfigUsernameRegexMatch      = "username_regex_match"
	ConfigUsernameRegexReplace    = "username_regex_replace"
	ConfigUsernameCustomAttribute = "username_custom_attribute"
	ConfigUseImpersonator         = "use_impersonator"
)

// sentinel value that disables an optional setting; also treated as unset for
// the required ones
const sentinelNone = "none"

// overrideSeparator separates entries in the custom client id list; fields
// within an entry are comma separated.
const overrideSeparator = "##"

// OverrideEntry maps one tenant client to its own Duo credentials. Hostname
// is optional and falls back to the default API hostname.
type OverrideEntry struct {
	TenantClientID   string
	ProviderClientID string
	ProviderSecret   string
	APIHostname      string
}

// AuthenticatorConfig is the validated, immutable configuration for one
// authenticator instance. Build it with BuildConfig; a zero value is not
// usable.
type AuthenticatorConfig struct {
	ClientID    string
	Secret      string
	APIHostname string
	Overrides   []OverrideEntry

	// GroupFilter restricts verification to members of the listed groups.
	// Empty means everyone must verify.
	GroupFilter []string

	// FailSafe is the explicit fail-open flag. When nil the two decision
	// points use their historical defaults, which differ: health check
	// failures fail secure, challenge creation failures fail open.
	FailSafe *bool

	UsernameRegex     *regexp.Regexp
	UsernameReplace   string
	UsernameAttribute string

	UseImpersonatorIdentity bool
}

// BuildConfig turns the host's raw string key map into a validated
// AuthenticatorConfig. Missing required values and unparseable regex patterns
// are configuration errors; malformed override entries are skipped.
func BuildConfig(raw map[string]string) (*AuthenticatorConfig, error) {
	hostname := configValue(raw, ConfigAPIHostname)
	clientID := configValue(raw, ConfigIntegrationKey)
	secret := configValue(raw, ConfigSecretKey)

	if hostname == "" {
		return nil, fmt.Errorf("missing %s: %w", ConfigAPIHostname, ErrNotConfigured)
	}
	if clientID == "" {
		return nil, fmt.Errorf("missing %s: %w", ConfigIntegrationKey, ErrNotConfigured)
	}
	if secret == "" {
		return nil, fmt.Errorf("missing %s: %w", ConfigSecretKey, ErrNotConfigured)
	}

	config := &AuthenticatorConfig{
		ClientID:          clientID,
		Secret:            secret,
		APIHostname:       hostname,
		Overrides:         ParseOverrides(raw[ConfigCustomClientIDs]),
		UsernameAttribute: configValue(raw, ConfigUsernameCustomAttribute),
	}

	if groups := configValue(raw, ConfigGroups); groups != "" {
		for _, group := range strings.Split(groups, ",") {
			if group = strings.TrimSpace(group); group != "" {
				config.GroupFilter = append(config.GroupFilter, group)
			}
		}
	}

	if failSafe := strings.TrimSpace(raw[ConfigFailSafe]); failSafe != "" {
		value, err := strconv.ParseBool(strings.ToLower(failSafe))
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", ConfigFailSafe, failSafe, ErrNotConfigured)
		}
		config.FailSafe = &value
	}

	if pattern := configValue(raw, ConfigUsernameRegexMatch); pattern != "" {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid %s pattern: %v: %w", ConfigUsernameRegexMatch, err, ErrNotConfigured)
		}
		config.UsernameRegex = compiled
		config.UsernameReplace = raw[ConfigUsernameRegexReplace]
	}

	if impersonator := strings.TrimSpace(raw[ConfigUseImpersonator]); impersonator != "" {
		config.UseImpersonatorIdentity = strings.EqualFold(impersonator, "true")
	}

	return config, nil
}

// Validate checks the required credential triple. BuildConfig guarantees it;
// configs assembled by hand get the same check at flow entry.
func (c *AuthenticatorConfig) Validate() error {
	if c == nil {
		return ErrNotConfigured
	}
	if isUnset(c.APIHostname) {
		return fmt.Errorf("missing API hostname: %w", ErrNotConfigured)
	}
	if isUnset(c.ClientID) {
		return fmt.Errorf("missing integration key: %w", ErrNotConfigured)
	}
	if isUnset(c.Secret) {
		return fmt.Errorf("missing secret key: %w", ErrNotConfigured)
	}
	return nil
}

// FailOpenOnHealthCheck reports whether a failed provider health check should
// let the login through. Defaults to fail secure when the flag is unset.
func (c *AuthenticatorConfig) FailOpenOnHealthCheck() bool {
	if c.FailSafe != nil {
		return *c.FailSafe
	}
	return false
}

// FailOpenOnChallenge reports whether a failed challenge URL creation should
// let the login through. Defaults to fail open when the flag is unset; the
// asymmetry with FailOpenOnHealthCheck is historical behavior and is kept.
func (c *AuthenticatorConfig) FailOpenOnChallenge() bool {
	if c.FailSafe != nil {
		return *c.FailSafe
	}
	return true
}

// ParseOverrides parses the ##-separated custom client id list. Valid entries
// have 3 or 4 comma separated fields: tenant client id, Duo client id, Duo
// secret, and an optional API hostname. Entries with any other field count
// are skipped.
func ParseOverrides(raw string) []OverrideEntry {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var entries []OverrideEntry
	for _, entry := range strings.Split(raw, overrideSeparator) {
		parts := strings.Split(entry, ",")
		if len(parts) != 3 && len(parts) != 4 {
			continue
		}

		override := OverrideEntry{
			TenantClientID:   parts[0],
			ProviderClientID: parts[1],
			ProviderSecret:   parts[2],
		}
		if len(parts) == 4 {
			override.APIHostname = parts[3]
		}
		entries = append(entries, override)
	}

	return entries
}

func configValue(raw map[string]string, key string) string {
	value := strings.TrimSpace(raw[key])
	if strings.EqualFold(value, sentinelNone) {
		return ""
	}
	return value
}

func isUnset(value string) bool {
	value = strings.TrimSpace(value)
	return value == "" || strings.EqualFold(value, sentinelNone)
}
