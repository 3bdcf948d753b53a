package secondfactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRawConfig() map[string]string {
	return map[string]string{
		ConfigAPIHostname:    "api-x.duosecurity.com",
		ConfigIntegrationKey: "DIXXXXXXXXXXXXXXXXXX",
		ConfigSecretKey:      "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef",
	}
}

func TestBuildConfig_Valid(t *testing.T) {
	config, err := BuildConfig(validRawConfig())
	require.NoError(t, err)

	assert.Equal(t, "api-x.duosecurity.com", config.APIHostname)
	assert.Equal(t, "DIXXXXXXXXXXXXXXXXXX", config.ClientID)
	assert.Empty(t, config.GroupFilter)
	assert.Nil(t, config.FailSafe)
	assert.Nil(t, config.UsernameRegex)
	assert.Empty(t, config.UsernameAttribute)
	assert.False(t, config.UseImpersonatorIdentity)
	require.NoError(t, config.Validate())
}

func TestBuildConfig_MissingRequired(t *testing.T) {
	for _, key := range []string{ConfigAPIHostname, ConfigIntegrationKey, ConfigSecretKey} {
		t.Run(key+" absent", func(t *testing.T) {
			raw := validRawConfig()
			delete(raw, key)
			_, err := BuildConfig(raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNotConfigured)
		})

		t.Run(key+" sentinel", func(t *testing.T) {
			raw := validRawConfig()
			raw[key] = "NONE"
			_, err := BuildConfig(raw)
			assert.ErrorIs(t, err, ErrNotConfigured)
		})
	}
}

func TestBuildConfig_Groups(t *testing.T) {
	raw := validRawConfig()
	raw[ConfigGroups] = "admins, operators ,"
	config, err := BuildConfig(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"admins", "operators"}, config.GroupFilter)

	raw[ConfigGroups] = "none"
	config, err = BuildConfig(raw)
	require.NoError(t, err)
	assert.Empty(t, config.GroupFilter)
}

func TestBuildConfig_FailSafe(t *testing.T) {
	raw := validRawConfig()

	config, err := BuildConfig(raw)
	require.NoError(t, err)
	require.Nil(t, config.FailSafe)
	assert.False(t, config.FailOpenOnHealthCheck(), "health check failures default to fail secure")
	assert.True(t, config.FailOpenOnChallenge(), "challenge failures default to fail open")

	raw[ConfigFailSafe] = "true"
	config, err = BuildConfig(raw)
	require.NoError(t, err)
	require.NotNil(t, config.FailSafe)
	assert.True(t, config.FailOpenOnHealthCheck())
	assert.True(t, config.FailOpenOnChallenge())

	raw[ConfigFailSafe] = "false"
	config, err = BuildConfig(raw)
	require.NoError(t, err)
	assert.False(t, config.FailOpenOnHealthCheck())
	assert.False(t, config.FailOpenOnChallenge())

	raw[ConfigFailSafe] = "maybe"
	_, err = BuildConfig(raw)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestBuildConfig_UsernameRegex(t *testing.T) {
	raw := validRawConfig()
	raw[ConfigUsernameRegexMatch] = "@example\\.com$"
	raw[ConfigUsernameRegexReplace] = ""

	config, err := BuildConfig(raw)
	require.NoError(t, err)
	require.NotNil(t, config.UsernameRegex)

	raw[ConfigUsernameRegexMatch] = "["
	_, err = BuildConfig(raw)
	assert.ErrorIs(t, err, ErrNotConfigured)

	raw[ConfigUsernameRegexMatch] = "none"
	config, err = BuildConfig(raw)
	require.NoError(t, err)
	assert.Nil(t, config.UsernameRegex)
}

func TestParseOverrides(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []OverrideEntry
	}{
		{"empty", "", nil},
		{
			"single three field",
			"web-client,DIAAA,secret-a",
			[]OverrideEntry{{TenantClientID: "web-client", ProviderClientID: "DIAAA", ProviderSecret: "secret-a"}},
		},
		{
			"four field with hostname",
			"web-client,DIAAA,secret-a,api-a.duosecurity.com",
			[]OverrideEntry{{TenantClientID: "web-client", ProviderClientID: "DIAAA", ProviderSecret: "secret-a", APIHostname: "api-a.duosecurity.com"}},
		},
		{
			"multiple entries",
			"a,DIAAA,sa##b,DIBBB,sb,api-b.duosecurity.com",
			[]OverrideEntry{
				{TenantClientID: "a", ProviderClientID: "DIAAA", ProviderSecret: "sa"},
				{TenantClientID: "b", ProviderClientID: "DIBBB", ProviderSecret: "sb", APIHostname: "api-b.duosecurity.com"},
			},
		},
		{
			"malformed entries skipped",
			"short,DIAAA##a,DIAAA,sa##too,many,fields,here,extra",
			[]OverrideEntry{{TenantClientID: "a", ProviderClientID: "DIAAA", ProviderSecret: "sa"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseOverrides(tt.raw))
		})
	}
}

func TestValidate_HandAssembledConfig(t *testing.T) {
	config := &AuthenticatorConfig{ClientID: "id", Secret: "s", APIHostname: "none"}
	assert.ErrorIs(t, config.Validate(), ErrNotConfigured)

	var nilConfig *AuthenticatorConfig
	assert.ErrorIs(t, nilConfig.Validate(), ErrNotConfigured)
}
