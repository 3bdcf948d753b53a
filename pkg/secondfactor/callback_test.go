package secondfactor

import (
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callbackFlow() *FlowContext {
	counter := 0
	return &FlowContext{
		BaseURI:    "https://idp.example.com//",
		RefreshURL: "https://idp.example.com/realms/acme/refresh",
		Tenant: Tenant{
			Name:             "acme",
			ClientID:         "web client",
			InternalClientID: "0be2e36f",
		},
		Execution: Execution{ID: "exec-1", Alternative: true},
		TabID:     "tab-1",
		Query:     url.Values{},
		GenerateCode: func() (string, error) {
			counter++
			return fmt.Sprintf("code-%d", counter), nil
		},
	}
}

func TestCallbackURL_NonAlternativeReturnsRefreshURL(t *testing.T) {
	flow := callbackFlow()
	flow.Execution.Alternative = false

	got, err := CallbackURL(flow, true)
	require.NoError(t, err)
	assert.Equal(t, flow.RefreshURL, got)
}

func TestCallbackURL_Shape(t *testing.T) {
	flow := callbackFlow()

	got, err := CallbackURL(flow, true)
	require.NoError(t, err)

	// trailing slashes stripped from the base, values query-encoded
	assert.Equal(t,
		"https://idp.example.com/realms/acme/duo-universal/callback"+
			"?kc_client_id=web+client&kc_execution=exec-1&kc_tab_id=tab-1&kc_session_code=code-1",
		got)
}

func TestCallbackURL_ReusesIncomingCode(t *testing.T) {
	flow := callbackFlow()
	flow.Query.Set(ParamDuoCode, "abc")
	flow.Query.Set(ParamSessionCode, "original-code")

	first, err := CallbackURL(flow, false)
	require.NoError(t, err)
	second, err := CallbackURL(flow, false)
	require.NoError(t, err)

	assert.Equal(t, first, second, "repeated builds must be idempotent")
	assert.Contains(t, first, "kc_session_code=original-code")
}

func TestCallbackURL_ForceGeneratesFreshCode(t *testing.T) {
	flow := callbackFlow()
	flow.Query.Set(ParamDuoCode, "abc")
	flow.Query.Set(ParamSessionCode, "original-code")

	got, err := CallbackURL(flow, true)
	require.NoError(t, err)
	assert.Contains(t, got, "kc_session_code=code-1")
}

func TestCallbackURL_GeneratesWhenEitherParamMissing(t *testing.T) {
	tests := []struct {
		name  string
		query url.Values
	}{
		{"no params", url.Values{}},
		{"only duo code", url.Values{ParamDuoCode: {"abc"}}},
		{"only session code", url.Values{ParamSessionCode: {"original-code"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := callbackFlow()
			flow.Query = tt.query
			got, err := CallbackURL(flow, false)
			require.NoError(t, err)
			assert.Contains(t, got, "kc_session_code=code-1")
		})
	}
}

func TestCallbackURL_GenerateError(t *testing.T) {
	flow := callbackFlow()
	flow.GenerateCode = func() (string, error) {
		return "", fmt.Errorf("engine unavailable")
	}

	_, err := CallbackURL(flow, true)
	assert.Error(t, err)
}
