package secondfactor

import (
	"fmt"
	"net/url"
	"strings"
)

// callbackPath is the tenant-scoped endpoint the provider redirects back to.
const callbackPath = "/duo-universal/callback"

// CallbackURL builds the redirect URL handed to the provider. In the
// non-alternative case no continuation state is needed and the host's refresh
// URL is returned unchanged.
//
// When the incoming request already carries both a provider response code and
// a continuation code, and forceCode is false, the incoming continuation code
// is reused: the provider requires the same code as the original redirect to
// retrieve its result. Otherwise a fresh code is generated.
func CallbackURL(flow *FlowContext, forceCode bool) (string, error) {
	if !flow.Execution.Alternative {
		return flow.RefreshURL, nil
	}

	var sessionCode string
	if !forceCode && flow.Query.Get(ParamDuoCode) != "" && flow.Query.Get(ParamSessionCode) != "" {
		sessionCode = flow.Query.Get(ParamSessionCode)
	} else {
		var err error
		sessionCode, err = flow.GenerateCode()
		if err != nil {
			return "", fmt.Errorf("failed to generate continuation code: %w", err)
		}
	}

	base := strings.TrimRight(flow.BaseURI, "/")

	return base + "/realms/" + url.QueryEscape(flow.Tenant.Name) + callbackPath +
		"?kc_client_id=" + url.QueryEscape(flow.Tenant.ClientID) +
		"&kc_execution=" + url.QueryEscape(flow.Execution.ID) +
		"&kc_tab_id=" + url.QueryEscape(flow.TabID) +
		"&kc_session_code=" + url.QueryEscape(sessionCode), nil
}
