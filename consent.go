package oauth

import (
	"html/template"
	"net/http"

	"github.com/midodimori/mcp-test-kits/scope"
	"github.com/midodimori/mcp-test-kits/security"
	"github.com/midodimori/mcp-test-kits/server"
)

// consentTemplate renders the approve/deny page. Every authorization
// parameter round-trips through a hidden field so the POST can be validated
// again before a code is issued.
const consentTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>OAuth Authorization</title>
  <style>
    body { font-family: sans-serif; max-width: 600px; margin: 50px auto; padding: 20px; }
    .scopes { margin: 20px 0; }
    button { margin: 10px 10px 10px 0; padding: 10px 20px; font-size: 16px; cursor: pointer; }
    .approve { background: #28a745; color: white; border: none; }
    .deny { background: #dc3545; color: white; border: none; }
  </style>
</head>
<body>
  <h1>Authorization Request</h1>
  <p><strong>Client:</strong> {{.ClientID}}</p>
  <p><strong>Redirect URI:</strong> {{.RedirectURI}}</p>
  <p><strong>Resource:</strong> {{.Resource}}</p>

  <div class="scopes">
    <strong>Requested Scopes:</strong>
    <ul>
    {{- range .Scopes}}
      <li>{{.}}</li>
    {{- end}}
    </ul>
  </div>

  <form method="POST" action="{{.Action}}">
    {{- range $name, $values := .Fields}}
    {{- range $values}}
    <input type="hidden" name="{{$name}}" value="{{.}}">
    {{- end}}
    {{- end}}

    <button type="submit" name="action" value="approve" class="approve">Approve</button>
    <button type="submit" name="action" value="deny" class="deny">Deny</button>
  </form>
</body>
</html>
`

var consentTmpl = template.Must(template.New("consent").Parse(consentTemplate))

type consentData struct {
	ClientID    string
	RedirectURI string
	Resource    string
	Scopes      []string
	Action      string
	Fields      map[string][]string
}

// renderConsentPage writes the consent page for a validated request.
func renderConsentPage(w http.ResponseWriter, issuer string, req *server.AuthorizationRequest) error {
	data := consentData{
		ClientID:    req.ClientID,
		RedirectURI: req.RedirectURI,
		Resource:    req.Resource,
		Scopes:      scope.Parse(req.Scope),
		Action:      PathAuthorize,
		Fields:      req.Values(),
	}

	security.SetConsentPageHeaders(w, issuer)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	return consentTmpl.Execute(w, data)
}
