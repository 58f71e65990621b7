package auth

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// Credentials is what a client presented while opening its connection.
// Subprotocol is set when the token came through Sec-WebSocket-Protocol and
// must be echoed back for browsers to accept the upgrade.
type Credentials struct {
	Token       string
	Subprotocol string
}

func (c Credentials) Present() bool {
	return c.Token != ""
}

// FromRequest looks for a token in, by priority, the first offered
// subprotocol, the Authorization header and the token query parameter.
func FromRequest(r *http.Request) Credentials {
	if protocols := websocket.Subprotocols(r); len(protocols) > 0 && protocols[0] != "" {
		return Credentials{Token: protocols[0], Subprotocol: protocols[0]}
	}
	if token := BearerToken(r.Header.Get("Authorization")); token != "" {
		return Credentials{Token: token}
	}
	return Credentials{Token: strings.TrimSpace(r.URL.Query().Get("token"))}
}

// BearerToken extracts the token of a "Bearer <token>" header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
