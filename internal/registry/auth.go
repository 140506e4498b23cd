package registry

import (
	"encoding/base64"
	"net/http"

	"github.com/wesleyorama2/horde/internal/config"
)

// Auth is the credential set a route injects into outbound calls.
type Auth struct {
	Type     string
	Token    string
	Username string
	Password string
	Header   string
	Headers  map[string]string
}

func newAuth(ac *config.AuthConfig) Auth {
	if ac == nil {
		return Auth{Type: config.AuthNone}
	}

	a := Auth{
		Type:     ac.Type,
		Token:    ac.Token,
		Username: ac.Username,
		Password: ac.Password,
		Header:   ac.Header,
	}
	if a.Type == "" {
		a.Type = config.AuthNone
	}
	if len(ac.Headers) > 0 {
		a.Headers = make(map[string]string, len(ac.Headers))
		for k, v := range ac.Headers {
			a.Headers[k] = v
		}
	}
	return a
}

// Apply writes the route's credentials into h, replacing any caller-supplied
// value for the same header.
func (a Auth) Apply(h http.Header) {
	switch a.Type {
	case config.AuthBearer:
		h.Set("Authorization", "Bearer "+a.Token)
	case config.AuthBasic:
		creds := base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
		h.Set("Authorization", "Basic "+creds)
	case config.AuthAPIKey:
		header := a.Header
		if header == "" {
			header = config.DefaultAPIKeyHeader
		}
		h.Set(header, a.Token)
	case config.AuthHeaders:
		for k, v := range a.Headers {
			h.Set(k, v)
		}
	}
}

// Redacted returns a copy safe to expose over GET /routes.
func (a Auth) Redacted() Auth {
	const mask = "***"

	r := Auth{Type: a.Type, Username: a.Username, Header: a.Header}
	if a.Token != "" {
		r.Token = mask
	}
	if a.Password != "" {
		r.Password = mask
	}
	if len(a.Headers) > 0 {
		r.Headers = make(map[string]string, len(a.Headers))
		for k := range a.Headers {
			r.Headers[k] = mask
		}
	}
	return r
}
