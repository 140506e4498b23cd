package gateway

import (
	"net/url"
	"strings"

	"github.com/wesleyorama2/horde/internal/config"
)

// Validate checks the shape of a request before any routing or network
// activity. The returned error, if any, is always a *Error of kind
// Validation.
func Validate(req *ActionRequest) *Error {
	if req == nil {
		return newError(KindValidation, "request is empty")
	}
	if strings.TrimSpace(req.APIName) == "" {
		return newError(KindValidation, "api_name is required")
	}
	if req.Method == "" {
		return newError(KindValidation, "method is required")
	}
	if !config.ValidMethods[req.Method] {
		return newError(KindValidation, "unsupported method %q", req.Method)
	}
	if req.Path == "" {
		return newError(KindValidation, "path is required")
	}
	if err := validatePath(req.Path); err != nil {
		return err
	}

	seen := make(map[string]string, len(req.Headers))
	for k := range req.Headers {
		if k == "" || strings.ContainsAny(k, " \t\r\n:") {
			return newError(KindValidation, "invalid header name %q", k)
		}
		canonical := strings.ToLower(k)
		if prev, ok := seen[canonical]; ok {
			return newError(KindValidation, "duplicate header %q and %q", prev, k)
		}
		seen[canonical] = k
	}
	for k, v := range req.Headers {
		if strings.ContainsAny(v, "\r\n") {
			return newError(KindValidation, "header %q contains a line break", k)
		}
	}
	return nil
}

// validatePath accepts origin-form paths only: the route supplies scheme and
// host, so a path can never redirect the call elsewhere.
func validatePath(p string) *Error {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
		return newError(KindValidation, "path must be absolute and start with a single '/': %q", p)
	}
	u, err := url.Parse(p)
	if err != nil {
		return newError(KindValidation, "invalid path %q: %v", p, err)
	}
	if u.Scheme != "" || u.Host != "" {
		return newError(KindValidation, "path must not contain a scheme or host: %q", p)
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if seg == ".." {
			return newError(KindValidation, "path must not contain '..' segments: %q", p)
		}
	}
	return nil
}
