// Package validation checks the shape of webhook definitions before they are persisted:
// the HTTP method, the callback URL, and the outbound header map. Validators return
// errors whose messages are safe to show to the caller.
package validation

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// SupportedMethods lists the HTTP methods a webhook may use
var SupportedMethods = []string{
	"GET",
	"HEAD",
	"POST",
	"PUT",
	"PATCH",
	"DELETE",
	"OPTIONS",
}

// SupportedSchemes lists the callback URL schemes a webhook may target
var SupportedSchemes = []string{"http", "https"}

// NormalizeMethod upper-cases and trims an HTTP method
func NormalizeMethod(method string) string {
	return strings.ToUpper(strings.TrimSpace(method))
}

// ValidateMethod checks that method is one of SupportedMethods. Matching is exact,
// so callers should pass the result of NormalizeMethod.
func ValidateMethod(method string) error {
	if method == "" {
		return fmt.Errorf("method cannot be empty")
	}
	if !contains(SupportedMethods, method) {
		return fmt.Errorf("unsupported method: %s (supported: %v)", method, SupportedMethods)
	}
	return nil
}

// ValidateCallbackURL checks that raw is an absolute http(s) URL with a host
func ValidateCallbackURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("url cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	if !contains(SupportedSchemes, strings.ToLower(u.Scheme)) {
		return fmt.Errorf("unsupported url scheme: %q (supported: %v)", u.Scheme, SupportedSchemes)
	}

	if u.Host == "" {
		return fmt.Errorf("url must include a host")
	}

	return nil
}

// ValidateHeaders checks that every header name is a valid HTTP token and every
// value is a valid field value. A nil map is valid.
func ValidateHeaders(headers map[string]string) error {
	for name, value := range headers {
		if !httpguts.ValidHeaderFieldName(name) {
			return fmt.Errorf("invalid header name: %q", name)
		}
		if !httpguts.ValidHeaderFieldValue(value) {
			return fmt.Errorf("invalid value for header %s", name)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
