package auth

import (
	"net/url"
)

// CookieSettings contains cookie security settings derived from base URL.
type CookieSettings struct {
	// Secure indicates whether the cookie should only be sent over HTTPS.
	Secure bool
	// Domain is the cookie domain scope. Empty restricts it to the serving host.
	Domain string
}

// DeriveCookieSettings determines cookie security settings from the public base URL.
//   - http://localhost:3443 → Secure: false
//   - https://tracker.example.com → Secure: true
//
// configCookieDomain, when set, overrides the derived domain.
func DeriveCookieSettings(baseURL string, configCookieDomain string) CookieSettings {
	parsedURL, err := url.Parse(baseURL)
	if err != nil || baseURL == "" {
		// Safe defaults for invalid URLs
		return CookieSettings{Secure: true, Domain: configCookieDomain}
	}

	return CookieSettings{
		Secure: parsedURL.Scheme != "http",
		Domain: configCookieDomain,
	}
}
