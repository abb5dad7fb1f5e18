package logging

import (
	"net/url"
	"regexp"
)

// RedactedText replaces sensitive values in logged strings.
const RedactedText = "[REDACTED]"

var (
	// password=xxx, pwd=xxx, pass=xxx up to the next delimiter
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Bearer header values carrying a JWT
	bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*`)

	// user:pass@host inside free text
	userinfoPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@`)
)

// SanitizeConnectionString hides the password in a postgres URL or key=value
// DSN while keeping user, host and database readable. URL passwords become
// "xxxxx" as url.URL.Redacted does.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	if u, err := url.Parse(connStr); err == nil && u.Scheme != "" && u.Host != "" {
		q := u.Query()
		if q.Has("password") {
			q.Set("password", "xxxxx")
			u.RawQuery = q.Encode()
		}
		return u.Redacted()
	}

	return passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
}

// SanitizeError returns err's message with credentials and tokens removed.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = bearerPattern.ReplaceAllString(sanitized, "Bearer "+RedactedText)
	sanitized = userinfoPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@")
	return sanitized
}
