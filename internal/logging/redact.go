package logging

import (
	"net/url"
	"regexp"
	"strings"
)

// RedactedValue replaces anything secret.
const RedactedValue = "[REDACTED]"

// Setting names containing any of these are secret.
var sensitiveFields = []string{"secret", "token", "password", "authorization", "credential"}

var (
	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`)
	jwtPattern    = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`)
)

// Redact masks bearer credentials and compact JWTs inside free text.
func Redact(s string) string {
	s = bearerPattern.ReplaceAllString(s, RedactedValue)
	return jwtPattern.ReplaceAllString(s, RedactedValue)
}

// RedactURL masks the password in a URL such as a NATS server address.
// Strings that do not parse as a URL go through Redact.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return Redact(raw)
	}
	if u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); !ok {
		return raw
	}
	u.User = url.UserPassword(u.User.Username(), "")
	masked := u.String()
	at := strings.Index(masked, ":@")
	return masked[:at+1] + RedactedValue + masked[at+1:]
}

// RedactMap copies a settings tree with secret values masked. Empty secrets
// stay empty so an unset value still reads as unset.
func RedactMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for key, value := range m {
		out[key] = redactSetting(key, value)
	}
	return out
}

func redactSetting(key string, value any) any {
	if IsSensitiveField(key) {
		if value == "" {
			return ""
		}
		return RedactedValue
	}
	switch v := value.(type) {
	case map[string]any:
		return RedactMap(v)
	case string:
		if strings.Contains(v, "://") {
			return RedactURL(v)
		}
		return Redact(v)
	default:
		return value
	}
}

// IsSensitiveField reports whether a setting name looks secret.
func IsSensitiveField(name string) bool {
	lower := strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(lower, field) {
			return true
		}
	}
	return false
}
