package config

import (
	"net/url"
	"strings"
)

// RedactURL hides the password of a PostgreSQL connection string so it can
// be logged. Both URL ("postgres://u:p@host/db") and keyword/value
// ("host=h password=p") forms are handled; anything else is returned as is.
func RedactURL(raw string) string {
	if raw == "" {
		return ""
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return raw
		}

		return u.Redacted()
	}

	fields := strings.Fields(raw)
	changed := false

	for i, f := range fields {
		key, _, ok := strings.Cut(f, "=")
		if ok && strings.EqualFold(strings.TrimSpace(key), "password") {
			fields[i] = key + "=xxxxx"
			changed = true
		}
	}

	if !changed {
		return raw
	}

	return strings.Join(fields, " ")
}
