package moodle

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/moodle-elt/internal/errs"
)

// MinHTTPSURLLength is the shortest plausible HTTPS origin, e.g. "https://a.co".
const MinHTTPSURLLength = 12

const (
	schemeHTTP  = "http://"
	schemeHTTPS = "https://"
)

// ValidateURL normalizes a Moodle base URL and rejects unsafe or malformed input.
// See validateURL for the rules; the scheme notice goes to the global zap logger.
func ValidateURL(raw string) (string, error) {
	return validateURL(raw, zap.L())
}

// validateURL trims whitespace, refuses http://, prefixes https:// when no scheme
// is given (logging a notice), strips one trailing slash and enforces a minimum length.
func validateURL(raw string, log *zap.Logger) (string, error) {
	u := strings.TrimSpace(raw)
	if u == "" {
		return "", fmt.Errorf("%w: moodle URL cannot be empty", errs.ErrConfiguration)
	}

	lower := strings.ToLower(u)
	if strings.HasPrefix(lower, schemeHTTP) {
		return "", fmt.Errorf("%w: insecure HTTP protocol detected, use HTTPS for moodle URL %q", errs.ErrConfiguration, u)
	}
	if !strings.HasPrefix(lower, schemeHTTPS) {
		u = schemeHTTPS + u
		log.Info("added https:// protocol to moodle URL", zap.String("url", u))
	}

	u = strings.TrimSuffix(u, "/")

	if len(u) < MinHTTPSURLLength {
		return "", fmt.Errorf("%w: invalid moodle URL format %q", errs.ErrConfiguration, u)
	}
	return u, nil
}
