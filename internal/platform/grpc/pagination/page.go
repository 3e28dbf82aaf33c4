// Package pagination normalizes list parameters and encodes the page
// cursors of the history listings.
package pagination

import (
	"encoding/base64"
	"strconv"
	"strings"

	apperrors "github.com/louisbranch/oauthbroker/internal/platform/errors"
)

// PageSizeConfig bounds the page size of one listing.
type PageSizeConfig struct {
	Default int
	Max     int
}

// Clamp returns value within the configured bounds. Unset and negative
// sizes get Default; the result is never below 1.
func (c PageSizeConfig) Clamp(value int32) int {
	size := int(value)
	if size <= 0 {
		size = c.Default
	}
	if c.Max > 0 {
		size = min(size, c.Max)
	}
	return max(size, 1)
}

// OrderByConfig lists the orderings a listing accepts.
type OrderByConfig struct {
	Default string
	Allowed []string
}

// Normalize lowercases orderBy and collapses its whitespace, then checks it
// against Allowed. Empty input selects Default.
func (c OrderByConfig) Normalize(orderBy string) (string, error) {
	normalized := strings.Join(strings.Fields(strings.ToLower(orderBy)), " ")
	if normalized == "" {
		return c.Default, nil
	}
	for _, allowed := range c.Allowed {
		if normalized == allowed {
			return normalized, nil
		}
	}
	return "", apperrors.Errorf(apperrors.CodeOrderByInvalid, "invalid order_by %q", orderBy).
		With("OrderBy", orderBy)
}

// EncodeCursor returns the opaque page token resuming a listing in orderBy
// after the row with key after.
func EncodeCursor(orderBy string, after int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(orderBy + "|" + strconv.FormatInt(after, 10)))
}

// DecodeCursor returns the row key encoded in token. A token produced for a
// different ordering is invalid.
func DecodeCursor(token, orderBy string) (int64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return 0, invalidToken(token)
	}
	order, key, ok := strings.Cut(string(raw), "|")
	if !ok || order != orderBy {
		return 0, invalidToken(token)
	}
	after, err := strconv.ParseInt(key, 10, 64)
	if err != nil || after < 0 {
		return 0, invalidToken(token)
	}
	return after, nil
}

func invalidToken(token string) error {
	return apperrors.Errorf(apperrors.CodePageTokenInvalid, "invalid page token %q", token)
}
