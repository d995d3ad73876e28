package generation

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
)

const (
	maxNameLength  = 32
	suffixLength   = 8
	suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	disallowed    = regexp.MustCompile(`[^a-z0-9-]`)
	dashRun       = regexp.MustCompile(`-+`)
)

// Sanitize turns a display name into a lowercase, dash separated key fragment
// of at most 32 characters. It may return an empty string.
func Sanitize(name string) string {
	name = strings.ToLower(name)
	name = whitespaceRun.ReplaceAllString(name, "-")
	name = disallowed.ReplaceAllString(name, "")
	name = dashRun.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")
	if len(name) > maxNameLength {
		name = strings.TrimRight(name[:maxNameLength], "-")
	}
	return name
}

// ObjectName returns "<sanitized>-<suffix>.<ext>", or "<suffix>.<ext>" when
// the name sanitizes to nothing.
func ObjectName(assetName, ext string) (string, error) {
	suffix, err := randomSuffix(suffixLength)
	if err != nil {
		return "", err
	}
	base := Sanitize(assetName)
	if base == "" {
		return suffix + "." + ext, nil
	}
	return base + "-" + suffix + "." + ext, nil
}

func randomSuffix(n int) (string, error) {
	max := big.NewInt(int64(len(suffixAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = suffixAlphabet[idx.Int64()]
	}
	return string(b), nil
}
