package classifier

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrNoJSONObject = errors.New("oracle output holds no JSON object")

	fenceRe = regexp.MustCompile("```(?:json|JSON)?")
)

// CleanOutput strips code fences and line breaks from raw oracle text and
// returns the outermost {...} span.
func CleanOutput(raw string) (string, error) {
	s := fenceRe.ReplaceAllString(raw, "")
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("\r", "", "\n", "").Replace(s)

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return "", ErrNoJSONObject
	}
	return s[start : end+1], nil
}
