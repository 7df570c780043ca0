package helpers

import (
	"errors"
	"regexp"
	"strings"
)

var whitespace = regexp.MustCompile(`\s+`)

// GetSplitPart returns the index-th part of target split by separate
func GetSplitPart(target string, separate string, index int) (string, error) {
	parts := strings.Split(target, separate)
	if index >= len(parts) {
		return "", errors.New("index out of range")
	}
	return parts[index], nil
}

// CollapseSpace trims s and folds any run of whitespace into one space
func CollapseSpace(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
