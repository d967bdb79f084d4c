package services

import (
	"strings"
	"unicode/utf8"
)

func cleanJSONMarkdown(content string) string {
	content = strings.TrimSpace(content)

	if !strings.Contains(content, "```") {
		return content
	}

	parts := strings.Split(content, "```")
	if len(parts) < 2 {
		return content
	}

	inner := parts[1]

	if strings.HasPrefix(inner, "json") {
		inner = inner[4:]
	} else if strings.HasPrefix(inner, "JSON") {
		inner = inner[4:]
	}

	return strings.TrimSpace(inner)
}

func applyFuncOptions[T any](entity T, opts ...func(entity T) error) error {
	for _, opt := range opts {
		err := opt(entity)
		if err != nil {
			return err
		}
	}
	return nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
