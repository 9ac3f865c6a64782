package chat

import (
	"regexp"
	"strings"
)

var (
	javascriptScheme = regexp.MustCompile(`(?i)javascript:`)
	eventHandlerAttr = regexp.MustCompile(`(?i)on\w+=`)
)

// Sanitize strips markup-injection vectors from user input: angle brackets,
// javascript: scheme markers, and inline event-handler attribute patterns.
// The result may be empty, in which case the caller drops the input.
func Sanitize(input string) string {
	s := strings.TrimSpace(input)
	s = strings.ReplaceAll(s, "<", "")
	s = strings.ReplaceAll(s, ">", "")
	s = javascriptScheme.ReplaceAllString(s, "")
	s = eventHandlerAttr.ReplaceAllString(s, "")
	return s
}
