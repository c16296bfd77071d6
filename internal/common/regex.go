package common

import (
	"fmt"
	"regexp"
)

// CompilePatterns compiles a list of case-insensitive regular expressions.
// It fails on the first invalid pattern so bad rule data is caught at load time.
func CompilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}
