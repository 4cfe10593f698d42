package scan

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/evildarkarchon/unpackrr/internal/ba2"
)

const regexMetachars = `[]()*+?|^$\.`

// LooksLikeRegex reports whether an ignore pattern is treated as a regular
// expression. Any pattern containing a metacharacter qualifies, so plain file
// names with a dot are regexes too.
func LooksLikeRegex(pattern string) bool {
	return strings.ContainsAny(pattern, regexMetachars)
}

// Filter decides which archives a scan keeps. A nil Filter keeps every
// archive; an empty postfix list keeps none. A Filter must not be copied
// after first use.
type Filter struct {
	Postfixes    []string
	IgnoredFiles []string

	once      sync.Once
	postfixes []string
	literals  []string
	exact     map[string]bool
	patterns  []*regexp.Regexp
	invalid   []error
}

func NewFilter(postfixes, ignoredFiles []string) *Filter {
	return &Filter{
		Postfixes:    postfixes,
		IgnoredFiles: ignoredFiles,
	}
}

func (f *Filter) compile() {
	f.once.Do(func() {
		for _, postfix := range f.Postfixes {
			if postfix = strings.ToLower(strings.TrimSpace(postfix)); postfix != "" {
				f.postfixes = append(f.postfixes, postfix)
			}
		}

		f.exact = make(map[string]bool, len(f.IgnoredFiles))
		for _, pattern := range f.IgnoredFiles {
			if pattern == "" {
				continue
			}
			f.exact[normalizePath(pattern)] = true

			if !LooksLikeRegex(pattern) {
				f.literals = append(f.literals, pattern)
				continue
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				f.invalid = append(f.invalid, fmt.Errorf("ignored file pattern %q is not a valid regular expression: %w", pattern, err))
				continue
			}
			f.patterns = append(f.patterns, re)
		}
	})
}

// Validate reports postfixes that do not end in .ba2 and regex-shaped ignore
// patterns that do not compile. Scans still run with an invalid filter; bad
// patterns are skipped.
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}
	f.compile()

	var errs []error
	for _, postfix := range f.Postfixes {
		if !strings.HasSuffix(strings.ToLower(strings.TrimSpace(postfix)), ba2.Extension) {
			errs = append(errs, fmt.Errorf("postfix %q must end with %s", postfix, ba2.Extension))
		}
	}
	errs = append(errs, f.invalid...)
	return errors.Join(errs...)
}

func (f *Filter) MatchesPostfix(name string) bool {
	if f == nil {
		return true
	}
	f.compile()

	lower := strings.ToLower(name)
	for _, postfix := range f.postfixes {
		if strings.Contains(lower, postfix) {
			return true
		}
	}
	return false
}

// IsIgnored checks, in order: an exact match against the absolute or
// root-relative path, a substring match for literal patterns, then a
// case-sensitive regex match against the file name.
func (f *Filter) IsIgnored(fullPath, relPath, name string) bool {
	if f == nil {
		return false
	}
	f.compile()

	if f.exact[normalizePath(fullPath)] || (relPath != "" && f.exact[normalizePath(relPath)]) {
		return true
	}
	for _, literal := range f.literals {
		if strings.Contains(name, literal) {
			return true
		}
	}
	for _, re := range f.patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func normalizePath(path string) string {
	return filepath.ToSlash(filepath.Clean(path))
}
