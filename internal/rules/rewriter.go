// Package rules rewrites recognized speech before it is sent, so that
// commonly misheard phrases reach the answer backend spelled correctly.
//
// A rules file holds one rewrite per line:
//
//	rag chat => RagChat
//	re:\bfast\s*api\b => FastAPI
//
// Plain rules match whole words, ignoring case. Lines prefixed with "re:"
// are Go regular expressions whose replacement may reference groups ($1).
// Blank lines and lines starting with '#' are skipped.
package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

const (
	separator      = "=>"
	patternPrefix  = "re:"
	defaultMaxPass = 30
)

// ErrUnstable is returned when rewriting keeps changing the text past the pass limit.
var ErrUnstable = errors.New("rewrite rules did not converge")

// Rule is a single compiled rewrite.
type Rule struct {
	Line    int
	Source  string
	pattern *regexp.Regexp
	target  string
}

func (r Rule) rewrite(text string) string {
	return r.pattern.ReplaceAllString(text, r.target)
}

// Rewriter applies rules in file order, repeating whole passes until the text stops changing.
type Rewriter struct {
	rules   []Rule
	maxPass int
}

// Load reads a rules file. An empty path or a missing file yields a rewriter with no rules.
func Load(path string, maxPass int) (*Rewriter, error) {
	if strings.TrimSpace(path) == "" {
		return New(nil, maxPass), nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(nil, maxPass), nil
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}

	parsed, err := Parse(string(contents))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}
	return New(parsed, maxPass), nil
}

func New(rules []Rule, maxPass int) *Rewriter {
	if maxPass <= 0 {
		maxPass = defaultMaxPass
	}
	return &Rewriter{rules: rules, maxPass: maxPass}
}

// Len returns the number of loaded rules.
func (r *Rewriter) Len() int {
	return len(r.rules)
}

// Apply rewrites text. It fails with ErrUnstable when the rules cycle.
func (r *Rewriter) Apply(text string) (string, error) {
	current := text
	for pass := 0; pass < r.maxPass; pass++ {
		next := current
		for _, rule := range r.rules {
			next = rule.rewrite(next)
		}
		if next == current {
			return current, nil
		}
		current = next
	}
	return current, fmt.Errorf("%w after %d passes", ErrUnstable, r.maxPass)
}

// Parse compiles the contents of a rules file.
func Parse(contents string) ([]Rule, error) {
	var parsed []Rule
	for i, raw := range strings.Split(contents, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rule, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		rule.Line = i + 1
		parsed = append(parsed, rule)
	}
	return parsed, nil
}

func parseLine(line string) (Rule, error) {
	idx := strings.LastIndex(line, separator)
	if idx < 0 {
		return Rule{}, fmt.Errorf("missing %q", separator)
	}
	from := strings.TrimSpace(line[:idx])
	to := strings.TrimSpace(line[idx+len(separator):])

	var expr string
	if strings.HasPrefix(from, patternPrefix) {
		expr = strings.TrimSpace(strings.TrimPrefix(from, patternPrefix))
		if expr == "" {
			return Rule{}, errors.New("empty pattern")
		}
		expr = "(?i)" + expr
	} else {
		if from == "" {
			return Rule{}, errors.New("empty phrase")
		}
		expr = phrasePattern(from)
		to = strings.ReplaceAll(to, "$", "$$")
	}

	pattern, err := regexp.Compile(expr)
	if err != nil {
		return Rule{}, fmt.Errorf("invalid pattern: %w", err)
	}
	return Rule{Source: line, pattern: pattern, target: to}, nil
}

// phrasePattern matches phrase as whole words with any run of whitespace between them.
func phrasePattern(phrase string) string {
	words := strings.Fields(phrase)
	for i, word := range words {
		words[i] = regexp.QuoteMeta(word)
	}
	expr := strings.Join(words, `\s+`)
	if isWordByte(phrase[0]) {
		expr = `\b` + expr
	}
	if isWordByte(phrase[len(phrase)-1]) {
		expr += `\b`
	}
	return "(?i)" + expr
}

func isWordByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
