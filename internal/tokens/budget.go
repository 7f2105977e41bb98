package tokens

import "strings"

// DefaultLimit is the token budget applied to outbound messages.
const DefaultLimit = 100

// DefaultSuffix marks text that was cut to fit the budget.
const DefaultSuffix = "..."

// Truncate bounds text to limit tokens using the default suffix.
func Truncate(text string, limit float64) string {
	out, _ := NewBudgeter(limit).Truncate(text)
	return out
}

// Budgeter truncates text to a token limit.
type Budgeter struct {
	limit  float64
	suffix string
}

// NewBudgeter creates a budgeter. The limit is used as given; a non-positive
// limit leaves room for nothing but the suffix.
func NewBudgeter(limit float64) *Budgeter {
	return &Budgeter{limit: limit, suffix: DefaultSuffix}
}

// WithSuffix sets the marker appended to truncated text.
func (b *Budgeter) WithSuffix(suffix string) *Budgeter {
	b.suffix = suffix
	return b
}

// Limit returns the token limit.
func (b *Budgeter) Limit() float64 {
	return b.limit
}

// Exceeds reports whether text is over the budget.
func (b *Budgeter) Exceeds(text string) bool {
	return Estimate(text) > b.limit
}

// Truncate returns text unchanged when it fits. Otherwise it keeps whole
// whitespace-separated words from the start while they fit and appends the suffix.
// When the first word alone is over the limit the result is only the suffix.
func (b *Budgeter) Truncate(text string) (string, bool) {
	if !b.Exceeds(text) {
		return text, false
	}

	var kept []string
	used := 0.0
	for _, word := range strings.Fields(text) {
		cost := Estimate(word)
		if used+cost > b.limit {
			break
		}
		kept = append(kept, word)
		used += cost
	}
	return strings.Join(kept, " ") + b.suffix, true
}
