package scoring

import (
    "strings"
    "sync"
)

// PatternTable maps (criterion, element class) pairs to the historical
// accuracy of automated detection for that pattern. Seeded with the common
// WCAG patterns; consultants' outcomes can feed updates at runtime.
type PatternTable struct {
    mu       sync.RWMutex
    accuracy map[string]float64
}

func patternKey(criterion, elementClass string) string {
    return strings.ToLower(criterion) + "|" + strings.ToLower(elementClass)
}

func NewPatternTable() *PatternTable {
    return &PatternTable{accuracy: map[string]float64{
        patternKey("1.1.1", "img"):    0.94, // missing alt text
        patternKey("1.1.1", "area"):   0.88,
        patternKey("1.3.1", "table"):  0.76, // structure not programmatic
        patternKey("1.4.3", "p"):      0.71, // contrast
        patternKey("1.4.3", "span"):   0.69,
        patternKey("2.1.1", "div"):    0.64, // click handler on non-focusable
        patternKey("2.4.4", "a"):      0.87, // link purpose
        patternKey("2.4.6", "h1"):     0.72,
        patternKey("3.1.1", "html"):   0.96, // missing lang
        patternKey("3.3.2", "input"):  0.83, // missing label
        patternKey("4.1.2", "button"): 0.85, // name/role/value
        patternKey("4.1.2", "select"): 0.81,
    }}
}

// Accuracy returns the best historical accuracy across the finding's
// criteria for the given element class. ok is false when no pattern is
// known, which the scorer records as a novel-pattern uncertainty.
func (t *PatternTable) Accuracy(criteria []string, elementClass string) (float64, bool) {
    t.mu.RLock()
    defer t.mu.RUnlock()
    best, ok := 0.0, false
    for _, c := range criteria {
        if acc, found := t.accuracy[patternKey(c, elementClass)]; found {
            ok = true
            if acc > best { best = acc }
        }
    }
    return best, ok
}

func (t *PatternTable) Update(criterion, elementClass string, accuracy float64) {
    if accuracy < 0 { accuracy = 0 }
    if accuracy > 1 { accuracy = 1 }
    t.mu.Lock()
    t.accuracy[patternKey(criterion, elementClass)] = accuracy
    t.mu.Unlock()
}

// ElementClass extracts the tag portion of an element signature such as
// "img.hero-banner" or "button#submit > span".
func ElementClass(signature string) string {
    sig := strings.TrimSpace(strings.ToLower(signature))
    sig = strings.TrimPrefix(sig, "<")
    for i, r := range sig {
        if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
            return sig[:i]
        }
    }
    return sig
}
