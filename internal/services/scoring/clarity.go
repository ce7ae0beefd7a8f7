package scoring

import "strings"

// Context clarity heuristic: a [0,1] grade of how much structure the HTML
// context blob gives a reviewer. Each signal contributes a fixed share so the
// output is monotonic in the number of clarity signals present.

var semanticTags = []string{
    "<main", "<nav", "<header", "<footer", "<article", "<section",
    "<aside", "<form", "<label", "<button", "<h1", "<h2",
}

const maxClearNesting = 10

func clarityScore(context string) float64 {
    if strings.TrimSpace(context) == "" {
        return 0
    }
    lower := strings.ToLower(context)
    score := 0.0

    // Well-formed document markers.
    if strings.Contains(lower, "<!doctype") || strings.Contains(lower, "<html") || balancedFragment(lower) {
        score += 0.25
    }

    // Semantic tags, up to four counted.
    hits := 0
    for _, tag := range semanticTags {
        if strings.Contains(lower, tag) {
            hits++
        }
    }
    if hits > 4 { hits = 4 }
    score += 0.25 * float64(hits) / 4

    // Bounded nesting depth.
    switch depth := nestingDepth(lower); {
    case depth <= maxClearNesting:
        score += 0.25
    case depth <= 2*maxClearNesting:
        score += 0.125
    }

    // Named classes or ids give the reviewer something to anchor on.
    if strings.Contains(lower, "class=\"") || strings.Contains(lower, "id=\"") ||
        strings.Contains(lower, "class='") || strings.Contains(lower, "id='") {
        score += 0.25
    }

    if score > 1 { score = 1 }
    return score
}

// balancedFragment reports whether the blob has at least one matching
// open/close tag pair, a weaker well-formedness signal than a doctype.
func balancedFragment(lower string) bool {
    open := strings.Count(lower, "<")
    closing := strings.Count(lower, "</")
    selfClosing := strings.Count(lower, "/>")
    return closing > 0 && open-closing-selfClosing >= closing
}

// nestingDepth tracks the maximum open-tag depth while scanning the blob.
// Void elements are cheap to special-case and would otherwise inflate depth.
var voidElements = map[string]bool{
    "area": true, "base": true, "br": true, "col": true, "embed": true,
    "hr": true, "img": true, "input": true, "link": true, "meta": true,
    "source": true, "track": true, "wbr": true,
}

func nestingDepth(lower string) int {
    depth, max := 0, 0
    for i := 0; i < len(lower); i++ {
        if lower[i] != '<' {
            continue
        }
        if i+1 < len(lower) && lower[i+1] == '/' {
            if depth > 0 { depth-- }
            continue
        }
        if i+1 < len(lower) && (lower[i+1] == '!' || lower[i+1] == '?') {
            continue
        }
        j := i + 1
        for j < len(lower) && lower[j] >= 'a' && lower[j] <= 'z' {
            j++
        }
        tag := lower[i+1 : j]
        if tag == "" || voidElements[tag] {
            continue
        }
        end := strings.IndexByte(lower[i:], '>')
        if end > 0 && lower[i+end-1] == '/' {
            continue
        }
        depth++
        if depth > max { max = depth }
    }
    return max
}
