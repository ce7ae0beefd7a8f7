package crawler

import (
    "context"

    "github.com/aaj441/wcag-ai-platform-sub007/internal/domain"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/ports"
)

// Static serves a fixed findings set for every target. The real crawler runs
// as a separate system and feeds the ingestion endpoint; this adapter keeps
// the in-process pipeline exercisable without it.
type Static struct {
    Findings []ports.RawFinding
}

func (s Static) Crawl(_ context.Context, _ string) ([]ports.RawFinding, error) {
    return append([]ports.RawFinding(nil), s.Findings...), nil
}

// Sample is a representative crawl result covering the common WCAG patterns.
func Sample() Static {
    shot := "s3://screenshots/sample-hero.png"
    return Static{Findings: []ports.RawFinding{
        {
            Criteria:         []string{"1.1.1"},
            Severity:         domain.SeverityCritical,
            ElementSignature: "img.hero-banner",
            Context:          `<main><section class="hero"><img src="/hero.jpg" class="hero-banner"></section></main>`,
            ScreenshotRef:    &shot,
        },
        {
            Criteria:         []string{"3.1.1"},
            Severity:         domain.SeverityHigh,
            ElementSignature: "html",
            Context:          `<!doctype html><html><head><title>Home</title></head></html>`,
        },
        {
            Criteria:         []string{"1.4.3", "1.4.11"},
            Severity:         domain.SeverityMedium,
            ElementSignature: "span.badge",
            Context:          `<span class="badge" style="color:#999;background:#aaa">New</span>`,
        },
    }}
}
