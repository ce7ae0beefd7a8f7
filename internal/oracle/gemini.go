package oracle

import (
    "context"
    "encoding/json"
    "fmt"
    "math"
    "net/http"
    "net/url"
    "regexp"
    "strings"
    "sync"
    "time"

    "google.golang.org/genai"

    "github.com/aaj441/wcag-ai-platform-sub007/internal/ports"
)

// Test hook: decouples retry backoff from the system clock.
var sleepFunc = time.Sleep

const (
    maxRetries     = 2
    baseRetryDelay = 500 * time.Millisecond
    maxRetryDelay  = 4 * time.Second
)

var (
    fenceRegexNonGreedy = regexp.MustCompile(`(?s)(?:~~~|` + "```" + `)\s*(?:json)?\s*(.*?)\s*(?:~~~|` + "```" + `)`)
    fenceRegexGreedy    = regexp.MustCompile(`(?s)(?:~~~|` + "```" + `)\s*(?:json)?\s*(.*)\s*(?:~~~|` + "```" + `)`)
)

var (
    sharedClient *http.Client
    clientOnce   sync.Once
)

func getSharedClient() *http.Client {
    clientOnce.Do(func() {
        sharedClient = &http.Client{
            Timeout: 120 * time.Second,
            Transport: &http.Transport{
                MaxIdleConns:        100,
                MaxIdleConnsPerHost: 20,
                IdleConnTimeout:     90 * time.Second,
            },
        }
    })
    return sharedClient
}

const systemPrompt = `You are an accessibility auditor verifying automated WCAG findings.
Given one candidate violation, judge whether it is a true violation.

### OUTPUT PROTOCOL ###
1. Return strictly valid JSON.
2. Schema: {"isViolation": boolean, "confidence": number, "analysis": "string", "concerns": ["string"]}
3. "confidence" is your probability in [0,1] that this is a real violation.
4. "analysis" is a short remediation-oriented explanation. Do NOT include executable code.
5. "concerns" lists anything that made this hard to judge.`

// Gemini is the production oracle behind the ports.Oracle interface.
type Gemini struct {
    apiKey  string
    model   string
    apiBase string
}

func NewGemini(apiKey, model, apiBase string) *Gemini {
    return &Gemini{apiKey: apiKey, model: model, apiBase: apiBase}
}

func (g *Gemini) Analyze(ctx context.Context, req ports.OracleRequest) (ports.OracleResponse, error) {
    if g.apiKey == "" {
        return ports.OracleResponse{}, fmt.Errorf("missing api key")
    }
    payload, err := json.MarshalIndent(struct {
        Criteria         []string `json:"wcagCriteria"`
        Severity         string   `json:"severity"`
        ElementSignature string   `json:"elementSignature"`
        ContextExcerpt   string   `json:"contextExcerpt"`
    }{
        Criteria:         req.Criteria,
        Severity:         string(req.Severity),
        ElementSignature: req.ElementSignature,
        ContextExcerpt:   req.ContextExcerpt,
    }, "", "  ")
    if err != nil {
        return ports.OracleResponse{}, err
    }

    text, err := g.generate(ctx, string(payload))
    if err != nil {
        return ports.OracleResponse{}, err
    }
    return parseResponse(text)
}

func (g *Gemini) generate(ctx context.Context, userMsg string) (string, error) {
    var lastErr error
    baseClient := getSharedClient()

    for i := 0; i <= maxRetries; i++ {
        if i > 0 {
            sleepDur := time.Duration(math.Pow(2, float64(i))) * baseRetryDelay
            if sleepDur > maxRetryDelay {
                sleepDur = maxRetryDelay
            }
            select {
            case <-ctx.Done():
                return "", ctx.Err()
            default:
                sleepFunc(sleepDur)
            }
        }

        cfg := &genai.ClientConfig{
            APIKey:  g.apiKey,
            Backend: genai.BackendGeminiAPI,
        }
        if g.apiBase != "" {
            cfg.HTTPClient = &http.Client{
                Transport: &testProxyTransport{BaseURL: g.apiBase, RealTransport: baseClient.Transport},
                Timeout:   baseClient.Timeout,
            }
        } else {
            cfg.HTTPClient = baseClient
        }

        client, err := genai.NewClient(ctx, cfg)
        if err != nil {
            return "", err
        }

        config := &genai.GenerateContentConfig{
            ResponseMIMEType: "application/json",
            SystemInstruction: &genai.Content{
                Parts: []*genai.Part{{Text: systemPrompt}},
            },
        }

        result, err := client.Models.GenerateContent(ctx, g.model, genai.Text(userMsg), config)
        if err != nil {
            if strings.Contains(err.Error(), "401") || strings.Contains(err.Error(), "403") {
                return "", err
            }
            lastErr = err
            continue
        }
        return result.Text(), nil
    }
    return "", fmt.Errorf("oracle retries exhausted: %w", lastErr)
}

func parseResponse(content string) (ports.OracleResponse, error) {
    clean := cleanJSONMarkdown(content)
    var resp ports.OracleResponse
    if err := json.Unmarshal([]byte(clean), &resp); err != nil {
        return ports.OracleResponse{}, fmt.Errorf("malformed oracle response: %w", err)
    }
    if resp.Confidence < 0 || resp.Confidence > 1 {
        return ports.OracleResponse{}, fmt.Errorf("oracle confidence %v out of range", resp.Confidence)
    }
    return resp, nil
}

// cleanJSONMarkdown strips code fences and stray prose around the JSON body
// a model may emit despite the response MIME type.
func cleanJSONMarkdown(content string) string {
    content = strings.TrimSpace(content)

    matches := fenceRegexNonGreedy.FindStringSubmatch(content)
    if len(matches) > 1 {
        candidate := strings.TrimSpace(matches[1])
        if json.Valid([]byte(candidate)) {
            return candidate
        }
    }

    matches = fenceRegexGreedy.FindStringSubmatch(content)
    if len(matches) > 1 {
        candidate := strings.TrimSpace(matches[1])
        if json.Valid([]byte(candidate)) {
            return candidate
        }
    }

    start := strings.Index(content, "{")
    end := strings.LastIndex(content, "}")
    if start != -1 && end != -1 && end > start {
        return content[start : end+1]
    }
    return content
}

type testProxyTransport struct {
    BaseURL       string
    RealTransport http.RoundTripper
}

func (t *testProxyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
    targetURL, err := url.Parse(t.BaseURL)
    if err != nil {
        return nil, err
    }
    req.URL.Scheme = targetURL.Scheme
    req.URL.Host = targetURL.Host
    rt := t.RealTransport
    if rt == nil {
        rt = http.DefaultTransport
    }
    return rt.RoundTrip(req)
}
