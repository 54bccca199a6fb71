package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mendableai/firecrawl-go"
)

// clickableSelector is searched when a click action only carries text
// matchers.
const clickableSelector = "a, button, summary, [role=button], input[type=button], input[type=submit]"

// actionScraper sends scrape requests with browser actions, which the SDK's
// ScrapeParams cannot express.
type actionScraper struct {
	apiURL string
	apiKey string
	client *http.Client
}

type serviceAction struct {
	Type         string `json:"type"`
	Selector     string `json:"selector,omitempty"`
	Direction    string `json:"direction,omitempty"`
	Milliseconds int    `json:"milliseconds,omitempty"`
	Script       string `json:"script,omitempty"`
}

type actionScrapeBody struct {
	URL             string          `json:"url"`
	Formats         []string        `json:"formats"`
	OnlyMainContent bool            `json:"onlyMainContent"`
	WaitFor         int             `json:"waitFor,omitempty"`
	Timeout         int             `json:"timeout,omitempty"`
	Actions         []serviceAction `json:"actions"`
}

// serviceActions expands navigation actions into the service's action list.
// Text matchers become a script clicking the first visible element whose text
// contains one of them.
func serviceActions(actions []Action) []serviceAction {
	var out []serviceAction
	for _, a := range actions {
		repeat := max(a.Repeat, 1)
		for range repeat {
			switch a.Type {
			case ActionClick:
				if len(a.Text) == 0 && a.Selector != "" {
					out = append(out, serviceAction{Type: "click", Selector: a.Selector})
				} else if len(a.Text) > 0 {
					out = append(out, serviceAction{Type: "executeJavascript", Script: clickScript(a.Text, a.Selector)})
				} else {
					continue
				}
				out = append(out, serviceAction{Type: "wait", Milliseconds: 1000})
			case ActionScroll:
				out = append(out, serviceAction{Type: "scroll", Direction: "down"})
			case ActionWait:
				if a.Milliseconds > 0 {
					out = append(out, serviceAction{Type: "wait", Milliseconds: a.Milliseconds})
				}
			}
		}
	}
	return out
}

func clickScript(texts []string, selector string) string {
	if selector == "" {
		selector = clickableSelector
	}
	lowered := make([]string, 0, len(texts))
	for _, t := range texts {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lowered = append(lowered, t)
		}
	}
	needles, _ := json.Marshal(lowered)
	sel, _ := json.Marshal(selector)
	return fmt.Sprintf(`(() => {
  const needles = %s;
  for (const el of document.querySelectorAll(%s)) {
    const text = (el.innerText || el.value || "").trim().toLowerCase();
    if (text && el.offsetParent !== null && needles.some(n => text.includes(n))) { el.click(); return true; }
  }
  return false;
})()`, needles, sel)
}

func (s *actionScraper) scrape(ctx context.Context, req CrawlRequest) (*firecrawl.FirecrawlDocument, error) {
	body := actionScrapeBody{
		URL:     req.StartURL,
		Formats: scrapeFormats,
		WaitFor: int(req.WaitFor.Milliseconds()),
		Timeout: int(req.Timeout.Milliseconds()),
		Actions: serviceActions(req.Actions),
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(s.apiURL, "/")+"/v1/scrape", bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	client := s.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed firecrawl.ScrapeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !parsed.Success || parsed.Data == nil {
		return nil, fmt.Errorf("scrape with actions was not successful")
	}
	return parsed.Data, nil
}
