package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"google.golang.org/genai"

	"github.com/room4-2/ada/gemini"
	"github.com/room4-2/ada/logger"
	"github.com/room4-2/ada/session"
)

const defaultMaxTurns = 10

const browserSystemPrompt = `You are Ada, an AI assistant that controls the user's Chrome browser.
You have access to the user's open Chrome tabs, including sites where they are already logged in such as Gmail or Outlook.

Use the available tools to:
- List and find open tabs
- Read page content
- Navigate to URLs
- Click elements and fill in forms

Be concise and direct. When you have the data you need, answer without performing more actions.`

var actionLabels = map[string]string{
	"list_tabs":       "Looking for tabs...",
	"get_tab_content": "Reading page content...",
	"navigate":        "Navigating...",
	"click_element":   "Clicking...",
	"fill_input":      "Filling in field...",
	"scroll_page":     "Scrolling page...",
}

// Commander executes browser commands through the extension.
type Commander interface {
	Command(ctx context.Context, command string, args map[string]interface{}) (interface{}, error)
	Status(ctx context.Context, label string, progress float64, active bool)
}

// BrowserAgent runs a multi-turn model loop whose tool calls are executed by
// the browser extension.
type BrowserAgent struct {
	model    gemini.Generator
	ext      Commander
	maxTurns int
}

// NewBrowserAgent creates a browser agent
func NewBrowserAgent(model gemini.Generator, ext Commander) *BrowserAgent {
	return &BrowserAgent{model: model, ext: ext, maxTurns: defaultMaxTurns}
}

// Run implements functions.Runner.
func (a *BrowserAgent) Run(ctx context.Context, prompt string, progress func(session.Progress)) (string, error) {
	log := logger.With("agent", "browser")
	shortPrompt := truncate(prompt, 45)

	report := func(msg string) {
		log.Info(msg)
		progress(session.Progress{Log: msg})
	}

	report("Starting task: " + prompt)
	a.ext.Status(ctx, shortPrompt, 0, true)

	temperature := float32(0.1)
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: browserSystemPrompt}}},
		Tools:             []*genai.Tool{{FunctionDeclarations: browserTools()}},
		Temperature:       &temperature,
	}

	history := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}

	for turn := 0; turn < a.maxTurns; turn++ {
		base := float64(turn) / float64(a.maxTurns)
		a.ext.Status(ctx, shortPrompt, base+0.02, true)

		resp, err := a.model.GenerateContent(ctx, history, config)
		if err != nil {
			a.ext.Status(ctx, "Failed", 1, false)
			return "", err
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			a.ext.Status(ctx, "Failed", 1, false)
			return "", fmt.Errorf("model returned no candidates")
		}

		parts := resp.Candidates[0].Content.Parts
		history = append(history, &genai.Content{Role: "model", Parts: parts})

		var calls []*genai.FunctionCall
		for _, p := range parts {
			if p.FunctionCall != nil {
				calls = append(calls, p.FunctionCall)
			}
		}

		if len(calls) == 0 {
			var sb strings.Builder
			for _, p := range parts {
				sb.WriteString(p.Text)
			}
			report(fmt.Sprintf("Finished in %d turn(s).", turn+1))
			a.ext.Status(ctx, "Done", 1, false)
			return sb.String(), nil
		}

		responses := make([]*genai.Part, 0, len(calls))
		for i, fc := range calls {
			label, ok := actionLabels[fc.Name]
			if !ok {
				label = fc.Name + "..."
			}
			step := base + float64(i+1)/float64(len(calls))/float64(a.maxTurns)
			a.ext.Status(ctx, label, min(step, 0.95), true)
			report(fmt.Sprintf("Executing: %s(%v)", fc.Name, fc.Args))

			var out string
			result, err := a.ext.Command(ctx, fc.Name, fc.Args)
			if err != nil {
				out = "ERROR: " + err.Error()
			} else {
				out = stringify(result)
			}
			report("  → " + truncate(out, 200))

			responses = append(responses, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       fc.ID,
				Name:     fc.Name,
				Response: map[string]any{"result": out},
			}})
		}
		history = append(history, &genai.Content{Role: "user", Parts: responses})
	}

	a.ext.Status(ctx, "Turn limit reached", 1, false)
	return "Turn limit reached without a final answer.", nil
}

func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	out, err := sonic.MarshalString(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimRight(string(r[:n]), " ") + "..."
}

func browserTools() []*genai.FunctionDeclaration {
	str := func(desc string) *genai.Schema { return &genai.Schema{Type: genai.TypeString, Description: desc} }
	num := func(desc string) *genai.Schema { return &genai.Schema{Type: genai.TypeInteger, Description: desc} }

	return []*genai.FunctionDeclaration{
		{
			Name:        "list_tabs",
			Description: "Lists every open Chrome tab. Use it to find the right tab before reading its content.",
			Parameters: &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{
				"url_pattern": str("Optional URL pattern to filter on, e.g. '*gmail*'"),
			}},
		},
		{
			Name:        "get_tab_content",
			Description: "Reads the visible text of a tab, without HTML.",
			Parameters: &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{
				"tab_id":   num("Tab ID from list_tabs"),
				"selector": str("Optional CSS selector to extract part of the page, e.g. '#main-content'"),
			}, Required: []string{"tab_id"}},
		},
		{
			Name:        "navigate",
			Description: "Navigates to a URL. Opens a new tab when tab_id is omitted.",
			Parameters: &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{
				"url":    str("Full URL to open"),
				"tab_id": num("Existing tab to navigate (optional)"),
			}, Required: []string{"url"}},
		},
		{
			Name:        "click_element",
			Description: "Clicks a page element by CSS selector.",
			Parameters: &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{
				"tab_id":   num("Tab ID"),
				"selector": str("CSS selector of the element to click"),
			}, Required: []string{"tab_id", "selector"}},
		},
		{
			Name:        "fill_input",
			Description: "Fills a text field on the page.",
			Parameters: &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{
				"tab_id":   num("Tab ID"),
				"selector": str("CSS selector of the input"),
				"text":     str("Text to type"),
			}, Required: []string{"tab_id", "selector", "text"}},
		},
		{
			Name:        "scroll_page",
			Description: "Scrolls the page up or down.",
			Parameters: &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{
				"tab_id":    num("Tab ID"),
				"direction": str("'up' or 'down'"),
				"amount":    num("Pixels to scroll (default 500)"),
			}, Required: []string{"tab_id"}},
		},
	}
}
