// Package browser drives a headless Chrome instance over the DevTools
// protocol as a tool capability. Page state captured after each action is
// persisted as browser_state messages, and screenshots as image_context
// messages, so the next iteration's request carries them as ephemeral
// context.
package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/storage"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

// MaxStateSize bounds the page text captured into browser_state (32KB).
const MaxStateSize = 32 << 10

// Options configures a browser capability for one run.
type Options struct {
	// ThreadID receives browser_state and image_context messages.
	ThreadID string
	Threads  storage.ThreadStore

	// Headless controls the Chrome headless flag. Default: true.
	Headless *bool

	// Timeout bounds each browser action. Default: 30s.
	Timeout time.Duration

	Logger *slog.Logger
}

// Capability owns one browser tab for the lifetime of a run. The tab is
// started lazily on first use so runs that never touch the browser do not
// launch Chrome.
type Capability struct {
	opts Options

	mu        sync.Mutex
	tabCtx    context.Context
	cancelTab context.CancelFunc
	cancelAll context.CancelFunc
}

func New(opts Options) *Capability {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Capability{opts: opts}
}

// Close tears down the browser if it was started.
func (c *Capability) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelTab != nil {
		c.cancelTab()
		c.cancelAll()
		c.tabCtx = nil
	}
}

// tab returns the shared browser tab, starting Chrome on first call.
func (c *Capability) tab() (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tabCtx != nil {
		return c.tabCtx, nil
	}

	headless := true
	if c.opts.Headless != nil {
		headless = *c.opts.Headless
	}
	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancelAll := chromedp.NewExecAllocator(context.Background(), execOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// Start the browser eagerly so the first action reports launch
	// failures as its own error rather than a navigation timeout.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAll()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	c.tabCtx = tabCtx
	c.cancelTab = cancelTab
	c.cancelAll = cancelAll
	return tabCtx, nil
}

type navigateArgs struct {
	URL string `json:"url" jsonschema:"description=Absolute URL to open"`
}

type selectorArgs struct {
	Selector string `json:"selector" jsonschema:"description=CSS selector of the target element"`
}

type typeTextArgs struct {
	Selector string `json:"selector" jsonschema:"description=CSS selector of the input element"`
	Text     string `json:"text" jsonschema:"description=Text to type into the element"`
}

func (c *Capability) Operations() []tools.Operation {
	return []tools.Operation{
		{
			Name: "browser_navigate",
			Schemas: []*tools.Schema{
				tools.FunctionSchemaFor("browser_navigate",
					"Open a URL in the browser. Page content becomes available as browser state.",
					&navigateArgs{}),
			},
			Params: []tools.Param{
				{Name: "url", Kind: tools.KindString, Required: true},
			},
			Handler: c.navigate,
		},
		{
			Name: "browser_click",
			Schemas: []*tools.Schema{
				tools.FunctionSchemaFor("browser_click",
					"Click an element on the current page.",
					&selectorArgs{}),
			},
			Params: []tools.Param{
				{Name: "selector", Kind: tools.KindString, Required: true},
			},
			Handler: c.click,
		},
		{
			Name: "browser_type",
			Schemas: []*tools.Schema{
				tools.FunctionSchemaFor("browser_type",
					"Clear an input element and type text into it.",
					&typeTextArgs{}),
			},
			Params: []tools.Param{
				{Name: "selector", Kind: tools.KindString, Required: true},
				{Name: "text", Kind: tools.KindString, Required: true},
			},
			Handler: c.typeText,
		},
		{
			Name: "browser_extract",
			Schemas: []*tools.Schema{
				tools.FunctionSchemaFor("browser_extract",
					"Extract the text content of an element on the current page.",
					&selectorArgs{}),
			},
			Params: []tools.Param{
				{Name: "selector", Kind: tools.KindString, Required: true},
			},
			Handler: c.extract,
		},
		{
			Name: "browser_screenshot",
			Schemas: []*tools.Schema{
				tools.FunctionSchema("browser_screenshot",
					"Capture a screenshot of the current page. The image is attached to the next model request.",
					nil),
			},
			Params: []tools.Param{
				{Name: "args", Kind: tools.KindBag},
			},
			Handler: c.screenshot,
		},
	}
}

func (c *Capability) navigate(ctx context.Context, args []any) (*models.ToolResult, error) {
	url, ok := args[0].(string)
	if !ok || strings.TrimSpace(url) == "" {
		return tools.Fail("browser_navigate: url is required")
	}

	var title string
	err := c.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Title(&title),
	)
	if err != nil {
		return tools.Failf("navigate to %s: %v", url, err)
	}
	c.captureState(ctx, url, title)
	return tools.Result(fmt.Sprintf("navigated to %s\npage title: %s", url, title))
}

func (c *Capability) click(ctx context.Context, args []any) (*models.ToolResult, error) {
	selector, ok := args[0].(string)
	if !ok || selector == "" {
		return tools.Fail("browser_click: selector is required")
	}

	var url, title string
	err := c.run(ctx,
		chromedp.WaitVisible(selector),
		chromedp.Click(selector),
		chromedp.Location(&url),
		chromedp.Title(&title),
	)
	if err != nil {
		return tools.Failf("click %s: %v", selector, err)
	}
	c.captureState(ctx, url, title)
	return tools.Result("clicked " + selector)
}

func (c *Capability) typeText(ctx context.Context, args []any) (*models.ToolResult, error) {
	selector, _ := args[0].(string)
	text, _ := args[1].(string)
	if selector == "" {
		return tools.Fail("browser_type: selector is required")
	}
	if text == "" {
		return tools.Fail("browser_type: text is required")
	}

	err := c.run(ctx,
		chromedp.WaitVisible(selector),
		chromedp.Clear(selector),
		chromedp.SendKeys(selector, text),
	)
	if err != nil {
		return tools.Failf("type into %s: %v", selector, err)
	}
	return tools.Result("typed into " + selector)
}

func (c *Capability) extract(ctx context.Context, args []any) (*models.ToolResult, error) {
	selector, ok := args[0].(string)
	if !ok || selector == "" {
		return tools.Fail("browser_extract: selector is required")
	}

	var text string
	err := c.run(ctx,
		chromedp.WaitVisible(selector),
		chromedp.Text(selector, &text),
	)
	if err != nil {
		return tools.Failf("extract %s: %v", selector, err)
	}
	if len(text) > MaxStateSize {
		text = text[:MaxStateSize] + "\n... (truncated)"
	}
	return tools.Result(text)
}

func (c *Capability) screenshot(ctx context.Context, _ []any) (*models.ToolResult, error) {
	var buf []byte
	if err := c.run(ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return tools.Failf("screenshot: %v", err)
	}

	if c.opts.Threads != nil {
		msg := &models.Message{
			ID:       uuid.NewString(),
			ThreadID: c.opts.ThreadID,
			Type:     models.MessageTypeImageContext,
			Parts: []models.ContentPart{{
				Type:     "image",
				URL:      "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf),
				MimeType: "image/png",
			}},
		}
		if err := c.opts.Threads.InsertMessage(ctx, msg); err != nil {
			c.opts.Logger.Warn("screenshot not persisted", "error", err)
		}
	}
	return tools.Result(fmt.Sprintf("screenshot captured (%d bytes), attached to next model request", len(buf)))
}

// run executes browser actions on the shared tab under the per-action
// timeout. The caller's context bounds it further so cancellation stops
// in-flight actions.
func (c *Capability) run(ctx context.Context, actions ...chromedp.Action) error {
	tabCtx, err := c.tab()
	if err != nil {
		return err
	}
	timed, cancel := context.WithTimeout(tabCtx, c.opts.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(timed, actions...)
}

// captureState snapshots the current page into a browser_state message.
// Failures are logged only; the action itself already succeeded.
func (c *Capability) captureState(ctx context.Context, url, title string) {
	if c.opts.Threads == nil {
		return
	}
	var body string
	if err := c.run(ctx, chromedp.Text("body", &body, chromedp.ByQuery)); err != nil {
		c.opts.Logger.Warn("browser state capture failed", "error", err)
		return
	}
	if len(body) > MaxStateSize {
		body = body[:MaxStateSize] + "\n... (truncated)"
	}

	msg := &models.Message{
		ID:       uuid.NewString(),
		ThreadID: c.opts.ThreadID,
		Type:     models.MessageTypeBrowserState,
		Content:  fmt.Sprintf("url: %s\ntitle: %s\n\n%s", url, title, body),
	}
	if err := c.opts.Threads.InsertMessage(ctx, msg); err != nil {
		c.opts.Logger.Warn("browser state not persisted", "error", err)
	}
}
