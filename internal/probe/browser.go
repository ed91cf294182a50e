package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// Renderer fetches the JS-rendered DOM of a page through a headless browser.
// Used for content validation of targets that configure a render wait.
type Renderer struct {
	execAllocatorOpts []chromedp.ExecAllocatorOption
}

// NewRenderer creates a headless-browser renderer.
func NewRenderer() *Renderer {
	return &Renderer{
		execAllocatorOpts: append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
		),
	}
}

// RenderedHTML navigates to the URL, waits for the configured settle time,
// and returns the document's outer HTML.
func (r *Renderer) RenderedHTML(ctx context.Context, url string, wait time.Duration) (string, error) {
	if wait <= 0 {
		wait = time.Second
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, r.execAllocatorOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(wait),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", url, err)
	}
	return html, nil
}
