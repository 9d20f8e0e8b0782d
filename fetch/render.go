package fetch

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/chromedp/chromedp"
)

// Renderer fetches a page through a headless browser and captures the
// HTML after client-side scripts have had a chance to settle. It
// implements the same PageFetcher contract as Client and is selected by
// the render policy flag for fare pages whose prices are computed in the
// browser.
type Renderer struct {
	timeout   time.Duration
	settle    time.Duration
	userAgent string
	logger    *slog.Logger
}

// RenderOptions configures a Renderer.
type RenderOptions struct {
	Timeout time.Duration
	// Settle is the pause after DOM ready before capturing, giving
	// single-page apps a short breath without waiting indefinitely.
	Settle    time.Duration
	UserAgent string
	Logger    *slog.Logger
}

const defaultRenderUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0 Safari/537.36"

func NewRenderer(opts RenderOptions) *Renderer {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	settle := opts.Settle
	if settle <= 0 {
		settle = 1200 * time.Millisecond
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultRenderUA
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{timeout: timeout, settle: settle, userAgent: ua, logger: logger}
}

// Fetch implements PageFetcher. Render failures (browser missing, page
// timeout) surface as errors for the caller's per-route isolation; the
// renderer never consults or writes the HTTP cache.
func (r *Renderer) Fetch(ctx context.Context, url string) (*Response, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(r.userAgent),
		chromedp.WindowSize(1280, 720),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	runCtx, cancelRun := context.WithTimeout(browserCtx, r.timeout)
	defer cancelRun()

	r.logger.Debug("rendering page", "url", url, "timeout", r.timeout)

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(r.settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, err
	}

	return &Response{
		URL:    url,
		Status: http.StatusOK,
		Header: http.Header{},
		Body:   []byte(html),
	}, nil
}
