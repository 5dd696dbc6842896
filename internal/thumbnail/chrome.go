package thumbnail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
)

var ErrRendererMissing = errors.New("headless browser not installed")

var browserBinaries = []string{"chromium-browser", "chromium", "google-chrome", "headless-shell"}

// ChromeGenerator screenshots the HTML preview with headless Chrome and
// returns a PNG.
type ChromeGenerator struct {
	Timeout time.Duration
	Width   int64
	Height  int64

	lookPath func(string) (string, error)
}

func (g *ChromeGenerator) Generate(ctx context.Context, rawJSON json.RawMessage) (Artifact, error) {
	html, err := renderRaw(rawJSON)
	if err != nil {
		return Artifact{}, err
	}
	browser, err := g.browser()
	if err != nil {
		return Artifact{}, err
	}

	timeout := g.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	width, height := g.Width, g.Height
	if width <= 0 {
		width = 560
	}
	if height <= 0 {
		height = 720
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(browser),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	var png []byte
	err = chromedp.Run(taskCtx,
		emulation.SetDeviceMetricsOverride(width, height, 1, false),
		chromedp.Navigate(htmlDataURL(html)),
		chromedp.WaitReady("body"),
		chromedp.CaptureScreenshot(&png),
	)
	if err != nil {
		return Artifact{}, fmt.Errorf("chrome screenshot: %w", err)
	}
	return Artifact{Data: png, ContentType: "image/png"}, nil
}

func (g *ChromeGenerator) browser() (string, error) {
	lookPath := g.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	for _, name := range browserBinaries {
		if path, err := lookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: tried %s", ErrRendererMissing, strings.Join(browserBinaries, ", "))
}

// htmlDataURL percent-encodes html for a data URL; spaces must be %20.
func htmlDataURL(html string) string {
	return "data:text/html;charset=utf-8," + strings.ReplaceAll(url.QueryEscape(html), "+", "%20")
}
