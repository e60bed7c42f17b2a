package cdp

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"

	"github.com/lumenbrowse/lumen/internal/infrastructure/logging"
	"github.com/lumenbrowse/lumen/internal/webview"
)

const maxIconBytes = 256 * 1024

// FaviconResolver inlines page icons as data: URLs so the renderer
// never fetches them itself.
type FaviconResolver struct {
	client *resty.Client
	logger *logging.Logger
}

// NewFaviconResolver creates a resolver with its own HTTP client.
func NewFaviconResolver(logger *logging.Logger) *FaviconResolver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FaviconResolver{
		client: resty.New(),
		logger: logger.Component("favicon"),
	}
}

// Resolve finds the page's icon link and returns it inlined as a
// data: URL. Falls back to /favicon.ico when the head declares none.
func (r *FaviconResolver) Resolve(ctx context.Context, view webview.ContentView, pageURL string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return "", fmt.Errorf("no resolvable page url: %q", pageURL)
	}

	iconURL := r.iconLink(ctx, view, base)
	if iconURL == "" {
		iconURL = base.Scheme + "://" + base.Host + "/favicon.ico"
	}

	resp, err := r.client.R().SetContext(ctx).Get(iconURL)
	if err != nil {
		return "", fmt.Errorf("icon fetch failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("icon fetch returned %s", resp.Status())
	}
	body := resp.Body()
	if len(body) == 0 || len(body) > maxIconBytes {
		return "", fmt.Errorf("icon size %d out of range", len(body))
	}

	mt := mimetype.Detect(body)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("icon has non-image type %s", mt.String())
	}
	return "data:" + mt.String() + ";base64," + base64.StdEncoding.EncodeToString(body), nil
}

// iconLink extracts the best icon href from the document head. Returns
// "" when the view is foreign or the head declares no icon.
func (r *FaviconResolver) iconLink(ctx context.Context, view webview.ContentView, base *url.URL) string {
	v, ok := view.(*View)
	if !ok {
		return ""
	}

	var head string
	if err := v.run(ctx, chromedp.OuterHTML("head", &head, chromedp.ByQuery)); err != nil {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(head))
	if err != nil {
		return ""
	}

	href, ok := doc.Find(`link[rel="icon"], link[rel="shortcut icon"], link[rel="apple-touch-icon"]`).
		First().Attr("href")
	if !ok || href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
