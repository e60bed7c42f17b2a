package cdp

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/lumenbrowse/lumen/internal/domain/settings"
	"github.com/lumenbrowse/lumen/internal/infrastructure/logging"
)

// SessionPolicy pushes the session-affecting settings subset into the
// shared browser context.
type SessionPolicy struct {
	browserCtx context.Context
	logger     *logging.Logger

	mu    sync.Mutex
	proxy settings.Proxy
}

// NewSessionPolicy wraps an established chromedp browser context.
func NewSessionPolicy(browserCtx context.Context, logger *logging.Logger) *SessionPolicy {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SessionPolicy{
		browserCtx: browserCtx,
		logger:     logger.Component("policy"),
	}
}

// ApplySpellcheck sets the locale override and the Accept-Language
// header for subsequent requests.
func (p *SessionPolicy) ApplySpellcheck(language, acceptLanguage string) error {
	return chromedp.Run(p.browserCtx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := emulation.SetLocaleOverride().WithLocale(language).Do(ctx); err != nil {
				return err
			}
			return network.SetExtraHTTPHeaders(network.Headers{
				"Accept-Language": acceptLanguage,
			}).Do(ctx)
		}),
	)
}

// ApplyProxy records the desired proxy. Chrome reads its proxy flags
// at launch, so a changed proxy takes effect on the next start; the
// recorded value feeds the relaunch arguments.
func (p *SessionPolicy) ApplyProxy(proxy settings.Proxy) error {
	p.mu.Lock()
	p.proxy = proxy
	p.mu.Unlock()
	p.logger.Info("proxy configuration recorded",
		zap.String("mode", string(proxy.Mode)),
		zap.String("host", proxy.Host),
		zap.Int("port", proxy.Port),
	)
	return nil
}

// Proxy returns the recorded proxy configuration.
func (p *SessionPolicy) Proxy() settings.Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.proxy
}
