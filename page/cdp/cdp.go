// Package cdp runs the page bridge against a Chromium tab through the DevTools
// protocol.
package cdp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Darkness4/bili-auto-quality/page"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultUserAgent is a desktop Chrome user agent.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36"

// BrowserConfig configures the browser.
type BrowserConfig struct {
	// RemoteURL connects to a running browser (ws:// or http://) instead of
	// spawning one.
	RemoteURL   string `yaml:"remoteURL,omitempty"`
	ExecPath    string `yaml:"execPath,omitempty"`
	UserDataDir string `yaml:"userDataDir,omitempty"`
	Headless    bool   `yaml:"headless"`
	UserAgent   string `yaml:"userAgent,omitempty"`
	NoSandbox   bool   `yaml:"noSandbox,omitempty"`
	Width       int    `yaml:"width,omitempty"`
	Height      int    `yaml:"height,omitempty"`
}

// DefaultBrowserConfig is a headless browser with a realistic fingerprint.
var DefaultBrowserConfig = BrowserConfig{
	Headless:  true,
	UserAgent: DefaultUserAgent,
	Width:     1920,
	Height:    1080,
}

// Options returns chromedp allocator options for the configuration.
func Options(cfg BrowserConfig) []chromedp.ExecAllocatorOption {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	width, height := cfg.Width, cfg.Height
	if width <= 0 || height <= 0 {
		width, height = DefaultBrowserConfig.Width, DefaultBrowserConfig.Height
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		// Hide navigator.webdriver.
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(width, height),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		// Autoplay is needed for the player to initialize without a gesture.
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.Flag("mute-audio", true),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("disable-gpu", true))
	}
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	return opts
}

// NewTab starts (or connects to) a browser and opens a tab.
//
// The returned context drives the tab. The cancel function closes the tab and,
// if it was spawned, the browser.
func NewTab(ctx context.Context, cfg BrowserConfig) (context.Context, context.CancelFunc, error) {
	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, Options(cfg)...)
	}

	logger := log.With().Str("source", "chromedp").Logger()
	tabCtx, tabCancel := chromedp.NewContext(
		allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug().Msgf(format, args...)
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Error().Msgf(format, args...)
		}),
	)
	cancel := func() {
		tabCancel()
		allocCancel()
	}

	// Prime the browser process.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return tabCtx, cancel, nil
}

// InjectCookies sets the cookies in the browser.
func InjectCookies(ctx context.Context, cookies []*http.Cookie) error {
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			params := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HttpOnly)
			if !c.Expires.IsZero() {
				expires := cdp.TimeSinceEpoch(c.Expires)
				params = params.WithExpires(&expires)
			}
			if err := params.Do(ctx); err != nil {
				return fmt.Errorf("failed to set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	}))
}

// Navigate loads the URL in the tab.
func Navigate(ctx context.Context, url string) error {
	return chromedp.Run(ctx, chromedp.Navigate(url))
}

// ListenConsole forwards the console messages of the page to the logger.
func ListenConsole(ctx context.Context, logger zerolog.Logger) {
	chromedp.ListenTarget(ctx, func(ev any) {
		e, ok := ev.(*runtime.EventConsoleAPICalled)
		if !ok {
			return
		}
		parts := make([]string, 0, len(e.Args))
		for _, arg := range e.Args {
			if len(arg.Value) > 0 {
				parts = append(parts, string(arg.Value))
			} else if arg.Description != "" {
				parts = append(parts, arg.Description)
			}
		}
		logger.Debug().
			Str("source", "console").
			Str("type", e.Type.String()).
			Msg(strings.Join(parts, " "))
	})
}

// Navigation is a top-frame navigation.
type Navigation struct {
	URL string
	At  time.Time
}

// ListenNavigations sends every committed top-frame navigation on the
// returned channel until ctx ends.
//
// Same-document navigations (history.pushState) are included since the site
// switches videos without a full load.
func ListenNavigations(ctx context.Context) <-chan Navigation {
	out := make(chan Navigation, 8)
	send := func(url string) {
		select {
		case out <- Navigation{URL: url, At: time.Now()}:
		default:
			log.Warn().Str("url", url).Msg("navigation dropped, consumer is too slow")
		}
	}
	chromedp.ListenTarget(ctx, func(ev any) {
		switch e := ev.(type) {
		case *cdppage.EventFrameNavigated:
			if e.Frame != nil && e.Frame.ParentID == "" {
				send(e.Frame.URL + e.Frame.URLFragment)
			}
		case *cdppage.EventNavigatedWithinDocument:
			if isTopFrame(ctx, e.FrameID) {
				send(e.URL)
			}
		}
	})
	return out
}

func isTopFrame(ctx context.Context, id cdp.FrameID) bool {
	t := chromedp.FromContext(ctx).Target
	if t == nil {
		return false
	}
	return cdp.FrameID(t.TargetID) == id
}

// Evaluator evaluates expressions in the tab attached to the context.
type Evaluator struct{}

var _ page.Evaluator = Evaluator{}

// Evaluate implements page.Evaluator.
func (Evaluator) Evaluate(ctx context.Context, expr string, res any) error {
	return chromedp.Run(ctx, chromedp.Evaluate(expr, res))
}

// Await implements page.Evaluator.
func (Evaluator) Await(ctx context.Context, expr string, res any) error {
	return chromedp.Run(ctx, chromedp.Evaluate(
		expr,
		res,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		},
	))
}
