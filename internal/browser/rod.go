package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"autosurvey-backend/internal/shared/telemetry"
)

// RodBrowser owns one Chrome process and creates an incognito context per page.
type RodBrowser struct {
	opts     Options
	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// NewRodBrowser returns a browser that launches Chrome on first use.
func NewRodBrowser(opts Options) *RodBrowser {
	return &RodBrowser{opts: opts}
}

func (b *RodBrowser) ensureStarted() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		if _, err := b.browser.Version(); err == nil {
			return b.browser, nil
		}
		telemetry.Warn("browser.stale_connection", nil)
		_ = b.browser.Close()
		b.browser = nil
	}

	controlURL := b.opts.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(b.opts.Headless)
		if b.opts.Bin != "" {
			l = l.Bin(b.opts.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		b.launcher = l
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	b.browser = browser
	telemetry.Info("browser.started", map[string]any{"headless": b.opts.Headless})
	return browser, nil
}

// NewPage opens a blank tab in a fresh incognito context.
func (b *RodBrowser) NewPage(ctx context.Context) (Page, error) {
	browser, err := b.ensureStarted()
	if err != nil {
		return nil, err
	}
	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}
	w, h := b.opts.viewport()
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             w,
		Height:            h,
		DeviceScaleFactor: 1.0,
	}).Call(page); err != nil {
		telemetry.Warn("browser.viewport_failed", map[string]any{"error": err})
	}
	return &rodPage{page: page, context: incognito, navTimeout: b.opts.navigationTimeout()}, nil
}

// Close shuts Chrome down.
func (b *RodBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher = nil
	}
	return err
}

type rodPage struct {
	page       *rod.Page
	context    *rod.Browser
	navTimeout time.Duration
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx).Timeout(p.navTimeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

func (p *rodPage) nth(ctx context.Context, selector string, nth int, timeout time.Duration) (*rod.Element, error) {
	page := p.page.Context(ctx).Timeout(timeout)
	first, err := page.Element(selector)
	if err != nil {
		return nil, notFound(selector, err)
	}
	if nth <= 0 {
		return first, nil
	}
	els, err := page.Elements(selector)
	if err != nil {
		return nil, notFound(selector, err)
	}
	if nth >= len(els) {
		return nil, fmt.Errorf("%w: %s[%d] (have %d)", ErrElementNotFound, selector, nth, len(els))
	}
	return els[nth], nil
}

func (p *rodPage) Click(ctx context.Context, selector string, nth int, timeout time.Duration) error {
	el, err := p.nth(ctx, selector, nth, timeout)
	if err != nil {
		return err
	}
	return el.Context(ctx).Timeout(timeout).Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) ClickText(ctx context.Context, selector, text string, timeout time.Duration) error {
	el, err := p.page.Context(ctx).Timeout(timeout).ElementR(selector, regexp.QuoteMeta(text))
	if err != nil {
		return notFound(selector+" ~ "+text, err)
	}
	return el.Context(ctx).Timeout(timeout).Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) ClickXPath(ctx context.Context, xpath string, timeout time.Duration) error {
	el, err := p.page.Context(ctx).Timeout(timeout).ElementX(xpath)
	if err != nil {
		return notFound(xpath, err)
	}
	return el.Context(ctx).Timeout(timeout).Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) Fill(ctx context.Context, selector string, nth int, value string, timeout time.Duration) error {
	el, err := p.nth(ctx, selector, nth, timeout)
	if err != nil {
		return err
	}
	el = el.Context(ctx).Timeout(timeout)
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("select %s: %w", selector, err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("input %s: %w", selector, err)
	}
	return nil
}

func (p *rodPage) Count(ctx context.Context, selector string) (int, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return 0, err
	}
	return len(els), nil
}

func (p *rodPage) CountText(ctx context.Context, selector, text string) (int, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return 0, err
	}
	want := strings.TrimSpace(text)
	n := 0
	for _, el := range els {
		got, err := el.Text()
		if err != nil {
			continue
		}
		if strings.TrimSpace(got) == want {
			n++
		}
	}
	return n, nil
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *rodPage) BodyText(ctx context.Context) (string, error) {
	body, err := p.page.Context(ctx).Element("body")
	if err != nil {
		return "", err
	}
	return body.Text()
}

func (p *rodPage) WaitText(ctx context.Context, text string, timeout time.Duration) bool {
	_, err := p.page.Context(ctx).Timeout(timeout).ElementR("body", regexp.QuoteMeta(text))
	return err == nil
}

// Close closes the tab and disposes its incognito context.
func (p *rodPage) Close() error {
	err := p.page.Close()
	if cerr := p.context.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func notFound(what string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrElementNotFound, what)
	}
	return fmt.Errorf("%s: %w", what, err)
}

var _ Browser = (*RodBrowser)(nil)
