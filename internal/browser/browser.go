// Package browser drives a headless Chrome through go-rod. Every page lives in
// its own incognito context so fills for different participants never share
// cookies or storage.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrElementNotFound is returned when no element matches within the timeout.
var ErrElementNotFound = errors.New("element not found")

// Page is one isolated browser tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// Click clicks the nth (0-based) element matching the CSS selector.
	Click(ctx context.Context, selector string, nth int, timeout time.Duration) error
	// ClickText clicks the first element matching selector whose text contains text.
	ClickText(ctx context.Context, selector, text string, timeout time.Duration) error
	ClickXPath(ctx context.Context, xpath string, timeout time.Duration) error
	// Fill replaces the value of the nth element matching selector.
	Fill(ctx context.Context, selector string, nth int, value string, timeout time.Duration) error
	Count(ctx context.Context, selector string) (int, error)
	// CountText counts elements matching selector whose trimmed text equals text.
	CountText(ctx context.Context, selector, text string) (int, error)
	HTML(ctx context.Context) (string, error)
	BodyText(ctx context.Context) (string, error)
	// WaitText reports whether the page body contains text before timeout.
	WaitText(ctx context.Context, text string, timeout time.Duration) bool
	Close() error
}

// Browser hands out isolated pages.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Options configures the rod-backed browser.
type Options struct {
	Headless          bool
	Bin               string
	ControlURL        string
	NavigationTimeout time.Duration
	ViewportWidth     int
	ViewportHeight    int
}

func (o Options) navigationTimeout() time.Duration {
	if o.NavigationTimeout <= 0 {
		return 20 * time.Second
	}
	return o.NavigationTimeout
}

func (o Options) viewport() (int, int) {
	w, h := o.ViewportWidth, o.ViewportHeight
	if w <= 0 {
		w = 1280
	}
	if h <= 0 {
		h = 900
	}
	return w, h
}
