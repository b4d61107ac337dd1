// Package browsertest provides an in-memory browser.Page for driver tests.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"autosurvey-backend/internal/browser"
)

// Page is a scripted browser.Page. Elements exist when Counts says so; text
// matches are resolved against Texts.
type Page struct {
	mu sync.Mutex

	HTMLContent string
	Body        string
	Counts      map[string]int      // selector or xpath -> matching elements
	Texts       map[string][]string // selector -> element texts
	NavigateErr error

	// OnClick runs after every successful click with the click's description.
	OnClick func(p *Page, what string)

	Navigated []string
	Clicks    []string
	Fills     map[string]string // "selector#nth" -> value
	Closed    bool
}

// NewPage returns an empty Page.
func NewPage() *Page {
	return &Page{Counts: map[string]int{}, Texts: map[string][]string{}, Fills: map[string]string{}}
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	p.Navigated = append(p.Navigated, url)
	return p.NavigateErr
}

func (p *Page) Click(_ context.Context, selector string, nth int, _ time.Duration) error {
	p.mu.Lock()
	if p.Counts[selector] <= nth {
		p.mu.Unlock()
		return fmt.Errorf("%s[%d]: %w", selector, nth, browser.ErrElementNotFound)
	}
	return p.clicked(fmt.Sprintf("%s#%d", selector, nth))
}

func (p *Page) ClickText(_ context.Context, selector, text string, _ time.Duration) error {
	p.mu.Lock()
	for _, t := range p.Texts[selector] {
		if strings.Contains(t, text) {
			return p.clicked(selector + "|" + text)
		}
	}
	p.mu.Unlock()
	return fmt.Errorf("%s %q: %w", selector, text, browser.ErrElementNotFound)
}

func (p *Page) ClickXPath(_ context.Context, xpath string, _ time.Duration) error {
	p.mu.Lock()
	if p.Counts[xpath] == 0 {
		p.mu.Unlock()
		return fmt.Errorf("%s: %w", xpath, browser.ErrElementNotFound)
	}
	return p.clicked(xpath)
}

// clicked records what and runs OnClick. It is entered with p.mu held.
func (p *Page) clicked(what string) error {
	p.Clicks = append(p.Clicks, what)
	hook := p.OnClick
	p.mu.Unlock()
	if hook != nil {
		hook(p, what)
	}
	return nil
}

func (p *Page) Fill(_ context.Context, selector string, nth int, value string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Counts[selector] <= nth {
		return fmt.Errorf("%s[%d]: %w", selector, nth, browser.ErrElementNotFound)
	}
	p.Fills[fmt.Sprintf("%s#%d", selector, nth)] = value
	return nil
}

func (p *Page) Count(_ context.Context, selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Counts[selector], nil
}

func (p *Page) CountText(_ context.Context, selector, text string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.Texts[selector] {
		if strings.TrimSpace(t) == text {
			n++
		}
	}
	return n, nil
}

func (p *Page) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.HTMLContent, nil
}

func (p *Page) BodyText(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Body, nil
}

func (p *Page) WaitText(_ context.Context, text string, _ time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Contains(p.Body, text)
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

// SetBody replaces the body text, typically from an OnClick hook.
func (p *Page) SetBody(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Body = text
}

// ClickList returns a copy of the recorded clicks.
func (p *Page) ClickList() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Clicks...)
}

// Browser hands out pages built by Factory.
type Browser struct {
	mu      sync.Mutex
	Factory func(n int) *Page
	Err     error
	Pages   []*Page
	Closed  bool
}

func (b *Browser) NewPage(ctx context.Context) (browser.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return nil, b.Err
	}
	var p *Page
	if b.Factory != nil {
		p = b.Factory(len(b.Pages))
	} else {
		p = NewPage()
	}
	b.Pages = append(b.Pages, p)
	return p, nil
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Closed = true
	return nil
}

// Opened returns how many pages have been handed out.
func (b *Browser) Opened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Pages)
}

// SetCount sets how many elements match selector.
func (p *Page) SetCount(selector string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Counts[selector] = n
}

// AddText adds an element with text under selector.
func (p *Page) AddText(selector, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Texts[selector] = append(p.Texts[selector], text)
}

// FillList returns a copy of the recorded fills.
func (p *Page) FillList() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.Fills))
	for k, v := range p.Fills {
		out[k] = v
	}
	return out
}
