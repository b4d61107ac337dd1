package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func TestOptionsDefaults(t *testing.T) {
	var o Options
	if o.navigationTimeout() != 20*time.Second {
		t.Fatalf("unexpected nav timeout %s", o.navigationTimeout())
	}
	w, h := o.viewport()
	if w != 1280 || h != 900 {
		t.Fatalf("unexpected viewport %dx%d", w, h)
	}
}

func TestNotFoundWrapsDeadline(t *testing.T) {
	err := notFound("#missing", fmt.Errorf("wait: %w", context.DeadlineExceeded))
	if !errors.Is(err, ErrElementNotFound) {
		t.Fatalf("expected ErrElementNotFound, got %v", err)
	}
	other := notFound("#x", errors.New("cdp closed"))
	if errors.Is(other, ErrElementNotFound) {
		t.Fatalf("unexpected ErrElementNotFound for %v", other)
	}
}

// Requires a local Chrome; enable with AUTOSURVEY_BROWSER_TESTS=1.
func TestRodPageAgainstLocalServer(t *testing.T) {
	if os.Getenv("AUTOSURVEY_BROWSER_TESTS") != "1" {
		t.Skip("set AUTOSURVEY_BROWSER_TESTS=1 to run against a real browser")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body>
<input placeholder="請填入文字"><input placeholder="請填入文字">
<button onclick="document.body.insertAdjacentHTML('beforeend','<p>本次課後測驗，成績為 90</p>')">送出</button>
</body></html>`))
	}))
	defer srv.Close()

	b := NewRodBrowser(Options{Headless: true})
	defer b.Close()
	ctx := context.Background()
	page, err := b.NewPage(ctx)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	defer page.Close()

	if err := page.Navigate(ctx, srv.URL); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if n, _ := page.Count(ctx, `input[placeholder="請填入文字"]`); n != 2 {
		t.Fatalf("expected 2 inputs, got %d", n)
	}
	if err := page.Fill(ctx, `input[placeholder="請填入文字"]`, 1, "王小明", time.Second); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if err := page.ClickText(ctx, "button", "送出", time.Second); err != nil {
		t.Fatalf("ClickText: %v", err)
	}
	if !page.WaitText(ctx, "成績為", 2*time.Second) {
		t.Fatalf("expected score text")
	}
}
