package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/page-insights/internal/extract"
	"github.com/JakeFAU/page-insights/internal/metrics"
)

var errNoElement = errors.New("element not present")

// session owns one Chrome process. Methods must not be called concurrently.
type session struct {
	browser *Browser
	tab     context.Context
	cancel  context.CancelFunc
	once    sync.Once
}

// run executes actions on the tab, bounded by timeout and the caller's ctx.
func (s *session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (s *session) Navigate(ctx context.Context, url string) error {
	if s.browser.pacer != nil {
		if err := s.browser.pacer.Wait(ctx, url); err != nil {
			return err //nolint:wrapcheck // already wrapped by the pacer
		}
	}
	err := s.run(ctx, s.browser.navTimeout(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *session) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	err := s.run(ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery))
	return waitError(ctx, selector, err)
}

// waitError maps an expired wait onto extract.ErrWaitTimeout.
func waitError(ctx context.Context, selector string, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("wait for %s: %w", selector, extract.ErrWaitTimeout)
	}
	return fmt.Errorf("wait for %s: %w", selector, err)
}

func (s *session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.browser.navTimeout(), chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read outer html: %w", err)
	}
	return html, nil
}

func (s *session) ScrollHeight(ctx context.Context) (int64, error) {
	var height int64
	if err := s.run(ctx, s.browser.navTimeout(), chromedp.Evaluate(`document.body.scrollHeight`, &height)); err != nil {
		return 0, fmt.Errorf("read scroll height: %w", err)
	}
	return height, nil
}

func (s *session) ScrollToBottom(ctx context.Context) error {
	var ok bool
	script := `window.scrollTo(0, document.body.scrollHeight); true`
	if err := s.run(ctx, s.browser.navTimeout(), chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

func (s *session) Click(ctx context.Context, selector string) error {
	script, err := clickScript(selector)
	if err != nil {
		return err
	}
	var clicked bool
	if err := s.run(ctx, s.browser.navTimeout(), chromedp.Evaluate(script, &clicked)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	if !clicked {
		return fmt.Errorf("click %s: %w", selector, errNoElement)
	}
	return nil
}

// clickScript clicks the first match without waiting for it to appear.
func clickScript(selector string) (string, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return "", fmt.Errorf("encode selector: %w", err)
	}
	return fmt.Sprintf(`(() => { const el = document.querySelector(%s); if (!el) { return false; } el.click(); return true; })()`, quoted), nil
}

func (s *session) SignIn(ctx context.Context, creds extract.Credentials) error {
	if !creds.Configured() {
		return errors.New("sign-in credentials not configured")
	}
	loginURL := s.browser.cfg.BaseURL + "/login"
	if err := s.Navigate(ctx, loginURL); err != nil {
		return err
	}
	err := s.run(ctx, s.browser.cfg.SignInTimeout,
		chromedp.WaitVisible("#username", chromedp.ByID),
		chromedp.SendKeys("#username", creds.Email, chromedp.ByID),
		chromedp.SendKeys("#password", creds.Password, chromedp.ByID),
		chromedp.Click("button[type='submit']", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("submit sign-in form: %w", err)
	}
	return s.awaitLocation(ctx, "feed", s.browser.cfg.SignInTimeout)
}

func (s *session) awaitLocation(ctx context.Context, fragment string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var location string
		if err := s.run(ctx, timeout, chromedp.Location(&location)); err != nil {
			return fmt.Errorf("read location: %w", err)
		}
		if strings.Contains(location, fragment) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("sign-in did not reach %q (at %s)", fragment, location)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("await sign-in: %w", ctx.Err())
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// Close kills the session's Chrome process and frees its slot. It is safe to call twice.
func (s *session) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.browser.release()
		metrics.DecActiveSessions()
	})
	return nil
}
