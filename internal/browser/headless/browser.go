// Package headless drives headless Chrome through chromedp to satisfy extract.Session.
package headless

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/page-insights/internal/extract"
	"github.com/JakeFAU/page-insights/internal/metrics"
)

const defaultNavigationTimeout = 45 * time.Second

// Pacer delays navigation per host.
type Pacer interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls the behavior of the headless browser.
type Config struct {
	BaseURL           string
	MaxSessions       int
	UserAgent         string
	NavigationTimeout time.Duration
	SignInTimeout     time.Duration
	WindowWidth       int
	WindowHeight      int
	// ExecPath overrides the Chrome binary lookup.
	ExecPath string
}

// Browser launches a separate Chrome process for each Session. Closing the
// Session kills its process.
type Browser struct {
	cfg         Config
	slots       chan struct{}
	pacer       Pacer
	logger      *zap.Logger
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New creates a Browser. The allocator only holds launch options; Chrome
// starts when a Session is opened.
func New(cfg Config, pacer Pacer, logger *zap.Logger) (*Browser, error) {
	if cfg.MaxSessions < 0 {
		return nil, fmt.Errorf("max sessions must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.SignInTimeout <= 0 {
		cfg.SignInTimeout = 10 * time.Second
	}
	if cfg.WindowWidth <= 0 || cfg.WindowHeight <= 0 {
		cfg.WindowWidth, cfg.WindowHeight = 1920, 1080
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	var slots chan struct{}
	if cfg.MaxSessions > 0 {
		slots = make(chan struct{}, cfg.MaxSessions)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-notifications", true),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		cfg:         cfg,
		slots:       slots,
		pacer:       pacer,
		logger:      logger,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator, which kills any Chrome process still running.
func (b *Browser) Close() {
	b.allocCancel()
}

// Open starts a new Chrome process. The caller must Close the returned Session.
func (b *Browser) Open(ctx context.Context) (extract.Session, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	tab, cancel := chromedp.NewContext(b.allocator)
	stop := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(tab, b.networkSetupAction())
	stop()
	if err != nil {
		cancel()
		b.release()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	metrics.IncActiveSessions()
	return &session{
		browser: b,
		tab:     tab,
		cancel:  cancel,
	}, nil
}

func (b *Browser) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.slots == nil {
		return nil
	}
	select {
	case b.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.slots == nil {
		return
	}
	select {
	case <-b.slots:
	default:
	}
}

func (b *Browser) navTimeout() time.Duration {
	if b.cfg.NavigationTimeout > 0 {
		return b.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

// Noop is used when live extraction is disabled; every Open fails.
type Noop struct{}

// Open always returns an error.
func (Noop) Open(context.Context) (extract.Session, error) {
	return nil, errors.New("headless browser not configured")
}
