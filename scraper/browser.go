package scraper

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"cartscout/config"
)

// stealthScript reduces automation fingerprinting so retail sites
// serve the same markup they serve a regular desktop browser
const stealthScript = `
	// Override user agent
	Object.defineProperty(navigator, 'userAgent', {
		get: function () { return 'Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36'; }
	});

	// Override webdriver property
	Object.defineProperty(navigator, 'webdriver', {
		get: () => undefined,
	});

	// Override plugins
	Object.defineProperty(navigator, 'plugins', {
		get: () => [1, 2, 3, 4, 5],
	});

	// Override languages
	Object.defineProperty(navigator, 'languages', {
		get: () => ['en-US', 'en'],
	});

	// Override platform
	Object.defineProperty(navigator, 'platform', {
		get: () => 'Win32',
	});

	// Override chrome property
	window.chrome = {
		runtime: {},
	};
`

// BrowserController owns a single headless browser process and hands
// out configured single-use pages. Whoever opens a page closes it.
type BrowserController struct {
	cfg     *config.Config
	mutex   sync.Mutex
	browser *rod.Browser
}

// NewBrowserController creates a controller. The browser process is
// not launched until Initialize is called.
func NewBrowserController(cfg *config.Config) *BrowserController {
	return &BrowserController{cfg: cfg}
}

// Initialize launches the browser process if it is not already
// running. Safe to call repeatedly.
func (bc *BrowserController) Initialize() error {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	if bc.browser != nil {
		return nil
	}

	l := launcher.New().
		Headless(true).
		NoSandbox(true).
		Leakless(false)

	bin := bc.cfg.BrowserBin
	if bin == "" {
		// Use system Chromium in Docker, auto-detect locally
		if _, err := os.Stat("/usr/bin/chromium-browser"); err == nil {
			bin = "/usr/bin/chromium-browser"
		}
	}
	if bin != "" {
		l = l.Bin(bin)
		log.Printf("Using browser binary: %s", bin)
	} else {
		log.Printf("Using auto-detected Chromium (local environment)")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("failed to launch browser: %v", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %v", err)
	}

	bc.browser = browser
	log.Printf("✅ Browser ready at: %s", controlURL)
	return nil
}

// IsRunning reports whether the browser process is live
func (bc *BrowserController) IsRunning() bool {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()
	return bc.browser != nil
}

// NewPage opens a configured page and navigates it to target. The
// target is normalized to an absolute https:// URL when no scheme is
// given. The caller owns the page and must close it.
func (bc *BrowserController) NewPage(target string) (*rod.Page, error) {
	bc.mutex.Lock()
	browser := bc.browser
	bc.mutex.Unlock()

	if browser == nil {
		return nil, fmt.Errorf("browser not initialized")
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %v", err)
	}

	if err := bc.configurePage(page); err != nil {
		page.Close()
		return nil, err
	}

	if err := bc.Navigate(page, target); err != nil {
		page.Close()
		return nil, err
	}

	return page, nil
}

// configurePage applies viewport, stealth overrides and the native
// dialog auto-dismiss listener
func (bc *BrowserController) configurePage(page *rod.Page) error {
	viewport := &proto.EmulationSetDeviceMetricsOverride{
		Width:             1920,
		Height:            1080,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}
	if err := page.SetViewport(viewport); err != nil {
		return fmt.Errorf("failed to set viewport: %v", err)
	}

	if _, err := page.EvalOnNewDocument(stealthScript); err != nil {
		return fmt.Errorf("failed to install stealth script: %v", err)
	}

	// Native alert/confirm/prompt dialogs are dismissed as they
	// appear, independent of the popup state machine
	go page.EachEvent(func(e *proto.PageJavascriptDialogOpening) {
		_ = proto.PageHandleJavaScriptDialog{Accept: false}.Call(page)
	})()

	return nil
}

// Navigate drives the page to target and waits for the load event,
// bounded by the configured navigation timeout
func (bc *BrowserController) Navigate(page *rod.Page, target string) error {
	navURL := NormalizeURL(target)

	bounded := page.Timeout(bc.cfg.NavTimeout)
	if err := bounded.Navigate(navURL); err != nil {
		return fmt.Errorf("failed to navigate to %s: %v", navURL, err)
	}
	if err := bounded.WaitLoad(); err != nil {
		return fmt.Errorf("timed out loading %s: %v", navURL, err)
	}

	return nil
}

// Close releases the browser process. The controller is reusable only
// after another Initialize.
func (bc *BrowserController) Close() {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	if bc.browser != nil {
		if err := bc.browser.Close(); err != nil {
			log.Printf("⚠️ Browser close failed: %v", err)
		}
		bc.browser = nil
		log.Println("🛑 Browser closed")
	}
}

// NormalizeURL makes target an absolute https:// URL if no scheme was
// given
func NormalizeURL(target string) string {
	trimmed := strings.TrimSpace(target)
	if trimmed == "" {
		return trimmed
	}
	if !strings.Contains(trimmed, "://") {
		return "https://" + trimmed
	}
	return trimmed
}
