package browser

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/ternarybob/widgetcheck/internal/common"
	"github.com/ternarybob/widgetcheck/internal/httpclient"
)

// ConnectivityResult describes a reachable target
type ConnectivityResult struct {
	URL    string
	Status int
	Title  string
}

// VerifyConnectivity checks the target answers over HTTP and then loads its
// base URL in a throwaway headless browser
func VerifyConnectivity(ctx context.Context, config *common.Config) (*ConnectivityResult, error) {
	baseURL := config.URL("/")

	// Test 1: HTTP health check
	status, _, err := httpclient.Probe(ctx, httpclient.NewDefaultHTTPClient(5*time.Second), baseURL)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("service returned status %d (expected 200 OK)", status)
	}

	// Test 2: Homepage loads in browser
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, AllocatorOptions(config)...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	timeoutCtx, cancelTimeout := context.WithTimeout(browserCtx, 15*time.Second)
	defer cancelTimeout()

	var title string
	if err := chromedp.Run(timeoutCtx,
		chromedp.Navigate(baseURL),
		chromedp.WaitVisible(`body`, chromedp.ByQuery),
		chromedp.Title(&title),
	); err != nil {
		return nil, fmt.Errorf("homepage failed to load in browser: %w", err)
	}

	return &ConnectivityResult{URL: baseURL, Status: status, Title: title}, nil
}
