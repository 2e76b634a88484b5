// Package apiverifier records the page's network traffic through the Chrome
// DevTools network domain and answers questions about the API calls made.
package apiverifier

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/tidwall/gjson"

	"github.com/ternarybob/widgetcheck/internal/common"
)

// ErrNoMatchingCall is returned when no completed successful call matches
var ErrNoMatchingCall = errors.New("no matching API call")

// MailboxUpdatePath identifies the settings mutation the chat settings page sends
const MailboxUpdatePath = "mailbox.update"

// Call is one captured XHR or Fetch request
type Call struct {
	RequestID    string
	Method       string
	URL          string
	ResourceType string
	HasPostData  bool

	Status     int64
	StatusText string
	MimeType   string

	Finished  bool
	Failed    bool
	Canceled  bool
	ErrorText string

	Body        []byte
	bodyPending bool

	StartedAt time.Time
	EndedAt   time.Time
}

// Done reports whether the call reached a terminal state and its body (if any) was read
func (c Call) Done() bool {
	return (c.Finished || c.Failed) && !c.bodyPending
}

// Succeeded reports a finished call with a 2xx status
func (c Call) Succeeded() bool {
	return c.Finished && !c.Failed && c.Status >= 200 && c.Status < 300
}

// Path returns the URL path, or the raw URL when it does not parse
func (c Call) Path() string {
	u, err := url.Parse(c.URL)
	if err != nil {
		return c.URL
	}
	return u.Path
}

// Matches reports whether the call has method (any when empty) and its path
// contains pathSubstring
func (c Call) Matches(method, pathSubstring string) bool {
	if method != "" && !strings.EqualFold(c.Method, method) {
		return false
	}
	return strings.Contains(c.Path(), pathSubstring)
}

// JSON looks up a gjson path in the captured response body
func (c Call) JSON(path string) gjson.Result {
	return gjson.GetBytes(c.Body, path)
}

func (c Call) String() string {
	status := fmt.Sprintf("%d", c.Status)
	if c.Failed {
		status = "failed: " + c.ErrorText
	}
	return fmt.Sprintf("%s %s (%s)", c.Method, c.URL, status)
}

// Verifier captures traffic for one browser tab. Events arrive on the CDP
// goroutine, every accessor takes the lock.
type Verifier struct {
	logger arbor.ILogger
	now    func() time.Time

	mu           sync.Mutex
	capturing    bool
	calls        []*Call
	byID         map[string]*Call
	inflight     map[string]struct{}
	lastActivity time.Time

	// fetchBody is set by StartCapturing, nil in unit tests
	fetchBody func(requestID string)
}

// New creates a verifier, nothing is recorded until StartCapturing
func New(logger arbor.ILogger) *Verifier {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Verifier{
		logger:   logger,
		now:      time.Now,
		byID:     map[string]*Call{},
		inflight: map[string]struct{}{},
	}
}

// StartCapturing enables the network domain on the browser context and starts
// recording. Call before the first navigation.
func (v *Verifier) StartCapturing(ctx context.Context) error {
	v.mu.Lock()
	if v.capturing {
		v.mu.Unlock()
		return nil
	}
	v.capturing = true
	v.lastActivity = v.now()
	v.fetchBody = func(requestID string) {
		common.SafeGo(v.logger, "fetchResponseBody", func() {
			var body []byte
			err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
				var err error
				body, err = network.GetResponseBody(network.RequestID(requestID)).Do(ctx)
				return err
			}))
			if err != nil {
				v.logger.Debug().Err(err).Str("request_id", requestID).Msg("Response body unavailable")
			}
			v.setBody(requestID, body)
		})
	}
	v.mu.Unlock()

	chromedp.ListenTarget(ctx, v.handleEvent)

	if err := chromedp.Run(ctx, network.Enable()); err != nil {
		return fmt.Errorf("failed to enable network capture: %w", err)
	}
	v.logger.Debug().Msg("API capture started")
	return nil
}

func isAPIType(t network.ResourceType) bool {
	return t == network.ResourceTypeXHR || t == network.ResourceTypeFetch
}

func isJSON(mimeType string) bool {
	return strings.Contains(mimeType, "json")
}

func (v *Verifier) handleEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		if ev.Request == nil || strings.HasPrefix(ev.Request.URL, "data:") {
			return
		}
		v.onRequest(string(ev.RequestID), ev.Type, ev.Request.Method, ev.Request.URL, ev.Request.HasPostData)
	case *network.EventResponseReceived:
		if ev.Response == nil {
			return
		}
		v.onResponse(string(ev.RequestID), ev.Response.Status, ev.Response.StatusText, ev.Response.MimeType)
	case *network.EventLoadingFinished:
		v.onFinished(string(ev.RequestID))
	case *network.EventLoadingFailed:
		v.onFailed(string(ev.RequestID), ev.ErrorText, ev.Canceled)
	}
}

func (v *Verifier) onRequest(id string, resourceType network.ResourceType, method, rawURL string, hasPostData bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	v.lastActivity = now

	// Long-lived streams never settle and would block network idle
	if resourceType != network.ResourceTypeEventSource {
		v.inflight[id] = struct{}{}
	}

	if !isAPIType(resourceType) {
		return
	}

	// Redirects reuse the request id
	if call, ok := v.byID[id]; ok {
		call.URL = rawURL
		call.Method = method
		return
	}

	call := &Call{
		RequestID:    id,
		Method:       method,
		URL:          rawURL,
		ResourceType: string(resourceType),
		HasPostData:  hasPostData,
		StartedAt:    now,
	}
	v.calls = append(v.calls, call)
	v.byID[id] = call
}

func (v *Verifier) onResponse(id string, status int64, statusText, mimeType string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.lastActivity = v.now()
	if call, ok := v.byID[id]; ok {
		call.Status = status
		call.StatusText = statusText
		call.MimeType = mimeType
	}
}

func (v *Verifier) onFinished(id string) {
	v.mu.Lock()
	now := v.now()
	v.lastActivity = now
	delete(v.inflight, id)

	call, ok := v.byID[id]
	if !ok {
		v.mu.Unlock()
		return
	}
	call.Finished = true
	call.EndedAt = now

	fetch := v.fetchBody
	if fetch != nil && isJSON(call.MimeType) {
		call.bodyPending = true
	} else {
		fetch = nil
	}
	desc := call.String()
	v.mu.Unlock()

	v.logger.Debug().Str("call", desc).Msg("API call finished")

	if fetch != nil {
		fetch(id)
	}
}

func (v *Verifier) onFailed(id, errorText string, canceled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	v.lastActivity = now
	delete(v.inflight, id)

	if call, ok := v.byID[id]; ok {
		call.Failed = true
		call.Canceled = canceled
		call.ErrorText = errorText
		call.EndedAt = now
	}
}

func (v *Verifier) setBody(id string, body []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if call, ok := v.byID[id]; ok {
		call.Body = body
		call.bodyPending = false
	}
}

// Calls returns a snapshot of every captured API call in request order
func (v *Verifier) Calls() []Call {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Call, len(v.calls))
	for i, c := range v.calls {
		out[i] = *c
	}
	return out
}

// CallsMatching returns captured calls with method (any when empty) whose path contains pathSubstring
func (v *Verifier) CallsMatching(method, pathSubstring string) []Call {
	var out []Call
	for _, c := range v.Calls() {
		if c.Matches(method, pathSubstring) {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets captured calls. In-flight tracking is kept so network idle stays accurate.
func (v *Verifier) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = nil
	v.byID = map[string]*Call{}
}

// InFlight returns the number of requests that have not finished or failed
func (v *Verifier) InFlight() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.inflight)
}

func (v *Verifier) idleFor() (time.Duration, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.inflight) > 0 {
		return 0, false
	}
	return v.now().Sub(v.lastActivity), true
}

// WaitForNetworkIdle waits until no request has been in flight for quiet,
// the equivalent of Playwright's networkidle load state
func (v *Verifier) WaitForNetworkIdle(ctx context.Context, quiet, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	tick := quiet / 10
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}

	for {
		if idle, ok := v.idleFor(); ok && idle >= quiet {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("network not idle within %v (%d requests in flight)", timeout, v.InFlight())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(tick):
		}
	}
}

// VerifyCall returns the first completed successful call matching method and path
func (v *Verifier) VerifyCall(method, pathSubstring string) (Call, error) {
	var seen []string
	for _, c := range v.CallsMatching(method, pathSubstring) {
		if c.Done() && c.Succeeded() {
			return c, nil
		}
		seen = append(seen, c.String())
	}
	if len(seen) > 0 {
		return Call{}, fmt.Errorf("%w: %s %s (saw %s)", ErrNoMatchingCall, method, pathSubstring, strings.Join(seen, ", "))
	}
	return Call{}, fmt.Errorf("%w: %s %s", ErrNoMatchingCall, method, pathSubstring)
}

// WaitForCall polls VerifyCall until it succeeds or timeout passes
func (v *Verifier) WaitForCall(ctx context.Context, method, pathSubstring string, timeout time.Duration) (Call, error) {
	deadline := time.Now().Add(timeout)
	for {
		call, err := v.VerifyCall(method, pathSubstring)
		if err == nil {
			return call, nil
		}
		if time.Now().After(deadline) {
			return Call{}, fmt.Errorf("after %v: %w", timeout, err)
		}
		select {
		case <-ctx.Done():
			return Call{}, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// VerifyMailboxUpdateCall waits for a successful mailbox settings mutation
func (v *Verifier) VerifyMailboxUpdateCall(ctx context.Context, timeout time.Duration) (Call, error) {
	return v.WaitForCall(ctx, "POST", MailboxUpdatePath, timeout)
}

// VerifyNoFailedCalls reports every call that returned >= 400 or failed
// at the network layer. Cancelled requests are ignored.
func (v *Verifier) VerifyNoFailedCalls() error {
	var failed []string
	for _, c := range v.Calls() {
		if c.Failed && c.Canceled {
			continue
		}
		if c.Failed || c.Status >= 400 {
			failed = append(failed, c.String())
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d failed API calls: %s", len(failed), strings.Join(failed, "; "))
	}
	return nil
}
