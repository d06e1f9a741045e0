package loadtest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/gustload/gust/internal/loadtest/metrics"
	"github.com/gustload/gust/internal/logging"
)

// VUState represents the lifecycle state of a virtual user.
type VUState int32

const (
	// VUStateIdle indicates the VU is ready but not running an iteration.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is actively running an iteration.
	VUStateRunning
	// VUStateStopping indicates the VU has been asked to stop.
	VUStateStopping
	// VUStateStopped indicates the VU has fully stopped.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VirtualUser is a single simulated client executing scenario iterations.
//
// Each VU owns an HTTP client (with its own cookie jar when the scenario
// has a session), a variable scope for extracted values, and its own
// lifecycle state. VUs are created by the VUScheduler.
type VirtualUser struct {
	// ID is unique within a scheduler
	ID int

	// Scenario defines what to execute
	Scenario *Scenario

	// Client used for all requests of this VU
	Client *http.Client

	// Collector receives request and check results
	Collector *metrics.Collector

	logger *zap.Logger

	state    atomic.Int32
	stopCh   chan struct{}
	doneCh   chan struct{}
	doneOnce sync.Once

	iteration atomic.Int64

	// sessionOnce guards the login flow so it runs on the first
	// iteration only
	sessionOnce sync.Once

	data   map[string]string
	dataMu sync.RWMutex
}

// NewVirtualUser creates a VU. The logger may be nil.
func NewVirtualUser(id int, scenario *Scenario, client *http.Client, collector *metrics.Collector, logger *zap.Logger) *VirtualUser {
	return &VirtualUser{
		ID:        id,
		Scenario:  scenario,
		Client:    client,
		Collector: collector,
		logger:    logging.OrNop(logger),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		data:      make(map[string]string),
	}
}

// State returns the current VU state.
func (vu *VirtualUser) State() VUState {
	return VUState(vu.state.Load())
}

// Iteration returns the number of completed iterations.
func (vu *VirtualUser) Iteration() int64 {
	return vu.iteration.Load()
}

// RunIteration executes one iteration: the session login on the first
// call, then every request of the scenario in order, with extraction,
// checks and think time.
func (vu *VirtualUser) RunIteration(ctx context.Context) error {
	state := vu.State()
	if state == VUStateStopping || state == VUStateStopped {
		return fmt.Errorf("vu %d is stopping or stopped", vu.ID)
	}

	vu.state.Store(int32(VUStateRunning))
	vu.iteration.Add(1)

	if vu.Scenario.Session != nil {
		vu.sessionOnce.Do(func() { vu.establishSession(ctx) })
	}

	for i, req := range vu.Scenario.Requests {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-vu.stopCh:
			return nil
		default:
		}

		result := vu.executeRequest(ctx, req)

		success := result.Error == nil && result.StatusCode < 400
		vu.Collector.RecordRequest(result.Duration, req.Name, success, result.BytesReceived)

		for _, check := range req.Checks {
			passed := result.Error == nil && evaluateCheck(check, result.StatusCode, result.Body)
			vu.Collector.RecordCheck(check.Name, passed)
		}

		if result.Error == nil && len(req.Extract) > 0 {
			vu.extractVariables(req.Extract, result)
		}

		if req.ThinkTime > 0 && i < len(vu.Scenario.Requests)-1 {
			vu.sleep(ctx, req.ThinkTime)
		}
	}

	vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle))
	return nil
}

// establishSession performs the login request and makes sure the session
// cookie is present afterwards. On a failed login the configured
// fallback value is installed instead; either way the VU keeps running.
func (vu *VirtualUser) establishSession(ctx context.Context) {
	session := vu.Scenario.Session

	result := vu.executeRequest(ctx, session.Login)

	loginOK := result.Error == nil && result.StatusCode == session.ExpectStatus
	vu.Collector.RecordCheck("login succeeded", loginOK)

	if loginOK && len(result.Body) > 0 {
		// Login responses often carry the token in the body as well;
		// make it available to later requests.
		for _, ext := range session.Login.Extract {
			vu.extractVariables([]ExtractSpec{ext}, result)
		}
	}

	if loginOK && vu.hasSessionCookie(session) {
		vu.logger.Debug("login succeeded",
			zap.Int("vu", vu.ID),
			zap.Int("status", result.StatusCode))
		return
	}

	if result.Error != nil {
		vu.logger.Warn("login request failed, using fallback session cookie",
			zap.Int("vu", vu.ID),
			zap.Error(result.Error))
	} else {
		vu.logger.Warn("login rejected, using fallback session cookie",
			zap.Int("vu", vu.ID),
			zap.Int("status", result.StatusCode),
			zap.Int("expected", session.ExpectStatus))
	}

	vu.installFallbackCookie(session)
}

// hasSessionCookie reports whether the VU's jar holds the session cookie
// for the login URL.
func (vu *VirtualUser) hasSessionCookie(session *SessionSpec) bool {
	if vu.Client.Jar == nil {
		return false
	}
	u, err := url.Parse(vu.resolveVariables(session.Login.URL))
	if err != nil {
		return false
	}
	for _, cookie := range vu.Client.Jar.Cookies(u) {
		if cookie.Name == session.Cookie && cookie.Value != "" {
			return true
		}
	}
	return false
}

func (vu *VirtualUser) installFallbackCookie(session *SessionSpec) {
	if vu.Client.Jar == nil || session.FallbackValue == "" {
		return
	}
	u, err := url.Parse(vu.resolveVariables(session.Login.URL))
	if err != nil {
		return
	}
	vu.Client.Jar.SetCookies(u, []*http.Cookie{{
		Name:  session.Cookie,
		Value: session.FallbackValue,
		Path:  "/",
	}})
}

// executeRequest performs a single HTTP request and returns its result.
func (vu *VirtualUser) executeRequest(ctx context.Context, req *RequestSpec) *RequestResult {
	start := time.Now()

	result := &RequestResult{
		VUID:        vu.ID,
		Iteration:   vu.iteration.Load(),
		RequestName: req.Name,
		StartTime:   start,
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := vu.buildRequest(ctx, req)
	if err != nil {
		result.Duration = time.Since(start)
		result.Error = fmt.Errorf("failed to build request: %w", err)
		return result
	}

	resp, err := vu.Client.Do(httpReq)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err
		return result
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	result.StatusCode = resp.StatusCode
	if err != nil {
		result.Error = fmt.Errorf("failed to read response body: %w", err)
		return result
	}

	result.BytesReceived = int64(len(body))
	result.Body = body
	result.Header = resp.Header

	return result
}

// buildRequest builds the http.Request with variables resolved.
func (vu *VirtualUser) buildRequest(ctx context.Context, req *RequestSpec) (*http.Request, error) {
	target := vu.resolveVariables(req.URL)

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(vu.resolveVariables(req.Body))
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, vu.resolveVariables(value))
	}

	return httpReq, nil
}

// resolveVariables replaces {{name}} placeholders from the VU scope
// first, then the scenario variables.
func (vu *VirtualUser) resolveVariables(input string) string {
	if !strings.Contains(input, "{{") {
		return input
	}

	result := input

	vu.dataMu.RLock()
	for key, value := range vu.data {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	vu.dataMu.RUnlock()

	for key, value := range vu.Scenario.Variables {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}

	return result
}

// extractVariables pulls values out of a response into the VU scope.
func (vu *VirtualUser) extractVariables(extracts []ExtractSpec, result *RequestResult) {
	for _, ext := range extracts {
		var value string

		switch ext.Source {
		case "header":
			value = result.Header.Get(ext.Path)
		case "status":
			value = fmt.Sprintf("%d", result.StatusCode)
		case "body":
			if ext.Path != "" {
				value = gjson.GetBytes(result.Body, ext.Path).String()
			} else {
				value = string(result.Body)
			}
		}

		if ext.Regex != "" && value != "" {
			re, err := regexp.Compile(ext.Regex)
			if err != nil {
				vu.logger.Warn("invalid extract regex",
					zap.String("variable", ext.Name),
					zap.Error(err))
				continue
			}
			m := re.FindStringSubmatch(value)
			switch {
			case len(m) > 1:
				value = m[1]
			case len(m) == 1:
				value = m[0]
			default:
				value = ""
			}
		}

		if value != "" {
			vu.SetData(ext.Name, value)
		}
	}
}

func (vu *VirtualUser) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-vu.stopCh:
	case <-timer.C:
	}
}

// ApplySleep waits the scenario's between-iteration sleep.
func (vu *VirtualUser) ApplySleep(ctx context.Context) {
	d := vu.Scenario.Sleep.Duration()
	if d > 0 {
		vu.sleep(ctx, d)
	}
}

// RequestStop asks the VU to stop after its current iteration.
func (vu *VirtualUser) RequestStop() {
	if vu.State() == VUStateStopped {
		return
	}
	if vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateStopping)) ||
		vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateStopping)) {
		close(vu.stopCh)
	}
}

// WaitForStop waits for the VU to fully stop.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	select {
	case <-vu.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// MarkStopped marks the VU as fully stopped. Called when the VU's
// goroutine exits; safe to call more than once, including concurrently.
func (vu *VirtualUser) MarkStopped() {
	vu.state.Store(int32(VUStateStopped))
	vu.doneOnce.Do(func() { close(vu.doneCh) })
}

// SetData stores a value in the VU's variable scope.
func (vu *VirtualUser) SetData(key, value string) {
	vu.dataMu.Lock()
	vu.data[key] = value
	vu.dataMu.Unlock()
}

// GetData reads a value from the VU's variable scope.
func (vu *VirtualUser) GetData(key string) (string, bool) {
	vu.dataMu.RLock()
	defer vu.dataMu.RUnlock()
	v, ok := vu.data[key]
	return v, ok
}

// RequestResult is the outcome of a single HTTP request.
type RequestResult struct {
	VUID          int
	Iteration     int64
	RequestName   string
	StartTime     time.Time
	Duration      time.Duration
	StatusCode    int
	BytesReceived int64
	Error         error
	Body          []byte
	Header        http.Header
}
