package loadtest

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gustload/gust/internal/loadtest/metrics"
	"github.com/gustload/gust/internal/logging"
)

// HTTPClientConfig configures the HTTP clients handed to VUs.
type HTTPClientConfig struct {
	Timeout               time.Duration
	MaxConnectionsPerHost int
	MaxIdleConnsPerHost   int
	InsecureSkipVerify    bool
	UserAgent             string
	Headers               map[string]string
}

// DefaultHTTPClientConfig returns sensible client defaults.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConnsPerHost: 100,
	}
}

// VUScheduler creates and tracks virtual users for one scenario.
//
// When the scenario has a session, every VU gets its own client with its
// own cookie jar so sessions never leak between VUs. Otherwise all VUs
// share one client and its connection pool.
type VUScheduler struct {
	scenario  *Scenario
	collector *metrics.Collector
	logger    *zap.Logger

	clientConfig HTTPClientConfig
	sharedClient *http.Client

	vus    map[int]*VirtualUser
	nextID int
	mu     sync.Mutex
}

// NewVUScheduler creates a scheduler for the given scenario.
func NewVUScheduler(scenario *Scenario, collector *metrics.Collector, clientConfig HTTPClientConfig, logger *zap.Logger) *VUScheduler {
	s := &VUScheduler{
		scenario:     scenario,
		collector:    collector,
		logger:       logging.OrNop(logger),
		clientConfig: clientConfig,
		vus:          make(map[int]*VirtualUser),
		nextID:       1,
	}
	if scenario.Session == nil {
		s.sharedClient = s.newClient(nil)
	}
	return s
}

func (s *VUScheduler) newClient(jar http.CookieJar) *http.Client {
	transport := &http.Transport{
		MaxConnsPerHost:     s.clientConfig.MaxConnectionsPerHost,
		MaxIdleConnsPerHost: s.clientConfig.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
	}
	if s.clientConfig.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	var rt http.RoundTripper = transport
	if s.clientConfig.UserAgent != "" || len(s.clientConfig.Headers) > 0 {
		rt = &headerRoundTripper{
			base:      transport,
			userAgent: s.clientConfig.UserAgent,
			headers:   s.clientConfig.Headers,
		}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   s.clientConfig.Timeout,
		Jar:       jar,
	}
}

// headerRoundTripper applies default headers without overriding ones the
// request already sets.
type headerRoundTripper struct {
	base      http.RoundTripper
	userAgent string
	headers   map[string]string
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	for key, value := range h.headers {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}
	if h.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", h.userAgent)
	}
	return h.base.RoundTrip(req)
}

// SpawnVU creates and registers a new VU.
func (s *VUScheduler) SpawnVU() (*VirtualUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client := s.sharedClient
	if client == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		client = s.newClient(jar)
	}

	id := s.nextID
	s.nextID++

	vu := NewVirtualUser(id, s.scenario, client, s.collector, s.logger)
	s.vus[id] = vu

	s.collector.SetActiveVUs(s.activeCountLocked() + 1)
	s.logger.Debug("spawned vu", zap.Int("vu", id), zap.String("scenario", s.scenario.Name))

	return vu, nil
}

// ReleaseVU marks a VU as stopped and updates the active count.
func (s *VUScheduler) ReleaseVU(vu *VirtualUser) {
	vu.MarkStopped()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.collector.SetActiveVUs(s.activeCountLocked())
}

// ActiveVUCount returns the number of VUs that are not stopped.
func (s *VUScheduler) ActiveVUCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeCountLocked()
}

func (s *VUScheduler) activeCountLocked() int {
	count := 0
	for _, vu := range s.vus {
		if vu.State() != VUStateStopped {
			count++
		}
	}
	return count
}

// StopAllVUs asks every VU to stop after its current iteration.
func (s *VUScheduler) StopAllVUs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, vu := range s.vus {
		vu.RequestStop()
	}
}

// Shutdown stops all VUs and waits up to timeout for them to finish.
// It returns the number of VUs that did not stop in time.
func (s *VUScheduler) Shutdown(timeout time.Duration) int {
	s.StopAllVUs()

	deadline := time.Now().Add(timeout)

	s.mu.Lock()
	vus := make([]*VirtualUser, 0, len(s.vus))
	for _, vu := range s.vus {
		vus = append(vus, vu)
	}
	s.mu.Unlock()

	stragglers := 0
	for _, vu := range vus {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			remaining = time.Millisecond
		}
		if !vu.WaitForStop(remaining) {
			stragglers++
			s.logger.Warn("vu did not stop within graceful period", zap.Int("vu", vu.ID))
		}
	}

	s.mu.Lock()
	s.collector.SetActiveVUs(0)
	s.mu.Unlock()

	return stragglers
}
