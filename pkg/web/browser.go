/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: browser.go
Description: Browser Traffic Observer using chromedp. Drives headless Chrome to the
landing URL, records every network exchange in capture order, fetches textual response
bodies and records WebSocket creation.
*/

package web

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/kleascm/akaylee-mirror/pkg/inference"
	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
	"github.com/kleascm/akaylee-mirror/pkg/logging"
	"github.com/sirupsen/logrus"
)

// BrowserObserver implements TrafficObserver using chromedp
type BrowserObserver struct {
	config *interfaces.ObserverConfig
	noise  *NoiseFilter
	logger *logrus.Logger
}

// NewBrowserObserver creates a browser observer
func NewBrowserObserver(config *interfaces.ObserverConfig, logger *logrus.Logger) (*BrowserObserver, error) {
	noise, err := NewNoiseFilter(config.IgnoredDomains, config.IgnoredKinds)
	if err != nil {
		return nil, err
	}
	return &BrowserObserver{config: config, noise: noise, logger: logging.OrDiscard(logger)}, nil
}

// Name returns the observer name
func (b *BrowserObserver) Name() string {
	return "browser"
}

// exchange is one request tracked across its DevTools events
type exchange struct {
	seq      int
	obs      interfaces.Observation
	status   int64
	mimeType string
	answered bool
}

// succeeded reports a completed 2xx/3xx exchange or an opened WebSocket
func (x *exchange) succeeded() bool {
	if !x.answered {
		return false
	}
	if x.obs.ResourceKind == interfaces.KindWebSocket {
		return x.status == 101
	}
	return x.status >= 200 && x.status < 400
}

// captureSession collects DevTools network events for one navigation
type captureSession struct {
	mu        sync.Mutex
	seq       int
	mainFrame string
	live      map[network.RequestID]*exchange
	done      []*exchange
	pending   sync.WaitGroup
	closed    bool
	maxBody   int
	logger    *logrus.Logger
}

func newCaptureSession(maxBody int, logger *logrus.Logger) *captureSession {
	return &captureSession{
		live:    make(map[network.RequestID]*exchange),
		maxBody: maxBody,
		logger:  logger,
	}
}

func (s *captureSession) nextSeq() int {
	s.seq++
	return s.seq
}

// handle is the ListenTarget callback. It must not block.
func (s *captureSession) handle(browserCtx context.Context) func(ev interface{}) {
	return func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			s.onRequest(e)
		case *network.EventResponseReceived:
			s.mu.Lock()
			if x, ok := s.live[e.RequestID]; ok && e.Response != nil {
				x.status = e.Response.Status
				x.mimeType = e.Response.MimeType
				x.answered = true
			}
			s.mu.Unlock()
		case *network.EventLoadingFinished:
			s.onFinished(browserCtx, e.RequestID)
		case *network.EventLoadingFailed:
			s.mu.Lock()
			delete(s.live, e.RequestID)
			s.mu.Unlock()
		case *network.EventWebSocketCreated:
			s.mu.Lock()
			s.done = append(s.done, &exchange{
				seq: s.nextSeq(),
				obs: interfaces.Observation{
					URL:          e.URL,
					Method:       "GET",
					Hostname:     urlHost(e.URL),
					ResourceKind: interfaces.KindWebSocket,
				},
				status:   101,
				answered: true,
			})
			s.mu.Unlock()
		}
	}
}

func (s *captureSession) onRequest(e *network.EventRequestWillBeSent) {
	if e.Request == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	frame := string(e.FrameID)
	if s.mainFrame == "" && string(e.Type) == string(network.ResourceTypeDocument) {
		s.mainFrame = frame
	}

	// a redirect reuses the request id; the hop that was redirected is complete
	if prev, ok := s.live[e.RequestID]; ok && e.RedirectResponse != nil {
		prev.status = e.RedirectResponse.Status
		prev.answered = true
		s.done = append(s.done, prev)
		delete(s.live, e.RequestID)
	}

	host := hostHeader(e.Request.Headers)
	if host == "" {
		host = urlHost(e.Request.URL)
	}
	s.live[e.RequestID] = &exchange{
		seq: s.nextSeq(),
		obs: interfaces.Observation{
			URL:          e.Request.URL,
			Method:       e.Request.Method,
			Hostname:     host,
			ResourceKind: KindFromResourceType(string(e.Type), frame == s.mainFrame),
		},
	}
}

func (s *captureSession) onFinished(browserCtx context.Context, id network.RequestID) {
	s.mu.Lock()
	x, ok := s.live[id]
	if ok {
		delete(s.live, id)
		s.done = append(s.done, x)
	}
	fetch := ok && !s.closed && sampled(x.obs.ResourceKind)
	if fetch {
		s.pending.Add(1)
	}
	s.mu.Unlock()
	if !fetch {
		return
	}

	go func() {
		defer s.pending.Done()
		var body []byte
		err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			body, err = network.GetResponseBody(id).Do(ctx)
			return err
		}))
		if err != nil {
			s.logger.WithField("url", x.obs.URL).WithError(err).Debug("Response body unavailable")
			return
		}
		s.mu.Lock()
		if IsTextual(x.mimeType, body) {
			x.obs.BodySample = string(truncate(body, s.maxBody))
		}
		s.mu.Unlock()
	}()
}

// observations returns the recorded 2xx/3xx exchanges in request order
func (s *captureSession) observations(noise *NoiseFilter) []interfaces.Observation {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.pending.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	sort.Slice(s.done, func(i, j int) bool { return s.done[i].seq < s.done[j].seq })
	out := make([]interfaces.Observation, 0, len(s.done))
	for _, x := range s.done {
		if !x.succeeded() {
			continue
		}
		if !noise.Allows(x.obs) {
			continue
		}
		out = append(out, x.obs)
	}
	return out
}

// Observe navigates to targetURL and captures traffic until the handshake wait elapses
func (b *BrowserObserver) Observe(ctx context.Context, targetURL string) (*interfaces.Capture, error) {
	if _, err := inference.Hostname(targetURL); err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.config.Headless),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.UserAgent(b.config.UserAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	session := newCaptureSession(b.config.MaxBodyBytes, b.logger)
	chromedp.ListenTarget(browserCtx, session.handle(browserCtx))

	capture := &interfaces.Capture{
		ScanID:    uuid.NewString(),
		TargetURL: targetURL,
		StartedAt: time.Now(),
	}
	b.logger.WithFields(logrus.Fields{
		logging.FieldStage: "observe",
		"url":              targetURL,
		"headless":         b.config.Headless,
	}).Info("Launching browser")

	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	navCtx, navCancel := context.WithTimeout(browserCtx, b.config.NavigationTimeout)
	defer navCancel()
	var finalURL string
	if err := chromedp.Run(navCtx, chromedp.Navigate(targetURL), chromedp.Location(&finalURL)); err != nil {
		return nil, fmt.Errorf("navigation to %s failed: %w", targetURL, err)
	}
	capture.FinalURL = finalURL

	b.logger.WithField("wait", b.config.HandshakeWait).Info("Waiting for post-load traffic")
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(b.config.HandshakeWait):
	}

	capture.Observations = session.observations(b.noise)
	capture.Duration = time.Since(capture.StartedAt)
	b.logger.WithFields(logrus.Fields{
		logging.FieldStage: "observe",
		"observations":     len(capture.Observations),
		"final_url":        finalURL,
		"duration":         capture.Duration,
	}).Info("Capture finished")
	return capture, nil
}
