/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: http.go
Description: Direct-HTTP Traffic Observer. Fetches the landing document with resty,
extracts referenced scripts and frames with goquery and fetches script bodies
concurrently, preserving document order. Sees no runtime XHR/WebSocket traffic.
*/

package web

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/kleascm/akaylee-mirror/pkg/inference"
	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
	"github.com/kleascm/akaylee-mirror/pkg/logging"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// HTTPObserver implements TrafficObserver without a browser
type HTTPObserver struct {
	config *interfaces.ObserverConfig
	client *resty.Client
	noise  *NoiseFilter
	logger *logrus.Logger
}

// NewHTTPObserver creates a direct-HTTP observer
func NewHTTPObserver(config *interfaces.ObserverConfig, logger *logrus.Logger) (*HTTPObserver, error) {
	noise, err := NewNoiseFilter(config.IgnoredDomains, config.IgnoredKinds)
	if err != nil {
		return nil, err
	}
	client := resty.New().
		SetTimeout(config.NavigationTimeout).
		SetRetryCount(config.HTTPRetries).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10)).
		SetHeader("User-Agent", config.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/javascript,*/*;q=0.8").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	return &HTTPObserver{
		config: config,
		client: client,
		noise:  noise,
		logger: logging.OrDiscard(logger),
	}, nil
}

// Name returns the observer name
func (o *HTTPObserver) Name() string {
	return "http"
}

// Client exposes the underlying resty client
func (o *HTTPObserver) Client() *resty.Client {
	return o.client
}

// Observe fetches targetURL and the scripts it references
func (o *HTTPObserver) Observe(ctx context.Context, targetURL string) (*interfaces.Capture, error) {
	if _, err := inference.Hostname(targetURL); err != nil {
		return nil, err
	}
	capture := &interfaces.Capture{
		ScanID:    uuid.NewString(),
		TargetURL: targetURL,
		StartedAt: time.Now(),
	}

	resp, err := o.client.R().SetContext(ctx).Get(targetURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", targetURL, err)
	}
	if resp.StatusCode() >= 400 {
		return nil, fmt.Errorf("landing page %s returned status %d", targetURL, resp.StatusCode())
	}

	finalURL := targetURL
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		finalURL = raw.Request.URL.String()
	}
	capture.FinalURL = finalURL
	base, err := url.Parse(finalURL)
	if err != nil {
		return nil, &interfaces.URLError{URL: finalURL, Err: err}
	}

	var observations []interfaces.Observation
	if finalURL != targetURL {
		observations = append(observations, interfaces.Observation{
			URL:          targetURL,
			Method:       http.MethodGet,
			Hostname:     urlHost(targetURL),
			ResourceKind: interfaces.KindDocument,
		})
	}
	body := resp.Body()
	doc := interfaces.Observation{
		URL:          finalURL,
		Method:       http.MethodGet,
		Hostname:     urlHost(finalURL),
		ResourceKind: interfaces.KindDocument,
	}
	if IsTextual(resp.Header().Get("Content-Type"), body) {
		doc.BodySample = string(truncate(body, o.config.MaxBodyBytes))
	}
	observations = append(observations, doc)

	resources, err := ExtractResources(string(body), base)
	if err != nil {
		o.logger.WithError(err).Warn("Landing document could not be parsed; no scripts extracted")
	}

	fetched, err := o.fetchResources(ctx, resources, finalURL)
	if err != nil {
		return nil, err
	}
	for _, obs := range fetched {
		if obs != nil {
			observations = append(observations, *obs)
		}
	}

	for _, obs := range observations {
		if o.noise.Allows(obs) {
			capture.Observations = append(capture.Observations, obs)
		}
	}
	capture.Duration = time.Since(capture.StartedAt)
	o.logger.WithFields(logrus.Fields{
		logging.FieldStage: "observe",
		"url":              targetURL,
		"final_url":        finalURL,
		"resources":        len(resources),
		"observations":     len(capture.Observations),
	}).Info("Capture finished")
	return capture, nil
}

// fetchResources resolves every resource into an observation. Results keep document
// order regardless of fetch completion order; failed fetches leave a nil slot.
func (o *HTTPObserver) fetchResources(ctx context.Context, resources []Resource, documentURL string) ([]*interfaces.Observation, error) {
	results := make([]*interfaces.Observation, len(resources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, o.config.HTTPConcurrency))

	for i, res := range resources {
		switch {
		case res.Inline != "":
			results[i] = &interfaces.Observation{
				URL:          fmt.Sprintf("%s#inline-%d", documentURL, i),
				Method:       http.MethodGet,
				Hostname:     urlHost(documentURL),
				ResourceKind: interfaces.KindScript,
				BodySample:   string(truncate([]byte(res.Inline), o.config.MaxBodyBytes)),
			}
		case res.Kind == interfaces.KindSubDocument:
			results[i] = &interfaces.Observation{
				URL:          res.URL,
				Method:       http.MethodGet,
				Hostname:     urlHost(res.URL),
				ResourceKind: res.Kind,
			}
		case o.noise.IgnoreHost(urlHost(res.URL)):
		default:
			g.Go(func() error {
				obs, err := o.fetch(gctx, res)
				if err != nil {
					o.logger.WithField("url", res.URL).WithError(err).Debug("Resource fetch failed")
					return nil
				}
				results[i] = obs
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (o *HTTPObserver) fetch(ctx context.Context, res Resource) (*interfaces.Observation, error) {
	resp, err := o.client.R().SetContext(ctx).Get(res.URL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 400 {
		return nil, fmt.Errorf("status %d", resp.StatusCode())
	}
	obs := &interfaces.Observation{
		URL:          res.URL,
		Method:       http.MethodGet,
		Hostname:     urlHost(res.URL),
		ResourceKind: res.Kind,
	}
	body := resp.Body()
	if IsTextual(resp.Header().Get("Content-Type"), body) {
		obs.BodySample = string(truncate(body, o.config.MaxBodyBytes))
	}
	return obs, nil
}
