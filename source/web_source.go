package source

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sardine-ai/go-remote-flags/model"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const (
	defaultFailureThreshold = 5
	defaultOpenTimeout      = 30 * time.Second
)

// WebSource is a Source that fetches the flag listing from the /v1/flags
// endpoint of a flag service with conditional GET requests. Consecutive
// failures open a circuit breaker; while it is open fetches fail fast.
type WebSource struct {
	Name             string        // Name of the source
	HTTPClient       *http.Client  // Client used for requests; http.DefaultClient when nil
	APIKey           string        // Optional API key for X-API-KEY header authentication
	FailureThreshold uint32        // Consecutive failures that open the breaker
	OpenTimeout      time.Duration // Time the breaker stays open before probing again

	breakerOnce sync.Once
	breaker     *gobreaker.CircuitBreaker
}

// GetName returns the name of the source.
func (w *WebSource) GetName() string {
	if w.Name == "" {
		return "web"
	}
	return w.Name
}

func (w *WebSource) getBreaker() *gobreaker.CircuitBreaker {
	w.breakerOnce.Do(func() {
		threshold := w.FailureThreshold
		if threshold == 0 {
			threshold = defaultFailureThreshold
		}
		timeout := w.OpenTimeout
		if timeout <= 0 {
			timeout = defaultOpenTimeout
		}
		w.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    w.GetName(),
			Timeout: timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			// A fetch cancelled because it was superseded says nothing about the
			// health of the endpoint.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logrus.WithFields(logrus.Fields{
					"source": name,
					"from":   from.String(),
					"to":     to.String(),
				}).Warn("circuit breaker state changed")
			},
		})
	})
	return w.breaker
}

// Fetch issues GET {BaseURL}/v1/flags for req.Config, sending req.Validator
// as If-None-Match.
func (w *WebSource) Fetch(ctx context.Context, req Request) (Result, error) {
	out, err := w.getBreaker().Execute(func() (interface{}, error) {
		return w.fetch(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Result{}, transportError(w.GetName(), model.ReasonCircuitOpen, err)
		}
		return Result{}, err
	}
	return out.(Result), nil
}

func (w *WebSource) fetch(ctx context.Context, req Request) (Result, error) {
	flagsURL, err := req.Config.FlagsURL()
	if err != nil {
		return Result{}, transportError(w.GetName(), model.ReasonRequest, err)
	}

	requestID := uuid.NewString()
	log := logrus.WithFields(logrus.Fields{
		"source":     w.GetName(),
		"env":        req.Config.Environment,
		"request_id": requestID,
	})

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, flagsURL.String(), nil)
	if err != nil {
		log.Debug("error creating request")
		return Result{}, transportError(w.GetName(), model.ReasonRequest, err)
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("X-Request-Id", requestID)
	if req.Validator != "" {
		request.Header.Set("If-None-Match", req.Validator)
	}
	if w.APIKey != "" {
		request.Header.Set("X-API-KEY", w.APIKey)
	}

	client := w.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(request)
	if err != nil {
		log.Debug("error doing request")
		if errors.Is(err, context.Canceled) {
			return Result{}, err
		}
		return Result{}, transportError(w.GetName(), model.ReasonNetwork, err)
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			log.WithError(err).Debug("error closing response body")
		}
	}(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotModified:
		log.Debug("flags not modified")
		return NotModified(), nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		log.WithField("status", resp.StatusCode).Debug("unexpected status")
		return Result{}, &model.TransportError{
			Source:     w.GetName(),
			Reason:     model.ReasonStatus,
			StatusCode: resp.StatusCode,
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Debug("error reading body")
		return Result{}, transportError(w.GetName(), model.ReasonRead, err)
	}
	return Updated(data, resp.Header.Get("ETag")), nil
}
