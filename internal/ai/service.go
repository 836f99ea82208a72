package ai

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// ServiceConfig controls retry and fallback behavior.
type ServiceConfig struct {
	RetryAttempts   int           // retries after the first attempt
	RetryDelay      time.Duration // sleep between attempts
	EnableFallbacks bool
}

// DefaultServiceConfig returns the standard retry policy: two retries
// a second apart, fallbacks on.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		RetryAttempts:   2,
		RetryDelay:      time.Second,
		EnableFallbacks: true,
	}
}

// Service applies retries and fallbacks over a Provider.
type Service struct {
	provider Provider
	cfg      ServiceConfig
	logger   *logrus.Logger
}

// NewService wraps provider with the given policy.
func NewService(provider Provider, cfg ServiceConfig, logger *logrus.Logger) *Service {
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	}
	return &Service{provider: provider, cfg: cfg, logger: logger}
}

// GenerateCompletion asks the provider for a completion, retrying
// transient failures up to the configured count. Configuration errors
// stop immediately. If all attempts fail and fallbacks are enabled, a
// non-empty fallback string is returned instead of the error.
func (s *Service) GenerateCompletion(ctx context.Context, prompt string, opts Options, fallback string) (string, error) {
	var lastErr *Error

	attempts := s.cfg.RetryAttempts + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := s.provider.GenerateCompletion(ctx, prompt, opts)
		if err == nil {
			return out, nil
		}

		lastErr = asTyped(err)
		s.logger.WithFields(logrus.Fields{
			"provider": s.provider.Name(),
			"attempt":  attempt,
			"kind":     lastErr.Kind,
		}).Warn("ai completion failed")

		if IsConfigurationError(lastErr.Kind) {
			break
		}
		if !IsRetryable(lastErr.Kind) || attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return s.exhausted(NewError(KindTimeout, "context cancelled during retry", ctx.Err()), fallback)
		case <-time.After(s.cfg.RetryDelay):
		}
	}

	return s.exhausted(lastErr, fallback)
}

// exhausted applies the fallback policy after all attempts failed.
func (s *Service) exhausted(lastErr *Error, fallback string) (string, error) {
	if s.cfg.EnableFallbacks && fallback != "" {
		s.logger.WithField("kind", lastErr.Kind).Info("ai unavailable, using fallback response")
		return fallback, nil
	}
	return "", lastErr
}

// GenerateStructured performs a single structured call with no
// retries. Failures are logged and returned as typed errors with a
// nil result.
func GenerateStructured[T any](ctx context.Context, s *Service, prompt string, schema string, opts Options) (*T, error) {
	raw, err := s.provider.GenerateStructured(ctx, prompt, schema, opts)
	if err != nil {
		typed := asTyped(err)
		s.logger.WithFields(logrus.Fields{
			"provider": s.provider.Name(),
			"kind":     typed.Kind,
		}).Warn("ai structured generation failed")
		return nil, typed
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		typed := NewError(KindAPI, "provider returned malformed JSON", err)
		s.logger.WithField("provider", s.provider.Name()).Warn("ai structured output unparsable")
		return nil, typed
	}
	return &out, nil
}

// HealthCheck probes the provider with a tiny completion and reports
// whether it answered.
func (s *Service) HealthCheck(ctx context.Context) bool {
	_, err := s.provider.GenerateCompletion(ctx, "ping", Options{MaxTokens: 8})
	return err == nil
}

// asTyped coerces any provider error into the typed taxonomy.
func asTyped(err error) *Error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return NewError(KindAPI, "provider call failed", err)
}
