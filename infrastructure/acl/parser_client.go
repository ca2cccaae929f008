// Package acl is the anti-corruption layer in front of the external
// requirement-text parser. It shields the canonical model from the parser's
// wire shapes and verb vocabulary.
package acl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"flowsketch-backend/application/ports"
	pkgerrors "flowsketch-backend/pkg/errors"
)

// ParserClient calls the external parser service. A circuit breaker keeps a
// flapping parser from dragging requests into long timeouts.
type ParserClient struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// NewParserClient creates a client for the parser service
func NewParserClient(baseURL string, timeout time.Duration, log *zap.Logger) *ParserClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "spec-parser",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("parser circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &ParserClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		log:     log,
	}
}

type parseRequest struct {
	Text string `json:"text"`
}

// Parse sends requirement text to the parser and returns its raw model
func (c *ParserClient) Parse(ctx context.Context, text string) (*ports.ParsedModel, error) {
	if c.baseURL == "" {
		return nil, pkgerrors.NewUnavailableError("spec-parser")
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		body, err := json.Marshal(parseRequest{Text: text})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/parse", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("parser returned %d: %s", resp.StatusCode, payload)
		}

		var parsed ports.ParsedModel
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, err
		}
		return &parsed, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, pkgerrors.NewUnavailableError("spec-parser").WithCause(err)
		}
		return nil, pkgerrors.NewExternalError("spec-parser", err)
	}
	return result.(*ports.ParsedModel), nil
}
