package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"monositi/internal/config"
	"monositi/internal/logging"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

type smsRequest struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
}

// SMSGateway posts codes to an HTTP SMS provider. Calls go through a circuit
// breaker so a dead provider fails fast instead of stalling code requests.
type SMSGateway struct {
	cfg    config.SMSConfig
	client *http.Client
	cb     *gobreaker.CircuitBreaker
	logger *zerolog.Logger
}

func NewSMSGateway(cfg config.SMSConfig, logger *zerolog.Logger) *SMSGateway {
	st := gobreaker.Settings{
		Name:        "sms-gateway",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn().Str("name", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state")
		},
	}

	return &SMSGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cb:     gobreaker.NewCircuitBreaker(st),
		logger: logger,
	}
}

func (g *SMSGateway) Send(ctx context.Context, phone, code string) error {
	body, err := json.Marshal(smsRequest{
		To:      phone,
		From:    g.cfg.SenderID,
		Message: fmt.Sprintf(g.cfg.Template, code),
	})
	if err != nil {
		return fmt.Errorf("marshal sms request: %w", err)
	}

	_, err = g.cb.Execute(func() (interface{}, error) {
		return nil, g.post(ctx, body)
	})
	if err != nil {
		g.logger.Warn().Err(err).Str("phone", logging.MaskPhone(phone)).Msg("SMS delivery failed")
		return err
	}
	return nil
}

func (g *SMSGateway) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.GatewayURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	return nil
}
