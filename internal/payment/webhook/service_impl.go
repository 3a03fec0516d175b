package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/smallbiznis/practicebooks/internal/config"
	"github.com/smallbiznis/practicebooks/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/practicebooks/internal/payment/domain"
	paymentservice "github.com/smallbiznis/practicebooks/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const SignatureHeader = "X-Signature"

type Params struct {
	fx.In

	Log        *zap.Logger
	PaymentSvc *paymentservice.Service
	Adapters   *adapters.Registry
	Cfg        config.Config
}

type Service struct {
	log        *zap.Logger
	paymentSvc *paymentservice.Service
	adapters   *adapters.Registry
	secret     []byte
}

func NewService(p Params) paymentdomain.Service {
	var secret []byte
	if value := strings.TrimSpace(p.Cfg.Payment.WebhookSecret); value != "" {
		secret = []byte(value)
	}
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		paymentSvc: p.PaymentSvc,
		adapters:   p.Adapters,
		secret:     secret,
	}
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if s.adapters == nil || !s.adapters.ProviderExists(provider) {
		return paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}
	if err := s.verify(payload, headers); err != nil {
		return err
	}

	var event paymentdomain.InvoiceStatusEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	event.Provider = provider
	event.RawPayload = payload

	if s.paymentSvc == nil {
		return errors.New("payment_service_unavailable")
	}
	err := s.paymentSvc.ProcessEvent(ctx, &event)
	switch {
	case errors.Is(err, paymentdomain.ErrEventIgnored):
		s.log.Debug("payment event ignored", zap.String("provider", provider), zap.String("type", event.Type))
		return nil
	case errors.Is(err, paymentdomain.ErrEventAlreadyProcessed):
		return nil
	}
	return err
}

// verify checks the hex HMAC-SHA256 of the body, sent as "sha256=<hex>".
// Verification is skipped when no secret is configured.
func (s *Service) verify(payload []byte, headers http.Header) error {
	if len(s.secret) == 0 {
		return nil
	}
	signature := strings.TrimSpace(headers.Get(SignatureHeader))
	signature = strings.TrimPrefix(signature, "sha256=")
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return paymentdomain.ErrInvalidSignature
	}
	if !hmac.Equal(got, Sign(s.secret, payload)) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

// Sign returns the HMAC-SHA256 of payload under secret.
func Sign(secret, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return mac.Sum(nil)
}
