package notification

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/practicebooks/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockEmail struct {
	mock.Mock
}

func (m *mockEmail) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return m.Called(to, subject).Error(0)
}

func (m *mockEmail) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error {
	return m.Called(to, templateName, data["reason"]).Error(0)
}

func TestSessionRejectedSendsTemplate(t *testing.T) {
	sender := &mockEmail{}
	sender.On("SendTemplate", []string{"dana@example.com"}, "session_rejected", "wrong date").Return(nil).Once()

	n := New(Params{Log: zap.NewNop(), Email: sender})
	err := n.SessionRejected(context.Background(), SessionRejected{
		SessionID:       "1",
		ContractorName:  "Dana",
		ContractorEmail: " dana@example.com ",
		SessionDate:     time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Reason:          "wrong date",
	})
	require.NoError(t, err)
	sender.AssertExpectations(t)
}

func TestSessionRejectedSkipsWithoutEmailOrWhenDisabled(t *testing.T) {
	sender := &mockEmail{}
	n := New(Params{Log: zap.NewNop(), Email: sender})
	assert.NoError(t, n.SessionRejected(context.Background(), SessionRejected{Reason: "x"}))

	cfg := config.DefaultBillingConfig()
	cfg.RejectionNotifyEmail = false
	n = New(Params{Log: zap.NewNop(), Email: sender, Billing: config.NewStaticBillingConfig(cfg)})
	assert.NoError(t, n.SessionRejected(context.Background(), SessionRejected{ContractorEmail: "a@b.c", Reason: "x"}))

	sender.AssertNotCalled(t, "SendTemplate", mock.Anything, mock.Anything, mock.Anything)
}
