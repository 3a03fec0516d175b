package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/practicebooks/internal/authorization"
	invoicedomain "github.com/smallbiznis/practicebooks/internal/invoice/domain"
	"github.com/smallbiznis/practicebooks/internal/orgcontext"
	paymentdomain "github.com/smallbiznis/practicebooks/internal/payment/domain"
	sessiondomain "github.com/smallbiznis/practicebooks/internal/session/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testOrgID = snowflake.ID(1001)

type mockSessionService struct {
	mock.Mock
}

func (m *mockSessionService) Create(ctx context.Context, orgID snowflake.ID, req sessiondomain.CreateSessionRequest) (*sessiondomain.SessionDetail, error) {
	args := m.Called(ctx, orgID, req)
	detail, _ := args.Get(0).(*sessiondomain.SessionDetail)
	return detail, args.Error(1)
}

func (m *mockSessionService) Get(ctx context.Context, orgID, sessionID snowflake.ID) (*sessiondomain.SessionDetail, error) {
	args := m.Called(ctx, orgID, sessionID)
	detail, _ := args.Get(0).(*sessiondomain.SessionDetail)
	return detail, args.Error(1)
}

func (m *mockSessionService) List(ctx context.Context, orgID snowflake.ID, req sessiondomain.ListSessionRequest) (sessiondomain.ListSessionResponse, error) {
	args := m.Called(ctx, orgID, req)
	return args.Get(0).(sessiondomain.ListSessionResponse), args.Error(1)
}

func (m *mockSessionService) transition(method string, ctx context.Context, orgID, sessionID snowflake.ID) (*sessiondomain.TransitionResult, error) {
	args := m.MethodCalled(method, ctx, orgID, sessionID)
	result, _ := args.Get(0).(*sessiondomain.TransitionResult)
	return result, args.Error(1)
}

func (m *mockSessionService) Submit(ctx context.Context, orgID, sessionID snowflake.ID) (*sessiondomain.TransitionResult, error) {
	return m.transition("Submit", ctx, orgID, sessionID)
}

func (m *mockSessionService) Approve(ctx context.Context, orgID, sessionID snowflake.ID) (*sessiondomain.TransitionResult, error) {
	return m.transition("Approve", ctx, orgID, sessionID)
}

func (m *mockSessionService) Reject(ctx context.Context, orgID, sessionID snowflake.ID, reason string) (*sessiondomain.TransitionResult, error) {
	args := m.Called(ctx, orgID, sessionID, reason)
	result, _ := args.Get(0).(*sessiondomain.TransitionResult)
	return result, args.Error(1)
}

func (m *mockSessionService) Cancel(ctx context.Context, orgID, sessionID snowflake.ID) (*sessiondomain.TransitionResult, error) {
	return m.transition("Cancel", ctx, orgID, sessionID)
}

func (m *mockSessionService) MarkNoShow(ctx context.Context, orgID, sessionID snowflake.ID) (*sessiondomain.TransitionResult, error) {
	return m.transition("MarkNoShow", ctx, orgID, sessionID)
}

func (m *mockSessionService) Delete(ctx context.Context, orgID, sessionID snowflake.ID) (*sessiondomain.TransitionResult, error) {
	return m.transition("Delete", ctx, orgID, sessionID)
}

type fakeAuthorizer struct {
	allowed map[string]bool
	calls   []string
}

func (f *fakeAuthorizer) Authorize(ctx context.Context, orgID snowflake.ID, object, action string) error {
	actor, ok := orgcontext.ActorFromContext(ctx)
	if !ok {
		return authorization.ErrInvalidActor
	}
	key := actor.Role + ":" + action
	f.calls = append(f.calls, key)
	if f.allowed[key] {
		return nil
	}
	return authorization.ErrForbidden
}

type fakeInvoiceService struct {
	invoicedomain.Service
	generate func(orgID, clientID snowflake.ID, period invoicedomain.BillingPeriod) (*invoicedomain.Invoice, error)
}

func (f *fakeInvoiceService) GenerateBatchInvoice(ctx context.Context, orgID, clientID snowflake.ID, period invoicedomain.BillingPeriod) (*invoicedomain.Invoice, error) {
	return f.generate(orgID, clientID, period)
}

type fakePaymentService struct {
	err      error
	provider string
	payload  []byte
}

func (f *fakePaymentService) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	f.provider = provider
	f.payload = payload
	return f.err
}

func newTestServer(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	srv := &Server{
		engine: router,
		log:    zap.NewNop(),
		authzSvc: &fakeAuthorizer{allowed: map[string]bool{
			"staff:" + authorization.ActionSessionApprove:       true,
			"staff:" + authorization.ActionSessionReject:        true,
			"staff:" + authorization.ActionBatchInvoiceGenerate: true,
			"contractor:" + authorization.ActionSessionSubmit:   true,
		}},
	}
	return srv, router
}

func doRequest(router http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func staffHeaders() map[string]string {
	return map[string]string{
		HeaderOrg:       testOrgID.String(),
		HeaderActorRole: authorization.RoleStaff,
		HeaderActorID:   "7",
	}
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body.Error
}

func TestApproveSessionReturnsTransitionResult(t *testing.T) {
	srv, router := newTestServer(t)
	sessions := &mockSessionService{}
	srv.sessionSvc = sessions
	srv.RegisterAPIRoutes()

	sessionID := snowflake.ID(42)
	sessions.On("Approve", mock.Anything, testOrgID, sessionID).Return(&sessiondomain.TransitionResult{
		Session:  &sessiondomain.Session{ID: sessionID, OrgID: testOrgID, Status: sessiondomain.StatusApproved},
		Warnings: []string{"payment provider unavailable"},
	}, nil)

	resp := doRequest(router, http.MethodPost, "/api/v1/sessions/42/approve", "", staffHeaders())

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var body struct {
		Data sessiondomain.TransitionResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, sessiondomain.StatusApproved, body.Data.Session.Status)
	assert.Equal(t, []string{"payment provider unavailable"}, body.Data.Warnings)
	sessions.AssertExpectations(t)
}

func TestSessionTransitionConflictMapsTo409(t *testing.T) {
	srv, router := newTestServer(t)
	sessions := &mockSessionService{}
	srv.sessionSvc = sessions
	srv.RegisterAPIRoutes()

	sessions.On("Approve", mock.Anything, testOrgID, snowflake.ID(42)).
		Return(nil, fmt.Errorf("approve session 42: %w", sessiondomain.ErrInvalidTransition))

	resp := doRequest(router, http.MethodPost, "/api/v1/sessions/42/approve", "", staffHeaders())

	require.Equal(t, http.StatusConflict, resp.Code)
	payload := decodeError(t, resp)
	assert.Equal(t, "conflict", payload.Type)
	assert.Equal(t, sessiondomain.ErrInvalidTransition.Error(), payload.Code)
}

func TestRejectSessionPassesReason(t *testing.T) {
	srv, router := newTestServer(t)
	sessions := &mockSessionService{}
	srv.sessionSvc = sessions
	srv.RegisterAPIRoutes()

	sessions.On("Reject", mock.Anything, testOrgID, snowflake.ID(42), "missing notes").
		Return(&sessiondomain.TransitionResult{Session: &sessiondomain.Session{Status: sessiondomain.StatusRejected}}, nil)

	resp := doRequest(router, http.MethodPost, "/api/v1/sessions/42/reject", `{"reason":"  missing notes "}`, staffHeaders())

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	sessions.AssertExpectations(t)
}

func TestContractorCannotApprove(t *testing.T) {
	srv, router := newTestServer(t)
	sessions := &mockSessionService{}
	srv.sessionSvc = sessions
	srv.RegisterAPIRoutes()

	resp := doRequest(router, http.MethodPost, "/api/v1/sessions/42/approve", "", map[string]string{
		HeaderOrg:       testOrgID.String(),
		HeaderActorRole: authorization.RoleContractor,
		HeaderActorID:   "9",
	})

	require.Equal(t, http.StatusForbidden, resp.Code)
	sessions.AssertNotCalled(t, "Approve", mock.Anything, mock.Anything, mock.Anything)
}

func TestActorAndOrgHeadersAreRequired(t *testing.T) {
	srv, router := newTestServer(t)
	srv.sessionSvc = &mockSessionService{}
	srv.RegisterAPIRoutes()

	cases := []struct {
		name    string
		headers map[string]string
		status  int
	}{
		{name: "missing actor", headers: map[string]string{HeaderOrg: testOrgID.String()}, status: http.StatusUnauthorized},
		{name: "system actor from outside", headers: map[string]string{HeaderOrg: testOrgID.String(), HeaderActorRole: "system"}, status: http.StatusForbidden},
		{name: "contractor without id", headers: map[string]string{HeaderOrg: testOrgID.String(), HeaderActorRole: "contractor"}, status: http.StatusUnauthorized},
		{name: "missing org", headers: map[string]string{HeaderActorRole: "staff"}, status: http.StatusBadRequest},
		{name: "malformed org", headers: map[string]string{HeaderOrg: "acme", HeaderActorRole: "staff"}, status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(router, http.MethodPost, "/api/v1/sessions/42/approve", "", tc.headers)
			assert.Equal(t, tc.status, resp.Code)
		})
	}
}

func TestInvalidSessionIDIsValidationError(t *testing.T) {
	srv, router := newTestServer(t)
	srv.sessionSvc = &mockSessionService{}
	srv.RegisterAPIRoutes()

	resp := doRequest(router, http.MethodPost, "/api/v1/sessions/abc/approve", "", staffHeaders())

	require.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "id", payload.Errors[0].Field)
}

func TestGenerateBatchInvoice(t *testing.T) {
	srv, router := newTestServer(t)
	var gotPeriod invoicedomain.BillingPeriod
	srv.invoiceSvc = &fakeInvoiceService{
		generate: func(orgID, clientID snowflake.ID, period invoicedomain.BillingPeriod) (*invoicedomain.Invoice, error) {
			gotPeriod = period
			if period.Month == 1 {
				return nil, invoicedomain.NewBatchError(invoicedomain.ReasonAlreadyExists, clientID, period, nil)
			}
			if period.Month == 2 {
				return nil, invoicedomain.NewBatchError(invoicedomain.ReasonNoEligibleSessions, clientID, period, nil)
			}
			return &invoicedomain.Invoice{ID: 900, OrgID: orgID, ClientID: clientID, InvoiceType: invoicedomain.InvoiceTypeBatch}, nil
		},
	}
	srv.RegisterAPIRoutes()

	resp := doRequest(router, http.MethodPost, "/api/v1/clients/55/batch-invoices", `{"billing_period":"2026-03"}`, staffHeaders())
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Equal(t, invoicedomain.BillingPeriod{Year: 2026, Month: 3}, gotPeriod)

	resp = doRequest(router, http.MethodPost, "/api/v1/clients/55/batch-invoices", `{"billing_period":"2026-01"}`, staffHeaders())
	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, string(invoicedomain.ReasonAlreadyExists), decodeError(t, resp).Code)

	resp = doRequest(router, http.MethodPost, "/api/v1/clients/55/batch-invoices", `{"billing_period":"2026-02"}`, staffHeaders())
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, string(invoicedomain.ReasonNoEligibleSessions), decodeError(t, resp).Code)

	resp = doRequest(router, http.MethodPost, "/api/v1/clients/55/batch-invoices", `{"billing_period":"March"}`, staffHeaders())
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestRunBatchSweepWithoutSchedulerIsUnavailable(t *testing.T) {
	srv, router := newTestServer(t)
	srv.authzSvc = &fakeAuthorizer{allowed: map[string]bool{"staff:" + authorization.ActionSweepRun: true}}
	srv.RegisterAPIRoutes()

	resp := doRequest(router, http.MethodPost, "/api/v1/batch-sweeps", "", staffHeaders())

	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestPaymentWebhook(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "processed", status: http.StatusOK},
		{name: "redelivered", err: paymentdomain.ErrEventAlreadyProcessed, status: http.StatusOK},
		{name: "bad signature", err: paymentdomain.ErrInvalidSignature, status: http.StatusUnauthorized},
		{name: "unknown provider", err: paymentdomain.ErrProviderNotFound, status: http.StatusNotFound},
		{name: "illegal transition", err: invoicedomain.ErrInvalidStatusTransition, status: http.StatusConflict},
		{name: "store failure", err: errors.New("connection reset"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, router := newTestServer(t)
			payments := &fakePaymentService{err: tc.err}
			srv.paymentSvc = payments
			srv.RegisterAPIRoutes()

			resp := doRequest(router, http.MethodPost, "/api/v1/payments/webhooks/noop", `{"type":"invoice_paid"}`, nil)

			assert.Equal(t, tc.status, resp.Code)
			assert.Equal(t, "noop", payments.provider)
			assert.JSONEq(t, `{"type":"invoice_paid"}`, string(payments.payload))
		})
	}
}

func TestMapErrorCategories(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{err: sessiondomain.ErrReasonRequired, status: http.StatusBadRequest, kind: "validation_error"},
		{err: fmt.Errorf("create: %w", sessiondomain.ErrDuplicateAttendee), status: http.StatusBadRequest, kind: "validation_error"},
		{err: sessiondomain.ErrNotFound, status: http.StatusNotFound, kind: "not_found"},
		{err: sessiondomain.ErrNotSessionOwner, status: http.StatusForbidden, kind: "forbidden"},
		{err: sessiondomain.ErrCleanupFailed, status: http.StatusUnprocessableEntity, kind: "business_rule_violation"},
		{err: invoicedomain.ErrInvoiceFrozen, status: http.StatusConflict, kind: "conflict"},
		{err: ErrRateLimited, status: http.StatusTooManyRequests, kind: "rate_limited"},
		{err: errors.New("boom"), status: http.StatusInternalServerError, kind: "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.kind, payload.Type)
		})
	}
}

func TestValidationErrorCodeUsesSentinel(t *testing.T) {
	_, payload := mapError(fmt.Errorf("session 1: %w", sessiondomain.ErrReasonRequired))
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "rejection_reason_required", payload.Errors[0].Code)
	assert.Equal(t, "a rejection reason is required", payload.Errors[0].Message)
}
