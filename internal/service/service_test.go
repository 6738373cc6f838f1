package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iurnickita/collection/internal/model"
	"github.com/iurnickita/collection/internal/service/config"
	"github.com/iurnickita/collection/internal/store"
	"github.com/iurnickita/collection/internal/validator"
)

const tenant = "pb.amritsar"

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

// spyStore считает обращения к хранилищу
type spyStore struct {
	*store.MemoryStore
	fetches   int
	updates   int
	updateErr error
}

func (s *spyStore) FetchPayments(ctx context.Context, criteria model.PaymentSearchCriteria) ([]*model.Payment, error) {
	s.fetches++
	return s.MemoryStore.FetchPayments(ctx, criteria)
}

func (s *spyStore) UpdateStatus(ctx context.Context, payments []*model.Payment) error {
	s.updates++
	if s.updateErr != nil {
		return s.updateErr
	}
	return s.MemoryStore.UpdateStatus(ctx, payments)
}

// spyValidator запоминает порядок кандидатов
type spyValidator struct {
	Validator
	candidates []string
	extra      *model.Payment
}

func (v *spyValidator) record(candidates []*model.Payment) {
	v.candidates = nil
	for _, p := range candidates {
		v.candidates = append(v.candidates, p.ID)
	}
}

func (v *spyValidator) ValidateForCancel(requests []model.WorkflowRequest, candidates []*model.Payment) []*model.Payment {
	v.record(candidates)
	valid := v.Validator.ValidateForCancel(requests, candidates)
	if v.extra != nil {
		valid = append(valid, v.extra)
	}
	return valid
}

func (v *spyValidator) ValidateForRemit(requests []model.WorkflowRequest, candidates []*model.Payment) []*model.Payment {
	v.record(candidates)
	return v.Validator.ValidateForRemit(requests, candidates)
}

type published struct {
	topic   string
	key     string
	payload model.PaymentRequest
}

type spyNotifier struct {
	events []published
	err    error
}

func (n *spyNotifier) Publish(ctx context.Context, topic string, key string, payload model.PaymentRequest) error {
	n.events = append(n.events, published{topic: topic, key: key, payload: payload})
	return n.err
}

type fixture struct {
	store     *spyStore
	validator *spyValidator
	notifier  *spyNotifier
	service   *service
}

func newFixture(t *testing.T, payments ...*model.Payment) *fixture {
	t.Helper()
	f := &fixture{
		store:     &spyStore{MemoryStore: store.NewMemoryStore()},
		validator: &spyValidator{Validator: validator.NewValidator(zap.NewNop())},
		notifier:  &spyNotifier{},
	}
	for _, p := range payments {
		require.NoError(t, f.store.PaymentPost(context.Background(), p))
	}
	svc := NewService(config.Config{SearchLimit: 100, WorkflowTopic: "collection.payment.workflow"},
		f.store, f.validator, f.notifier, zap.NewNop()).(*service)
	svc.now = func() time.Time { return fixedNow }
	f.service = svc
	return f
}

func (f *fixture) stored(t *testing.T, id string) *model.Payment {
	t.Helper()
	payments, err := f.store.MemoryStore.FetchPayments(context.Background(), model.PaymentSearchCriteria{IDs: []string{id}})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	return payments[0]
}

func newPayment(id, consumerCode string, mode model.PaymentMode, status model.InstrumentStatus, txDate int64) *model.Payment {
	return &model.Payment{
		ID:               id,
		TenantID:         tenant,
		TransactionDate:  txDate,
		TotalAmountPaid:  decimal.NewFromInt(500),
		PaymentMode:      mode,
		InstrumentStatus: status,
		PaymentStatus:    model.PaymentStatusNew,
		PaymentDetails: []model.PaymentDetail{{
			ID:              id + "-D1",
			TenantID:        tenant,
			TotalAmountPaid: decimal.NewFromInt(500),
			Bill: model.Bill{
				ID:                id + "-B1",
				TenantID:          tenant,
				ConsumerCode:      consumerCode,
				Status:            model.BillStatusActive,
				AdditionalDetails: map[string]any{"collectedAt": "counter-3"},
			},
		}},
		AuditDetails: model.AuditDetails{CreatedBy: "7", CreatedTime: txDate},
	}
}

func request(id string, action model.WorkflowAction, reason string) model.WorkflowRequest {
	return model.WorkflowRequest{PaymentID: id, TenantID: tenant, Action: action, Reason: reason}
}

var requestInfo = model.RequestInfo{UserInfo: model.UserInfo{ID: "42"}}

func TestPerformWorkflowRequestShape(t *testing.T) {
	tests := []struct {
		name     string
		requests []model.WorkflowRequest
		wantErr  error
	}{
		{
			name:    "empty",
			wantErr: ErrEmptyRequest,
		},
		{
			name: "mixed actions",
			requests: []model.WorkflowRequest{
				request("P1", model.WorkflowActionCancel, ""),
				request("P2", model.WorkflowActionRemit, ""),
			},
			wantErr: ErrSingleActionOnly,
		},
		{
			name: "mixed tenants",
			requests: []model.WorkflowRequest{
				request("P1", model.WorkflowActionCancel, ""),
				{PaymentID: "P2", TenantID: "pb.jalandhar", Action: model.WorkflowActionCancel},
			},
			wantErr: ErrCrossTenant,
		},
		{
			name: "unknown action",
			requests: []model.WorkflowRequest{
				request("P1", model.WorkflowAction("REFUND"), ""),
			},
			wantErr: ErrUnknownAction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, newPayment("P1", "C1", model.PaymentModeCash, model.InstrumentStatusApproved, 1))

			payments, err := f.service.PerformWorkflow(context.Background(), tt.requests, requestInfo)
			require.ErrorIs(t, err, tt.wantErr)
			require.Nil(t, payments)
			require.Zero(t, f.store.fetches)
			require.Zero(t, f.store.updates)
			require.Empty(t, f.notifier.events)
		})
	}
}

func TestPerformWorkflowTenantCaseInsensitive(t *testing.T) {
	f := newFixture(t,
		newPayment("P1", "C1", model.PaymentModeCash, model.InstrumentStatusApproved, 1),
		newPayment("P2", "C2", model.PaymentModeCash, model.InstrumentStatusApproved, 2),
	)

	second := request("P2", model.WorkflowActionRemit, "")
	second.TenantID = "PB.AMRITSAR"
	payments, err := f.service.PerformWorkflow(context.Background(), []model.WorkflowRequest{
		request("P1", model.WorkflowActionRemit, ""),
		second,
	}, requestInfo)
	require.NoError(t, err)
	require.Len(t, payments, 2)
}

func TestPerformWorkflowCancel(t *testing.T) {
	f := newFixture(t, newPayment("P1", "C1", model.PaymentModeCheque, model.InstrumentStatusApproved, 1))

	req := request("P1", model.WorkflowActionCancel, "duplicate")
	req.AdditionalDetails = map[string]any{"cancelledAt": "HQ"}
	payments, err := f.service.PerformWorkflow(context.Background(), []model.WorkflowRequest{req}, requestInfo)
	require.NoError(t, err)
	require.Len(t, payments, 1)

	payment := payments[0]
	require.Equal(t, "P1", payment.ID)
	require.Equal(t, model.InstrumentStatusCancelled, payment.InstrumentStatus)
	require.Equal(t, model.PaymentStatusCancelled, payment.PaymentStatus)
	bill := payment.PaymentDetails[0].Bill
	require.Equal(t, model.BillStatusCancelled, bill.Status)
	require.NotNil(t, bill.IsCancelled)
	require.True(t, *bill.IsCancelled)
	require.Equal(t, "duplicate", bill.ReasonForCancellation)
	require.Equal(t, map[string]any{"collectedAt": "counter-3", "cancelledAt": "HQ"}, bill.AdditionalDetails)

	// сохранено одной пачкой
	require.Equal(t, 1, f.store.updates)
	require.Equal(t, payment, f.stored(t, "P1"))

	// одно событие на платеж
	require.Len(t, f.notifier.events, 1)
	require.Equal(t, "collection.payment.workflow", f.notifier.events[0].topic)
	require.Equal(t, "P1", f.notifier.events[0].key)
	require.Equal(t, "42", f.notifier.events[0].payload.RequestInfo.UserInfo.ID)
	require.Equal(t, payment, f.notifier.events[0].payload.Payment)
}

func TestPerformWorkflowDishonour(t *testing.T) {
	f := newFixture(t, newPayment("P1", "C1", model.PaymentModeCheque, model.InstrumentStatusApproved, 1))

	payments, err := f.service.PerformWorkflow(context.Background(),
		[]model.WorkflowRequest{request("P1", model.WorkflowActionDishonour, "bounced")}, requestInfo)
	require.NoError(t, err)
	require.Len(t, payments, 1)

	payment := payments[0]
	require.Equal(t, model.PaymentStatusDishonoured, payment.PaymentStatus)
	require.Equal(t, model.InstrumentStatusDishonoured, payment.InstrumentStatus)
	bill := payment.PaymentDetails[0].Bill
	require.Equal(t, model.BillStatusCancelled, bill.Status)
	require.Nil(t, bill.IsCancelled)
	require.Equal(t, "bounced", bill.ReasonForCancellation)
	require.Equal(t, model.InstrumentStatusDishonoured, f.stored(t, "P1").InstrumentStatus)
}

func TestPerformWorkflowDishonourRemitted(t *testing.T) {
	f := newFixture(t, newPayment("P1", "C1", model.PaymentModeDD, model.InstrumentStatusRemitted, 1))

	payments, err := f.service.PerformWorkflow(context.Background(),
		[]model.WorkflowRequest{request("P1", model.WorkflowActionDishonour, "bounced")}, requestInfo)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.Equal(t, model.InstrumentStatusDishonoured, payments[0].InstrumentStatus)
}

func TestPerformWorkflowDishonourCash(t *testing.T) {
	f := newFixture(t, newPayment("P1", "C1", model.PaymentModeCash, model.InstrumentStatusApproved, 1))

	payments, err := f.service.PerformWorkflow(context.Background(),
		[]model.WorkflowRequest{request("P1", model.WorkflowActionDishonour, "bounced")}, requestInfo)
	require.NoError(t, err)
	require.Empty(t, payments)
	require.Empty(t, f.validator.candidates)
	require.Zero(t, f.store.updates)
	require.Empty(t, f.notifier.events)
	require.Equal(t, model.InstrumentStatusApproved, f.stored(t, "P1").InstrumentStatus)
}

func TestPerformWorkflowRemit(t *testing.T) {
	f := newFixture(t, newPayment("P1", "C1", model.PaymentModeCash, model.InstrumentStatusApproved, 1))

	req := request("P1", model.WorkflowActionRemit, "ignored")
	req.AdditionalDetails = map[string]any{"depositSlip": "DS-9"}
	payments, err := f.service.PerformWorkflow(context.Background(), []model.WorkflowRequest{req}, requestInfo)
	require.NoError(t, err)
	require.Len(t, payments, 1)

	payment := payments[0]
	require.Equal(t, model.PaymentStatusDeposited, payment.PaymentStatus)
	require.Equal(t, model.InstrumentStatusRemitted, payment.InstrumentStatus)
	bill := payment.PaymentDetails[0].Bill
	require.Equal(t, model.BillStatusActive, bill.Status)
	require.Nil(t, bill.IsCancelled)
	require.Empty(t, bill.ReasonForCancellation)
	require.Equal(t, map[string]any{"collectedAt": "counter-3", "depositSlip": "DS-9"}, bill.AdditionalDetails)
}

func TestPerformWorkflowCancelNotApproved(t *testing.T) {
	f := newFixture(t,
		newPayment("P1", "C1", model.PaymentModeCheque, model.InstrumentStatusRemitted, 1),
		newPayment("P2", "C2", model.PaymentModeCash, model.InstrumentStatusCancelled, 2),
	)

	payments, err := f.service.PerformWorkflow(context.Background(), []model.WorkflowRequest{
		request("P1", model.WorkflowActionCancel, "duplicate"),
		request("P2", model.WorkflowActionCancel, "duplicate"),
	}, requestInfo)
	require.NoError(t, err)
	require.Empty(t, payments)
	require.Zero(t, f.store.updates)
	require.Empty(t, f.notifier.events)
}

func TestPerformWorkflowResolvesByConsumerCode(t *testing.T) {
	// P1 - старый платеж по счету, P3 - более новый по тому же счету
	f := newFixture(t,
		newPayment("P1", "C1", model.PaymentModeCheque, model.InstrumentStatusApproved, 100),
		newPayment("P2", "C2", model.PaymentModeCheque, model.InstrumentStatusApproved, 200),
		newPayment("P3", "C1", model.PaymentModeCheque, model.InstrumentStatusApproved, 300),
	)

	payments, err := f.service.PerformWorkflow(context.Background(),
		[]model.WorkflowRequest{request("P1", model.WorkflowActionCancel, "duplicate")}, requestInfo)
	require.NoError(t, err)
	require.Empty(t, payments)
	// валидатор видел все платежи по коду, а не только запрошенный
	require.Equal(t, []string{"P3", "P1"}, f.validator.candidates)
	require.Equal(t, 2, f.store.fetches)

	payments, err = f.service.PerformWorkflow(context.Background(),
		[]model.WorkflowRequest{request("P3", model.WorkflowActionCancel, "duplicate")}, requestInfo)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.Equal(t, "P3", payments[0].ID)
}

func TestPerformWorkflowUnknownPayment(t *testing.T) {
	f := newFixture(t, newPayment("P1", "C1", model.PaymentModeCash, model.InstrumentStatusApproved, 1))

	payments, err := f.service.PerformWorkflow(context.Background(),
		[]model.WorkflowRequest{request("P404", model.WorkflowActionCancel, "")}, requestInfo)
	require.NoError(t, err)
	require.Empty(t, payments)
	// без кодов потребителей второй поиск не выполняется
	require.Equal(t, 1, f.store.fetches)
}

func TestPerformWorkflowCandidateOrder(t *testing.T) {
	payments := func() []*model.Payment {
		return []*model.Payment{
			newPayment("P1", "C1", model.PaymentModeCheque, model.InstrumentStatusApproved, 100),
			newPayment("P2", "C1", model.PaymentModeCheque, model.InstrumentStatusApproved, 300),
			newPayment("P3", "C1", model.PaymentModeCheque, model.InstrumentStatusApproved, 200),
		}
	}

	tests := []struct {
		action model.WorkflowAction
		want   []string
	}{
		{action: model.WorkflowActionCancel, want: []string{"P2", "P3", "P1"}},
		{action: model.WorkflowActionDishonour, want: []string{"P2", "P3", "P1"}},
		// перевод сохраняет порядок хранилища
		{action: model.WorkflowActionRemit, want: []string{"P1", "P2", "P3"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			f := newFixture(t, payments()...)
			_, err := f.service.PerformWorkflow(context.Background(),
				[]model.WorkflowRequest{request("P1", tt.action, "")}, requestInfo)
			require.NoError(t, err)
			require.Equal(t, tt.want, f.validator.candidates)
		})
	}
}

func TestPerformWorkflowCancelBeyondSearchLimit(t *testing.T) {
	f := newFixture(t,
		newPayment("P1", "C1", model.PaymentModeCheque, model.InstrumentStatusApproved, 100),
		newPayment("P3", "C1", model.PaymentModeCheque, model.InstrumentStatusApproved, 300),
	)
	// по счету больше платежей, чем помещается в страницу
	f.service.cfg.SearchLimit = 1

	payments, err := f.service.PerformWorkflow(context.Background(),
		[]model.WorkflowRequest{request("P1", model.WorkflowActionCancel, "duplicate")}, requestInfo)
	require.NoError(t, err)
	require.Empty(t, payments)
	// в страницу попал самый новый платеж, P1 уже не последний
	require.Equal(t, []string{"P3"}, f.validator.candidates)
	require.Equal(t, 0, f.store.updates)
	require.Equal(t, model.InstrumentStatusApproved, f.stored(t, "P1").InstrumentStatus)
}

func TestPerformWorkflowAuditDetails(t *testing.T) {
	payment := newPayment("P1", "C1", model.PaymentModeCheque, model.InstrumentStatusApproved, 1)
	payment.PaymentDetails = append(payment.PaymentDetails, model.PaymentDetail{
		ID:   "P1-D2",
		Bill: model.Bill{ID: "P1-B2", ConsumerCode: "C1", Status: model.BillStatusActive},
	})
	f := newFixture(t, payment)

	payments, err := f.service.PerformWorkflow(context.Background(),
		[]model.WorkflowRequest{request("P1", model.WorkflowActionCancel, "duplicate")}, requestInfo)
	require.NoError(t, err)
	require.Len(t, payments, 1)

	want := fixedNow.UnixMilli()
	got := payments[0]
	require.Equal(t, want, got.AuditDetails.LastModifiedTime)
	require.Equal(t, "42", got.AuditDetails.LastModifiedBy)
	require.Equal(t, "7", got.AuditDetails.CreatedBy)
	for _, detail := range got.PaymentDetails {
		require.Equal(t, want, detail.AuditDetails.LastModifiedTime)
		require.Equal(t, "42", detail.AuditDetails.LastModifiedBy)
		require.Equal(t, want, detail.Bill.AuditDetails.LastModifiedTime)
		require.Equal(t, "42", detail.Bill.AuditDetails.LastModifiedBy)
	}
}

func TestUpdateAuditDetailsSingleInstant(t *testing.T) {
	payment := newPayment("P1", "C1", model.PaymentModeCash, model.InstrumentStatusApproved, 1)
	payment.PaymentDetails = append(payment.PaymentDetails, payment.PaymentDetails[0])

	UpdateAuditDetails(payment, requestInfo, time.Now())

	ts := payment.AuditDetails.LastModifiedTime
	require.NotZero(t, ts)
	for _, detail := range payment.PaymentDetails {
		require.Equal(t, ts, detail.AuditDetails.LastModifiedTime)
		require.Equal(t, ts, detail.Bill.AuditDetails.LastModifiedTime)
	}
}

func TestPerformWorkflowMergeIdempotent(t *testing.T) {
	f := newFixture(t,
		newPayment("P1", "C1", model.PaymentModeCash, model.InstrumentStatusApproved, 1),
	)

	req := request("P1", model.WorkflowActionRemit, "")
	req.AdditionalDetails = map[string]any{"depositSlip": "DS-9"}
	payments, err := f.service.PerformWorkflow(context.Background(), []model.WorkflowRequest{req}, requestInfo)
	require.NoError(t, err)
	require.Len(t, payments, 1)

	once := payments[0].PaymentDetails[0].Bill.AdditionalDetails
	twice := model.MergeAdditionalDetails(once, req.AdditionalDetails)
	require.Equal(t, once, twice)
	require.Equal(t, "counter-3", twice["collectedAt"])
}

func TestPerformWorkflowStoreFailure(t *testing.T) {
	f := newFixture(t, newPayment("P1", "C1", model.PaymentModeCheque, model.InstrumentStatusApproved, 1))
	dbErr := errors.New("connection reset")
	f.store.updateErr = dbErr

	payments, err := f.service.PerformWorkflow(context.Background(),
		[]model.WorkflowRequest{request("P1", model.WorkflowActionCancel, "duplicate")}, requestInfo)
	require.ErrorIs(t, err, dbErr)
	require.Nil(t, payments)
	require.Empty(t, f.notifier.events)
	require.Equal(t, model.InstrumentStatusApproved, f.stored(t, "P1").InstrumentStatus)
}

func TestPerformWorkflowNotifierFailure(t *testing.T) {
	f := newFixture(t,
		newPayment("P1", "C1", model.PaymentModeCash, model.InstrumentStatusApproved, 1),
		newPayment("P2", "C2", model.PaymentModeCash, model.InstrumentStatusApproved, 2),
	)
	f.notifier.err = errors.New("broker unavailable")

	payments, err := f.service.PerformWorkflow(context.Background(), []model.WorkflowRequest{
		request("P1", model.WorkflowActionRemit, ""),
		request("P2", model.WorkflowActionRemit, ""),
	}, requestInfo)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	// изменения не откатываются, каждое событие отправлялось
	require.Len(t, f.notifier.events, 2)
	require.Equal(t, model.InstrumentStatusRemitted, f.stored(t, "P1").InstrumentStatus)
	require.Equal(t, model.InstrumentStatusRemitted, f.stored(t, "P2").InstrumentStatus)
}

func TestPerformWorkflowTopicKey(t *testing.T) {
	f := newFixture(t, newPayment("P1", "C1", model.PaymentModeCash, model.InstrumentStatusApproved, 1))
	f.service.cfg.WorkflowTopicKey = "payment-workflow"

	_, err := f.service.PerformWorkflow(context.Background(),
		[]model.WorkflowRequest{request("P1", model.WorkflowActionRemit, "")}, requestInfo)
	require.NoError(t, err)
	require.Len(t, f.notifier.events, 1)
	require.Equal(t, "payment-workflow", f.notifier.events[0].key)
}

func TestPerformWorkflowUnexpectedPayment(t *testing.T) {
	f := newFixture(t,
		newPayment("P1", "C1", model.PaymentModeCheque, model.InstrumentStatusApproved, 1),
	)
	f.validator.extra = newPayment("P9", "C9", model.PaymentModeCheque, model.InstrumentStatusApproved, 1)

	_, err := f.service.PerformWorkflow(context.Background(),
		[]model.WorkflowRequest{request("P1", model.WorkflowActionCancel, "duplicate")}, requestInfo)
	require.ErrorIs(t, err, ErrUnexpectedPayment)
	require.Zero(t, f.store.updates)
	require.Empty(t, f.notifier.events)
}
