package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iurnickita/collection/internal/model"
	"github.com/iurnickita/collection/internal/service/config"
)

type Service interface {
	// PerformWorkflow переводит платежи по одному действию в рамках одного тенанта.
	// Возвращает только платежи, одобренные валидатором. Отклоненные и ненайденные
	// в результат не попадают и ошибкой не считаются.
	PerformWorkflow(ctx context.Context, requests []model.WorkflowRequest, requestInfo model.RequestInfo) ([]*model.Payment, error)
}

// PaymentStore - хранилище платежей
type PaymentStore interface {
	FetchPayments(ctx context.Context, criteria model.PaymentSearchCriteria) ([]*model.Payment, error)
	UpdateStatus(ctx context.Context, payments []*model.Payment) error
}

type Validator interface {
	ValidateForCancel(requests []model.WorkflowRequest, candidates []*model.Payment) []*model.Payment
	ValidateForRemit(requests []model.WorkflowRequest, candidates []*model.Payment) []*model.Payment
}

type Notifier interface {
	Publish(ctx context.Context, topic string, key string, payload model.PaymentRequest) error
}

var (
	ErrEmptyRequest      = errors.New("no workflow requests")
	ErrSingleActionOnly  = errors.New("single action only: all workflow requests should be of the same action")
	ErrCrossTenant       = errors.New("cross-tenant not allowed: all requests should act on a single tenant")
	ErrUnknownAction     = errors.New("unknown workflow action")
	ErrUnexpectedPayment = errors.New("validator returned a payment that was not requested")
)

type service struct {
	cfg       config.Config
	store     PaymentStore
	validator Validator
	notifier  Notifier
	zaplog    *zap.Logger
	now       func() time.Time
}

func NewService(cfg config.Config, store PaymentStore, validator Validator, notifier Notifier, zaplog *zap.Logger) Service {
	return &service{
		cfg:       cfg,
		store:     store,
		validator: validator,
		notifier:  notifier,
		zaplog:    zaplog,
		now:       time.Now,
	}
}

// правила перехода для одного действия
type transition struct {
	instrumentStatus []model.InstrumentStatus
	paymentModes     []model.PaymentMode
	newest           bool
	validate         func(requests []model.WorkflowRequest, candidates []*model.Payment) []*model.Payment
	apply            func(payment *model.Payment, request model.WorkflowRequest)
}

func (service *service) transitionFor(action model.WorkflowAction) (transition, bool) {
	switch action {
	case model.WorkflowActionCancel:
		return transition{
			instrumentStatus: []model.InstrumentStatus{model.InstrumentStatusApproved},
			newest:           true,
			validate:         service.validator.ValidateForCancel,
			apply:            cancel,
		}, true
	case model.WorkflowActionDishonour:
		return transition{
			instrumentStatus: []model.InstrumentStatus{model.InstrumentStatusApproved, model.InstrumentStatusRemitted},
			paymentModes:     []model.PaymentMode{model.PaymentModeCheque, model.PaymentModeDD},
			newest:           true,
			validate:         service.validator.ValidateForCancel,
			apply:            dishonour,
		}, true
	case model.WorkflowActionRemit:
		// порядок хранилища сохраняется, валидатору переводов свежесть не нужна
		return transition{
			instrumentStatus: []model.InstrumentStatus{model.InstrumentStatusApproved},
			paymentModes:     []model.PaymentMode{model.PaymentModeCash, model.PaymentModeCheque, model.PaymentModeDD},
			validate:         service.validator.ValidateForRemit,
			apply:            remit,
		}, true
	default:
		return transition{}, false
	}
}

func (service *service) PerformWorkflow(ctx context.Context, requests []model.WorkflowRequest, requestInfo model.RequestInfo) ([]*model.Payment, error) {
	// Проверка однородности до обращения к хранилищу
	if len(requests) == 0 {
		return nil, ErrEmptyRequest
	}
	action := requests[0].Action
	tenantID := requests[0].TenantID

	paymentIDs := make([]string, 0, len(requests))
	requestByPaymentID := make(map[string]model.WorkflowRequest, len(requests))
	for _, request := range requests {
		if request.Action != action {
			return nil, ErrSingleActionOnly
		}
		if !strings.EqualFold(request.TenantID, tenantID) {
			return nil, ErrCrossTenant
		}
		if _, ok := requestByPaymentID[request.PaymentID]; !ok {
			paymentIDs = append(paymentIDs, request.PaymentID)
		}
		requestByPaymentID[request.PaymentID] = request
	}

	rules, ok := service.transitionFor(action)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	// Коды потребителей по запрошенным платежам
	consumerCodes, err := service.consumerCodes(ctx, paymentIDs, tenantID)
	if err != nil {
		return nil, err
	}
	if len(consumerCodes) == 0 {
		service.zaplog.Info("no payments found for workflow",
			zap.String("action", string(action)),
			zap.String("tenant", tenantID),
			zap.Strings("payments", paymentIDs),
		)
		return nil, nil
	}

	// Все платежи по этим кодам, а не только запрошенные
	candidates, err := service.store.FetchPayments(ctx, model.PaymentSearchCriteria{
		ConsumerCodes:    consumerCodes,
		TenantID:         tenantID,
		InstrumentStatus: rules.instrumentStatus,
		PaymentModes:     rules.paymentModes,
		NewestFirst:      rules.newest,
		Offset:           0,
		Limit:            service.cfg.SearchLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s candidates: %w", action, err)
	}
	if rules.newest {
		sortNewestFirst(candidates)
	}

	validated := rules.validate(uniqueRequests(requests, requestByPaymentID), candidates)
	if len(validated) == 0 {
		service.zaplog.Info("no payments eligible for workflow",
			zap.String("action", string(action)),
			zap.String("tenant", tenantID),
			zap.Int("requested", len(paymentIDs)),
		)
		return nil, nil
	}

	for _, payment := range validated {
		request, ok := requestByPaymentID[payment.ID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnexpectedPayment, payment.ID)
		}
		rules.apply(payment, request)
		UpdateAuditDetails(payment, requestInfo, service.now())
	}

	if err = service.store.UpdateStatus(ctx, validated); err != nil {
		return nil, fmt.Errorf("update %s status: %w", action, err)
	}

	service.publish(ctx, validated, requestInfo)

	service.zaplog.Info("workflow performed",
		zap.String("action", string(action)),
		zap.String("tenant", tenantID),
		zap.Int("requested", len(paymentIDs)),
		zap.Int("processed", len(validated)),
	)
	return validated, nil
}

func (service *service) consumerCodes(ctx context.Context, paymentIDs []string, tenantID string) ([]string, error) {
	payments, err := service.store.FetchPayments(ctx, model.PaymentSearchCriteria{
		IDs:      paymentIDs,
		TenantID: tenantID,
		Offset:   0,
		Limit:    service.cfg.SearchLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch requested payments: %w", err)
	}

	var codes []string
	seen := make(map[string]struct{})
	for _, payment := range payments {
		for _, code := range payment.ConsumerCodes() {
			if _, ok := seen[code]; ok {
				continue
			}
			seen[code] = struct{}{}
			codes = append(codes, code)
		}
	}
	return codes, nil
}

// publish отправляет по одному событию на платеж. Ошибка доставки не откатывает
// уже сохраненные изменения.
func (service *service) publish(ctx context.Context, payments []*model.Payment, requestInfo model.RequestInfo) {
	for _, payment := range payments {
		key := service.cfg.WorkflowTopicKey
		if key == "" {
			key = payment.ID
		}
		err := service.notifier.Publish(ctx, service.cfg.WorkflowTopic, key, model.PaymentRequest{
			RequestInfo: requestInfo,
			Payment:     payment,
		})
		if err != nil {
			service.zaplog.Error("payment workflow notification failed",
				zap.String("payment", payment.ID),
				zap.String("topic", service.cfg.WorkflowTopic),
				zap.Error(err),
			)
		}
	}
}

func sortNewestFirst(payments []*model.Payment) {
	slices.SortStableFunc(payments, func(a, b *model.Payment) int {
		return cmp.Compare(b.TransactionDate, a.TransactionDate)
	})
}

// uniqueRequests оставляет по одному запросу на платеж, последний из пришедших.
func uniqueRequests(requests []model.WorkflowRequest, byPaymentID map[string]model.WorkflowRequest) []model.WorkflowRequest {
	out := make([]model.WorkflowRequest, 0, len(byPaymentID))
	seen := make(map[string]struct{}, len(byPaymentID))
	for _, request := range requests {
		if _, ok := seen[request.PaymentID]; ok {
			continue
		}
		seen[request.PaymentID] = struct{}{}
		out = append(out, byPaymentID[request.PaymentID])
	}
	return out
}
