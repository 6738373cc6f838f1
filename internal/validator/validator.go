// Package validator решает, какие из найденных платежей действительно можно
// перевести по запрошенному действию. Отклоненные платежи не считаются ошибкой:
// они просто не попадают в результат.
package validator

import (
	"go.uber.org/zap"

	"github.com/iurnickita/collection/internal/model"
)

type Validator interface {
	ValidateForCancel(requests []model.WorkflowRequest, candidates []*model.Payment) []*model.Payment
	ValidateForRemit(requests []model.WorkflowRequest, candidates []*model.Payment) []*model.Payment
}

type validator struct {
	zaplog *zap.Logger
}

func NewValidator(zaplog *zap.Logger) Validator {
	return &validator{zaplog: zaplog}
}

// ValidateForCancel пропускает запрошенные платежи с одобренным или внесенным
// инструментом, если платеж самый свежий по каждому из своих кодов потребителя.
// Кандидаты должны быть упорядочены от новых к старым.
func (v *validator) ValidateForCancel(requests []model.WorkflowRequest, candidates []*model.Payment) []*model.Payment {
	requested := requestedIDs(requests)

	latest := make(map[string]string)
	for _, payment := range candidates {
		for _, code := range payment.ConsumerCodes() {
			if _, ok := latest[code]; !ok {
				latest[code] = payment.ID
			}
		}
	}

	var valid []*model.Payment
	for _, payment := range candidates {
		if _, ok := requested[payment.ID]; !ok {
			continue
		}
		delete(requested, payment.ID)

		switch payment.InstrumentStatus {
		case model.InstrumentStatusApproved, model.InstrumentStatusRemitted:
		default:
			v.reject(payment, "instrument status is terminal or not approved")
			continue
		}

		isLatest := true
		for _, code := range payment.ConsumerCodes() {
			if latest[code] != payment.ID {
				isLatest = false
				break
			}
		}
		if !isLatest {
			v.reject(payment, "a newer payment exists for the bill")
			continue
		}

		valid = append(valid, payment)
	}
	v.notFound(requested)

	return valid
}

// ValidateForRemit пропускает запрошенные одобренные платежи наличными, чеком или DD.
func (v *validator) ValidateForRemit(requests []model.WorkflowRequest, candidates []*model.Payment) []*model.Payment {
	requested := requestedIDs(requests)

	var valid []*model.Payment
	for _, payment := range candidates {
		if _, ok := requested[payment.ID]; !ok {
			continue
		}
		delete(requested, payment.ID)

		if payment.InstrumentStatus != model.InstrumentStatusApproved {
			v.reject(payment, "instrument is not approved")
			continue
		}
		switch payment.PaymentMode {
		case model.PaymentModeCash, model.PaymentModeCheque, model.PaymentModeDD:
		default:
			v.reject(payment, "payment mode can not be remitted")
			continue
		}

		valid = append(valid, payment)
	}
	v.notFound(requested)

	return valid
}

func requestedIDs(requests []model.WorkflowRequest) map[string]struct{} {
	ids := make(map[string]struct{}, len(requests))
	for _, request := range requests {
		ids[request.PaymentID] = struct{}{}
	}
	return ids
}

func (v *validator) reject(payment *model.Payment, reason string) {
	v.zaplog.Debug("payment rejected",
		zap.String("payment", payment.ID),
		zap.String("instrumentStatus", string(payment.InstrumentStatus)),
		zap.String("paymentMode", string(payment.PaymentMode)),
		zap.String("reason", reason),
	)
}

func (v *validator) notFound(requested map[string]struct{}) {
	for id := range requested {
		v.zaplog.Debug("payment not eligible for workflow", zap.String("payment", id))
	}
}
