package service

import (
	"time"

	"github.com/iurnickita/collection/internal/model"
)

func cancel(payment *model.Payment, request model.WorkflowRequest) {
	payment.InstrumentStatus = model.InstrumentStatusCancelled
	payment.PaymentStatus = model.PaymentStatusCancelled
	for i := range payment.PaymentDetails {
		bill := &payment.PaymentDetails[i].Bill
		isCancelled := true
		bill.Status = model.BillStatusCancelled
		bill.IsCancelled = &isCancelled
		bill.ReasonForCancellation = request.Reason
		bill.AdditionalDetails = model.MergeAdditionalDetails(bill.AdditionalDetails, request.AdditionalDetails)
	}
}

// dishonour отменяет счет, но флаг isCancelled не трогает
func dishonour(payment *model.Payment, request model.WorkflowRequest) {
	payment.InstrumentStatus = model.InstrumentStatusDishonoured
	payment.PaymentStatus = model.PaymentStatusDishonoured
	for i := range payment.PaymentDetails {
		bill := &payment.PaymentDetails[i].Bill
		bill.Status = model.BillStatusCancelled
		bill.ReasonForCancellation = request.Reason
		bill.AdditionalDetails = model.MergeAdditionalDetails(bill.AdditionalDetails, request.AdditionalDetails)
	}
}

func remit(payment *model.Payment, request model.WorkflowRequest) {
	payment.InstrumentStatus = model.InstrumentStatusRemitted
	payment.PaymentStatus = model.PaymentStatusDeposited
	for i := range payment.PaymentDetails {
		bill := &payment.PaymentDetails[i].Bill
		bill.AdditionalDetails = model.MergeAdditionalDetails(bill.AdditionalDetails, request.AdditionalDetails)
	}
}

// UpdateAuditDetails ставит одно и то же время и автора на платеж, всю его
// детализацию и счета.
func UpdateAuditDetails(payment *model.Payment, requestInfo model.RequestInfo, now time.Time) {
	modifiedBy := requestInfo.UserInfo.ID
	modifiedTime := now.UnixMilli()

	payment.AuditDetails.LastModifiedBy = modifiedBy
	payment.AuditDetails.LastModifiedTime = modifiedTime
	for i := range payment.PaymentDetails {
		detail := &payment.PaymentDetails[i]
		detail.AuditDetails.LastModifiedBy = modifiedBy
		detail.AuditDetails.LastModifiedTime = modifiedTime
		detail.Bill.AuditDetails.LastModifiedBy = modifiedBy
		detail.Bill.AuditDetails.LastModifiedTime = modifiedTime
	}
}
