package model

import "github.com/shopspring/decimal"

// Платежи

type Payment struct {
	ID               string           `json:"id"`
	TenantID         string           `json:"tenantId"`
	TransactionDate  int64            `json:"transactionDate"`
	TotalAmountPaid  decimal.Decimal  `json:"totalAmountPaid"`
	PaymentMode      PaymentMode      `json:"paymentMode"`
	InstrumentStatus InstrumentStatus `json:"instrumentStatus"`
	PaymentStatus    PaymentStatus    `json:"paymentStatus"`
	PaymentDetails   []PaymentDetail  `json:"paymentDetails"`
	AuditDetails     AuditDetails     `json:"auditDetails"`
}

type PaymentDetail struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenantId"`
	TotalAmountPaid decimal.Decimal `json:"totalAmountPaid"`
	Bill            Bill            `json:"bill"`
	AuditDetails    AuditDetails    `json:"auditDetails"`
}

type InstrumentStatus string

const (
	InstrumentStatusNew         InstrumentStatus = "NEW"
	InstrumentStatusApproved    InstrumentStatus = "APPROVED"
	InstrumentStatusCancelled   InstrumentStatus = "CANCELLED"
	InstrumentStatusDishonoured InstrumentStatus = "DISHONOURED"
	InstrumentStatusRemitted    InstrumentStatus = "REMITTED"
)

type PaymentStatus string

const (
	PaymentStatusNew         PaymentStatus = "NEW"
	PaymentStatusDeposited   PaymentStatus = "DEPOSITED"
	PaymentStatusCancelled   PaymentStatus = "CANCELLED"
	PaymentStatusDishonoured PaymentStatus = "DISHONOURED"
)

type PaymentMode string

const (
	PaymentModeCash        PaymentMode = "CASH"
	PaymentModeCheque      PaymentMode = "CHEQUE"
	PaymentModeDD          PaymentMode = "DD"
	PaymentModeOnline      PaymentMode = "ONLINE"
	PaymentModeCard        PaymentMode = "CARD"
	PaymentModeOfflineNEFT PaymentMode = "OFFLINE_NEFT"
	PaymentModeOfflineRTGS PaymentMode = "OFFLINE_RTGS"
	PaymentModePostalOrder PaymentMode = "POSTAL_ORDER"
)

// ConsumerCodes - коды потребителей по счетам платежа, без повторов.
func (p *Payment) ConsumerCodes() []string {
	var codes []string
	seen := make(map[string]struct{}, len(p.PaymentDetails))
	for _, detail := range p.PaymentDetails {
		code := detail.Bill.ConsumerCode
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}

// Clone - глубокая копия платежа.
func (p *Payment) Clone() *Payment {
	clone := *p
	clone.PaymentDetails = make([]PaymentDetail, len(p.PaymentDetails))
	for i, detail := range p.PaymentDetails {
		clone.PaymentDetails[i] = detail
		clone.PaymentDetails[i].Bill = detail.Bill.clone()
	}
	return &clone
}

// Счета

type Bill struct {
	ID                    string         `json:"id"`
	TenantID              string         `json:"tenantId"`
	ConsumerCode          string         `json:"consumerCode"`
	Status                BillStatus     `json:"status"`
	IsCancelled           *bool          `json:"isCancelled,omitempty"`
	ReasonForCancellation string         `json:"reasonForCancellation,omitempty"`
	AdditionalDetails     map[string]any `json:"additionalDetails,omitempty"`
	AuditDetails          AuditDetails   `json:"auditDetails"`
}

type BillStatus string

const (
	BillStatusActive    BillStatus = "ACTIVE"
	BillStatusCancelled BillStatus = "CANCELLED"
)

func (b Bill) clone() Bill {
	if b.IsCancelled != nil {
		isCancelled := *b.IsCancelled
		b.IsCancelled = &isCancelled
	}
	if b.AdditionalDetails != nil {
		b.AdditionalDetails = MergeAdditionalDetails(b.AdditionalDetails, nil)
	}
	return b
}

// MergeAdditionalDetails накладывает patch на existing по ключам верхнего уровня.
// При совпадении ключа побеждает значение из patch, вложенные объекты не сливаются.
// Входные карты не изменяются.
func MergeAdditionalDetails(existing, patch map[string]any) map[string]any {
	if existing == nil && patch == nil {
		return nil
	}
	merged := make(map[string]any, len(existing)+len(patch))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}

type AuditDetails struct {
	CreatedBy        string `json:"createdBy,omitempty"`
	CreatedTime      int64  `json:"createdTime,omitempty"`
	LastModifiedBy   string `json:"lastModifiedBy,omitempty"`
	LastModifiedTime int64  `json:"lastModifiedTime,omitempty"`
}

// Запросы

type WorkflowAction string

const (
	WorkflowActionCancel    WorkflowAction = "CANCEL"
	WorkflowActionDishonour WorkflowAction = "DISHONOUR"
	WorkflowActionRemit     WorkflowAction = "REMIT"
)

type WorkflowRequest struct {
	PaymentID         string         `json:"paymentId"`
	TenantID          string         `json:"tenantId"`
	Action            WorkflowAction `json:"action"`
	Reason            string         `json:"reason,omitempty"`
	AdditionalDetails map[string]any `json:"additionalDetails,omitempty"`
}

type RequestInfo struct {
	APIID    string   `json:"apiId,omitempty"`
	Ver      string   `json:"ver,omitempty"`
	Ts       int64    `json:"ts,omitempty"`
	MsgID    string   `json:"msgId,omitempty"`
	UserInfo UserInfo `json:"userInfo"`
}

type UserInfo struct {
	ID       string `json:"id"`
	UUID     string `json:"uuid,omitempty"`
	UserName string `json:"userName,omitempty"`
	TenantID string `json:"tenantId,omitempty"`
}

type PaymentSearchCriteria struct {
	IDs              []string
	ConsumerCodes    []string
	TenantID         string
	InstrumentStatus []InstrumentStatus
	PaymentModes     []PaymentMode
	// Сначала новые по transactionDate, до применения Offset/Limit
	NewestFirst bool
	Offset      int
	Limit       int
}

// Уведомление об изменении платежа
type PaymentRequest struct {
	RequestInfo RequestInfo `json:"RequestInfo"`
	Payment     *Payment    `json:"Payment"`
}
