package model

import (
	"encoding/json"
	"time"
)

type CaseStatus string

const (
	CaseStatusOpen       CaseStatus = "open"
	CaseStatusWaiting    CaseStatus = "waiting"
	CaseStatusInProgress CaseStatus = "in_progress"
	CaseStatusClosed     CaseStatus = "closed"
)

// IsLive — статус, по которому кейс ещё в работе.
func (s CaseStatus) IsLive() bool {
	switch s {
	case CaseStatusOpen, CaseStatusWaiting, CaseStatusInProgress:
		return true
	}
	return false
}

// WaitingOn — нормализованная сторона, которую ждёт кейс. Сырое значение
// в базе может быть любым легаси-текстом, нормализация только на чтении.
type WaitingOn string

const (
	WaitingOnNone     WaitingOn = "none"
	WaitingOnCustomer WaitingOn = "customer"
	WaitingOnSupplier WaitingOn = "supplier"
	WaitingOnOps      WaitingOn = "ops"
	WaitingOnOther    WaitingOn = "other"
)

// RiskBand — SLA-полоса кейса. Всегда вычисляется, никогда не хранится.
type RiskBand string

const (
	RiskNA        RiskBand = "na"
	RiskNoDate    RiskBand = "no_date"
	RiskFresh     RiskBand = "fresh"
	RiskActive    RiskBand = "active_risk"
	RiskSLABreach RiskBand = "sla_breach"
)

type CaseType string

const (
	CaseTypeCancel           CaseType = "cancel"
	CaseTypeAmend            CaseType = "amend"
	CaseTypeRefund           CaseType = "refund"
	CaseTypePaymentFollowup  CaseType = "payment_followup"
	CaseTypeVoucherIssue     CaseType = "voucher_issue"
	CaseTypeMissingDocs      CaseType = "missing_docs"
	CaseTypeSupplierApproval CaseType = "supplier_approval"
	CaseTypeOther            CaseType = "other"
)

type CaseSource string

const (
	CaseSourceGuestPortal CaseSource = "guest_portal"
	CaseSourceOpsPanel    CaseSource = "ops_panel"
	CaseSourceSystem      CaseSource = "system"
)

// RequestContext — метаданные запроса на момент создания кейса (неизменяемые).
type RequestContext struct {
	IP        string `gorm:"type:varchar(64)" json:"ip,omitempty"`
	UserAgent string `gorm:"type:varchar(255)" json:"user_agent,omitempty"`
}

// Case — гостевой запрос в операционный отдел. Хранимые данные могут нарушать
// инварианты редактора (waiting_on при статусе open) — читаем как есть.
type Case struct {
	ID        string     `gorm:"primaryKey;type:varchar(64)" json:"case_id"`
	Status    CaseStatus `gorm:"type:varchar(32);index;not null" json:"status"`
	WaitingOn *string    `gorm:"type:varchar(64)" json:"waiting_on,omitempty"`
	Note      string     `gorm:"type:text" json:"note,omitempty"`
	Type      CaseType   `gorm:"type:varchar(32);index;not null" json:"type"`
	Source    CaseSource `gorm:"type:varchar(32);index;not null" json:"source"`

	BookingID   *string `gorm:"type:varchar(64);index" json:"booking_id,omitempty"`
	BookingCode string  `gorm:"type:varchar(64)" json:"booking_code,omitempty"`

	RequestContext *RequestContext `gorm:"embedded;embeddedPrefix:request_" json:"request_context,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	CloseNote string     `gorm:"type:text" json:"close_note,omitempty"`
	ClosedBy  string     `gorm:"type:varchar(64)" json:"closed_by,omitempty"`

	// Сырые записи таймлайна кейса (append-only, ядро их не мутирует).
	Events []CaseEvent `gorm:"foreignKey:CaseID" json:"events,omitempty"`
}

// CaseEvent — запись таймлайна. Пишется только сервером, ядро её читает.
type CaseEvent struct {
	ID       uint64          `gorm:"primaryKey" json:"-"`
	CaseID   string          `gorm:"index;type:varchar(64);not null" json:"-"`
	TS       time.Time       `gorm:"index;not null;column:ts" json:"ts"`
	Kind     string          `gorm:"type:varchar(64);not null" json:"kind"`
	Actor    string          `gorm:"type:varchar(64)" json:"actor,omitempty"`
	Message  string          `gorm:"type:text" json:"message,omitempty"`
	IsSystem bool            `json:"is_system"`
	Patch    json.RawMessage `gorm:"type:jsonb" json:"patch,omitempty"`
}

// EventKindCaseClosed пишется сервером при закрытии кейса.
const EventKindCaseClosed = "OPS_CASE_CLOSED"

// BulkItem — исход bulk-обновления по одному кейсу.
type BulkItem struct {
	CaseID string `json:"case_id"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// BulkResult — агрегированный ответ bulk-update. Частичный провал — штатный
// ответ, не ошибка транспорта.
type BulkResult struct {
	Updated int        `json:"updated"`
	Failed  int        `json:"failed"`
	Results []BulkItem `json:"results"`
}

// AllOK — true, только если каждый кейс обновился.
func (r *BulkResult) AllOK() bool {
	return r != nil && r.Failed == 0
}

// FailedIDs возвращает идентификаторы кейсов, которые не обновились,
// в порядке ответа сервера.
func (r *BulkResult) FailedIDs() []string {
	if r == nil {
		return nil
	}
	var ids []string
	for _, it := range r.Results {
		if !it.OK {
			ids = append(ids, it.CaseID)
		}
	}
	return ids
}
