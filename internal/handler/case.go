package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/case-service/internal/casestate"
	"github.com/psds-microservice/case-service/internal/errs"
	"github.com/psds-microservice/case-service/internal/kafka"
	"github.com/psds-microservice/case-service/internal/model"
	"github.com/psds-microservice/case-service/internal/risk"
	"github.com/psds-microservice/case-service/internal/service"
	"github.com/psds-microservice/case-service/internal/waitingon"
)

type CaseHandler struct {
	svc      service.CaseServicer
	producer kafka.CaseEventProducer
}

func NewCaseHandler(svc service.CaseServicer, producer kafka.CaseEventProducer) *CaseHandler {
	return &CaseHandler{svc: svc, producer: producer}
}

// caseView — кейс плюс производные поля. SLA-полоса и нормализованный
// waiting_on вычисляются на каждую выдачу, против хранимой строки как есть.
type caseView struct {
	model.Case
	RiskBand           model.RiskBand   `json:"risk_band"`
	WaitingOnView      model.WaitingOn  `json:"waiting_on_normalized"`
	EffectiveStatusOut model.CaseStatus `json:"effective_status"`
}

func viewOf(c model.Case, now time.Time) caseView {
	w := waitingon.Normalize(c.WaitingOn)
	return caseView{
		Case:               c,
		RiskBand:           risk.Classify(c.Status, c.CreatedAt, now),
		WaitingOnView:      w,
		EffectiveStatusOut: casestate.EffectiveStatus(c.Status, w),
	}
}

func (h *CaseHandler) actor(c *gin.Context) string {
	if v := c.GetHeader("X-Operator-ID"); v != "" {
		return v
	}
	return "ops"
}

// emit шлёт событие в Kafka best-effort, не блокируя ответ API.
func (h *CaseHandler) emit(event string, cs *model.Case) {
	if h.producer == nil || cs == nil {
		return
	}
	payload := map[string]any{
		"case_id": cs.ID,
		"status":  string(cs.Status),
		"type":    string(cs.Type),
		"source":  string(cs.Source),
	}
	if cs.BookingID != nil {
		payload["booking_id"] = *cs.BookingID
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.producer.ProduceCaseEvent(ctx, event, payload)
	}()
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrCaseNotFound), errors.Is(err, errs.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrCaseClosed), errors.Is(err, errs.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrEmptyPatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

type createCaseRequest struct {
	Type        string  `json:"type" binding:"required"`
	Source      string  `json:"source"`
	Note        string  `json:"note"`
	WaitingOn   *string `json:"waiting_on"`
	BookingID   *string `json:"booking_id"`
	BookingCode string  `json:"booking_code"`
}

func (h *CaseHandler) Create(c *gin.Context) {
	var req createCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	cs := &model.Case{
		Type:        model.CaseType(req.Type),
		Source:      model.CaseSource(req.Source),
		Note:        req.Note,
		WaitingOn:   req.WaitingOn,
		BookingID:   req.BookingID,
		BookingCode: req.BookingCode,
		RequestContext: &model.RequestContext{
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		},
	}
	if err := h.svc.Create(c.Request.Context(), cs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create case"})
		return
	}
	h.emit("case.created", cs)
	c.JSON(http.StatusCreated, viewOf(*cs, time.Now()))
}

func (h *CaseHandler) Get(c *gin.Context) {
	cs, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(*cs, time.Now()))
}

func (h *CaseHandler) List(c *gin.Context) {
	f := service.ListFilter{
		Status: c.Query("status"),
		Type:   c.Query("type"),
		Source: c.Query("source"),
		Query:  c.Query("q"),
	}
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Page = n
		}
	}
	if v := c.Query("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.PageSize = n
		}
	}
	f.Normalize()

	items, total, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list cases"})
		return
	}
	now := time.Now()
	views := make([]caseView, 0, len(items))
	for _, it := range items {
		views = append(views, viewOf(it, now))
	}
	c.JSON(http.StatusOK, gin.H{
		"items":     views,
		"page":      f.Page,
		"page_size": f.PageSize,
		"total":     total,
	})
}

// Update — PATCH /cases/{id}. Тело читается в map: так отличается явный
// null (сброс waiting_on) от отсутствующего ключа.
func (h *CaseHandler) Update(c *gin.Context) {
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	cs, err := h.svc.Update(c.Request.Context(), c.Param("id"), patch, h.actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	h.emit("case.updated", cs)
	c.JSON(http.StatusOK, viewOf(*cs, time.Now()))
}

type closeCaseRequest struct {
	Note string `json:"note"`
}

func (h *CaseHandler) Close(c *gin.Context) {
	var req closeCaseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
	}
	cs, err := h.svc.Close(c.Request.Context(), c.Param("id"), req.Note, h.actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	h.emit("case.closed", cs)
	c.JSON(http.StatusOK, viewOf(*cs, time.Now()))
}

type bulkUpdateRequest struct {
	CaseIDs []string       `json:"case_ids" binding:"required"`
	Patch   map[string]any `json:"patch" binding:"required"`
}

// BulkUpdate всегда отвечает 200 с пер-кейсовыми исходами: частичный провал —
// не ошибка транспорта.
func (h *CaseHandler) BulkUpdate(c *gin.Context) {
	var req bulkUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if len(req.CaseIDs) == 0 || len(req.Patch) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "case_ids and patch are required"})
		return
	}
	res, err := h.svc.BulkUpdate(c.Request.Context(), req.CaseIDs, req.Patch, h.actor(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

// BookingEvents — сырой лог брони для fallback-таймлайна.
func (h *CaseHandler) BookingEvents(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	events, err := h.svc.BookingEvents(c.Request.Context(), c.Param("booking_id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": events})
}
