package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/psds-microservice/case-service/internal/casestate"
	"github.com/psds-microservice/case-service/internal/errs"
	"github.com/psds-microservice/case-service/internal/model"
	"gorm.io/gorm"
)

// CaseServicer — интерфейс для хендлеров (Dependency Inversion).
type CaseServicer interface {
	Create(ctx context.Context, c *model.Case) error
	GetByID(ctx context.Context, id string) (*model.Case, error)
	List(ctx context.Context, f ListFilter) ([]model.Case, int64, error)
	Update(ctx context.Context, id string, patch map[string]any, actor string) (*model.Case, error)
	Close(ctx context.Context, id, note, actor string) (*model.Case, error)
	BulkUpdate(ctx context.Context, ids []string, patch map[string]any, actor string) (*model.BulkResult, error)
	BookingEvents(ctx context.Context, bookingID string, limit int) ([]model.CaseEvent, error)
}

// ListFilter — фильтры листинга. Нулевые значения не фильтруют.
type ListFilter struct {
	Status   string
	Type     string
	Source   string
	Query    string
	Page     int
	PageSize int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Normalize выставляет дефолты пагинации.
func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
}

type CaseService struct {
	db *gorm.DB
}

func NewCaseService(db *gorm.DB) *CaseService {
	return &CaseService{db: db}
}

// Create сохраняет новый кейс и пишет событие created. ID и created_at
// назначаются здесь, статус по умолчанию open.
func (s *CaseService) Create(ctx context.Context, c *model.Case) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = model.CaseStatusOpen
	}
	if c.Type == "" {
		c.Type = model.CaseTypeOther
	}
	if c.Source == "" {
		c.Source = model.CaseSourceOpsPanel
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		ev := model.CaseEvent{
			CaseID:   c.ID,
			TS:       c.CreatedAt,
			Kind:     "created",
			IsSystem: true,
			Message:  fmt.Sprintf("case created via %s", c.Source),
		}
		return tx.Create(&ev).Error
	})
}

// GetByID возвращает кейс вместе с его таймлайном (events, по убыванию ts).
func (s *CaseService) GetByID(ctx context.Context, id string) (*model.Case, error) {
	var c model.Case
	err := s.db.WithContext(ctx).
		Preload("Events", func(db *gorm.DB) *gorm.DB { return db.Order("ts DESC") }).
		First(&c, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrCaseNotFound
		}
		return nil, err
	}
	return &c, nil
}

// List отдаёт страницу кейсов. Хранимые данные не чинятся на выдаче:
// производные поля (SLA-полоса и пр.) пересчитывает потребитель.
func (s *CaseService) List(ctx context.Context, f ListFilter) ([]model.Case, int64, error) {
	f.Normalize()
	tx := s.db.WithContext(ctx).Model(&model.Case{})
	if f.Status != "" {
		tx = tx.Where("status = ?", f.Status)
	}
	if f.Type != "" {
		tx = tx.Where("type = ?", f.Type)
	}
	if f.Source != "" {
		tx = tx.Where("source = ?", f.Source)
	}
	if f.Query != "" {
		q := "%" + f.Query + "%"
		tx = tx.Where("id ILIKE ? OR booking_code ILIKE ? OR note ILIKE ?", q, q, q)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []model.Case
	err := tx.Order("created_at DESC").
		Limit(f.PageSize).
		Offset((f.Page - 1) * f.PageSize).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// разрешённые ключи патча; всё остальное молча отбрасывается.
var patchKeys = map[string]bool{"status": true, "waiting_on": true, "note": true}

// Update применяет частичный патч {status?, waiting_on?, note?}. Переход
// статуса валидируется машиной состояний, закрытый кейс не правится.
// Каждое изменённое поле даёт запись таймлайна с diff-ом.
func (s *CaseService) Update(ctx context.Context, id string, patch map[string]any, actor string) (*model.Case, error) {
	changes := map[string]any{}
	for k, v := range patch {
		if patchKeys[k] {
			changes[k] = v
		}
	}
	if len(changes) == 0 {
		return nil, errs.ErrEmptyPatch
	}

	var out *model.Case
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c model.Case
		if err := tx.First(&c, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrCaseNotFound
			}
			return err
		}
		if err := casestate.ValidateEdit(c.Status); err != nil {
			return err
		}
		if v, ok := changes["status"]; ok {
			to, _ := v.(string)
			if err := casestate.ValidateTransition(c.Status, model.CaseStatus(to)); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		events := diffEvents(&c, changes, actor, now)
		if err := tx.Model(&c).Updates(changes).Error; err != nil {
			return err
		}
		for i := range events {
			if err := tx.Create(&events[i]).Error; err != nil {
				return err
			}
		}
		// Updates по map не перечитывает строку целиком.
		if err := tx.First(&c, "id = ?", id).Error; err != nil {
			return err
		}
		out = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// diffEvents — записи таймлайна по изменённым полям, с diff-ом from/to.
func diffEvents(c *model.Case, changes map[string]any, actor string, now time.Time) []model.CaseEvent {
	var events []model.CaseEvent
	add := func(kind, field string, from, to any) {
		patch, _ := json.Marshal(map[string]any{field: map[string]any{"from": from, "to": to}})
		events = append(events, model.CaseEvent{
			CaseID: c.ID,
			TS:     now,
			Kind:   kind,
			Actor:  actor,
			Patch:  patch,
		})
	}
	if v, ok := changes["status"]; ok {
		if to, _ := v.(string); to != string(c.Status) {
			add("status_changed", "status", string(c.Status), to)
		}
	}
	if v, ok := changes["waiting_on"]; ok {
		var from any
		if c.WaitingOn != nil {
			from = *c.WaitingOn
		}
		if from != v {
			add("waiting_changed", "waiting_on", from, v)
		}
	}
	if v, ok := changes["note"]; ok {
		if to, _ := v.(string); to != c.Note {
			add("note_changed", "note", c.Note, to)
		}
	}
	return events
}

// Close — выделенное действие закрытия: терминальный переход, closed_at
// назначается сервером, в таймлайн пишется системный OPS_CASE_CLOSED.
func (s *CaseService) Close(ctx context.Context, id, note, actor string) (*model.Case, error) {
	var out *model.Case
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c model.Case
		if err := tx.First(&c, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrCaseNotFound
			}
			return err
		}
		if err := casestate.ValidateClose(c.Status); err != nil {
			return err
		}
		now := time.Now().UTC()
		changes := map[string]any{
			"status":    string(model.CaseStatusClosed),
			"closed_at": now,
			"closed_by": actor,
		}
		if note != "" {
			changes["close_note"] = note
		}
		if err := tx.Model(&c).Updates(changes).Error; err != nil {
			return err
		}
		ev := model.CaseEvent{
			CaseID:   c.ID,
			TS:       now,
			Kind:     model.EventKindCaseClosed,
			Actor:    actor,
			Message:  note,
			IsSystem: true,
		}
		if err := tx.Create(&ev).Error; err != nil {
			return err
		}
		if err := tx.First(&c, "id = ?", id).Error; err != nil {
			return err
		}
		out = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BulkUpdate применяет один патч к каждому кейсу независимо. Не транзакция
// поверх всего набора: часть кейсов может обновиться, часть — нет, и это
// штатный ответ с пер-кейсовыми исходами.
func (s *CaseService) BulkUpdate(ctx context.Context, ids []string, patch map[string]any, actor string) (*model.BulkResult, error) {
	res := &model.BulkResult{Results: make([]model.BulkItem, 0, len(ids))}
	for _, id := range ids {
		if _, err := s.Update(ctx, id, patch, actor); err != nil {
			res.Failed++
			res.Results = append(res.Results, model.BulkItem{CaseID: id, OK: false, Error: err.Error()})
			continue
		}
		res.Updated++
		res.Results = append(res.Results, model.BulkItem{CaseID: id, OK: true})
	}
	return res, nil
}

// BookingEvents — сырой лог по связанной брони: события всех кейсов этой
// брони, новые сверху.
func (s *CaseService) BookingEvents(ctx context.Context, bookingID string, limit int) ([]model.CaseEvent, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	var caseIDs []string
	if err := s.db.WithContext(ctx).Model(&model.Case{}).
		Where("booking_id = ?", bookingID).
		Pluck("id", &caseIDs).Error; err != nil {
		return nil, err
	}
	if len(caseIDs) == 0 {
		return nil, errs.ErrBookingNotFound
	}
	var events []model.CaseEvent
	err := s.db.WithContext(ctx).
		Where("case_id IN ?", caseIDs).
		Order("ts DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
