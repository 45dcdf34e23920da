package session

import (
	"context"
	"fmt"

	"github.com/psds-microservice/case-service/internal/errs"
	"github.com/psds-microservice/case-service/internal/model"
	"github.com/psds-microservice/case-service/internal/waitingon"
)

// FailurePreviewLimit — сколько индивидуальных причин провала показываем
// оператору; остальное сворачивается в счётчик.
const FailurePreviewLimit = 5

// Bulk — сессия массового редактирования: выбранные кейсы плюс три
// независимых контрола патча. nil-контрол означает "не менять".
// Частичный провал — штатный исход: выбор сужается ровно до провалившихся
// кейсов, Retry гонит тот же патч по остатку. Не транзакционно.
type Bulk struct {
	api CaseAPI

	selected []string
	statuses map[string]model.CaseStatus // для локального гарда по закрытым

	StatusControl  *model.CaseStatus
	WaitingControl *string
	NoteControl    *string

	lastUpdated int
	lastFailed  int
	failures    []model.BulkItem
}

func NewBulk(api CaseAPI) *Bulk {
	return &Bulk{api: api, statuses: map[string]model.CaseStatus{}}
}

// Select добавляет видимый под текущими фильтрами кейс в рабочий набор.
func (b *Bulk) Select(c *model.Case) {
	if c == nil {
		return
	}
	b.SelectID(c.ID, c.Status)
}

// SelectID — то же по паре id/status, когда полного кейса под рукой нет.
func (b *Bulk) SelectID(id string, status model.CaseStatus) {
	if id == "" {
		return
	}
	if _, ok := b.statuses[id]; !ok {
		b.selected = append(b.selected, id)
	}
	b.statuses[id] = status
}

func (b *Bulk) Deselect(id string) {
	if _, ok := b.statuses[id]; !ok {
		return
	}
	delete(b.statuses, id)
	out := b.selected[:0]
	for _, s := range b.selected {
		if s != id {
			out = append(out, s)
		}
	}
	b.selected = out
}

// Clear сбрасывает выбор и все три контрола.
func (b *Bulk) Clear() {
	b.selected = nil
	b.statuses = map[string]model.CaseStatus{}
	b.ResetControls()
}

func (b *Bulk) ResetControls() {
	b.StatusControl = nil
	b.WaitingControl = nil
	b.NoteControl = nil
}

// Selected — текущий рабочий набор в порядке выбора.
func (b *Bulk) Selected() []string {
	out := make([]string, len(b.selected))
	copy(out, b.selected)
	return out
}

func (b *Bulk) Count() int { return len(b.selected) }

// BuildPatch собирает патч из контролов. Пустой патч — ошибка (no-op).
// Нормализованный в none waiting_on уходит явным null. Закрытие через bulk
// запрещено: у закрытия отдельное действие с серверным closed_at.
func (b *Bulk) BuildPatch() (map[string]any, error) {
	patch := map[string]any{}
	if b.StatusControl != nil {
		if *b.StatusControl == model.CaseStatusClosed {
			return nil, fmt.Errorf("%w: bulk close is not allowed, use the close action", errs.ErrInvalidTransition)
		}
		patch["status"] = string(*b.StatusControl)
	}
	if b.WaitingControl != nil {
		if waitingon.NormalizeString(*b.WaitingControl) == model.WaitingOnNone {
			patch["waiting_on"] = nil
		} else {
			patch["waiting_on"] = *b.WaitingControl
		}
	}
	if b.NoteControl != nil {
		patch["note"] = *b.NoteControl
	}
	if len(patch) == 0 {
		return nil, errs.ErrEmptyPatch
	}
	return patch, nil
}

// Apply гонит патч по всему выбору одним запросом. Уже закрытые кейсы в
// выборе отбиваются локально, до какого-либо сетевого вызова. После ответа:
// полный успех чистит выбор и контролы; иначе выбранными остаются ровно
// провалившиеся кейсы.
func (b *Bulk) Apply(ctx context.Context) (*model.BulkResult, error) {
	if len(b.selected) == 0 {
		return nil, nil
	}
	patch, err := b.BuildPatch()
	if err != nil {
		return nil, err
	}
	for _, id := range b.selected {
		if b.statuses[id] == model.CaseStatusClosed {
			return nil, fmt.Errorf("%w: case %s", errs.ErrCaseClosed, id)
		}
	}

	res, err := b.api.BulkUpdate(ctx, b.Selected(), patch)
	if err != nil {
		// Транспортный провал: выбор и контролы не трогаем, можно повторить.
		return nil, fmt.Errorf("bulk update: %w", err)
	}

	b.lastUpdated = res.Updated
	b.lastFailed = res.Failed
	b.failures = nil
	for _, it := range res.Results {
		if !it.OK && len(b.failures) < FailurePreviewLimit {
			b.failures = append(b.failures, it)
		}
	}

	if res.AllOK() {
		b.Clear()
		return res, nil
	}
	failed := res.FailedIDs()
	keep := map[string]bool{}
	for _, id := range failed {
		keep[id] = true
	}
	for id := range b.statuses {
		if !keep[id] {
			delete(b.statuses, id)
		}
	}
	b.selected = failed
	return res, nil
}

// Retry повторяет Apply по оставшемуся (провалившемуся) набору с теми же
// контролами. Один повтор за раз, без параллелизма по кейсам.
func (b *Bulk) Retry(ctx context.Context) (*model.BulkResult, error) {
	return b.Apply(ctx)
}

// Counts — агрегаты последнего прогона.
func (b *Bulk) Counts() (updated, failed int) {
	return b.lastUpdated, b.lastFailed
}

// Failures — индивидуальные причины провала, не больше FailurePreviewLimit.
func (b *Bulk) Failures() []model.BulkItem {
	out := make([]model.BulkItem, len(b.failures))
	copy(out, b.failures)
	return out
}
