package session

import (
	"context"
	"fmt"
	"time"

	"github.com/psds-microservice/case-service/internal/casestate"
	"github.com/psds-microservice/case-service/internal/errs"
	"github.com/psds-microservice/case-service/internal/model"
	"github.com/psds-microservice/case-service/internal/timeline"
	"github.com/psds-microservice/case-service/internal/waitingon"
)

// DrawerState — состояние сессии редактирования.
type DrawerState string

const (
	DrawerClean      DrawerState = "clean"
	DrawerDirty      DrawerState = "dirty"
	DrawerConfirming DrawerState = "confirming_discard" // ждём решения по несохранённым правкам
)

// Snapshot — редактируемая часть кейса: статус, waiting_on, заметка.
type Snapshot struct {
	Status    model.CaseStatus
	WaitingOn *string
	Note      string
}

func snapshotOf(c *model.Case) Snapshot {
	return Snapshot{Status: c.Status, WaitingOn: c.WaitingOn, Note: c.Note}
}

// Drawer — сессия редактирования одного кейса: снимок на момент загрузки,
// черновик оператора и вычисление минимального патча при сохранении.
// Не потокобезопасна: одна логическая нить на сессию.
type Drawer struct {
	api CaseAPI

	// gen растёт на каждом Open: ответ, пришедший после более нового
	// запроса (оператор перескочил на другой кейс), отбрасывается.
	gen    int
	caseID string

	cas        *model.Case
	initial    Snapshot
	draft      Snapshot
	confirming bool
	events     []timeline.Event
}

func NewDrawer(api CaseAPI) *Drawer {
	return &Drawer{api: api}
}

// Open загружает кейс и начинает новую сессию. Предыдущая сессия (включая
// ещё не разрешённые загрузки) считается устаревшей.
func (d *Drawer) Open(ctx context.Context, id string) error {
	d.gen++
	gen := d.gen
	d.caseID = id

	c, err := d.api.GetCase(ctx, id)
	if gen != d.gen {
		return errs.ErrStaleLoad
	}
	if err != nil {
		return fmt.Errorf("load case %s: %w", id, err)
	}
	d.cas = c
	d.initial = snapshotOf(c)
	d.draft = d.initial
	d.confirming = false
	d.events = nil
	return nil
}

// Case — кейс под редактированием (nil до первой загрузки).
func (d *Drawer) Case() *model.Case { return d.cas }

// CaseID — кейс, к которому привязана текущая сессия.
func (d *Drawer) CaseID() string { return d.caseID }

func (d *Drawer) SetStatus(s model.CaseStatus) { d.draft.Status = s }
func (d *Drawer) SetWaitingOn(raw *string)     { d.draft.WaitingOn = raw }
func (d *Drawer) SetNote(note string)          { d.draft.Note = note }

// Draft — текущий черновик (для отображения формы).
func (d *Drawer) Draft() Snapshot { return d.draft }

// IsDirty — отличается ли черновик от снимка. waiting_on сравнивается по
// нормализованной форме: регистр и пробелы не делают сессию грязной.
func (d *Drawer) IsDirty() bool {
	if d.cas == nil {
		return false
	}
	if d.draft.Status != d.initial.Status {
		return true
	}
	if waitingon.Normalize(d.draft.WaitingOn) != waitingon.Normalize(d.initial.WaitingOn) {
		return true
	}
	return d.draft.Note != d.initial.Note
}

// EffectiveStatus — статус, который уйдёт при сохранении: блокирующий
// waiting_on в черновике форсирует waiting поверх выбора оператора.
func (d *Drawer) EffectiveStatus() model.CaseStatus {
	return casestate.EffectiveStatus(d.draft.Status, waitingon.Normalize(d.draft.WaitingOn))
}

// State — clean / dirty / confirming_discard.
func (d *Drawer) State() DrawerState {
	switch {
	case d.confirming:
		return DrawerConfirming
	case d.IsDirty():
		return DrawerDirty
	default:
		return DrawerClean
	}
}

// buildPatch собирает минимальный патч: только поля, реально отличающиеся
// от снимка. waiting_on уходит null-ом, когда нормализован в none, иначе —
// сырым значением черновика.
func (d *Drawer) buildPatch() map[string]any {
	patch := map[string]any{}
	eff := d.EffectiveStatus()
	if eff != d.initial.Status {
		patch["status"] = string(eff)
	}
	wDraft := waitingon.Normalize(d.draft.WaitingOn)
	if wDraft != waitingon.Normalize(d.initial.WaitingOn) {
		if wDraft == model.WaitingOnNone {
			patch["waiting_on"] = nil
		} else if d.draft.WaitingOn != nil {
			patch["waiting_on"] = *d.draft.WaitingOn
		}
	}
	if d.draft.Note != d.initial.Note {
		patch["note"] = d.draft.Note
	}
	return patch
}

// Save отправляет минимальный патч. No-op, если сессия чистая или кейс
// закрыт. Провал сохранения оставляет черновик и снимок нетронутыми —
// правки оператора не теряются. Успех пере-снимает сессию с серверного
// состояния, сессия снова чистая.
func (d *Drawer) Save(ctx context.Context) error {
	if d.cas == nil || d.cas.Status == model.CaseStatusClosed || !d.IsDirty() {
		return nil
	}
	if err := casestate.ValidateTransition(d.cas.Status, d.EffectiveStatus()); err != nil {
		return err
	}
	patch := d.buildPatch()
	if len(patch) == 0 {
		return nil
	}

	gen := d.gen
	updated, err := d.api.UpdateCase(ctx, d.caseID, patch)
	if gen != d.gen {
		return errs.ErrStaleLoad
	}
	if err != nil {
		return fmt.Errorf("save case %s: %w", d.caseID, err)
	}
	d.cas = updated
	d.initial = snapshotOf(updated)
	d.draft = d.initial
	d.confirming = false
	return nil
}

// Reset отбрасывает черновик к снимку без сетевого вызова.
func (d *Drawer) Reset() {
	d.draft = d.initial
	d.confirming = false
}

// RequestClose — попытка закрыть drawer (саму панель, не кейс). Чистая
// сессия закрывается сразу (true). Грязная переводится в confirming_discard:
// оператор обязан явно выбрать ConfirmDiscard или KeepEditing.
func (d *Drawer) RequestClose() bool {
	if !d.IsDirty() {
		d.confirming = false
		return true
	}
	d.confirming = true
	return false
}

// ConfirmDiscard — оператор подтвердил потерю правок; drawer можно закрывать.
func (d *Drawer) ConfirmDiscard() {
	d.Reset()
}

// KeepEditing — оператор передумал, остаёмся в dirty.
func (d *Drawer) KeepEditing() {
	d.confirming = false
}

// CloseCase выполняет действие закрытия кейса. Локальный гард до сети,
// оптимистичное применение с откатом при провале; после успеха — обязательный
// рефреш таймлайна, чтобы серверный OPS_CASE_CLOSED стал виден.
func (d *Drawer) CloseCase(ctx context.Context, note string) error {
	if d.cas == nil {
		return errs.ErrCaseNotFound
	}
	if err := casestate.ValidateClose(d.cas.Status); err != nil {
		return err
	}

	prev := *d.cas
	d.cas.Status = model.CaseStatusClosed

	gen := d.gen
	_, err := d.api.CloseCase(ctx, d.caseID, note)
	if gen != d.gen {
		return errs.ErrStaleLoad
	}
	if err != nil {
		*d.cas = prev
		return fmt.Errorf("close case %s: %w", d.caseID, err)
	}

	// Ответ close не несёт журнал событий: свежий лог с серверным
	// OPS_CASE_CLOSED добирается повторным чтением кейса.
	fresh, err := d.api.GetCase(ctx, d.caseID)
	if gen != d.gen {
		return errs.ErrStaleLoad
	}
	if err != nil {
		d.initial = snapshotOf(d.cas)
		d.draft = d.initial
		d.confirming = false
		return fmt.Errorf("refresh case after close: %w", err)
	}
	d.cas = fresh
	d.initial = snapshotOf(fresh)
	d.draft = d.initial
	d.confirming = false
	if err := d.LoadTimeline(ctx); err != nil {
		return fmt.Errorf("refresh timeline after close: %w", err)
	}
	return nil
}

// LoadTimeline строит таймлайн сессии: встроенный лог кейса, иначе события
// связанной брони, иначе синтетический fallback из created/updated.
func (d *Drawer) LoadTimeline(ctx context.Context) error {
	if d.cas == nil {
		return errs.ErrCaseNotFound
	}
	if len(d.cas.Events) > 0 {
		d.events = timeline.FromCaseEvents(d.cas.Events)
		return nil
	}
	if d.cas.BookingID != nil && *d.cas.BookingID != "" {
		gen := d.gen
		raw, err := d.api.BookingEvents(ctx, *d.cas.BookingID, 0)
		if gen != d.gen {
			return errs.ErrStaleLoad
		}
		if err != nil {
			return fmt.Errorf("booking events %s: %w", *d.cas.BookingID, err)
		}
		if len(raw) > 0 {
			d.events = timeline.FromRaw(raw)
			return nil
		}
	}
	d.events = timeline.Fallback(d.cas.CreatedAt, d.cas.UpdatedAt)
	return nil
}

// Timeline — канонические события сессии (после LoadTimeline).
func (d *Drawer) Timeline() []timeline.Event { return d.events }

// Sections — таймлайн по корзинам today/yesterday/older на момент now.
func (d *Drawer) Sections(now time.Time, f timeline.Filter) []timeline.Section {
	return timeline.Bucketize(d.events, now, f)
}
