// Package casestate — машина состояний кейса: open, waiting, in_progress и
// терминальный closed.
package casestate

import (
	"fmt"

	"github.com/psds-microservice/case-service/internal/errs"
	"github.com/psds-microservice/case-service/internal/model"
	"github.com/psds-microservice/case-service/internal/waitingon"
)

// CanTransition — допустим ли переход через обычный путь редактирования.
// Между тремя живыми статусами движение свободное; в closed — только через
// отдельное действие закрытия (см. ValidateClose); из closed — никуда.
func CanTransition(from, to model.CaseStatus) bool {
	return from.IsLive() && to.IsLive()
}

// ValidateEdit отбивает правку закрытого кейса до любого сетевого вызова.
func ValidateEdit(current model.CaseStatus) error {
	if current == model.CaseStatusClosed {
		return errs.ErrCaseClosed
	}
	return nil
}

// ValidateTransition проверяет переход по пути редактирования.
func ValidateTransition(from, to model.CaseStatus) error {
	if err := ValidateEdit(from); err != nil {
		return err
	}
	if to == model.CaseStatusClosed {
		// Закрытие только через dedicated close: сервер назначает closed_at.
		return fmt.Errorf("%w: close requires the close action", errs.ErrInvalidTransition)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", errs.ErrInvalidTransition, from, to)
	}
	return nil
}

// ValidateClose — допустимость действия закрытия.
func ValidateClose(current model.CaseStatus) error {
	return ValidateEdit(current)
}

// EffectiveStatus — статус, который реально уйдёт в переход: непустой
// нормализованный waiting_on (кроме none/other) форсирует waiting поверх
// выбора оператора. Пустой raw-статус трактуем как open.
func EffectiveStatus(raw model.CaseStatus, w model.WaitingOn) model.CaseStatus {
	if waitingon.Blocking(w) {
		return model.CaseStatusWaiting
	}
	if raw == "" {
		return model.CaseStatusOpen
	}
	return raw
}
