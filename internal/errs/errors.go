package errs

import "errors"

// Сентинельные ошибки ядра. Валидационные (ErrCaseClosed, ErrInvalidTransition,
// ErrEmptyPatch) отбиваются локально, до сетевого вызова.
var (
	ErrCaseNotFound      = errors.New("case not found")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrCaseClosed        = errors.New("case is closed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEmptyPatch        = errors.New("empty patch")
	ErrStaleLoad         = errors.New("stale load discarded")
)
