package waitingon

import (
	"strings"

	"github.com/psds-microservice/case-service/internal/model"
)

// Normalize приводит сырое значение waiting_on (легаси free-text, nil) к
// фиксированному перечислению. Эвристика по подстрокам, порядок важен.
// Тотальна: любой вход даёт одно из пяти значений, без паники.
func Normalize(raw *string) model.WaitingOn {
	if raw == nil {
		return model.WaitingOnNone
	}
	return NormalizeString(*raw)
}

// NormalizeString — то же для не-nil строки.
func NormalizeString(raw string) model.WaitingOn {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case v == "" || v == "none":
		return model.WaitingOnNone
	case strings.Contains(v, "cust"):
		return model.WaitingOnCustomer
	case strings.Contains(v, "sup"):
		return model.WaitingOnSupplier
	case strings.Contains(v, "ops"):
		return model.WaitingOnOps
	default:
		return model.WaitingOnOther
	}
}

// Blocking — true, если кейс реально заблокирован внешней стороной:
// none и other не форсируют статус waiting.
func Blocking(w model.WaitingOn) bool {
	return w != model.WaitingOnNone && w != model.WaitingOnOther
}
