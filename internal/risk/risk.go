package risk

import (
	"math"
	"time"

	"github.com/psds-microservice/case-service/internal/model"
)

// SLAWindowDays — возраст кейса в днях, после которого SLA считается сорванным.
const SLAWindowDays = 7

// Classify вычисляет SLA-полосу кейса. Чистая функция: "сейчас" передаётся
// явно, результат никогда не кэшируется при кейсе. Возраст считается в целых
// сутках между локальными полуночами (время суток отбрасывается, чтобы полоса
// не переключалась посреди дня).
func Classify(status model.CaseStatus, createdAt time.Time, now time.Time) model.RiskBand {
	if !status.IsLive() {
		return model.RiskNA
	}
	if createdAt.IsZero() {
		return model.RiskNoDate
	}
	ageDays := AgeDays(createdAt, now)
	switch {
	case ageDays <= 1:
		return model.RiskFresh
	case ageDays < SLAWindowDays:
		return model.RiskActive
	default:
		return model.RiskSLABreach
	}
}

// AgeDays — количество полных календарных суток между createdAt и now
// в часовом поясе now. Округление через Round гасит сдвиг перехода на
// летнее время (сутки в 23/25 часов). Для createdAt в будущем — отрицательное.
func AgeDays(createdAt, now time.Time) int {
	h := Midnight(now).Sub(Midnight(createdAt.In(now.Location()))).Hours()
	return int(math.Round(h / 24))
}

// Midnight — локальная полночь дня t (в поясе самого t).
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
