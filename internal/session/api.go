// Package session — клиентские сессии редактирования кейсов: drawer (один
// кейс) и bulk (много кейсов одним патчем). Сессии ходят к бэкенду через
// порт CaseAPI; HTTP-реализация лежит в internal/caseclient.
package session

import (
	"context"

	"github.com/psds-microservice/case-service/internal/model"
)

// CaseAPI — контракт кейс-бэкенда, который потребляют сессии.
// Патч — частичное обновление: ключ с nil-значением означает явный null
// (сброс waiting_on), отсутствующий ключ — "не менять".
type CaseAPI interface {
	GetCase(ctx context.Context, id string) (*model.Case, error)
	UpdateCase(ctx context.Context, id string, patch map[string]any) (*model.Case, error)
	CloseCase(ctx context.Context, id string, note string) (*model.Case, error)
	BulkUpdate(ctx context.Context, ids []string, patch map[string]any) (*model.BulkResult, error)
	// BookingEvents — сырой лог брони для fallback-таймлайна. 404 у бэкенда
	// означает "таймлайна нет": пустой срез, nil-ошибка.
	BookingEvents(ctx context.Context, bookingID string, limit int) ([]map[string]any, error)
}
