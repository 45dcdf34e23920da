package session

import (
	"context"

	"github.com/psds-microservice/case-service/internal/model"
)

// fakeAPI — ручная заглушка порта CaseAPI: колбэки на вызов плюс запись
// последних аргументов.
type fakeAPI struct {
	getCase       func(ctx context.Context, id string) (*model.Case, error)
	updateCase    func(ctx context.Context, id string, patch map[string]any) (*model.Case, error)
	closeCase     func(ctx context.Context, id, note string) (*model.Case, error)
	bulkUpdate    func(ctx context.Context, ids []string, patch map[string]any) (*model.BulkResult, error)
	bookingEvents func(ctx context.Context, bookingID string, limit int) ([]map[string]any, error)

	updateCalls int
	bulkCalls   int
	lastPatch   map[string]any
	lastIDs     []string
}

func (f *fakeAPI) GetCase(ctx context.Context, id string) (*model.Case, error) {
	if f.getCase == nil {
		return &model.Case{ID: id, Status: model.CaseStatusOpen}, nil
	}
	return f.getCase(ctx, id)
}

func (f *fakeAPI) UpdateCase(ctx context.Context, id string, patch map[string]any) (*model.Case, error) {
	f.updateCalls++
	f.lastPatch = patch
	if f.updateCase == nil {
		return &model.Case{ID: id, Status: model.CaseStatusOpen}, nil
	}
	return f.updateCase(ctx, id, patch)
}

func (f *fakeAPI) CloseCase(ctx context.Context, id, note string) (*model.Case, error) {
	if f.closeCase == nil {
		return &model.Case{ID: id, Status: model.CaseStatusClosed}, nil
	}
	return f.closeCase(ctx, id, note)
}

func (f *fakeAPI) BulkUpdate(ctx context.Context, ids []string, patch map[string]any) (*model.BulkResult, error) {
	f.bulkCalls++
	f.lastIDs = ids
	f.lastPatch = patch
	if f.bulkUpdate == nil {
		res := &model.BulkResult{Updated: len(ids)}
		for _, id := range ids {
			res.Results = append(res.Results, model.BulkItem{CaseID: id, OK: true})
		}
		return res, nil
	}
	return f.bulkUpdate(ctx, ids, patch)
}

func (f *fakeAPI) BookingEvents(ctx context.Context, bookingID string, limit int) ([]map[string]any, error) {
	if f.bookingEvents == nil {
		return nil, nil
	}
	return f.bookingEvents(ctx, bookingID, limit)
}
