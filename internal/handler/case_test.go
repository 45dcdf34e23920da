package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/case-service/internal/errs"
	"github.com/psds-microservice/case-service/internal/handler"
	"github.com/psds-microservice/case-service/internal/model"
	"github.com/psds-microservice/case-service/internal/router"
	"github.com/psds-microservice/case-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubService — заглушка CaseServicer для тестов HTTP-слоя.
type stubService struct {
	getByID    func(ctx context.Context, id string) (*model.Case, error)
	list       func(ctx context.Context, f service.ListFilter) ([]model.Case, int64, error)
	update     func(ctx context.Context, id string, patch map[string]any, actor string) (*model.Case, error)
	closeCase  func(ctx context.Context, id, note, actor string) (*model.Case, error)
	bulkUpdate func(ctx context.Context, ids []string, patch map[string]any, actor string) (*model.BulkResult, error)
	booking    func(ctx context.Context, bookingID string, limit int) ([]model.CaseEvent, error)
}

func (s *stubService) Create(ctx context.Context, c *model.Case) error {
	c.ID = "generated-id"
	c.CreatedAt = time.Now()
	return nil
}

func (s *stubService) GetByID(ctx context.Context, id string) (*model.Case, error) {
	return s.getByID(ctx, id)
}

func (s *stubService) List(ctx context.Context, f service.ListFilter) ([]model.Case, int64, error) {
	return s.list(ctx, f)
}

func (s *stubService) Update(ctx context.Context, id string, patch map[string]any, actor string) (*model.Case, error) {
	return s.update(ctx, id, patch, actor)
}

func (s *stubService) Close(ctx context.Context, id, note, actor string) (*model.Case, error) {
	return s.closeCase(ctx, id, note, actor)
}

func (s *stubService) BulkUpdate(ctx context.Context, ids []string, patch map[string]any, actor string) (*model.BulkResult, error) {
	return s.bulkUpdate(ctx, ids, patch, actor)
}

func (s *stubService) BookingEvents(ctx context.Context, bookingID string, limit int) ([]model.CaseEvent, error) {
	return s.booking(ctx, bookingID, limit)
}

func newServer(t *testing.T, svc *stubService) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv := httptest.NewServer(router.New(handler.NewCaseHandler(svc, nil)))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetCaseDerivedFields(t *testing.T) {
	waiting := "Supplier approval"
	svc := &stubService{
		getByID: func(ctx context.Context, id string) (*model.Case, error) {
			return &model.Case{
				ID:        id,
				Status:    model.CaseStatusOpen, // хранимое нарушение инварианта терпим
				WaitingOn: &waiting,
				CreatedAt: time.Now().AddDate(0, 0, -10),
			}, nil
		},
	}
	srv := newServer(t, svc)

	resp, err := http.Get(srv.URL + "/api/v1/cases/c1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "c1", body["case_id"])
	assert.Equal(t, "open", body["status"])
	// Производные поля пересчитаны на выдаче.
	assert.Equal(t, "sla_breach", body["risk_band"])
	assert.Equal(t, "supplier", body["waiting_on_normalized"])
	assert.Equal(t, "waiting", body["effective_status"])
}

func TestGetCaseNotFound(t *testing.T) {
	svc := &stubService{
		getByID: func(ctx context.Context, id string) (*model.Case, error) {
			return nil, errs.ErrCaseNotFound
		},
	}
	srv := newServer(t, svc)

	resp, err := http.Get(srv.URL + "/api/v1/cases/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListCasesPagination(t *testing.T) {
	var got service.ListFilter
	svc := &stubService{
		list: func(ctx context.Context, f service.ListFilter) ([]model.Case, int64, error) {
			got = f
			return []model.Case{{ID: "c1", Status: model.CaseStatusOpen, CreatedAt: time.Now()}}, 1, nil
		},
	}
	srv := newServer(t, svc)

	resp, err := http.Get(srv.URL + "/api/v1/cases?status=open&q=refund&page=3&page_size=10")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "open", got.Status)
	assert.Equal(t, "refund", got.Query)
	assert.Equal(t, 3, got.Page)
	assert.Equal(t, 10, got.PageSize)

	var body struct {
		Items    []map[string]any `json:"items"`
		Page     int              `json:"page"`
		PageSize int              `json:"page_size"`
		Total    int64            `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Items, 1)
	assert.Equal(t, 3, body.Page)
	assert.Equal(t, int64(1), body.Total)
	assert.Contains(t, body.Items[0], "risk_band")
}

func TestUpdateCaseClosedConflict(t *testing.T) {
	svc := &stubService{
		update: func(ctx context.Context, id string, patch map[string]any, actor string) (*model.Case, error) {
			return nil, errs.ErrCaseClosed
		},
	}
	srv := newServer(t, svc)

	req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/api/v1/cases/c1", strings.NewReader(`{"note":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

// Явный null в waiting_on доезжает до сервиса как nil-значение ключа.
func TestUpdateCasePassesExplicitNull(t *testing.T) {
	var gotPatch map[string]any
	svc := &stubService{
		update: func(ctx context.Context, id string, patch map[string]any, actor string) (*model.Case, error) {
			gotPatch = patch
			return &model.Case{ID: id, Status: model.CaseStatusOpen, CreatedAt: time.Now()}, nil
		},
	}
	srv := newServer(t, svc)

	req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/api/v1/cases/c1", strings.NewReader(`{"waiting_on":null,"status":"open"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Contains(t, gotPatch, "waiting_on")
	assert.Nil(t, gotPatch["waiting_on"])
}

func TestCloseCase(t *testing.T) {
	svc := &stubService{
		closeCase: func(ctx context.Context, id, note, actor string) (*model.Case, error) {
			now := time.Now()
			return &model.Case{
				ID:        id,
				Status:    model.CaseStatusClosed,
				CloseNote: note,
				ClosedBy:  actor,
				ClosedAt:  &now,
				CreatedAt: now.AddDate(0, 0, -2),
			}, nil
		},
	}
	srv := newServer(t, svc)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/cases/c1/close", strings.NewReader(`{"note":"resolved"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Operator-ID", "anna")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "closed", body["status"])
	assert.Equal(t, "resolved", body["close_note"])
	assert.Equal(t, "anna", body["closed_by"])
	// Закрытый кейс вне SLA-учёта.
	assert.Equal(t, "na", body["risk_band"])
}

// Частичный провал — это 200 с пер-кейсовыми исходами, не ошибка.
func TestBulkUpdatePartialFailureIs200(t *testing.T) {
	svc := &stubService{
		bulkUpdate: func(ctx context.Context, ids []string, patch map[string]any, actor string) (*model.BulkResult, error) {
			return &model.BulkResult{
				Updated: 1,
				Failed:  1,
				Results: []model.BulkItem{
					{CaseID: "a", OK: true},
					{CaseID: "b", OK: false, Error: "case is closed"},
				},
			}, nil
		},
	}
	srv := newServer(t, svc)

	resp, err := http.Post(srv.URL+"/api/v1/cases/bulk-update", "application/json",
		strings.NewReader(`{"case_ids":["a","b"],"patch":{"note":"x"}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res model.BulkResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"b"}, res.FailedIDs())
}

func TestBulkUpdateRequiresBody(t *testing.T) {
	srv := newServer(t, &stubService{})

	resp, err := http.Post(srv.URL+"/api/v1/cases/bulk-update", "application/json",
		strings.NewReader(`{"case_ids":[],"patch":{}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBookingEvents(t *testing.T) {
	svc := &stubService{
		booking: func(ctx context.Context, bookingID string, limit int) ([]model.CaseEvent, error) {
			if bookingID == "bk-404" {
				return nil, errs.ErrBookingNotFound
			}
			return []model.CaseEvent{{TS: time.Now(), Kind: "created", IsSystem: true}}, nil
		},
	}
	srv := newServer(t, svc)

	resp, err := http.Get(srv.URL + "/api/v1/bookings/bk-1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Items []map[string]any `json:"items"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Items, 1)

	resp404, err := http.Get(srv.URL + "/api/v1/bookings/bk-404/events")
	require.NoError(t, err)
	defer resp404.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp404.StatusCode)
}

func TestCreateCase(t *testing.T) {
	srv := newServer(t, &stubService{})

	resp, err := http.Post(srv.URL+"/api/v1/cases", "application/json",
		strings.NewReader(`{"type":"refund","source":"guest_portal","note":"double charge"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "generated-id", body["case_id"])
	assert.Equal(t, "refund", body["type"])
}
