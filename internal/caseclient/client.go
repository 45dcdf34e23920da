// Package caseclient — HTTP-реализация порта session.CaseAPI поверх
// REST-контракта кейс-бэкенда.
package caseclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/psds-microservice/case-service/internal/errs"
	"github.com/psds-microservice/case-service/internal/model"
)

// Client ходит в кейс-бэкенд. Таймаут короткий: все вызовы — интерактивные
// действия оператора.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ListFilter — параметры листинга кейсов.
type ListFilter struct {
	Status   string
	Type     string
	Source   string
	Query    string
	Page     int
	PageSize int
}

// ListResponse — страница кейсов.
type ListResponse struct {
	Items    []model.Case `json:"items"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
	Total    int64        `json:"total"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var rdr *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		rdr = bytes.NewReader(data)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		switch resp.StatusCode {
		case http.StatusNotFound:
			return errs.ErrCaseNotFound
		case http.StatusConflict:
			if eb.Error != "" {
				return fmt.Errorf("%w: %s", errs.ErrInvalidTransition, eb.Error)
			}
			return errs.ErrInvalidTransition
		}
		if eb.Error != "" {
			return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, eb.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// ListCases — GET /cases с фильтрами и пагинацией.
func (c *Client) ListCases(ctx context.Context, f ListFilter) (*ListResponse, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Type != "" {
		q.Set("type", f.Type)
	}
	if f.Source != "" {
		q.Set("source", f.Source)
	}
	if f.Query != "" {
		q.Set("q", f.Query)
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(f.PageSize))
	}
	path := "/cases"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	var out ListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCase — GET /cases/{id}.
func (c *Client) GetCase(ctx context.Context, id string) (*model.Case, error) {
	var out model.Case
	if err := c.do(ctx, http.MethodGet, "/cases/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateCase — PATCH /cases/{id} с частичным патчем.
func (c *Client) UpdateCase(ctx context.Context, id string, patch map[string]any) (*model.Case, error) {
	var out model.Case
	if err := c.do(ctx, http.MethodPatch, "/cases/"+url.PathEscape(id), patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CloseCase — POST /cases/{id}/close. closed_at назначает сервер.
func (c *Client) CloseCase(ctx context.Context, id string, note string) (*model.Case, error) {
	body := map[string]any{}
	if note != "" {
		body["note"] = note
	}
	var out model.Case
	if err := c.do(ctx, http.MethodPost, "/cases/"+url.PathEscape(id)+"/close", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BulkUpdate — POST /cases/bulk-update. Частичный провал — обычный ответ.
func (c *Client) BulkUpdate(ctx context.Context, ids []string, patch map[string]any) (*model.BulkResult, error) {
	body := map[string]any{"case_ids": ids, "patch": patch}
	var out model.BulkResult
	if err := c.do(ctx, http.MethodPost, "/cases/bulk-update", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BookingEvents — GET /bookings/{id}/events. 404 значит "таймлайна нет",
// не ошибка.
func (c *Client) BookingEvents(ctx context.Context, bookingID string, limit int) ([]map[string]any, error) {
	path := "/bookings/" + url.PathEscape(bookingID) + "/events"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Items []map[string]any `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	if err != nil {
		if errors.Is(err, errs.ErrCaseNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return out.Items, nil
}
