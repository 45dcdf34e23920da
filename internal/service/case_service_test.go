package service

import (
	"testing"
	"time"

	"github.com/psds-microservice/case-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

// diffEvents пишет запись таймлайна только при фактическом изменении поля:
// патч, повторяющий текущее значение, событий не даёт.
func TestDiffEvents(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	base := &model.Case{
		ID:        "c1",
		Status:    model.CaseStatusWaiting,
		WaitingOn: strp("supplier"),
		Note:      "initial",
	}

	tests := []struct {
		name    string
		changes map[string]any
		kinds   []string
	}{
		{"status changed", map[string]any{"status": "open"}, []string{"status_changed"}},
		{"status restated", map[string]any{"status": "waiting"}, nil},
		{"waiting_on changed", map[string]any{"waiting_on": "customer"}, []string{"waiting_changed"}},
		{"waiting_on restated", map[string]any{"waiting_on": "supplier"}, nil},
		{"waiting_on cleared", map[string]any{"waiting_on": nil}, []string{"waiting_changed"}},
		{"note changed", map[string]any{"note": "edited"}, []string{"note_changed"}},
		{"note restated", map[string]any{"note": "initial"}, nil},
		{
			"mixed: one real change among restated",
			map[string]any{"status": "waiting", "waiting_on": "supplier", "note": "edited"},
			[]string{"note_changed"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := diffEvents(base, tt.changes, "ops", now)
			var kinds []string
			for _, ev := range events {
				kinds = append(kinds, ev.Kind)
			}
			assert.Equal(t, tt.kinds, kinds)
		})
	}
}

// Сброшенный waiting_on у кейса без waiting_on события не даёт.
func TestDiffEventsNilToNil(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	c := &model.Case{ID: "c1", Status: model.CaseStatusOpen}
	events := diffEvents(c, map[string]any{"waiting_on": nil}, "ops", now)
	require.Empty(t, events)
}
