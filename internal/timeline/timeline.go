// Package timeline сводит разнородные записи истории кейса к единому виду:
// толерантный маппинг легаси-полей, сортировка по убыванию времени и
// раскладка по корзинам today/yesterday/older.
package timeline

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/psds-microservice/case-service/internal/model"
	"github.com/psds-microservice/case-service/internal/risk"
)

// Event — каноническая запись таймлайна. За пределы этого пакета сырые
// легаси-формы не выходят.
type Event struct {
	TS      time.Time       `json:"ts"`
	Kind    string          `json:"kind"`
	Actor   string          `json:"actor,omitempty"`
	Message string          `json:"message,omitempty"`
	System  bool            `json:"is_system"`
	Patch   json.RawMessage `json:"patch,omitempty"`
}

// Bucket — корзина таймлайна по локальной дате на момент вызова.
type Bucket string

const (
	BucketToday     Bucket = "today"
	BucketYesterday Bucket = "yesterday"
	BucketOlder     Bucket = "older"
)

// Section — одна непустая корзина с событиями (внутри — по убыванию TS).
type Section struct {
	Bucket Bucket  `json:"bucket"`
	Events []Event `json:"events"`
}

// Filter — предикаты, применяемые до раскладки по корзинам.
type Filter struct {
	HideSystem bool // убрать машинные записи
	StatusOnly bool // оставить только события со "status" в kind
}

// Алиасы легаси-полей сырых записей. Порядок — приоритет выбора.
var (
	tsKeys      = []string{"ts", "timestamp", "time", "at", "created_at", "date"}
	kindKeys    = []string{"kind", "type", "event", "event_type"}
	actorKeys   = []string{"actor", "by", "user", "author"}
	messageKeys = []string{"message", "msg", "text", "note", "title"}
	systemKeys  = []string{"is_system", "isSystem", "system"}
	patchKeys   = []string{"patch", "diff", "changes"}
)

// FromRaw маппит сырые записи (легаси-имена полей) в канонические события.
// Записи без распознаваемого timestamp отбрасываются. Результат отсортирован
// по убыванию TS.
func FromRaw(raw []map[string]any) []Event {
	events := make([]Event, 0, len(raw))
	for _, r := range raw {
		if r == nil {
			continue
		}
		ts, ok := rawTime(r)
		if !ok {
			continue
		}
		ev := Event{
			TS:      ts,
			Kind:    rawString(r, kindKeys),
			Actor:   rawString(r, actorKeys),
			Message: rawString(r, messageKeys),
			System:  rawBool(r, systemKeys),
		}
		for _, k := range patchKeys {
			if v, ok := r[k]; ok && v != nil {
				if b, err := json.Marshal(v); err == nil {
					ev.Patch = b
				}
				break
			}
		}
		events = append(events, ev)
	}
	Sort(events)
	return events
}

// FromCaseEvents переводит типизированные серверные записи в канонический вид.
func FromCaseEvents(rows []model.CaseEvent) []Event {
	events := make([]Event, 0, len(rows))
	for _, r := range rows {
		if r.TS.IsZero() {
			continue
		}
		events = append(events, Event{
			TS:      r.TS,
			Kind:    r.Kind,
			Actor:   r.Actor,
			Message: r.Message,
			System:  r.IsSystem,
			Patch:   r.Patch,
		})
	}
	Sort(events)
	return events
}

// Fallback синтезирует минимальный таймлайн из метаданных кейса, когда
// настоящего лога нет: created и, если строго позже, updated. UI никогда
// не показывает полностью пустой таймлайн при живых метаданных.
func Fallback(createdAt, updatedAt time.Time) []Event {
	var events []Event
	if !createdAt.IsZero() {
		events = append(events, Event{TS: createdAt, Kind: "created", System: true, Message: "case created"})
	}
	if !updatedAt.IsZero() && updatedAt.After(createdAt) {
		events = append(events, Event{TS: updatedAt, Kind: "updated", System: true, Message: "case updated"})
	}
	Sort(events)
	return events
}

// Sort сортирует события по убыванию TS (stable: равные метки не тасуются).
func Sort(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].TS.After(events[j].TS)
	})
}

// Apply применяет фильтр к уже каноническим событиям.
func (f Filter) Apply(events []Event) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if f.HideSystem && ev.System {
			continue
		}
		if f.StatusOnly && !strings.Contains(strings.ToLower(ev.Kind), "status") {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Bucketize раскладывает события по корзинам относительно локальных полуночей
// на момент вызова. Фильтр применяется до раскладки. Порядок корзин фиксирован
// (today, yesterday, older), пустые не попадают в результат.
func Bucketize(events []Event, now time.Time, f Filter) []Section {
	events = f.Apply(events)
	today := risk.Midnight(now)
	yesterday := today.AddDate(0, 0, -1)

	byBucket := map[Bucket][]Event{}
	for _, ev := range events {
		ts := ev.TS.In(now.Location())
		switch {
		case !ts.Before(today):
			byBucket[BucketToday] = append(byBucket[BucketToday], ev)
		case !ts.Before(yesterday):
			byBucket[BucketYesterday] = append(byBucket[BucketYesterday], ev)
		default:
			byBucket[BucketOlder] = append(byBucket[BucketOlder], ev)
		}
	}

	var sections []Section
	for _, b := range []Bucket{BucketToday, BucketYesterday, BucketOlder} {
		if evs := byBucket[b]; len(evs) > 0 {
			sections = append(sections, Section{Bucket: b, Events: evs})
		}
	}
	return sections
}

func rawString(r map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := r[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func rawBool(r map[string]any, keys []string) bool {
	for _, k := range keys {
		switch v := r[k].(type) {
		case bool:
			return v
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
		}
	}
	return false
}

func rawTime(r map[string]any) (time.Time, bool) {
	for _, k := range tsKeys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		if ts, ok := ParseTime(v); ok {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Форматы, встречающиеся в легаси-логах.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime распознаёт метку времени в любом из легаси-представлений:
// time.Time, строка (RFC3339 и пара исторических форматов), unix-секунды
// или миллисекунды числом либо строкой.
func ParseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n != 0 {
			return unixTime(n), true
		}
		return time.Time{}, false
	case float64:
		if t == 0 {
			return time.Time{}, false
		}
		return unixTime(int64(t)), true
	case int64:
		if t == 0 {
			return time.Time{}, false
		}
		return unixTime(t), true
	case int:
		return ParseTime(int64(t))
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return ParseTime(n)
		}
		return time.Time{}, false
	}
	return time.Time{}, false
}

// unixTime: значения крупнее ~2001 года в миллисекундах трактуем как millis.
func unixTime(n int64) time.Time {
	if n > 1_000_000_000_000 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}
