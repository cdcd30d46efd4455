package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"fermenter_controller/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
)

func ctx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return c
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func f64(v float64) *float64 { return &v }

func TestEventAppend_Success_WithDefaults(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	repo := NewEventSQLite(db)

	mock.ExpectExec(regexp.QuoteMeta(insertEventSQL)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(),
			"ACTUATOR_TURNED_ON", "heater", "temperature at or below low limit",
			65.0, 68.0, 64.5,
			`{"command_id":"c1"}`,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Append(ctx(t), models.ControlEvent{
		Type:         " actuator_turned_on ",
		Actuator:     models.Heater,
		Reason:       "temperature at or below low limit",
		LowLimit:     f64(65),
		HighLimit:    f64(68),
		TemperatureF: f64(64.5),
		Metadata:     map[string]string{"command_id": "c1"},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestEventAppend_NullLimitsAndMeta(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	repo := NewEventSQLite(db)

	at := time.Date(2025, 1, 1, 10, 0, 0, 0, time.FixedZone("X", 3600))
	mock.ExpectExec(regexp.QuoteMeta(insertEventSQL)).
		WithArgs("e1", "2025-01-01 09:00:00.000000", "SAFETY_SHUTDOWN_ENGAGED", "", "sensor stale", nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Append(ctx(t), models.ControlEvent{
		EventID:    "e1",
		OccurredAt: at,
		Type:       models.EventSafetyShutdownEngaged,
		Reason:     "sensor stale",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestEventAppend_DBError(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	repo := NewEventSQLite(db)

	mock.ExpectExec("INSERT INTO control_events").WillReturnError(errors.New("down"))

	err := repo.Append(ctx(t), models.ControlEvent{Type: models.EventCommandFailed, Reason: "x"})
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Fatalf("expected error, got %v", err)
	}
}

var eventColumns = []string{"id", "occurred_at", "type", "actuator", "reason", "low_limit", "high_limit", "temperature_f", "meta"}

func TestEventList_NoFilters_And_MetadataParsing(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	repo := NewEventSQLite(db)

	js, _ := json.Marshal(map[string]any{"a": "b"})
	rows := sqlmock.NewRows(eventColumns).
		AddRow("1", "2025-01-01 10:00:00.000000", "ACTUATOR_TURNED_ON", "heater", "r1", 65.0, 68.0, 64.0, string(js)).
		AddRow("2", "2025-01-01 11:00:00.000000", "COMMAND_FAILED", "cooler", "r2", nil, nil, nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, occurred_at, type, actuator, reason, low_limit, high_limit, temperature_f, meta FROM control_events ORDER BY occurred_at ASC`)).
		WillReturnRows(rows)

	got, err := repo.List(ctx(t), time.Time{}, time.Time{}, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2, got %d", len(got))
	}
	if got[0].Type != models.EventActuatorTurnedOn || got[0].Actuator != models.Heater {
		t.Fatalf("unexpected first event: %+v", got[0])
	}
	if got[0].LowLimit == nil || *got[0].LowLimit != 65 || *got[0].TemperatureF != 64 {
		t.Fatalf("limits not scanned: %+v", got[0])
	}
	want := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	if !got[0].OccurredAt.Equal(want) {
		t.Fatalf("occurred_at = %v, want %v", got[0].OccurredAt, want)
	}
	b, _ := json.Marshal(got[0].Metadata)
	if string(b) != string(js) {
		t.Fatalf("metadata mismatch: %s vs %s", b, js)
	}
	if got[1].Metadata != nil || got[1].LowLimit != nil {
		t.Fatalf("expected nil meta and limits, got %+v", got[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestEventList_WithFilters(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	repo := NewEventSQLite(db)

	from := time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	query := `SELECT id, occurred_at, type, actuator, reason, low_limit, high_limit, temperature_f, meta FROM control_events WHERE occurred_at >= ? AND occurred_at <= ? AND type = ? ORDER BY occurred_at ASC`
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs("2025-01-01 11:00:00.000000", "2025-01-01 12:00:00.000000", "COMMAND_FAILED").
		WillReturnRows(sqlmock.NewRows(eventColumns).
			AddRow("3", "2025-01-01 11:30:00.000000", "COMMAND_FAILED", "heater", "timeout", nil, nil, nil, nil))

	got, err := repo.List(ctx(t), from, to, " command_failed ")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].EventID != "3" {
		t.Fatalf("unexpected results: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestEventList_BadTimestamp(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)
	repo := NewEventSQLite(db)

	mock.ExpectQuery("SELECT id, occurred_at").
		WillReturnRows(sqlmock.NewRows(eventColumns).
			AddRow("x", "yesterday", "COMMAND_FAILED", "", "msg", nil, nil, nil, nil))

	if _, err := repo.List(ctx(t), time.Time{}, time.Time{}, ""); err == nil {
		t.Fatalf("expected parse error, got nil")
	}
}
