package repository

import (
	"context"
	"errors"
	"testing"

	"fermenter_controller/internal/models"
)

type readingRepoStub struct {
	appended []models.SensorReading
	err      error
	listed   int
}

func (s *readingRepoStub) Append(_ context.Context, r models.SensorReading) error {
	s.appended = append(s.appended, r)
	return s.err
}

func (s *readingRepoStub) List(_ context.Context, _ ReadingFilter) ([]models.SensorReading, error) {
	s.listed++
	return s.appended, nil
}

func TestReadingFanout(t *testing.T) {
	primary := &readingRepoStub{}
	mirror := &readingRepoStub{err: errors.New("pg down")}
	f := NewReadingFanout(primary, mirror)

	err := f.Append(context.Background(), models.SensorReading{SensorID: "RED", TemperatureF: 66})
	if err == nil || err.Error() != "pg down" {
		t.Fatalf("expected mirror error, got %v", err)
	}
	if len(primary.appended) != 1 || len(mirror.appended) != 1 {
		t.Fatalf("both stores must receive the reading")
	}

	got, err := f.List(context.Background(), ReadingFilter{})
	if err != nil || len(got) != 1 || primary.listed != 1 || mirror.listed != 0 {
		t.Fatalf("List must read from primary only: got=%v err=%v", got, err)
	}
}
