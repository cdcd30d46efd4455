package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"fermenter_controller/internal/models"
)

func boolPtr(b bool) *bool                  { return &b }
func strPtr(s string) *string               { return &s }
func durPtr(d time.Duration) *time.Duration { return &d }

func TestSettingsService_GetFallsBackToSeed(t *testing.T) {
	seed := heatingOnly(66, 68)
	svc := NewSettingsService(&memConfigRepo{}, seed)

	got, err := svc.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.BoundSensorID != "RED" || *got.LowLimit != 66 {
		t.Fatalf("expected seed, got %+v", got)
	}
}

func TestSettingsService_Update(t *testing.T) {
	repo := &memConfigRepo{cfg: heatingOnly(66, 68), has: true}
	svc := NewSettingsService(repo, models.ControlConfig{})
	fixed := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	got, err := svc.Update(context.Background(), ConfigParams{
		HighLimit:      f64(70),
		CoolingEnabled: boolPtr(true),
		BoundSensorID:  strPtr(" BLUE "),
		CoolerAddress:  strPtr("mqtt://ferm_cooler"),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if *got.LowLimit != 66 || *got.HighLimit != 70 || !got.CoolingEnabled || !got.HeatingEnabled {
		t.Fatalf("merged config = %+v", got)
	}
	if got.BoundSensorID != "BLUE" || got.CoolerAddress != "mqtt://ferm_cooler" {
		t.Fatalf("trimmed fields = %q %q", got.BoundSensorID, got.CoolerAddress)
	}
	if !got.UpdatedAt.Equal(fixed) || repo.saves != 1 {
		t.Fatalf("updated_at=%v saves=%d", got.UpdatedAt, repo.saves)
	}
}

func TestSettingsService_UpdateClearLimits(t *testing.T) {
	repo := &memConfigRepo{cfg: heatingOnly(66, 68), has: true}
	svc := NewSettingsService(repo, models.ControlConfig{})

	got, err := svc.Update(context.Background(), ConfigParams{ClearLimits: true})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.LowLimit != nil || got.HighLimit != nil {
		t.Fatalf("limits not cleared: %+v", got)
	}
}

func TestSettingsService_UpdateValidation(t *testing.T) {
	cases := []struct {
		name string
		p    ConfigParams
		want error
	}{
		{"low above high", ConfigParams{LowLimit: f64(70)}, ErrInvalidLimits},
		{"nan limit", ConfigParams{HighLimit: f64(math.NaN())}, ErrInvalidLimits},
		{"interval too short", ConfigParams{ControlInterval: durPtr(time.Second)}, ErrInvalidInterval},
		{"bad address", ConfigParams{HeaterAddress: strPtr("10.0.0.20")}, ErrInvalidAddress},
		{"scheme only", ConfigParams{HeaterAddress: strPtr("sim://")}, ErrInvalidAddress},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &memConfigRepo{cfg: heatingOnly(66, 68), has: true}
			svc := NewSettingsService(repo, models.ControlConfig{})
			_, err := svc.Update(context.Background(), tc.p)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
			if repo.saves != 0 {
				t.Fatalf("invalid config must not be saved")
			}
		})
	}
}

func TestSettingsService_UpdateEqualLimitsAllowed(t *testing.T) {
	repo := &memConfigRepo{cfg: heatingOnly(66, 68), has: true}
	svc := NewSettingsService(repo, models.ControlConfig{})
	if _, err := svc.Update(context.Background(), ConfigParams{LowLimit: f64(68)}); err != nil {
		t.Fatalf("low == high must be accepted: %v", err)
	}
}

func TestSettingsService_PropagatesRepoErrors(t *testing.T) {
	repo := &memConfigRepo{loadErr: errors.New("db down")}
	svc := NewSettingsService(repo, models.ControlConfig{})
	if _, err := svc.Get(context.Background()); err == nil {
		t.Fatalf("expected load error")
	}

	repo = &memConfigRepo{cfg: heatingOnly(66, 68), has: true, saveErr: errors.New("read-only")}
	svc = NewSettingsService(repo, models.ControlConfig{})
	if _, err := svc.Update(context.Background(), ConfigParams{HighLimit: f64(69)}); err == nil {
		t.Fatalf("expected save error")
	}
}

func TestEnsureSeeded(t *testing.T) {
	repo := &memConfigRepo{}
	if err := EnsureSeeded(context.Background(), repo, heatingOnly(66, 68)); err != nil {
		t.Fatalf("EnsureSeeded: %v", err)
	}
	if !repo.has || repo.saves != 1 {
		t.Fatalf("seed not stored")
	}
	if err := EnsureSeeded(context.Background(), repo, models.ControlConfig{}); err != nil {
		t.Fatalf("EnsureSeeded second call: %v", err)
	}
	if repo.saves != 1 || repo.cfg.BoundSensorID != "RED" {
		t.Fatalf("existing config must not be overwritten")
	}
}
