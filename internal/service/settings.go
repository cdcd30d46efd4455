package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"fermenter_controller/internal/models"
	"fermenter_controller/internal/repository"
)

var (
	ErrInvalidLimits   = errors.New("invalid limits: low_limit must be <= high_limit and both finite")
	ErrInvalidInterval = errors.New("invalid control interval: must be at least 10s")
	ErrInvalidAddress  = errors.New("invalid actuator address: expected http(s)://, mqtt:// or sim://")
)

const minControlInterval = 10 * time.Second

var addressSchemes = []string{"http://", "https://", "mqtt://", "sim://"}

type SettingsService struct {
	configRepo repository.ConfigRepo
	seed       models.ControlConfig
	now        func() time.Time
}

func NewSettingsService(configRepo repository.ConfigRepo, seed models.ControlConfig) *SettingsService {
	return &SettingsService{configRepo: configRepo, seed: seed, now: time.Now}
}

// EnsureSeeded stores seed when no configuration exists yet.
func EnsureSeeded(ctx context.Context, repo repository.ConfigRepo, seed models.ControlConfig) error {
	_, err := repo.Load(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNoConfig) {
		return err
	}
	seed.UpdatedAt = time.Now().UTC()
	if err := repo.Save(ctx, seed); err != nil {
		return fmt.Errorf("seed control config: %w", err)
	}
	return nil
}

// Get returns the stored configuration, or the seed when nothing is stored.
func (s *SettingsService) Get(ctx context.Context) (models.ControlConfig, error) {
	cfg, err := s.configRepo.Load(ctx)
	if errors.Is(err, repository.ErrNoConfig) {
		return s.seed, nil
	}
	return cfg, err
}

// Update merges p into the current configuration, validates and stores it.
// The control core tolerates bad values on read; writes are checked here.
func (s *SettingsService) Update(ctx context.Context, p ConfigParams) (models.ControlConfig, error) {
	cfg, err := s.Get(ctx)
	if err != nil {
		return models.ControlConfig{}, err
	}

	if p.ClearLimits {
		cfg.LowLimit, cfg.HighLimit = nil, nil
	}
	if p.LowLimit != nil {
		cfg.LowLimit = p.LowLimit
	}
	if p.HighLimit != nil {
		cfg.HighLimit = p.HighLimit
	}
	if p.HeatingEnabled != nil {
		cfg.HeatingEnabled = *p.HeatingEnabled
	}
	if p.CoolingEnabled != nil {
		cfg.CoolingEnabled = *p.CoolingEnabled
	}
	if p.BoundSensorID != nil {
		cfg.BoundSensorID = strings.TrimSpace(*p.BoundSensorID)
	}
	if p.ControlInterval != nil {
		cfg.ControlInterval = *p.ControlInterval
	}
	if p.HeaterAddress != nil {
		cfg.HeaterAddress = strings.TrimSpace(*p.HeaterAddress)
	}
	if p.CoolerAddress != nil {
		cfg.CoolerAddress = strings.TrimSpace(*p.CoolerAddress)
	}

	if err := validateConfig(cfg); err != nil {
		return models.ControlConfig{}, err
	}
	cfg.UpdatedAt = s.now().UTC()
	if err := s.configRepo.Save(ctx, cfg); err != nil {
		return models.ControlConfig{}, err
	}
	return cfg, nil
}

func validateConfig(cfg models.ControlConfig) error {
	for _, p := range []*float64{cfg.LowLimit, cfg.HighLimit} {
		if p != nil && (math.IsNaN(*p) || math.IsInf(*p, 0)) {
			return ErrInvalidLimits
		}
	}
	if low, high, ok := cfg.Limits(); ok && low > high {
		return ErrInvalidLimits
	}
	if cfg.ControlInterval != 0 && cfg.ControlInterval < minControlInterval {
		return ErrInvalidInterval
	}
	for _, addr := range []string{cfg.HeaterAddress, cfg.CoolerAddress} {
		if addr != "" && !hasKnownScheme(addr) {
			return ErrInvalidAddress
		}
	}
	return nil
}

func hasKnownScheme(addr string) bool {
	lower := strings.ToLower(addr)
	for _, scheme := range addressSchemes {
		if strings.HasPrefix(lower, scheme) && len(lower) > len(scheme) {
			return true
		}
	}
	return false
}
