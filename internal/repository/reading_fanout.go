package repository

import (
	"context"
	"errors"

	"fermenter_controller/internal/models"
)

// ReadingFanout writes every reading to the primary store and each mirror,
// and serves queries from the primary.
type ReadingFanout struct {
	primary ReadingRepo
	mirrors []ReadingRepo
}

func NewReadingFanout(primary ReadingRepo, mirrors ...ReadingRepo) *ReadingFanout {
	return &ReadingFanout{primary: primary, mirrors: mirrors}
}

// Append writes to all stores; a mirror failure does not stop the others and
// is reported joined with any primary error.
func (f *ReadingFanout) Append(ctx context.Context, r models.SensorReading) error {
	errs := []error{f.primary.Append(ctx, r)}
	for _, m := range f.mirrors {
		errs = append(errs, m.Append(ctx, r))
	}
	return errors.Join(errs...)
}

func (f *ReadingFanout) List(ctx context.Context, filter ReadingFilter) ([]models.SensorReading, error) {
	return f.primary.List(ctx, filter)
}
