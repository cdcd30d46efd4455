package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fermenter_controller/internal/models"
)

// Notifier receives control events. Implementations must return quickly;
// anything that talks to the network goes behind Async.
type Notifier interface {
	Notify(ctx context.Context, e models.ControlEvent) error
}

type NoopNotifier struct{}

func (NoopNotifier) Notify(_ context.Context, _ models.ControlEvent) error {
	return nil
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e models.ControlEvent) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Message renders a one-line summary of e.
func Message(e models.ControlEvent) string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	if e.Actuator != "" {
		b.WriteString(" ")
		b.WriteString(string(e.Actuator))
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.TemperatureF != nil {
		fmt.Fprintf(&b, " (%.1fF", *e.TemperatureF)
		if e.LowLimit != nil && e.HighLimit != nil {
			fmt.Fprintf(&b, ", limits %.1f-%.1f", *e.LowLimit, *e.HighLimit)
		}
		b.WriteString(")")
	}
	return b.String()
}
