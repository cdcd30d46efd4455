package worker

import (
	"context"
	"time"

	"fermenter_controller/internal/logger"
	"fermenter_controller/internal/models"
)

const DefaultCommandTimeout = 8 * time.Second

type Options struct {
	CommandTimeout time.Duration
	Retry          RetryConfig
	Now            func() time.Time
}

// Worker owns the device connections. It executes commands one at a time in
// arrival order and posts exactly one result per command.
type Worker struct {
	sw       Switch
	commands <-chan models.Command
	results  chan<- models.CommandResult
	opts     Options
	log      *logger.Logger
}

func New(sw Switch, commands <-chan models.Command, results chan<- models.CommandResult, opts Options, log *logger.Logger) *Worker {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryConfig()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Worker{sw: sw, commands: commands, results: results, opts: opts, log: log}
}

// Run drains the command channel until ctx is canceled or the channel closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-w.commands:
			if !ok {
				return
			}
			res := w.execute(ctx, cmd)
			select {
			case w.results <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *Worker) execute(ctx context.Context, cmd models.Command) models.CommandResult {
	cctx, cancel := context.WithTimeout(ctx, w.opts.CommandTimeout)
	defer cancel()

	started := w.opts.Now()
	err := withRetry(cctx, w.opts.Retry, func() error {
		return w.sw.Set(cctx, cmd.Address, cmd.Action == models.ActionOn)
	})

	res := models.CommandResult{
		CommandID:   cmd.ID,
		Actuator:    cmd.Actuator,
		Action:      cmd.Action,
		Success:     err == nil,
		CompletedAt: w.opts.Now(),
	}
	if err != nil {
		res.Error = err.Error()
		w.log.Warnw("command_failed",
			"command_id", cmd.ID,
			"actuator", cmd.Actuator,
			"action", cmd.Action,
			"address", cmd.Address,
			"err", err,
		)
		return res
	}
	w.log.Infow("command_executed",
		"command_id", cmd.ID,
		"actuator", cmd.Actuator,
		"action", cmd.Action,
		"took", res.CompletedAt.Sub(started),
	)
	return res
}
