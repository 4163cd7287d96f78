// Package builtin provides handlers that ship with every cadence process, so
// a fresh daemon can run jobs before any business handlers are registered.
package builtin

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/logger"
	"github.com/teranos/cadence/pulse/async"
)

// Handler names
const (
	Noop  = "builtin.noop"
	Log   = "builtin.log"
	Sleep = "builtin.sleep"
	Fail  = "builtin.fail"
)

// MaxSleep bounds builtin.sleep so a typo cannot park a worker for days.
const MaxSleep = time.Hour

type messageArgs struct {
	Message string `json:"message"`
}

type sleepArgs struct {
	Seconds float64 `json:"seconds"`
}

// Register adds every builtin handler to reg.
func Register(reg *async.HandlerRegistry, log *zap.SugaredLogger) {
	log = logger.AddPulseSymbol(log).Named("pulse.builtin")

	reg.RegisterFunc(Noop, func(ctx context.Context, inv *async.Invocation) error {
		return nil
	})

	reg.RegisterFunc(Log, func(ctx context.Context, inv *async.Invocation) error {
		var args messageArgs
		if err := inv.DecodeArgs(&args); err != nil {
			return err
		}
		if args.Message == "" {
			args.Message = "tick"
		}
		log.Infow(args.Message,
			logger.FieldJobID, inv.JobID,
			logger.FieldRunTime, inv.RunTime)
		return nil
	})

	reg.RegisterFunc(Sleep, func(ctx context.Context, inv *async.Invocation) error {
		args := sleepArgs{Seconds: 1}
		if err := inv.DecodeArgs(&args); err != nil {
			return err
		}
		d := time.Duration(args.Seconds * float64(time.Second))
		if d < 0 || d > MaxSleep {
			return errors.Newf("sleep of %s outside 0s..%s", d, MaxSleep)
		}

		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	reg.RegisterFunc(Fail, func(ctx context.Context, inv *async.Invocation) error {
		args := messageArgs{Message: "builtin.fail invoked"}
		if err := inv.DecodeArgs(&args); err != nil {
			return err
		}
		return errors.New(args.Message)
	})
}
