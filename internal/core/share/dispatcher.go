package share

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

var ErrNoChannels = errors.New("no share channels configured")

// ChannelError is a non-fatal channel failure; it only moves the dispatcher
// on to the next channel.
type ChannelError struct {
	Channel string
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("share via %s: %v", e.Channel, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

type Result struct {
	Outcome Outcome
	Channel string
	Err     error
}

func Success(channel string) Result {
	return Result{Outcome: OutcomeSuccess, Channel: channel}
}

func Cancelled(channel string) Result {
	return Result{Outcome: OutcomeCancelled, Channel: channel}
}

func Failed(channel string, err error) Result {
	return Result{Outcome: OutcomeFailed, Channel: channel, Err: &ChannelError{Channel: channel, Err: err}}
}

func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

type Channel interface {
	Name() string
	Attempt(ctx context.Context, text, title string) Result
}

// Dispatcher tries channels in order. Success and cancellation are terminal;
// only a failure moves on to the next channel.
type Dispatcher struct {
	channels []Channel
	logger   *zap.Logger
}

func NewDispatcher(logger *zap.Logger, channels ...Channel) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{channels: channels, logger: logger}
}

func (d *Dispatcher) Dispatch(ctx context.Context, text, title string) Result {
	if len(d.channels) == 0 {
		return Failed("none", ErrNoChannels)
	}

	var last Result
	for _, ch := range d.channels {
		if err := ctx.Err(); err != nil {
			return Failed(ch.Name(), err)
		}

		last = ch.Attempt(ctx, text, title)
		switch last.Outcome {
		case OutcomeSuccess:
			d.logger.Info("receipt shared", zap.String("channel", ch.Name()))
			return last
		case OutcomeCancelled:
			d.logger.Info("share cancelled", zap.String("channel", ch.Name()))
			return last
		default:
			d.logger.Warn("share channel failed", zap.String("channel", ch.Name()), zap.Error(last.Err))
		}
	}
	return last
}
