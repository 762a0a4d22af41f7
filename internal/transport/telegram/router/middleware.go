package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "schedbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger := log
					if req != nil && !req.Logger.IsZero() {
						logger = req.Logger
					}
					logger.Error("panic recovered",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

// slowRequest promotes the request line from debug to info.
const slowRequest = 750 * time.Millisecond

// MWRequestLog writes one line per handled message: who asked (by organizer
// handle), what they asked for, and which reply they got. Chat and sender ids
// come from req.Logger.
func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			d := time.Since(start)

			logger := log
			if !req.Logger.IsZero() {
				logger = req.Logger
			}
			handle := req.Username
			if handle == "" {
				handle = "-"
			}
			fields := []logx.Field{
				logx.String("handle", handle),
				logx.String("cmd", req.Command),
			}
			if req.Step != "" {
				fields = append(fields, logx.String("step", req.Step))
			}
			if req.Outcome != "" {
				fields = append(fields, logx.String("outcome", req.Outcome))
			}
			if req.Slots > 0 {
				fields = append(fields, logx.Int("slots", req.Slots))
			}
			fields = append(fields, logx.Duration("dur", d))

			switch {
			case err != nil:
				logger.Warn("request failed", append(fields, logx.Err(err))...)
			case d >= slowRequest:
				logger.Info("request slow", fields...)
			default:
				logger.Debug("request handled", fields...)
			}
			return err
		}
	}
}
