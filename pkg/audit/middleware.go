package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hazyhaar/redflag/pkg/trace"
)

// Endpoint is an auditable operation.
type Endpoint func(ctx context.Context, request any) (any, error)

// Middleware wraps an Endpoint: measures duration, captures params/result/error,
// and logs asynchronously via the Logger. A nil logger disables auditing.
func Middleware(logger Logger, actionName string) func(Endpoint) Endpoint {
	return func(next Endpoint) Endpoint {
		if logger == nil {
			return next
		}
		return func(ctx context.Context, request any) (any, error) {
			start := time.Now()

			resp, err := next(ctx, request)

			who := actorFrom(ctx)
			entry := &Entry{
				Action:     actionName,
				Transport:  who.transport,
				Actor:      who.name,
				RequestID:  trace.RequestID(ctx),
				DurationMs: time.Since(start).Milliseconds(),
			}

			if params, e := json.Marshal(request); e == nil {
				entry.Parameters = string(params)
			}
			if err != nil {
				entry.Error = err.Error()
				entry.Status = "error"
			} else {
				entry.Status = "success"
				if result, e := json.Marshal(resp); e == nil {
					entry.Result = string(result)
				}
			}

			logger.LogAsync(entry)
			return resp, err
		}
	}
}

// Do runs fn as the named audited action.
func Do[Req, Resp any](ctx context.Context, logger Logger, action string, req Req, fn func(context.Context, Req) (Resp, error)) (Resp, error) {
	ep := Middleware(logger, action)(func(ctx context.Context, r any) (any, error) {
		return fn(ctx, r.(Req))
	})
	out, err := ep(ctx, req)
	if err != nil {
		var zero Resp
		return zero, err
	}
	return out.(Resp), nil
}
