package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/autodraw-agent/pkg/commsutil"
	"github.com/morezero/autodraw-agent/pkg/dispatcher"
)

const subscribeLogPrefix = "server:subscribe"

// Subscribe serves router requests on subject. Every request runs under
// requestTimeout, shortened to the caller's ctx.timeoutMs when that is smaller.
func Subscribe(ctx context.Context, nc *comms.Conn, subject string, rt *dispatcher.Router, requestTimeout time.Duration) (*comms.Subscription, error) {
	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		var req dispatcher.Request
		if err := commsutil.DecodePayload(msg.Data, &req); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to decode request: %v", subscribeLogPrefix, err))
			respond(msg, &dispatcher.Response{
				Ok: false,
				Error: &dispatcher.ErrorDetail{
					Code:    "INVALID_REQUEST",
					Message: "Failed to decode request",
				},
			})
			return
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}

		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		if req.Ctx != nil && req.Ctx.TimeoutMs > 0 {
			if d := time.Duration(req.Ctx.TimeoutMs) * time.Millisecond; d < requestTimeout {
				cancel()
				reqCtx, cancel = context.WithTimeout(ctx, d)
			}
		}
		defer cancel()

		respond(msg, rt.Route(reqCtx, &req))
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", subscribeLogPrefix, subject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", subscribeLogPrefix, subject))
	return sub, nil
}

func respond(msg *comms.Msg, resp *dispatcher.Response) {
	if err := commsutil.RespondJSON(msg, resp); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to respond: %v", subscribeLogPrefix, err))
	}
}
