package host

import (
	"context"
	"fmt"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/autodraw-agent/pkg/commsutil"
)

const logPrefix = "host:comms_host"

// DefaultCallTimeout bounds one bridge call when the caller has no deadline.
const DefaultCallTimeout = 5 * time.Second

// CommsHost reaches a host bridge over COMMS request/reply.
type CommsHost struct {
	nc       *comms.Conn
	instance string
	timeout  time.Duration
}

// NewCommsHostParams holds parameters for NewCommsHost.
type NewCommsHostParams struct {
	Conn        *comms.Conn
	Instance    string
	CallTimeout time.Duration
}

// NewCommsHost creates a Host backed by the bridge serving Instance.
func NewCommsHost(params NewCommsHostParams) *CommsHost {
	timeout := params.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &CommsHost{nc: params.Conn, instance: params.Instance, timeout: timeout}
}

// Attach binds to an already running host instance.
func (h *CommsHost) Attach(ctx context.Context) (Document, error) {
	return h.open(ctx, OpAttach)
}

// Launch starts a host instance and binds to it.
func (h *CommsHost) Launch(ctx context.Context) (Document, error) {
	return h.open(ctx, OpLaunch)
}

func (h *CommsHost) open(ctx context.Context, op string) (Document, error) {
	reply, err := h.call(ctx, op, Request{})
	if err != nil {
		return nil, err
	}
	if reply.Session == "" {
		return nil, &Error{Op: op, Code: CodeRejected, Message: "bridge returned no session"}
	}
	return &commsDocument{host: h, session: reply.Session}, nil
}

func (h *CommsHost) call(ctx context.Context, op string, req Request) (*Reply, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	var reply Reply
	subject := commsutil.BuildHostSubject(h.instance, op)
	if err := commsutil.RequestJSON(ctx, h.nc, subject, req, &reply); err != nil {
		return nil, fmt.Errorf("%s - %s: %w", logPrefix, op, err)
	}
	if err := replyError(op, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

type commsDocument struct {
	host    *CommsHost
	session string
}

func (d *commsDocument) Name(ctx context.Context) (string, error) {
	reply, err := d.host.call(ctx, OpProbe, Request{Session: d.session})
	if err != nil {
		return "", err
	}
	return reply.Document, nil
}

func (d *commsDocument) Version(ctx context.Context) (string, error) {
	reply, err := d.host.call(ctx, OpProbe, Request{Session: d.session})
	if err != nil {
		return "", err
	}
	return reply.Version, nil
}

func (d *commsDocument) Submit(ctx context.Context, payload string) error {
	_, err := d.host.call(ctx, OpSubmit, Request{Session: d.session, Payload: payload})
	return err
}

func (d *commsDocument) Busy(ctx context.Context) (bool, error) {
	reply, err := d.host.call(ctx, OpBusy, Request{Session: d.session})
	if err != nil {
		return false, err
	}
	return reply.Busy, nil
}

func (d *commsDocument) HasBlock(ctx context.Context, name string) (bool, error) {
	reply, err := d.host.call(ctx, OpBlock, Request{Session: d.session, Name: name})
	if err != nil {
		return false, err
	}
	return reply.Found, nil
}

func (d *commsDocument) Blocks(ctx context.Context) ([]string, error) {
	reply, err := d.host.call(ctx, OpBlocks, Request{Session: d.session})
	if err != nil {
		return nil, err
	}
	return reply.Blocks, nil
}

func (d *commsDocument) Release(ctx context.Context) error {
	_, err := d.host.call(ctx, OpRelease, Request{Session: d.session})
	return err
}
