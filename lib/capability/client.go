// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hartmanng/camdelegate/lib/connection"
	"github.com/hartmanng/camdelegate/lib/protocol"
	"github.com/hartmanng/camdelegate/lib/service"
)

// Client makes remote calls on a capability socket. It implements
// Remote.
type Client struct {
	service *service.ServiceClient
}

// NewClient returns a client for the socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{service: service.NewServiceClient(socketPath)}
}

// classify maps a call error onto the protocol taxonomy: server error
// codes become their sentinels, everything that never produced a
// server answer becomes a TransportError.
func classify(action string, err error) error {
	if err == nil {
		return nil
	}
	var serviceErr *service.ServiceError
	if errors.As(err, &serviceErr) {
		if sentinel := protocol.SentinelForCode(serviceErr.Code); sentinel != nil {
			return fmt.Errorf("%w: %w", sentinel, serviceErr)
		}
		return serviceErr
	}
	return &protocol.TransportError{Op: action, Err: err}
}

func (c *Client) call(ctx context.Context, action string, fields map[string]any, result any) error {
	return classify(action, c.service.Call(ctx, action, fields, result))
}

// PermissionRequestHandle implements Remote.
func (c *Client) PermissionRequestHandle(ctx context.Context, permission string) (RequestHandle, error) {
	var response protocol.PermissionHandleResponse
	if err := c.call(ctx, protocol.ActionPermissionHandle, map[string]any{
		"permission": permission,
	}, &response); err != nil {
		return nil, err
	}
	return &handle{client: c, id: response.Handle, permission: response.Permission}, nil
}

// ConnectCaptureStream implements Remote.
func (c *Client) ConnectCaptureStream(ctx context.Context, target protocol.RenderTarget) error {
	return c.call(ctx, protocol.ActionConnectCaptureStream, map[string]any{
		"target": target,
	}, nil)
}

// PermissionStatus implements Remote.
func (c *Client) PermissionStatus(ctx context.Context, permission string) (protocol.PermissionState, error) {
	var response protocol.PermissionStatusResponse
	if err := c.call(ctx, protocol.ActionPermissionStatus, map[string]any{
		"permission": permission,
	}, &response); err != nil {
		return "", err
	}
	return response.State, nil
}

// StartForeground implements Remote.
func (c *Client) StartForeground(ctx context.Context) error {
	return c.call(ctx, protocol.ActionStartForeground, nil, nil)
}

// Status implements Remote.
func (c *Client) Status(ctx context.Context) (protocol.StatusResponse, error) {
	var response protocol.StatusResponse
	err := c.call(ctx, protocol.ActionStatus, nil, &response)
	return response, err
}

type handle struct {
	client     *Client
	id         string
	permission string
}

func (h *handle) Permission() string { return h.permission }

func (h *handle) Send(ctx context.Context, invocation Invocation) error {
	fields := map[string]any{
		"handle": h.id,
		"code":   invocation.Code,
		"launch": invocation.Launch,
	}
	if invocation.Completion != nil {
		fields["extras"] = map[string]protocol.CompletionReference{
			protocol.CompletionExtraKey: *invocation.Completion,
		}
	}
	return h.client.call(ctx, protocol.ActionSendHandle, fields, nil)
}

// Dialer binds to a capability socket. It implements
// connection.Binder[Remote].
type Dialer struct {
	socketPath string
	logger     *slog.Logger
}

// NewDialer returns a Dialer for the socket at socketPath.
func NewDialer(socketPath string, logger *slog.Logger) *Dialer {
	return &Dialer{socketPath: socketPath, logger: logger}
}

// Bind opens a bind stream. The binding stays up until either side
// closes the stream.
func (d *Dialer) Bind(ctx context.Context) (connection.Link[Remote], error) {
	var ack protocol.BindAck
	stream, err := service.NewServiceClient(d.socketPath).OpenStream(ctx, protocol.ActionBind, nil, &ack)
	if err != nil {
		return nil, classify(protocol.ActionBind, err)
	}

	binding := &binding{
		remote:  NewClient(d.socketPath),
		stream:  stream,
		session: ack.Session,
		done:    make(chan struct{}),
	}
	go binding.watch()
	d.logger.Debug("bind stream open", "session", ack.Session, "service", ack.Service)
	return binding, nil
}

type binding struct {
	remote  *Client
	stream  *service.Stream
	session string

	done      chan struct{}
	closeOnce sync.Once
}

func (b *binding) Remote() Remote { return b.remote }

func (b *binding) Done() <-chan struct{} { return b.done }

func (b *binding) Close() error {
	var err error
	b.closeOnce.Do(func() { err = b.stream.Close() })
	return err
}

// watch waits for the stream to end. The server never writes after
// the acknowledgement, so any read return means the binding is gone.
func (b *binding) watch() {
	defer close(b.done)
	var ignored any
	for {
		if err := b.stream.Receive(&ignored); err != nil {
			return
		}
	}
}
