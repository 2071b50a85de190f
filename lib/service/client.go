// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/hartmanng/camdelegate/lib/codec"
)

// dialTimeout bounds the connect phase only.
const dialTimeout = 5 * time.Second

// responseReadTimeout is how long Call waits for a reply after writing
// its request: the server's read and write budgets combined.
const responseReadTimeout = 45 * time.Second

// maxResponseSize bounds a single-response reply.
const maxResponseSize = 1024 * 1024

// ServiceError is returned when the server answers with ok=false.
type ServiceError struct {
	Action  string
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("service error on %q (%s): %s", e.Action, e.Code, e.Message)
	}
	return fmt.Sprintf("service error on %q: %s", e.Action, e.Message)
}

// ServiceClient talks to one service socket. It holds no connection;
// every Call dials anew, matching the server's one-request-per-
// connection model.
type ServiceClient struct {
	socketPath string
}

// NewServiceClient returns a client for the socket at socketPath.
func NewServiceClient(socketPath string) *ServiceClient {
	return &ServiceClient{socketPath: socketPath}
}

// SocketPath returns the socket the client dials.
func (c *ServiceClient) SocketPath() string { return c.socketPath }

// Call sends one request and decodes the reply.
//
// fields holds the action-specific request fields; Call adds "action".
// Pass nil for actions without parameters. On ok=true, the reply's data
// is decoded into result when both are non-nil. On ok=false, Call
// returns a *ServiceError. Dial, encode, and read failures are returned
// as plain wrapped errors.
func (c *ServiceClient) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(buildRequest(action, fields)); err != nil {
		return fmt.Errorf("calling %q on %s: writing request: %w", action, c.socketPath, err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return fmt.Errorf("calling %q on %s: reading response: %w", action, c.socketPath, err)
	}

	return decodeResponse(action, response, result)
}

// OpenStream sends a streaming request and waits for the server's
// opening envelope. On success the returned Stream carries the rest of
// the exchange; the opening envelope's data, if any, is decoded into
// result. The caller must Close the stream.
func (c *ServiceClient) OpenStream(ctx context.Context, action string, fields map[string]any, result any) (*Stream, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening %q on %s: %w", action, c.socketPath, err)
	}

	stream := newStream(conn, codec.NewDecoder(conn))
	if err := stream.Send(buildRequest(action, fields)); err != nil {
		stream.Close()
		return nil, fmt.Errorf("opening %q on %s: writing request: %w", action, c.socketPath, err)
	}

	conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	var response Response
	if err := stream.Receive(&response); err != nil {
		stream.Close()
		return nil, fmt.Errorf("opening %q on %s: reading response: %w", action, c.socketPath, err)
	}
	conn.SetReadDeadline(time.Time{})

	if err := decodeResponse(action, response, result); err != nil {
		stream.Close()
		return nil, err
	}
	return stream, nil
}

func (c *ServiceClient) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	return conn, nil
}

func buildRequest(action string, fields map[string]any) map[string]any {
	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action
	return request
}

func decodeResponse(action string, response Response, result any) error {
	if !response.OK {
		return &ServiceError{
			Action:  action,
			Code:    response.Code,
			Message: response.Error,
		}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}
	return nil
}
