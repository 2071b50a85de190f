// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hartmanng/camdelegate/lib/grants"
	"github.com/hartmanng/camdelegate/lib/protocol"
	"github.com/hartmanng/camdelegate/lib/signal"
)

// Decision is how a consent prompt ended.
type Decision int

const (
	// Dismissed means the prompt went away without an answer: the
	// user backed out or the screen was torn down.
	Dismissed Decision = iota
	Granted
	Denied
)

func (d Decision) String() string {
	switch d {
	case Dismissed:
		return "dismissed"
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// Prompter shows the consent UI for one permission. It returns
// Dismissed, or an error, when the UI goes away without an answer.
// It must return promptly once ctx is cancelled.
type Prompter interface {
	Prompt(ctx context.Context, permission string) (Decision, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, permission string) (Decision, error)

// Prompt calls f.
func (f PrompterFunc) Prompt(ctx context.Context, permission string) (Decision, error) {
	return f(ctx, permission)
}

// Request is one permission prompt to run.
type Request struct {
	Permission string
	Completion *protocol.CompletionReference
	Launch     protocol.LaunchOptions
}

// DefaultSignalTimeout bounds delivery of a completion signal.
const DefaultSignalTimeout = 5 * time.Second

// HandlerConfig wires a Handler.
type HandlerConfig struct {
	Prompter  Prompter
	Grants    *grants.Store
	Deliverer signal.Deliverer

	// SignalTimeout bounds the completion-signal call. Zero means
	// DefaultSignalTimeout.
	SignalTimeout time.Duration

	Logger *slog.Logger
}

// Handler is the permission prompt handler.
type Handler struct {
	config HandlerConfig
}

// NewHandler returns a Handler.
func NewHandler(config HandlerConfig) *Handler {
	if config.SignalTimeout <= 0 {
		config.SignalTimeout = DefaultSignalTimeout
	}
	return &Handler{config: config}
}

// Run performs one prompt flow. A request without a permission fails
// with protocol.ErrMalformedRequest before anything is shown, and its
// completion reference is never fired. Otherwise the reference, when
// present, is fired exactly once as the flow ends, including when the
// prompt is dismissed, fails, or ctx is cancelled.
func (h *Handler) Run(ctx context.Context, request Request) error {
	logger := h.config.Logger.With("permission", request.Permission)

	if request.Permission == "" {
		logger.Error("prompt request without a permission, aborting")
		return protocol.ErrMalformedRequest
	}

	completion := signal.NewOnce(request.Completion, h.config.Deliverer)
	defer h.teardown(ctx, logger, completion)

	if h.config.Grants.Granted(request.Permission) {
		// The platform answers an already-granted request without
		// showing anything.
		logger.Info("prompt result", "granted", true, "shown", false)
		return nil
	}

	logger.Info("showing consent prompt",
		"completion", request.Completion != nil,
		"allow_background_start", request.Launch.AllowBackgroundStart,
	)
	decision, err := h.config.Prompter.Prompt(ctx, request.Permission)
	if err != nil {
		logger.Warn("consent prompt torn down", "error", err)
		return nil
	}
	if decision == Dismissed {
		logger.Info("consent prompt dismissed without a result")
		return nil
	}

	granted := decision == Granted
	logger.Info("prompt result", "granted", granted, "shown", true)
	if err := h.config.Grants.Record(request.Permission, granted); err != nil {
		logger.Error("recording permission decision", "error", err)
	}
	return nil
}

func (h *Handler) teardown(ctx context.Context, logger *slog.Logger, completion *signal.Once) {
	signalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.config.SignalTimeout)
	defer cancel()

	fired, err := completion.Fire(signalCtx)
	switch {
	case err != nil:
		logger.Warn("completion signal not delivered", "error", err)
	case fired:
		logger.Info("completion signal sent")
	}
}
