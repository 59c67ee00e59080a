// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jeranaias/quietchat/internal/catalog"
	"github.com/jeranaias/quietchat/internal/inference"
)

// Engine is the part of inference.Adapter the controller uses.
type Engine interface {
	Load(ctx context.Context, m catalog.ModelDescriptor, progress func(inference.Progress)) error
	Generate(ctx context.Context, history []inference.Turn, onToken func(string)) (string, error)
	Loaded() *catalog.ModelDescriptor
}

// Outcome says how a Send ended.
type Outcome int

const (
	OutcomeNone Outcome = iota // nothing was sent
	OutcomeCompleted
	OutcomeCancelled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "none"
	}
}

// =============================================================================
// CANCEL MANAGEMENT
// =============================================================================

// cancelManager guards the cancel function of the running generation.
type cancelManager struct {
	mu         sync.Mutex
	cancelFunc context.CancelFunc
}

func (cm *cancelManager) set(fn context.CancelFunc) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.cancelFunc = fn
}

// cancel invokes and clears the stored function. Safe to call repeatedly.
func (cm *cancelManager) cancel() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.cancelFunc != nil {
		cm.cancelFunc()
		cm.cancelFunc = nil
	}
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller runs the send flow against a State.
type Controller struct {
	state   *State
	engine  Engine
	logger  *slog.Logger
	cancels cancelManager
	sending atomic.Bool
}

// NewController creates a controller.
func NewController(state *State, engine Engine, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{state: state, engine: engine, logger: logger}
}

// State returns the controlled state.
func (c *Controller) State() *State {
	return c.state
}

// Load loads m through the engine, mirroring progress into the state
// flags. onUpdate runs after each progress change and may be nil.
func (c *Controller) Load(ctx context.Context, m catalog.ModelDescriptor, onUpdate func()) error {
	notify := func() {
		if onUpdate != nil {
			onUpdate()
		}
	}
	c.state.SetLoadProgress(0, "starting")
	notify()

	err := c.engine.Load(ctx, m, func(p inference.Progress) {
		c.state.SetLoadProgress(p.Percent, p.Status)
		notify()
	})
	if err != nil {
		c.state.SetLoadProgress(0, "failed")
		notify()
		return err
	}
	c.state.SetModel(c.engine.Loaded())
	notify()
	return nil
}

// Send appends text as a user message and streams the reply into a new
// assistant message. onUpdate runs after every delta and may be nil.
//
// Blank text or no loaded model sends nothing. A cancelled generation
// keeps its partial reply and is not an error.
func (c *Controller) Send(ctx context.Context, text string, onUpdate func()) (Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return OutcomeNone, nil
	}
	if c.engine.Loaded() == nil {
		return OutcomeNone, inference.ErrNoModel
	}
	if !c.sending.CompareAndSwap(false, true) {
		return OutcomeNone, inference.ErrBusy
	}
	defer c.sending.Store(false)

	c.state.Append(NewMessage(RoleUser, text))
	history := c.history()
	c.state.Append(NewMessage(RoleAssistant, ""))
	c.state.SetGenerating(true)
	defer c.state.SetGenerating(false)

	genCtx, cancel := context.WithCancel(ctx)
	c.cancels.set(cancel)
	defer c.cancels.cancel()

	_, err := c.engine.Generate(genCtx, history, func(delta string) {
		c.state.AppendToLast(delta)
		if onUpdate != nil {
			onUpdate()
		}
	})

	switch {
	case err == nil:
		return OutcomeCompleted, nil
	case inference.IsCancelled(err):
		c.dropEmptyReply()
		c.logger.Debug("GENERATION_CANCELLED")
		return OutcomeCancelled, nil
	default:
		c.dropEmptyReply()
		c.logger.Warn("GENERATION_FAILED", "kind", inference.KindOf(err).String(), "error", err)
		return OutcomeFailed, err
	}
}

// Cancel stops the running generation, if any.
func (c *Controller) Cancel() {
	c.cancels.cancel()
}

// Generating reports whether a Send is in flight.
func (c *Controller) Generating() bool {
	return c.sending.Load()
}

// Clear cancels any generation and wipes the conversation.
func (c *Controller) Clear() {
	c.Cancel()
	c.state.Clear()
}

// history is the system prompt followed by every message so far.
func (c *Controller) history() []inference.Turn {
	msgs := c.state.Messages()
	turns := make([]inference.Turn, 0, len(msgs)+1)
	if p := c.state.Preferences().SystemPrompt; p != "" {
		turns = append(turns, inference.Turn{Role: inference.RoleSystem, Content: p})
	}
	for _, m := range msgs {
		turns = append(turns, inference.Turn{Role: string(m.Role), Content: m.Content()})
	}
	return turns
}

// dropEmptyReply removes the assistant placeholder if nothing streamed in.
func (c *Controller) dropEmptyReply() {
	if last := c.state.Last(); last != nil && last.Role == RoleAssistant && last.Len() == 0 {
		c.state.RemoveLast()
	}
}
