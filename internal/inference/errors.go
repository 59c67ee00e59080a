// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package inference

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/jeranaias/quietchat/internal/guard"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// Kind categorises adapter failures.
type Kind int

const (
	KindGeneric Kind = iota
	KindDeviceLost
	KindNetwork
	KindBlocked
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindDeviceLost:
		return "device-lost"
	case KindNetwork:
		return "network"
	case KindBlocked:
		return "blocked"
	case KindCancelled:
		return "cancelled"
	default:
		return "generic"
	}
}

// Sentinel errors.
var (
	ErrNoModel   = errors.New("no model loaded")
	ErrBusy      = errors.New("a generation is already running")
	ErrCancelled = errors.New("generation cancelled")
)

// Error is a classified adapter failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Remedier is implemented by engine errors that carry their own advice.
type Remedier interface {
	Remedy() string
}

// Remedy returns advice to show the user. Engine advice wins for network
// and generic failures.
func (e *Error) Remedy() string {
	switch e.Kind {
	case KindDeviceLost:
		return "The GPU ran out of memory or was reset. Reload the model or pick a smaller one."
	case KindBlocked:
		return "The request was stopped by the network gate."
	case KindCancelled:
		return ""
	}
	var r Remedier
	if errors.As(e.Err, &r) {
		if advice := r.Remedy(); advice != "" {
			return advice
		}
	}
	if e.Kind == KindNetwork {
		return "Could not reach the inference server. Check that it is running."
	}
	return "Something went wrong. Try again."
}

// deviceLostMarkers are substrings engines use for GPU memory loss.
var deviceLostMarkers = []string{
	"out of memory",
	"device lost",
	"device_lost",
	"devicelost",
	"cudamalloc",
	"cuda error",
	"metal error",
	"vk_error_device_lost",
	"requires more system memory",
	"insufficient memory",
	"gpu hang",
}

// Classify wraps err as an *Error for op. Already classified errors are
// returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ie *Error
	if errors.As(err, &ie) {
		return err
	}
	return &Error{Kind: kindOf(err), Op: op, Err: err}
}

func kindOf(err error) Kind {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled) {
		return KindCancelled
	}
	if errors.Is(err, guard.ErrBlocked) {
		return KindBlocked
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range deviceLostMarkers {
		if strings.Contains(msg, marker) {
			return KindDeviceLost
		}
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	return KindGeneric
}

// KindOf returns the classification of err, KindGeneric for nil.
func KindOf(err error) Kind {
	if err == nil {
		return KindGeneric
	}
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return kindOf(err)
}

// IsCancelled reports whether err is a user cancellation.
func IsCancelled(err error) bool {
	return err != nil && KindOf(err) == KindCancelled
}

// IsRecoverable reports whether reloading the model may fix err.
func IsRecoverable(err error) bool {
	return err != nil && KindOf(err) == KindDeviceLost
}
