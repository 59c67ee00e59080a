// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !linux && !darwin

package detect

// totalMemory is not implemented on this platform.
func totalMemory() uint64 {
	return 0
}
