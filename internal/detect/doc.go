// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package detect builds a HardwareProfile for the current machine and
// recommends a model size category from it.
//
// Detection is heuristic: system memory comes from the kernel, NVIDIA
// GPUs from nvidia-smi and Apple Silicon from system_profiler. Anything
// that fails falls back to a CPU-only profile.
//
// # Usage
//
//	profile := detect.Profile(ctx) // computed once per process
//	fmt.Println(profile.Recommended)
package detect
