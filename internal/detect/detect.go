// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package detect

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/quietchat/internal/catalog"
)

// detectTimeout bounds every external command.
const detectTimeout = 10 * time.Second

// =============================================================================
// BACKEND
// =============================================================================

// Backend is the acceleration path inference will likely use.
type Backend string

const (
	BackendCPU   Backend = "cpu"
	BackendCUDA  Backend = "cuda"
	BackendMetal Backend = "metal"
)

// =============================================================================
// HARDWARE PROFILE
// =============================================================================

// HardwareProfile summarises the machine for model selection.
type HardwareProfile struct {
	MemoryGB    float64
	Cores       int
	Backend     Backend
	GPUName     string
	VRAMGB      float64
	Recommended catalog.Category
}

// String returns a one-line description.
func (p HardwareProfile) String() string {
	gpu := "no GPU"
	if p.GPUName != "" {
		gpu = p.GPUName
		if p.VRAMGB > 0 {
			gpu += fmt.Sprintf(" (%.0f GB)", p.VRAMGB)
		}
	}
	return fmt.Sprintf("%.0f GB RAM, %d cores, %s, %s backend", p.MemoryGB, p.Cores, gpu, p.Backend)
}

var (
	profileOnce sync.Once
	profile     HardwareProfile
)

// Profile returns the machine profile, detecting it on first use.
func Profile(ctx context.Context) HardwareProfile {
	profileOnce.Do(func() {
		profile = Detect(ctx)
	})
	return profile
}

// Detect probes the machine. It never fails; unknown values stay zero.
func Detect(ctx context.Context) HardwareProfile {
	ctx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	p := HardwareProfile{
		MemoryGB: float64(totalMemory()) / (1 << 30),
		Cores:    runtime.NumCPU(),
		Backend:  BackendCPU,
	}

	if name, vram, ok := detectNvidia(ctx); ok {
		p.Backend = BackendCUDA
		p.GPUName = name
		p.VRAMGB = vram
	} else if name, ok := detectAppleSilicon(ctx); ok {
		p.Backend = BackendMetal
		p.GPUName = name
		p.VRAMGB = p.MemoryGB
	}

	p.Recommended = Recommend(p)
	return p
}

// Recommend picks the largest category the profile can comfortably run.
// CUDA machines are sized by VRAM, everything else by system memory.
func Recommend(p HardwareProfile) catalog.Category {
	budget := p.MemoryGB
	if p.Backend == BackendCUDA && p.VRAMGB > 0 {
		budget = p.VRAMGB
	}
	if budget <= 0 {
		budget = 8
	}
	switch {
	case budget >= 24:
		return catalog.CategoryLarge
	case budget >= 12:
		return catalog.CategoryMedium
	case budget >= 6:
		return catalog.CategorySmall
	default:
		return catalog.CategoryTiny
	}
}

// =============================================================================
// GPU DETECTION
// =============================================================================

// detectNvidia queries nvidia-smi for the first GPU.
func detectNvidia(ctx context.Context) (name string, vramGB float64, ok bool) {
	paths := []string{"nvidia-smi"}
	if runtime.GOOS == "windows" {
		paths = append(paths,
			`C:\Windows\System32\nvidia-smi.exe`,
			`C:\Program Files\NVIDIA Corporation\NVSMI\nvidia-smi.exe`)
	}

	var output []byte
	var err error
	for _, path := range paths {
		output, err = exec.CommandContext(ctx, path,
			"--query-gpu=name,memory.total",
			"--format=csv,noheader,nounits").Output()
		if err == nil || ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return "", 0, false
	}
	return parseNvidiaSmi(string(output))
}

// parseNvidiaSmi parses "name, memMiB" CSV output.
func parseNvidiaSmi(out string) (string, float64, bool) {
	line := strings.TrimSpace(strings.Split(strings.TrimSpace(out), "\n")[0])
	parts := strings.Split(line, ", ")
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" {
		return "", 0, false
	}
	mib, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return "", 0, false
	}
	return "NVIDIA " + strings.TrimSpace(parts[0]), mib / 1024, true
}

var appleChips = []string{
	"M4 Ultra", "M4 Max", "M4 Pro", "M4",
	"M3 Ultra", "M3 Max", "M3 Pro", "M3",
	"M2 Ultra", "M2 Max", "M2 Pro", "M2",
	"M1 Ultra", "M1 Max", "M1 Pro", "M1",
}

// detectAppleSilicon identifies the chip on arm64 macOS.
func detectAppleSilicon(ctx context.Context) (string, bool) {
	if runtime.GOOS != "darwin" || runtime.GOARCH != "arm64" {
		return "", false
	}
	output, err := exec.CommandContext(ctx, "system_profiler", "SPDisplaysDataType").Output()
	if err != nil {
		return "Apple Silicon", true
	}
	return appleChipName(string(output)), true
}

func appleChipName(out string) string {
	for _, chip := range appleChips {
		if strings.Contains(out, chip) {
			return "Apple " + chip
		}
	}
	return "Apple Silicon"
}
