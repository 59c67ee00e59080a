// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package detect

import (
	"context"
	"strings"
	"testing"

	"github.com/jeranaias/quietchat/internal/catalog"
)

func TestRecommend(t *testing.T) {
	tests := []struct {
		name    string
		profile HardwareProfile
		want    catalog.Category
	}{
		{"unknown memory", HardwareProfile{}, catalog.CategorySmall},
		{"4 GB laptop", HardwareProfile{MemoryGB: 4, Backend: BackendCPU}, catalog.CategoryTiny},
		{"16 GB cpu", HardwareProfile{MemoryGB: 16, Backend: BackendCPU}, catalog.CategoryMedium},
		{"64 GB workstation", HardwareProfile{MemoryGB: 64, Backend: BackendCPU}, catalog.CategoryLarge},
		{"cuda sized by vram", HardwareProfile{MemoryGB: 64, Backend: BackendCUDA, VRAMGB: 8}, catalog.CategorySmall},
		{"metal unified", HardwareProfile{MemoryGB: 32, Backend: BackendMetal, VRAMGB: 32}, catalog.CategoryLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Recommend(tt.profile); got != tt.want {
				t.Errorf("Recommend() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseNvidiaSmi(t *testing.T) {
	name, vram, ok := parseNvidiaSmi("GeForce RTX 4090, 24564\nGeForce RTX 3060, 12288\n")
	if !ok {
		t.Fatal("parseNvidiaSmi failed")
	}
	if name != "NVIDIA GeForce RTX 4090" {
		t.Errorf("name = %q", name)
	}
	if vram < 23.9 || vram > 24.0 {
		t.Errorf("vram = %.2f, want ~24", vram)
	}

	if _, _, ok := parseNvidiaSmi("garbage"); ok {
		t.Error("garbage output should not parse")
	}
}

func TestAppleChipName(t *testing.T) {
	if got := appleChipName("Chipset Model: Apple M2 Pro"); got != "Apple M2 Pro" {
		t.Errorf("appleChipName = %q", got)
	}
	if got := appleChipName("nothing"); got != "Apple Silicon" {
		t.Errorf("appleChipName = %q", got)
	}
}

func TestDetectNeverFails(t *testing.T) {
	p := Detect(context.Background())
	if p.Cores <= 0 {
		t.Errorf("Cores = %d", p.Cores)
	}
	if p.Backend == "" {
		t.Error("Backend not set")
	}
	if !strings.Contains(p.String(), "backend") {
		t.Errorf("String() = %q", p.String())
	}
}
