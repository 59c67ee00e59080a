// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package catalog lists the models quietchat offers.
package catalog

import "strings"

// Requirement is the RAM/GPU tier a model needs.
type Requirement int

const (
	RequirementLow Requirement = iota
	RequirementMedium
	RequirementHigh
)

func (r Requirement) String() string {
	switch r {
	case RequirementLow:
		return "low"
	case RequirementMedium:
		return "medium"
	case RequirementHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Category groups models by size.
type Category int

const (
	CategoryTiny Category = iota
	CategorySmall
	CategoryMedium
	CategoryLarge
)

func (c Category) String() string {
	switch c {
	case CategoryTiny:
		return "tiny"
	case CategorySmall:
		return "small"
	case CategoryMedium:
		return "medium"
	case CategoryLarge:
		return "large"
	default:
		return "unknown"
	}
}

// ModelDescriptor describes one selectable model.
type ModelDescriptor struct {
	ID            string
	DisplayName   string
	SizeLabel     string
	Requirement   Requirement
	Category      Category
	ContextWindow int
}

var models = []ModelDescriptor{
	{ID: "qwen2.5:0.5b", DisplayName: "Qwen 2.5 0.5B", SizeLabel: "398 MB", Requirement: RequirementLow, Category: CategoryTiny, ContextWindow: 32768},
	{ID: "llama3.2:1b", DisplayName: "Llama 3.2 1B", SizeLabel: "1.3 GB", Requirement: RequirementLow, Category: CategoryTiny, ContextWindow: 131072},
	{ID: "gemma2:2b", DisplayName: "Gemma 2 2B", SizeLabel: "1.6 GB", Requirement: RequirementLow, Category: CategorySmall, ContextWindow: 8192},
	{ID: "llama3.2:3b", DisplayName: "Llama 3.2 3B", SizeLabel: "2.0 GB", Requirement: RequirementMedium, Category: CategorySmall, ContextWindow: 131072},
	{ID: "phi3.5:3.8b", DisplayName: "Phi 3.5 Mini", SizeLabel: "2.2 GB", Requirement: RequirementMedium, Category: CategorySmall, ContextWindow: 131072},
	{ID: "mistral:7b", DisplayName: "Mistral 7B", SizeLabel: "4.1 GB", Requirement: RequirementMedium, Category: CategoryMedium, ContextWindow: 32768},
	{ID: "qwen2.5:7b", DisplayName: "Qwen 2.5 7B", SizeLabel: "4.7 GB", Requirement: RequirementMedium, Category: CategoryMedium, ContextWindow: 32768},
	{ID: "llama3.1:8b", DisplayName: "Llama 3.1 8B", SizeLabel: "4.9 GB", Requirement: RequirementHigh, Category: CategoryMedium, ContextWindow: 131072},
	{ID: "qwen2.5:14b", DisplayName: "Qwen 2.5 14B", SizeLabel: "9.0 GB", Requirement: RequirementHigh, Category: CategoryLarge, ContextWindow: 32768},
	{ID: "gemma2:27b", DisplayName: "Gemma 2 27B", SizeLabel: "16 GB", Requirement: RequirementHigh, Category: CategoryLarge, ContextWindow: 8192},
}

// All returns every descriptor in display order.
func All() []ModelDescriptor {
	out := make([]ModelDescriptor, len(models))
	copy(out, models)
	return out
}

// Lookup finds a descriptor by ID, ignoring case.
func Lookup(id string) (ModelDescriptor, bool) {
	for _, m := range models {
		if strings.EqualFold(m.ID, id) {
			return m, true
		}
	}
	return ModelDescriptor{}, false
}

// ForCategory returns the descriptors in c.
func ForCategory(c Category) []ModelDescriptor {
	var out []ModelDescriptor
	for _, m := range models {
		if m.Category == c {
			out = append(out, m)
		}
	}
	return out
}

// Custom describes a model that is not in the table, such as one already
// present on a local server.
func Custom(id string) ModelDescriptor {
	return ModelDescriptor{
		ID:            id,
		DisplayName:   id,
		SizeLabel:     "unknown",
		Requirement:   RequirementMedium,
		Category:      CategoryMedium,
		ContextWindow: 8192,
	}
}
