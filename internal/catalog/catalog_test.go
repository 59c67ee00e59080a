// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package catalog

import "testing"

func TestLookup(t *testing.T) {
	m, ok := Lookup("LLAMA3.2:1B")
	if !ok {
		t.Fatal("Lookup(LLAMA3.2:1B) not found")
	}
	if m.DisplayName != "Llama 3.2 1B" {
		t.Errorf("DisplayName = %q", m.DisplayName)
	}
	if _, ok := Lookup("nope"); ok {
		t.Error("Lookup(nope) should fail")
	}
}

func TestAllIsACopy(t *testing.T) {
	all := All()
	all[0].ID = "mutated"
	if All()[0].ID == "mutated" {
		t.Error("All() exposed the internal table")
	}
}

func TestEveryCategoryHasModels(t *testing.T) {
	for _, c := range []Category{CategoryTiny, CategorySmall, CategoryMedium, CategoryLarge} {
		if len(ForCategory(c)) == 0 {
			t.Errorf("no models in category %s", c)
		}
	}
}

func TestDescriptorsAreComplete(t *testing.T) {
	seen := map[string]bool{}
	for _, m := range All() {
		if m.ID == "" || m.DisplayName == "" || m.SizeLabel == "" || m.ContextWindow <= 0 {
			t.Errorf("incomplete descriptor %+v", m)
		}
		if seen[m.ID] {
			t.Errorf("duplicate id %s", m.ID)
		}
		seen[m.ID] = true
	}
}
