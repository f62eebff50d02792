package reaction

import "testing"

func TestComputeKey_OrderIndependent(t *testing.T) {
	a := ComputeKey([]string{"H2O", "NaCl"}, "Earth", "")
	b := ComputeKey([]string{"NaCl", "H2O"}, "Earth", "")
	if a != b {
		t.Errorf("reactant order changed the key: %s vs %s", a, b)
	}
}

func TestComputeKey_EnvironmentNormalization(t *testing.T) {
	tests := []struct {
		name string
		env  string
		same bool
	}{
		{"case", "EARTH", true},
		{"whitespace", "  earth  ", true},
		{"inner whitespace", "earth\t (normal)", false},
		{"different environment", "vacuum", false},
	}

	base := ComputeKey([]string{"H2O"}, "earth", "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := ComputeKey([]string{"H2O"}, tt.env, "")
			if (key == base) != tt.same {
				t.Errorf("env %q: same=%v, want %v", tt.env, key == base, tt.same)
			}
		})
	}
}

func TestComputeKey_CollapsedInnerWhitespace(t *testing.T) {
	a := ComputeKey([]string{"H2O"}, "earth  (normal)", "")
	b := ComputeKey([]string{"H2O"}, "Earth (Normal)", "")
	if a != b {
		t.Error("inner whitespace and case should normalize to the same key")
	}
}

func TestComputeKey_CatalystDistinguishes(t *testing.T) {
	without := ComputeKey([]string{"H2O2"}, "earth", "")
	with := ComputeKey([]string{"H2O2"}, "earth", "MnO2")
	if without == with {
		t.Error("catalyst should change the key")
	}
}

func TestComputeKey_DuplicatesPreserved(t *testing.T) {
	single := ComputeKey([]string{"H2"}, "earth", "")
	double := ComputeKey([]string{"H2", "H2"}, "earth", "")
	if single == double {
		t.Error("reactants form a multiset; duplicates must affect the key")
	}
}

func TestComputeKey_Deterministic(t *testing.T) {
	a := ComputeKey([]string{"H2O", "NaCl"}, "earth", "")
	b := ComputeKey([]string{"H2O", "NaCl"}, "earth", "")
	if a != b {
		t.Error("identical inputs must produce identical keys")
	}
	if len(a) != 64 {
		t.Errorf("expected a 64-char hex digest, got %d chars", len(a))
	}
}

func TestNormalizeReactants(t *testing.T) {
	got := NormalizeReactants([]string{" H2O ", "", "NaCl", "  "})
	if len(got) != 2 || got[0] != "H2O" || got[1] != "NaCl" {
		t.Errorf("unexpected normalization: %v", got)
	}
}

func TestNormalizeEnvironment_Default(t *testing.T) {
	if got := NormalizeEnvironment("   "); got != "earth" {
		t.Errorf("expected default environment, got %q", got)
	}
}
