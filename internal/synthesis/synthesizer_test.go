package synthesis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/awebisam/chemezy/internal/facts"
)

func TestParseOutcome(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{
			name:    "clean object",
			content: `{"products":[{"formula":"NaCl","name":"Salt","phase":"solid"}],"effects":["crystallizing"],"state_change":null,"explanation":"salt forms"}`,
		},
		{
			name:    "fenced in prose",
			content: "Here is the result:\n```json\n{\"products\":[{\"formula\":\"H2\",\"name\":\"Hydrogen\",\"phase\":\"gas\"}],\"effects\":[\"bubbling\"],\"explanation\":\"electrolysis\"}\n```",
		},
		{
			name:    "legacy state and description keys",
			content: `{"products":[{"formula":"CO2","name":"Carbon dioxide","state":"gas"}],"effects":[],"description":"combustion byproduct"}`,
		},
		{
			name:    "no json",
			content: "I cannot answer that.",
			wantErr: true,
		},
		{
			name:    "missing products",
			content: `{"effects":["glowing"],"explanation":"something"}`,
			wantErr: true,
		},
		{
			name:    "product without formula",
			content: `{"products":[{"name":"mystery"}],"effects":[],"explanation":"odd"}`,
			wantErr: true,
		},
		{
			name:    "missing explanation",
			content: `{"products":[{"formula":"X","name":"X","phase":"solid"}],"effects":[]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := ParseOutcome(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseOutcome failed: %v", err)
			}
			if len(outcome.Products) == 0 {
				t.Error("expected at least one product")
			}
			if outcome.Explanation == "" {
				t.Error("expected explanation")
			}
		})
	}
}

func TestParseOutcome_LegacyPhaseKey(t *testing.T) {
	outcome, err := ParseOutcome(`{"products":[{"formula":"CO2","name":"Carbon dioxide","state":"gas"}],"effects":[],"description":"x"}`)
	if err != nil {
		t.Fatalf("ParseOutcome failed: %v", err)
	}
	if outcome.Products[0].Phase != "gas" {
		t.Errorf("expected state key to map to phase, got %q", outcome.Products[0].Phase)
	}
}

func TestParseOutcome_SkipsBlankEffects(t *testing.T) {
	outcome, err := ParseOutcome(`{"products":[{"formula":"X","name":"X","phase":"solid"}],"effects":["glow","  ",""],"explanation":"x"}`)
	if err != nil {
		t.Fatalf("ParseOutcome failed: %v", err)
	}
	if len(outcome.Effects) != 1 || outcome.Effects[0] != "glow" {
		t.Errorf("unexpected effects: %v", outcome.Effects)
	}
}

func TestOpenAIClient_Synthesize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"products\":[{\"formula\":\"NaCl(aq)\",\"name\":\"Saltwater\",\"phase\":\"liquid\"}],\"effects\":[\"dissolving\"],\"state_change\":null,\"explanation\":\"salt dissolves\"}"}}]}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewOpenAIClient failed: %v", err)
	}

	outcome, err := client.Synthesize(context.Background(), &Request{
		Reactants:   []string{"H2O", "NaCl"},
		Environment: "earth",
		Facts:       &facts.Context{Facts: map[string]facts.Fact{"H2O": {Formula: "H2O", Source: "PubChem"}}},
	})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(outcome.Effects) != 1 || outcome.Effects[0] != "dissolving" {
		t.Errorf("unexpected effects: %v", outcome.Effects)
	}
}

func TestOpenAIClient_Synthesize_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{APIKey: "k", BaseURL: server.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewOpenAIClient failed: %v", err)
	}

	if _, err := client.Synthesize(context.Background(), &Request{Reactants: []string{"X"}}); err == nil {
		t.Fatal("expected error on HTTP 503")
	}
}

func TestNewOpenAIClient_RequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIClient(Config{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestFallback_Deterministic(t *testing.T) {
	f := &Fallback{}
	req := &Request{Reactants: []string{"H2O", "NaCl"}, Environment: "earth"}

	first, err := f.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	second, err := f.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if first.Explanation != second.Explanation || len(first.Products) != len(second.Products) {
		t.Error("fallback outcome is not deterministic")
	}
	if len(first.Products) != 2 {
		t.Errorf("expected one product per reactant, got %d", len(first.Products))
	}
}
