// Package conformance provides a shared test suite that every storage backend must pass.
// Usage: call RunAll(t, factory) where factory creates a fresh store for each sub-test.
package conformance

import (
	"testing"

	"github.com/awebisam/chemezy/internal/storage"
)

// StoreFactory creates a fresh, empty storage.Storage for each sub-test.
type StoreFactory func() storage.Storage

// RunAll runs every conformance test category against the given store factory.
func RunAll(t *testing.T, newStore StoreFactory) {
	t.Helper()

	t.Run("Outcome", func(t *testing.T) { RunOutcomeTests(t, newStore) })
	t.Run("Discovery", func(t *testing.T) { RunDiscoveryTests(t, newStore) })
	t.Run("Template", func(t *testing.T) { RunTemplateTests(t, newStore) })
	t.Run("UserAward", func(t *testing.T) { RunUserAwardTests(t, newStore) })
	t.Run("Stats", func(t *testing.T) { RunStatsTests(t, newStore) })
	t.Run("Error", func(t *testing.T) { RunErrorTests(t, newStore) })
}
