package reaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/awebisam/chemezy/internal/storage"
)

// Ledger is the append-only record of first-ever effect occurrences. The
// storage backend's uniqueness guarantee arbitrates concurrent claims; the
// ledger never checks-then-inserts.
type Ledger struct {
	store  storage.Storage
	logger *slog.Logger
}

// NewLedger creates a discovery ledger on top of a storage backend.
func NewLedger(store storage.Storage, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, logger: logger}
}

// TryRecordFirst attempts to record userID as the first-ever discoverer of
// effect. Returns true iff this call won the race; a prior record is a
// normal outcome, not an error.
func (l *Ledger) TryRecordFirst(ctx context.Context, effect string, userID int64, cacheKey string) (bool, error) {
	record := &storage.DiscoveryRecord{
		Effect:       effect,
		UserID:       userID,
		CacheKey:     cacheKey,
		DiscoveredAt: time.Now().UTC(),
	}

	err := l.store.CreateDiscovery(ctx, record)
	if err == nil {
		l.logger.Info("world-first discovery recorded",
			slog.String("effect", effect),
			slog.Int64("user_id", userID),
		)
		return true, nil
	}
	if errors.Is(err, storage.ErrDiscoveryExists) {
		return false, nil
	}
	return false, fmt.Errorf("record discovery %q: %w", effect, err)
}

// First returns the discovery record for an effect, if any.
func (l *Ledger) First(ctx context.Context, effect string) (*storage.DiscoveryRecord, error) {
	return l.store.GetDiscovery(ctx, effect)
}

// Recent lists discovery records, newest first.
func (l *Ledger) Recent(ctx context.Context, limit, offset int) ([]*storage.DiscoveryRecord, error) {
	return l.store.ListDiscoveries(ctx, limit, offset)
}

// Revoke removes a discovery record. This is an administrative exception
// to the append-only rule and is always audit-logged.
func (l *Ledger) Revoke(ctx context.Context, effect string, adminID int64, reason string) error {
	if err := l.store.DeleteDiscovery(ctx, effect); err != nil {
		return err
	}
	l.logger.Warn("discovery revoked",
		slog.String("effect", effect),
		slog.Int64("admin_id", adminID),
		slog.String("reason", reason),
	)
	return nil
}
