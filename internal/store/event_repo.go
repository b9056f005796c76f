package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/fystack/explorer-api/internal/query"
	"github.com/fystack/explorer-api/pkg/common/types"
)

type EventRepo struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewEventRepo(db *gorm.DB, timeout time.Duration) *EventRepo {
	return &EventRepo{db: db, timeout: timeout}
}

// ListByTxHash returns the full event set of one transaction.
func (r *EventRepo) ListByTxHash(ctx context.Context, txHash string) ([]types.Event, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var rows []EventRow
	frag, args := query.And(query.Equals("tx_hash", txHash)).SQL()
	if err := r.db.WithContext(ctx).Where(frag, args...).Find(&rows).Error; err != nil {
		return nil, err
	}

	events := make([]types.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.ToEvent())
	}
	return events, nil
}

// ListByTxHashes returns event sets for several transactions keyed by hash.
func (r *EventRepo) ListByTxHashes(ctx context.Context, txHashes []string) (map[string][]types.Event, error) {
	if len(txHashes) == 0 {
		return map[string][]types.Event{}, nil
	}

	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	hashes := make([]any, 0, len(txHashes))
	for _, h := range txHashes {
		hashes = append(hashes, h)
	}

	var rows []EventRow
	frag, args := query.And(query.In("tx_hash", hashes...)).SQL()
	if err := r.db.WithContext(ctx).Where(frag, args...).Find(&rows).Error; err != nil {
		return nil, err
	}

	events := make(map[string][]types.Event, len(txHashes))
	for _, row := range rows {
		events[row.TxHash] = append(events[row.TxHash], row.ToEvent())
	}
	return events, nil
}
