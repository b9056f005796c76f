package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/fystack/explorer-api/internal/query"
	"github.com/fystack/explorer-api/pkg/common/types"
)

var ErrNotFound = errors.New("record not found")

type TransactionRepo struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewTransactionRepo(db *gorm.DB, timeout time.Duration) *TransactionRepo {
	return &TransactionRepo{db: db, timeout: timeout}
}

// MaxHeight returns the current chain tip as seen by the ingestion pipeline.
func (r *TransactionRepo) MaxHeight(ctx context.Context) (uint64, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var height *uint64
	err := r.db.WithContext(ctx).
		Model(&TransactionRow{}).
		Select("max(height)").
		Scan(&height).Error
	if err != nil {
		return 0, err
	}
	if height == nil {
		return 0, nil
	}
	return *height, nil
}

// FindByHash loads one envelope with its ordered participant list.
func (r *TransactionRepo) FindByHash(ctx context.Context, txHash string) (*types.TransactionEnvelope, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var row TransactionRow
	frag, args := query.And(query.Equals("tx_hash", txHash)).SQL()
	err := r.db.WithContext(ctx).Where(frag, args...).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var participants []ParticipantRow
	err = r.db.WithContext(ctx).
		Where(frag, args...).
		Order("ordinal ASC").
		Find(&participants).Error
	if err != nil {
		return nil, err
	}

	addresses := make([]string, 0, len(participants))
	for _, p := range participants {
		addresses = append(addresses, p.Address)
	}

	env := row.ToEnvelope(addresses)
	return &env, nil
}

// ListByParticipant returns envelopes touching address inside the height
// range (lower, upper], newest first. The bounds are pre-clamped by the feed
// window; limit guards the scan.
func (r *TransactionRepo) ListByParticipant(
	ctx context.Context,
	address string,
	lowerHeight, upperHeight uint64,
	limit int,
) ([]types.TransactionEnvelope, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	frag, args := query.And(
		query.Equals("transaction_participants.address", address),
		query.Range("transaction_participants.height", lowerHeight+1, upperHeight),
	).SQL()

	var rows []TransactionRow
	err := r.db.WithContext(ctx).
		Model(&TransactionRow{}).
		Joins("JOIN transaction_participants ON transaction_participants.tx_hash = transactions.tx_hash").
		Where(frag, args...).
		Order("transactions.height DESC, transactions.tx_index DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	envelopes := make([]types.TransactionEnvelope, 0, len(rows))
	for _, row := range rows {
		envelopes = append(envelopes, row.ToEnvelope(nil))
	}
	return envelopes, nil
}
