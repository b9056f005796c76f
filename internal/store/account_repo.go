package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/fystack/explorer-api/internal/query"
	"github.com/fystack/explorer-api/pkg/common/types"
)

type AccountRepo struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewAccountRepo(db *gorm.DB, timeout time.Duration) *AccountRepo {
	return &AccountRepo{db: db, timeout: timeout}
}

// Summary aggregates an address's participation footprint.
func (r *AccountRepo) Summary(ctx context.Context, address string) (*types.AccountSummary, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	frag, args := query.And(query.Equals("address", address)).SQL()

	var agg struct {
		TxCount   int64
		MinHeight *uint64
		MaxHeight *uint64
	}
	err := r.db.WithContext(ctx).
		Model(&ParticipantRow{}).
		Select("count(*) AS tx_count, min(height) AS min_height, max(height) AS max_height").
		Where(frag, args...).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}

	summary := &types.AccountSummary{
		Address:         address,
		TxCount:         agg.TxCount,
		FirstSeenHeight: agg.MinHeight,
		LastSeenHeight:  agg.MaxHeight,
	}

	if agg.MaxHeight != nil {
		var row TransactionRow
		heightFrag, heightArgs := query.And(query.Equals("height", *agg.MaxHeight)).SQL()
		err := r.db.WithContext(ctx).
			Where(heightFrag, heightArgs...).
			Order("tx_index DESC").
			First(&row).Error
		if err == nil {
			t := row.BlockTime.UTC()
			summary.LastSeenTime = &t
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	return summary, nil
}
