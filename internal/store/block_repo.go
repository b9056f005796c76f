package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/fystack/explorer-api/internal/query"
	"github.com/fystack/explorer-api/pkg/common/types"
)

type BlockRepo struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewBlockRepo(db *gorm.DB, timeout time.Duration) *BlockRepo {
	return &BlockRepo{db: db, timeout: timeout}
}

func (r *BlockRepo) Latest(ctx context.Context) (*types.Block, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var row BlockRow
	err := r.db.WithContext(ctx).Order("height DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	block := row.ToBlock()
	return &block, nil
}

func (r *BlockRepo) ByHeight(ctx context.Context, height uint64) (*types.Block, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var row BlockRow
	frag, args := query.And(query.Equals("height", height)).SQL()
	err := r.db.WithContext(ctx).Where(frag, args...).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	block := row.ToBlock()
	return &block, nil
}
