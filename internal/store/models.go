package store

import (
	"time"

	"github.com/fystack/explorer-api/pkg/common/types"
)

// EventRow mirrors the events table: one row per
// (transaction, event type, msg index) triple, append-only.
type EventRow struct {
	TxHash     string            `gorm:"column:tx_hash"`
	EventType  string            `gorm:"column:event_type"`
	MsgIndex   *string           `gorm:"column:msg_index"`
	Attributes map[string]string `gorm:"column:attributes;serializer:json"`
}

func (EventRow) TableName() string { return "events" }

func (r EventRow) ToEvent() types.Event {
	attrs := r.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	return types.Event{
		TxHash:     r.TxHash,
		Type:       r.EventType,
		MsgIndex:   r.MsgIndex,
		Attributes: attrs,
	}
}

// TransactionRow mirrors the transactions table, written once at block-commit
// time by the ingestion pipeline.
type TransactionRow struct {
	TxHash    string    `gorm:"column:tx_hash;primaryKey"`
	Height    uint64    `gorm:"column:height"`
	BlockTime time.Time `gorm:"column:block_time"`
	Code      uint32    `gorm:"column:code"`
	TxIndex   uint32    `gorm:"column:tx_index"`
	RawTx     []byte    `gorm:"column:raw_tx"`
}

func (TransactionRow) TableName() string { return "transactions" }

func (r TransactionRow) ToEnvelope(participants []string) types.TransactionEnvelope {
	return types.TransactionEnvelope{
		TxHash:       r.TxHash,
		Height:       r.Height,
		BlockTime:    r.BlockTime.UTC(),
		Code:         r.Code,
		TxIndex:      r.TxIndex,
		Participants: participants,
		RawTx:        r.RawTx,
	}
}

// ParticipantRow mirrors the transaction_participants table: the ordered list
// of addresses a transaction touched, used as attribution fallback and for
// per-address lookups.
type ParticipantRow struct {
	Address string `gorm:"column:address"`
	TxHash  string `gorm:"column:tx_hash"`
	Height  uint64 `gorm:"column:height"`
	Ordinal int    `gorm:"column:ordinal"`
}

func (ParticipantRow) TableName() string { return "transaction_participants" }

type BlockRow struct {
	Height    uint64    `gorm:"column:height;primaryKey"`
	Hash      string    `gorm:"column:hash"`
	Proposer  string    `gorm:"column:proposer"`
	BlockTime time.Time `gorm:"column:block_time"`
	NumTxs    uint32    `gorm:"column:num_txs"`
}

func (BlockRow) TableName() string { return "blocks" }

func (r BlockRow) ToBlock() types.Block {
	return types.Block{
		Height:    r.Height,
		Hash:      r.Hash,
		Proposer:  r.Proposer,
		BlockTime: r.BlockTime.UTC(),
		NumTxs:    r.NumTxs,
	}
}
