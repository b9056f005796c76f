package types

import (
	"encoding/json"
	"time"
)

// Event types emitted by the chain. One Event row exists per
// (transaction, event type, msg index) triple.
const (
	EventTypeMessage         = "message"
	EventTypeTransfer        = "transfer"
	EventTypeCoinSpent       = "coin_spent"
	EventTypeCoinReceived    = "coin_received"
	EventTypeDelegate        = "delegate"
	EventTypeWithdrawRewards = "withdraw_rewards"
	EventTypeCreateValidator = "create_validator"
	EventTypeWasm            = "wasm"
	EventTypeExecute         = "execute"
	EventTypeInstantiate     = "instantiate"
	EventTypeMigrate         = "migrate"
	EventTypeIBCTransfer     = "ibc_transfer"
	EventTypeTx              = "tx"
)

// PrimaryMsgIndex marks the first message of a multi-message transaction.
// Sub-events carrying this index are authoritative for derivation.
const PrimaryMsgIndex = "0"

// Event is a single typed event attached to a transaction. Attributes only
// carry the keys relevant to the event type and are immutable once ingested.
type Event struct {
	TxHash     string            `json:"tx_hash"`
	Type       string            `json:"type"`
	MsgIndex   *string           `json:"msg_index,omitempty"`
	Attributes map[string]string `json:"attributes"`
}

// Attr returns the attribute value for key, with a presence flag.
func (e Event) Attr(key string) (string, bool) {
	v, ok := e.Attributes[key]
	return v, ok
}

// HasAttr reports whether the attribute exists and is non-empty.
func (e Event) HasAttr(key string) bool {
	v, ok := e.Attributes[key]
	return ok && v != ""
}

// IsPrimary reports whether the event belongs to the first message.
func (e Event) IsPrimary() bool {
	return e.MsgIndex != nil && *e.MsgIndex == PrimaryMsgIndex
}

// TransactionEnvelope is the per-transaction record written once by the
// ingestion pipeline at block-commit time and never mutated.
type TransactionEnvelope struct {
	TxHash       string          `json:"tx_hash"`
	Height       uint64          `json:"height"`
	BlockTime    time.Time       `json:"block_time"`
	Code         uint32          `json:"code"`
	TxIndex      uint32          `json:"tx_index"`
	Participants []string        `json:"participants,omitempty"`
	RawTx        json.RawMessage `json:"raw_tx,omitempty"`
}

// Succeeded reports whether the transaction executed without error.
func (t TransactionEnvelope) Succeeded() bool {
	return t.Code == 0
}

// Direction classifies a transaction relative to the queried address.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
	DirectionContract Direction = "contract"
	DirectionFailed   Direction = "failed"
	DirectionOther    Direction = "other"
)

// AttributionResult is the derived, human-meaningful view of a transaction.
// It is computed fresh per query and never persisted; any field the event set
// cannot support resolves to null rather than an error.
type AttributionResult struct {
	TxHash         string    `json:"tx_hash"`
	Height         uint64    `json:"height"`
	BlockTime      time.Time `json:"block_time"`
	Signer         *string   `json:"signer"`
	Recipient      *string   `json:"recipient"`
	Amount         *string   `json:"amount"`
	FeeAmount      *string   `json:"fee_amount"`
	MessageType    *string   `json:"message_type"`
	ContractAction *string   `json:"contract_action"`
	Direction      Direction `json:"direction"`
}

// Block is a minimal block header view served by the REST surface.
type Block struct {
	Height    uint64    `json:"height"`
	Hash      string    `json:"hash"`
	Proposer  string    `json:"proposer,omitempty"`
	BlockTime time.Time `json:"block_time"`
	NumTxs    uint32    `json:"num_txs"`
}

// AccountSummary aggregates an address's activity for the account endpoint.
type AccountSummary struct {
	Address         string     `json:"address"`
	TxCount         int64      `json:"tx_count"`
	FirstSeenHeight *uint64    `json:"first_seen_height"`
	LastSeenHeight  *uint64    `json:"last_seen_height"`
	LastSeenTime    *time.Time `json:"last_seen_time"`
}
