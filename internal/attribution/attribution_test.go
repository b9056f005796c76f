package attribution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fystack/explorer-api/pkg/common/types"
)

func strPtr(s string) *string { return &s }

func event(eventType string, msgIndex *string, attrs map[string]string) types.Event {
	return types.Event{
		TxHash:     "AB12",
		Type:       eventType,
		MsgIndex:   msgIndex,
		Attributes: attrs,
	}
}

func envelope(code uint32) types.TransactionEnvelope {
	return types.TransactionEnvelope{
		TxHash:    "AB12",
		Height:    4200,
		BlockTime: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Code:      code,
	}
}

func TestResolve_SignerPriority(t *testing.T) {
	events := []types.Event{
		event(types.EventTypeMessage, strPtr("0"), map[string]string{"sender": "cosmos1sender"}),
		event(types.EventTypeTx, nil, map[string]string{"fee_payer": "cosmos1payer"}),
	}

	res := Resolve(envelope(0), events, "cosmos1sender")
	require.NotNil(t, res.Signer)
	assert.Equal(t, "cosmos1payer", *res.Signer, "fee payer outranks message sender")
}

func TestResolve_SignerFallsBackToMessageSender(t *testing.T) {
	events := []types.Event{
		event(types.EventTypeMessage, strPtr("0"), map[string]string{"sender": "cosmos1sender"}),
	}

	res := Resolve(envelope(0), events, "cosmos1sender")
	require.NotNil(t, res.Signer)
	assert.Equal(t, "cosmos1sender", *res.Signer)
}

func TestResolve_SignerIgnoresNonPrimaryMessage(t *testing.T) {
	events := []types.Event{
		event(types.EventTypeMessage, strPtr("1"), map[string]string{"sender": "cosmos1other"}),
	}

	res := Resolve(envelope(0), events, "cosmos1other")
	assert.Nil(t, res.Signer)
}

func TestResolve_RecipientPriority(t *testing.T) {
	tests := []struct {
		name     string
		events   []types.Event
		expected string
	}{
		{
			name: "delegation validator beats transfer recipient",
			events: []types.Event{
				event(types.EventTypeTransfer, strPtr("0"), map[string]string{"recipient": "cosmos1recv"}),
				event(types.EventTypeDelegate, strPtr("0"), map[string]string{"validator": "cosmosvaloper1x"}),
			},
			expected: "cosmosvaloper1x",
		},
		{
			name: "withdraw rewards delegator beats transfer recipient",
			events: []types.Event{
				event(types.EventTypeTransfer, strPtr("0"), map[string]string{"recipient": "cosmos1recv"}),
				event(types.EventTypeWithdrawRewards, strPtr("0"), map[string]string{"delegator": "cosmos1del"}),
			},
			expected: "cosmos1del",
		},
		{
			name: "transfer recipient beats ibc receiver",
			events: []types.Event{
				event(types.EventTypeIBCTransfer, strPtr("0"), map[string]string{"receiver": "osmo1recv"}),
				event(types.EventTypeTransfer, strPtr("0"), map[string]string{"recipient": "cosmos1recv"}),
			},
			expected: "cosmos1recv",
		},
		{
			name: "contract address when only wasm fired",
			events: []types.Event{
				event(types.EventTypeExecute, strPtr("0"), map[string]string{"_contract_address": "cosmos1contract"}),
			},
			expected: "cosmos1contract",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Resolve(envelope(0), tt.events, "cosmos1addr")
			require.NotNil(t, res.Recipient)
			assert.Equal(t, tt.expected, *res.Recipient)
		})
	}
}

func TestResolve_AmountPriority(t *testing.T) {
	addr := "cosmos1addr"

	tests := []struct {
		name     string
		events   []types.Event
		expected string
	}{
		{
			name: "swap offer amount wins over coin_spent",
			events: []types.Event{
				event(types.EventTypeCoinSpent, strPtr("0"), map[string]string{"spender": addr, "amount": "500uatom"}),
				event(types.EventTypeWasm, strPtr("0"), map[string]string{"offer_amount": "1000uosmo"}),
			},
			expected: "1000uosmo",
		},
		{
			name: "delegation amount wins over coin_spent",
			events: []types.Event{
				event(types.EventTypeCoinSpent, strPtr("0"), map[string]string{"spender": addr, "amount": "500uatom"}),
				event(types.EventTypeDelegate, strPtr("0"), map[string]string{"amount": "2500uatom"}),
			},
			expected: "2500uatom",
		},
		{
			name: "coin_spent only counts for the queried spender",
			events: []types.Event{
				event(types.EventTypeCoinSpent, strPtr("0"), map[string]string{"spender": "cosmos1else", "amount": "1uatom"}),
				event(types.EventTypeCoinReceived, strPtr("0"), map[string]string{"receiver": addr, "amount": "77uatom"}),
			},
			expected: "77uatom",
		},
		{
			name: "sender-side transfer amount is the last resort",
			events: []types.Event{
				event(types.EventTypeTransfer, strPtr("0"), map[string]string{"sender": addr, "amount": "9000uatom"}),
			},
			expected: "9000uatom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Resolve(envelope(0), tt.events, addr)
			require.NotNil(t, res.Amount)
			assert.Equal(t, tt.expected, *res.Amount)
		})
	}
}

func TestResolve_AmountNormalizesCoinList(t *testing.T) {
	addr := "cosmos1addr"
	events := []types.Event{
		event(types.EventTypeCoinSpent, strPtr("0"), map[string]string{
			"spender": addr,
			"amount":  "1000uatom,25ibc/27394FB092D2EC",
		}),
	}

	res := Resolve(envelope(0), events, addr)
	require.NotNil(t, res.Amount)
	assert.Equal(t, "1000uatom", *res.Amount)
}

func TestResolve_FeeOnlyForFeePayer(t *testing.T) {
	payer := "cosmos1payer"
	events := []types.Event{
		event(types.EventTypeTx, nil, map[string]string{"fee_payer": payer}),
		event(types.EventTypeCoinSpent, nil, map[string]string{"spender": payer, "amount": "150uatom"}),
		event(types.EventTypeCoinSpent, strPtr("0"), map[string]string{"spender": payer, "amount": "1000uatom"}),
	}

	res := Resolve(envelope(0), events, payer)
	require.NotNil(t, res.FeeAmount)
	assert.Equal(t, "150uatom", *res.FeeAmount, "fee comes from the coin_spent without msg_index")

	other := Resolve(envelope(0), events, "cosmos1other")
	assert.Nil(t, other.FeeAmount, "non-payer never sees a fee")
}

func TestResolve_MessageType(t *testing.T) {
	events := []types.Event{
		event(types.EventTypeMessage, strPtr("1"), map[string]string{"action": "/cosmos.gov.v1.MsgVote"}),
		event(types.EventTypeMessage, strPtr("0"), map[string]string{"action": "/cosmos.bank.v1beta1.MsgSend"}),
	}

	res := Resolve(envelope(0), events, "cosmos1addr")
	require.NotNil(t, res.MessageType)
	assert.Equal(t, "/cosmos.bank.v1beta1.MsgSend", *res.MessageType)
}

func TestResolve_Direction(t *testing.T) {
	addr := "cosmos1addr"

	tests := []struct {
		name     string
		code     uint32
		events   []types.Event
		expected types.Direction
	}{
		{
			name: "spender at msg index 0 is sent",
			events: []types.Event{
				event(types.EventTypeCoinSpent, strPtr("0"), map[string]string{"spender": addr, "amount": "1uatom"}),
			},
			expected: types.DirectionSent,
		},
		{
			name: "failed overrides everything",
			code: 5,
			events: []types.Event{
				event(types.EventTypeCoinSpent, strPtr("0"), map[string]string{"spender": addr, "amount": "1uatom"}),
			},
			expected: types.DirectionFailed,
		},
		{
			name: "receiver at msg index 0 is received",
			events: []types.Event{
				event(types.EventTypeCoinReceived, strPtr("0"), map[string]string{"receiver": addr, "amount": "1uatom"}),
			},
			expected: types.DirectionReceived,
		},
		{
			name: "wasm at msg index 0 is contract",
			events: []types.Event{
				event(types.EventTypeWasm, strPtr("0"), map[string]string{"action": "swap"}),
			},
			expected: types.DirectionContract,
		},
		{
			name: "spend by someone else at a later msg index is other",
			events: []types.Event{
				event(types.EventTypeCoinSpent, strPtr("1"), map[string]string{"spender": addr, "amount": "1uatom"}),
			},
			expected: types.DirectionOther,
		},
		{
			name:     "no events at all is other",
			events:   nil,
			expected: types.DirectionOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Resolve(envelope(tt.code), tt.events, addr)
			assert.Equal(t, tt.expected, res.Direction)
		})
	}
}

func TestResolve_FailedTxStillResolvesSignerAndMessageType(t *testing.T) {
	events := []types.Event{
		event(types.EventTypeTx, nil, map[string]string{"fee_payer": "cosmos1payer"}),
		event(types.EventTypeMessage, strPtr("0"), map[string]string{
			"sender": "cosmos1payer",
			"action": "/cosmos.bank.v1beta1.MsgSend",
		}),
	}

	res := Resolve(envelope(13), events, "cosmos1payer")
	assert.Equal(t, types.DirectionFailed, res.Direction)
	require.NotNil(t, res.Signer)
	assert.Equal(t, "cosmos1payer", *res.Signer)
	require.NotNil(t, res.MessageType)
	assert.Equal(t, "/cosmos.bank.v1beta1.MsgSend", *res.MessageType)
}

func TestResolve_MissingDataYieldsNullsNotErrors(t *testing.T) {
	res := Resolve(envelope(0), nil, "cosmos1addr")

	assert.Nil(t, res.Signer)
	assert.Nil(t, res.Recipient)
	assert.Nil(t, res.Amount)
	assert.Nil(t, res.FeeAmount)
	assert.Nil(t, res.MessageType)
	assert.Nil(t, res.ContractAction)
	assert.Equal(t, types.DirectionOther, res.Direction)
}

func TestResolve_Idempotent(t *testing.T) {
	addr := "cosmos1addr"
	events := []types.Event{
		event(types.EventTypeTx, nil, map[string]string{"fee_payer": addr}),
		event(types.EventTypeMessage, strPtr("0"), map[string]string{"sender": addr, "action": "/cosmos.bank.v1beta1.MsgSend"}),
		event(types.EventTypeCoinSpent, nil, map[string]string{"spender": addr, "amount": "25uatom"}),
		event(types.EventTypeCoinSpent, strPtr("0"), map[string]string{"spender": addr, "amount": "1000uatom"}),
		event(types.EventTypeTransfer, strPtr("0"), map[string]string{"sender": addr, "recipient": "cosmos1recv", "amount": "1000uatom"}),
	}

	first := Resolve(envelope(0), events, addr)
	second := Resolve(envelope(0), events, addr)
	assert.Equal(t, first, second)
}

func TestParseCoins(t *testing.T) {
	coins := parseCoins("1000uatom, 42ibc/ABCDEF0123, bogus, 7uosmo")
	require.Len(t, coins, 3)
	assert.Equal(t, "1000", coins[0].Amount.String())
	assert.Equal(t, "uatom", coins[0].Denom)
	assert.Equal(t, "ibc/ABCDEF0123", coins[1].Denom)
	assert.Equal(t, "uosmo", coins[2].Denom)
}
