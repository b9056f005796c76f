// Package attribution reconstructs the canonical signer/recipient/amount/
// direction view of a transaction from its unordered bag of typed events.
//
// Each output field is governed by an ordered rule table; the first rule whose
// predicate finds a matching event wins and later rules are not consulted.
// Resolution is pure: the same event set always yields the same result, and
// missing data resolves to null fields, never an error.
package attribution

import (
	"strings"

	"github.com/samber/lo"

	"github.com/fystack/explorer-api/pkg/common/types"
)

// Event attribute keys consulted by the rule tables.
const (
	attrAction          = "action"
	attrAmount          = "amount"
	attrContractAddress = "_contract_address"
	attrContractAddrAlt = "contract_address"
	attrDelegator       = "delegator"
	attrFeePayer        = "fee_payer"
	attrOfferAmount     = "offer_amount"
	attrPairFee         = "pair_creation_fee"
	attrPoolFee         = "pool_creation_fee"
	attrReceiver        = "receiver"
	attrRecipient       = "recipient"
	attrReturnAmount    = "return_amount"
	attrSender          = "sender"
	attrSpender         = "spender"
	attrValidator       = "validator"
)

var contractEventTypes = []string{
	types.EventTypeExecute,
	types.EventTypeWasm,
	types.EventTypeInstantiate,
	types.EventTypeMigrate,
}

// view is the resolver's working state for one transaction: the envelope, its
// full event set, and the address the caller is asking about.
type view struct {
	env     types.TransactionEnvelope
	events  []types.Event
	address string
}

// first returns the first event of the given type satisfying pred. A nil pred
// matches any event of the type.
func (v view) first(eventType string, pred func(types.Event) bool) (types.Event, bool) {
	for _, e := range v.events {
		if e.Type != eventType {
			continue
		}
		if pred == nil || pred(e) {
			return e, true
		}
	}
	return types.Event{}, false
}

func (v view) ofType(eventType string) []types.Event {
	return lo.Filter(v.events, func(e types.Event, _ int) bool {
		return e.Type == eventType
	})
}

// attrEquals builds a predicate matching events whose attribute equals value
// (case-insensitive, addresses are compared as written on chain otherwise).
func attrEquals(key, value string) func(types.Event) bool {
	return func(e types.Event) bool {
		v, ok := e.Attr(key)
		return ok && strings.EqualFold(v, value)
	}
}

// rule is one (predicate, extractor) entry of a field's priority table.
type rule struct {
	name    string
	extract func(view) *string
}

// firstMatch evaluates rules in order, short-circuiting on the first non-null
// extraction.
func firstMatch(v view, rules []rule) *string {
	for _, r := range rules {
		if out := r.extract(v); out != nil {
			return out
		}
	}
	return nil
}

// attrOf extracts a single attribute from the first event the locator finds.
func attrOf(locate func(view) (types.Event, bool), keys ...string) func(view) *string {
	return func(v view) *string {
		e, ok := locate(v)
		if !ok {
			return nil
		}
		for _, key := range keys {
			if val, present := e.Attr(key); present && val != "" {
				out := val
				return &out
			}
		}
		return nil
	}
}

func typed(eventType string) func(view) (types.Event, bool) {
	return func(v view) (types.Event, bool) { return v.first(eventType, nil) }
}

func typedPrimary(eventType string) func(view) (types.Event, bool) {
	return func(v view) (types.Event, bool) {
		return v.first(eventType, types.Event.IsPrimary)
	}
}

// Signer: the fee payer recorded on the top-level tx event outranks the sender
// of the primary message.
var signerRules = []rule{
	{name: "tx fee payer", extract: attrOf(typed(types.EventTypeTx), attrFeePayer)},
	{name: "primary message sender", extract: attrOf(typedPrimary(types.EventTypeMessage), attrSender)},
}

var recipientRules = []rule{
	{name: "created validator", extract: attrOf(typed(types.EventTypeCreateValidator), attrValidator)},
	{name: "delegation validator", extract: attrOf(typed(types.EventTypeDelegate), attrValidator)},
	{name: "rewards delegator", extract: attrOf(typed(types.EventTypeWithdrawRewards), attrDelegator)},
	{name: "transfer recipient", extract: attrOf(typed(types.EventTypeTransfer), attrRecipient)},
	{name: "ibc receiver", extract: attrOf(typed(types.EventTypeIBCTransfer), attrReceiver)},
	{name: "contract address", extract: contractAddress},
	{name: "transfer to queried address", extract: transferToSelf},
}

var amountRules = []rule{
	{name: "swap offer/return", extract: swapAmount},
	{name: "delegate amount", extract: coinAttr(typed(types.EventTypeDelegate), attrAmount)},
	{name: "create validator amount", extract: coinAttr(typed(types.EventTypeCreateValidator), attrAmount)},
	{name: "rewards amount", extract: coinAttr(typed(types.EventTypeWithdrawRewards), attrAmount)},
	{name: "coins spent by address", extract: spentByAddress},
	{name: "coins received by address", extract: receivedByAddress},
	{name: "pool creation fee", extract: poolCreationFee},
	{name: "transfer from address", extract: transferFromAddress},
}

func contractAddress(v view) *string {
	for _, eventType := range contractEventTypes {
		if out := attrOf(typed(eventType), attrContractAddress, attrContractAddrAlt)(v); out != nil {
			return out
		}
	}
	return nil
}

func transferToSelf(v view) *string {
	e, ok := v.first(types.EventTypeTransfer, attrEquals(attrRecipient, v.address))
	if !ok {
		return nil
	}
	if out, present := e.Attr(attrRecipient); present && out != "" {
		return &out
	}
	return nil
}

// coinAttr extracts an amount attribute and normalizes it through the coin
// parser.
func coinAttr(locate func(view) (types.Event, bool), key string) func(view) *string {
	return func(v view) *string {
		raw := attrOf(locate, key)(v)
		if raw == nil {
			return nil
		}
		return normalizeAmount(*raw)
	}
}

func swapAmount(v view) *string {
	for _, e := range v.ofType(types.EventTypeWasm) {
		for _, key := range []string{attrOfferAmount, attrReturnAmount} {
			if raw, ok := e.Attr(key); ok && raw != "" {
				return normalizeAmount(raw)
			}
		}
	}
	return nil
}

func spentByAddress(v view) *string {
	e, ok := v.first(types.EventTypeCoinSpent, attrEquals(attrSpender, v.address))
	if !ok {
		return nil
	}
	if raw, present := e.Attr(attrAmount); present {
		return normalizeAmount(raw)
	}
	return nil
}

func receivedByAddress(v view) *string {
	e, ok := v.first(types.EventTypeCoinReceived, attrEquals(attrReceiver, v.address))
	if !ok {
		return nil
	}
	if raw, present := e.Attr(attrAmount); present {
		return normalizeAmount(raw)
	}
	return nil
}

func poolCreationFee(v view) *string {
	for _, e := range v.ofType(types.EventTypeWasm) {
		for _, key := range []string{attrPoolFee, attrPairFee} {
			if raw, ok := e.Attr(key); ok && raw != "" {
				return normalizeAmount(raw)
			}
		}
	}
	return nil
}

func transferFromAddress(v view) *string {
	e, ok := v.first(types.EventTypeTransfer, attrEquals(attrSender, v.address))
	if !ok {
		return nil
	}
	if raw, present := e.Attr(attrAmount); present {
		return normalizeAmount(raw)
	}
	return nil
}

// fee is populated only when the queried address is the recorded fee payer.
// The deduction itself is the top-level coin_spent event that carries no
// msg_index (message-scoped spends always carry one).
func fee(v view) *string {
	if v.address == "" {
		return nil
	}

	payer := firstMatch(v, signerRules[:1])
	if payer == nil || !strings.EqualFold(*payer, v.address) {
		return nil
	}

	e, ok := v.first(types.EventTypeCoinSpent, func(e types.Event) bool {
		return e.MsgIndex == nil && attrEquals(attrSpender, v.address)(e)
	})
	if !ok {
		return nil
	}
	if raw, present := e.Attr(attrAmount); present {
		return normalizeAmount(raw)
	}
	return nil
}

// Message type reads the primary message's action attribute. Ingestion
// flattens the structured action field into this attribute, so there is no
// second source to consult here.
var messageTypeRule = []rule{
	{name: "primary message action", extract: attrOf(typedPrimary(types.EventTypeMessage), attrAction)},
}

func contractAction(v view) *string {
	for _, eventType := range []string{types.EventTypeWasm, types.EventTypeExecute} {
		if out := attrOf(typed(eventType), attrAction)(v); out != nil {
			return out
		}
	}
	return nil
}

func direction(v view) types.Direction {
	if !v.env.Succeeded() {
		return types.DirectionFailed
	}

	spent := func(e types.Event) bool {
		return e.IsPrimary() && attrEquals(attrSpender, v.address)(e)
	}
	if _, ok := v.first(types.EventTypeCoinSpent, spent); ok {
		return types.DirectionSent
	}

	received := func(e types.Event) bool {
		return e.IsPrimary() && attrEquals(attrReceiver, v.address)(e)
	}
	if _, ok := v.first(types.EventTypeCoinReceived, received); ok {
		return types.DirectionReceived
	}

	for _, eventType := range contractEventTypes {
		if _, ok := v.first(eventType, types.Event.IsPrimary); ok {
			return types.DirectionContract
		}
	}

	return types.DirectionOther
}

// Resolve derives the attribution view of one transaction relative to the
// queried address. The event set should be the transaction's complete set;
// partial sets degrade to null fields.
func Resolve(env types.TransactionEnvelope, events []types.Event, address string) types.AttributionResult {
	v := view{env: env, events: events, address: address}

	return types.AttributionResult{
		TxHash:         env.TxHash,
		Height:         env.Height,
		BlockTime:      env.BlockTime,
		Signer:         firstMatch(v, signerRules),
		Recipient:      firstMatch(v, recipientRules),
		Amount:         firstMatch(v, amountRules),
		FeeAmount:      fee(v),
		MessageType:    firstMatch(v, messageTypeRule),
		ContractAction: contractAction(v),
		Direction:      direction(v),
	}
}
