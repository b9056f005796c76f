package feed

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/fystack/explorer-api/internal/warehouse"
	"github.com/fystack/explorer-api/pkg/common/types"
)

// The warehouse keeps one flattened row per (address, transaction, event).
// Grouping rebuilds the per-transaction event set the resolver needs.
type txGroup struct {
	env    types.TransactionEnvelope
	events []types.Event
	seen   map[string]struct{}
}

// groupRows folds flat warehouse rows into per-transaction groups,
// deduplicating by hash. A hash seen at several heights keeps only the
// highest (height, txIndex) occurrence; a repeated (event type, msg index)
// pair within one transaction is recorded once.
func groupRows(rows []warehouse.Row) []*txGroup {
	byHash := make(map[string]*txGroup)
	order := make([]string, 0, len(rows))

	for _, row := range rows {
		hash := rowString(row, "tx_hash")
		if hash == "" {
			continue
		}

		height := rowUint64(row, "height")
		txIndex := uint32(rowUint64(row, "tx_index"))

		group, ok := byHash[hash]
		if !ok {
			group = &txGroup{
				env:  envelopeFromRow(row, hash, height, txIndex),
				seen: make(map[string]struct{}),
			}
			byHash[hash] = group
			order = append(order, hash)
		} else if height > group.env.Height ||
			(height == group.env.Height && txIndex > group.env.TxIndex) {
			group.env = envelopeFromRow(row, hash, height, txIndex)
			group.events = nil
			group.seen = make(map[string]struct{})
		} else if height < group.env.Height {
			continue
		}

		event, ok := eventFromRow(row, hash)
		if !ok {
			continue
		}
		key := event.Type
		if event.MsgIndex != nil {
			key += "|" + *event.MsgIndex
		}
		if _, dup := group.seen[key]; dup {
			continue
		}
		group.seen[key] = struct{}{}
		group.events = append(group.events, event)
	}

	groups := make([]*txGroup, 0, len(order))
	for _, hash := range order {
		groups = append(groups, byHash[hash])
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].env.Height != groups[j].env.Height {
			return groups[i].env.Height > groups[j].env.Height
		}
		return groups[i].env.TxIndex > groups[j].env.TxIndex
	})
	return groups
}

func envelopeFromRow(row warehouse.Row, hash string, height uint64, txIndex uint32) types.TransactionEnvelope {
	return types.TransactionEnvelope{
		TxHash:    hash,
		Height:    height,
		BlockTime: rowTime(row, "block_time"),
		Code:      uint32(rowUint64(row, "code")),
		TxIndex:   txIndex,
	}
}

func eventFromRow(row warehouse.Row, hash string) (types.Event, bool) {
	eventType := rowString(row, "event_type")
	if eventType == "" {
		return types.Event{}, false
	}

	event := types.Event{
		TxHash:   hash,
		Type:     eventType,
		MsgIndex: rowStringPtr(row, "msg_index"),
	}

	switch attrs := row["attributes"].(type) {
	case string:
		if attrs != "" {
			_ = json.Unmarshal([]byte(attrs), &event.Attributes)
		}
	case map[string]any:
		event.Attributes = make(map[string]string, len(attrs))
		for k, v := range attrs {
			if s, ok := v.(string); ok {
				event.Attributes[k] = s
			}
		}
	}
	if event.Attributes == nil {
		event.Attributes = map[string]string{}
	}
	return event, true
}

// Row value accessors. The row-oriented JSON format renders 64-bit integers
// as strings; smaller numerics arrive as float64.
func rowString(row warehouse.Row, key string) string {
	if v, ok := row[key].(string); ok {
		return v
	}
	return ""
}

func rowStringPtr(row warehouse.Row, key string) *string {
	switch v := row[key].(type) {
	case string:
		return &v
	case float64:
		s := strconv.FormatInt(int64(v), 10)
		return &s
	default:
		return nil
	}
}

func rowUint64(row warehouse.Row, key string) uint64 {
	switch v := row[key].(type) {
	case float64:
		return uint64(v)
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0
		}
		return n
	case json.Number:
		n, err := strconv.ParseUint(v.String(), 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

var rowTimeFormats = []string{
	"2006-01-02 15:04:05.000000",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

func rowTime(row warehouse.Row, key string) time.Time {
	raw := rowString(row, key)
	if raw == "" {
		return time.Time{}
	}
	for _, format := range rowTimeFormats {
		if t, err := time.Parse(format, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
