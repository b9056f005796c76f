// Package feed serves the height-windowed, cursor-paginated view of an
// address's recent transactions, annotated with derived attribution fields.
package feed

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/fystack/explorer-api/internal/attribution"
	"github.com/fystack/explorer-api/internal/query"
	"github.com/fystack/explorer-api/internal/warehouse"
	"github.com/fystack/explorer-api/pkg/common/logger"
	"github.com/fystack/explorer-api/pkg/common/types"
)

var ErrEmptyAddress = errors.New("address must not be empty")

const (
	eventsTable       = "account_events"
	transactionsTable = "transactions"

	servedByStore = "store"
)

// Querier is what the failover executor exposes to the feed.
type Querier interface {
	Query(ctx context.Context, sql string, params map[string]string) (*warehouse.Result, error)
}

// EnvelopeLister is the slice of the relational transaction repo the degraded
// path needs.
type EnvelopeLister interface {
	MaxHeight(ctx context.Context) (uint64, error)
	ListByParticipant(ctx context.Context, address string, lowerHeight, upperHeight uint64, limit int) ([]types.TransactionEnvelope, error)
}

// EventLister loads event sets for a batch of transactions.
type EventLister interface {
	ListByTxHashes(ctx context.Context, txHashes []string) (map[string][]types.Event, error)
}

type Service struct {
	wh        Querier
	envelopes EnvelopeLister
	events    EventLister
}

type Option func(*Service)

// WithStoreFallback arms the degraded path: when every warehouse endpoint has
// failed, the feed is served from the relational store instead of erroring.
func WithStoreFallback(envelopes EnvelopeLister, events EventLister) Option {
	return func(s *Service) {
		s.envelopes = envelopes
		s.events = events
	}
}

func NewService(wh Querier, opts ...Option) *Service {
	s := &Service{wh: wh}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Page is one feed page plus which backend served it.
type Page struct {
	Items      []types.AttributionResult
	TotalCount int64
	ServedBy   string
}

// List scans the resolved height window for the address, rebuilds each
// transaction's event set, derives attribution and paginates the result.
// TotalCount counts all deduplicated matches inside the window, not just the
// returned slice.
func (s *Service) List(ctx context.Context, address string, p Params) (*Page, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrEmptyAddress
	}

	page, err := s.listWarehouse(ctx, address, p)
	if err != nil && warehouse.IsExhausted(err) && s.envelopes != nil {
		logger.Warn("Warehouse exhausted, serving feed from relational store",
			"address", address,
			"error", err)
		return s.listStore(ctx, address, p)
	}
	return page, err
}

func (s *Service) listWarehouse(ctx context.Context, address string, p Params) (*Page, error) {
	maxHeight, err := s.maxHeight(ctx)
	if err != nil {
		return nil, err
	}

	w := NewWindow(p, maxHeight)
	if w.UpperHeight == 0 {
		return &Page{Items: []types.AttributionResult{}}, nil
	}

	filter := query.And(
		query.Equals("address", address),
		query.Range("height", w.LowerHeight+1, w.UpperHeight),
	)
	var startDate, endDate any
	if p.StartDate != nil {
		startDate = *p.StartDate
	}
	if p.EndDate != nil {
		endDate = *p.EndDate
	}
	if startDate != nil || endDate != nil {
		filter = filter.Append(query.Range("block_time", startDate, endDate))
	}

	frag, params := filter.Named()
	sql := "SELECT tx_hash, height, block_time, code, tx_index, event_type, msg_index, attributes" +
		" FROM " + eventsTable +
		" WHERE " + frag +
		" ORDER BY height DESC, tx_index DESC"

	result, err := s.wh.Query(ctx, sql, params)
	if err != nil {
		return nil, err
	}

	items := make([]types.AttributionResult, 0, len(result.Rows))
	for _, group := range groupRows(result.Rows) {
		resolved := attribution.Resolve(group.env, group.events, address)
		if !matchAction(p.Action, resolved.MessageType) {
			continue
		}
		items = append(items, resolved)
	}

	total := int64(len(items))
	items = paginate(items, w.Offset, w.Limit)

	logger.Debug("Feed window served",
		"address", address,
		"upper_height", w.UpperHeight,
		"lower_height", w.LowerHeight,
		"total", total,
		"served_by", result.ServedBy)

	return &Page{Items: items, TotalCount: total, ServedBy: result.ServedBy}, nil
}

// listStore is the degraded path: same window semantics, served from the
// relational store. The scan is capped at MaxLimit envelopes, so TotalCount is
// a lower bound rather than an exact window count.
func (s *Service) listStore(ctx context.Context, address string, p Params) (*Page, error) {
	maxHeight, err := s.envelopes.MaxHeight(ctx)
	if err != nil {
		return nil, err
	}

	w := NewWindow(p, maxHeight)
	if w.UpperHeight == 0 {
		return &Page{Items: []types.AttributionResult{}, ServedBy: servedByStore}, nil
	}

	envs, err := s.envelopes.ListByParticipant(ctx, address, w.LowerHeight, w.UpperHeight, MaxLimit)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(envs))
	hashes := make([]string, 0, len(envs))
	deduped := envs[:0]
	for _, env := range envs {
		if _, dup := seen[env.TxHash]; dup {
			continue
		}
		seen[env.TxHash] = struct{}{}
		hashes = append(hashes, env.TxHash)
		deduped = append(deduped, env)
	}

	eventSets, err := s.events.ListByTxHashes(ctx, hashes)
	if err != nil {
		return nil, err
	}

	items := make([]types.AttributionResult, 0, len(deduped))
	for _, env := range deduped {
		if p.StartDate != nil && env.BlockTime.Before(*p.StartDate) {
			continue
		}
		if p.EndDate != nil && env.BlockTime.After(*p.EndDate) {
			continue
		}
		resolved := attribution.Resolve(env, eventSets[env.TxHash], address)
		if !matchAction(p.Action, resolved.MessageType) {
			continue
		}
		items = append(items, resolved)
	}

	total := int64(len(items))
	items = paginate(items, w.Offset, w.Limit)
	return &Page{Items: items, TotalCount: total, ServedBy: servedByStore}, nil
}

func (s *Service) maxHeight(ctx context.Context) (uint64, error) {
	result, err := s.wh.Query(ctx, "SELECT max(height) AS max_height FROM "+transactionsTable, nil)
	if err != nil {
		return 0, err
	}
	if len(result.Rows) == 0 {
		return 0, nil
	}
	return rowUint64(result.Rows[0], "max_height"), nil
}

func paginate(items []types.AttributionResult, offset, limit int) []types.AttributionResult {
	if offset >= len(items) {
		return []types.AttributionResult{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// matchAction applies the optional message-type filter. A '*' in the filter
// is a wildcard; anything else must match exactly.
func matchAction(filter string, messageType *string) bool {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return true
	}
	if messageType == nil {
		return false
	}
	if !strings.Contains(filter, "*") {
		return filter == *messageType
	}

	parts := strings.Split(filter, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	re, err := regexp.Compile("^" + strings.Join(parts, ".*") + "$")
	if err != nil {
		return false
	}
	return re.MatchString(*messageType)
}
