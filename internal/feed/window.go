package feed

import "time"

// Pagination bounds. Out-of-range client values are clamped, never rejected.
const (
	DefaultLimit = 10
	MaxLimit     = 1000

	MinHeightWindow     = 1
	DefaultHeightWindow = 1000
	MaxHeightWindow     = 100000
)

// Params are the raw client inputs of a feed request. Zero values mean
// "not supplied".
type Params struct {
	Limit        int
	Offset       int
	Action       string
	StartDate    *time.Time
	EndDate      *time.Time
	HeightWindow uint64
	BeforeHeight uint64
}

// Window is the bounded scan range derived from Params. The feed scans the
// range (LowerHeight, UpperHeight], a deliberate cap on scan depth: the feed
// is a recent-activity view, an action filter may miss older matches.
//
// When a cursor (BeforeHeight) is present, the row offset is consumed by the
// ceiling computation (upperHeight = beforeHeight - offset) and NOT applied
// again at the row stage, so cursor pages never skip or repeat the boundary
// row. Without a cursor it is a plain row offset.
type Window struct {
	UpperHeight uint64
	LowerHeight uint64
	Limit       int
	Offset      int
}

// NewWindow clamps the client inputs and resolves the window ceiling.
// UpperHeight is always clamped to maxHeight, so a stale or malicious cursor
// can never request past the chain tip.
func NewWindow(p Params, maxHeight uint64) Window {
	limit := p.Limit
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	size := p.HeightWindow
	switch {
	case size == 0:
		size = DefaultHeightWindow
	case size < MinHeightWindow:
		size = MinHeightWindow
	case size > MaxHeightWindow:
		size = MaxHeightWindow
	}

	offset := p.Offset
	if offset < 0 {
		offset = 0
	}

	var (
		upper     uint64
		rowOffset int
	)
	if p.BeforeHeight > 0 {
		upper = p.BeforeHeight
		if uint64(offset) >= upper {
			upper = 0
		} else {
			upper -= uint64(offset)
		}
		if upper > maxHeight {
			upper = maxHeight
		}
		rowOffset = 0
	} else {
		upper = maxHeight
		rowOffset = offset
	}

	var lower uint64
	if upper > size {
		lower = upper - size
	}

	return Window{
		UpperHeight: upper,
		LowerHeight: lower,
		Limit:       limit,
		Offset:      rowOffset,
	}
}
