// Package query provides a small typed predicate builder. Every predicate
// lowers to placeholder-bound fragments; user-controlled values are never
// concatenated into query text.
package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type exprKind uint8

const (
	kindEquals exprKind = iota + 1
	kindLike
	kindRange
	kindIn
)

// Expr is one tagged predicate over a single column.
type Expr struct {
	kind   exprKind
	column string
	values []any
}

// Equals matches column = value.
func Equals(column string, value any) Expr {
	return Expr{kind: kindEquals, column: column, values: []any{value}}
}

// Like matches column LIKE pattern. The pattern is bound, not inlined.
func Like(column, pattern string) Expr {
	return Expr{kind: kindLike, column: column, values: []any{pattern}}
}

// Range matches from <= column <= to. A nil bound leaves that side open.
func Range(column string, from, to any) Expr {
	return Expr{kind: kindRange, column: column, values: []any{from, to}}
}

// In matches column IN (values...).
func In(column string, values ...any) Expr {
	return Expr{kind: kindIn, column: column, values: values}
}

// Filter is a conjunction of predicates.
type Filter struct {
	exprs []Expr
}

func And(exprs ...Expr) Filter {
	f := Filter{exprs: make([]Expr, 0, len(exprs))}
	for _, e := range exprs {
		if e.kind != 0 {
			f.exprs = append(f.exprs, e)
		}
	}
	return f
}

// Append adds further predicates to the conjunction.
func (f Filter) Append(exprs ...Expr) Filter {
	return And(append(f.exprs, exprs...)...)
}

// Empty reports whether the filter carries no predicates.
func (f Filter) Empty() bool { return len(f.exprs) == 0 }

// SQL lowers the filter to a "?"-placeholder fragment plus ordered args, the
// form the relational driver binds.
func (f Filter) SQL() (string, []any) {
	if len(f.exprs) == 0 {
		return "", nil
	}

	var (
		frags []string
		args  []any
	)
	for _, e := range f.exprs {
		switch e.kind {
		case kindEquals:
			frags = append(frags, e.column+" = ?")
			args = append(args, e.values[0])
		case kindLike:
			frags = append(frags, e.column+" LIKE ?")
			args = append(args, e.values[0])
		case kindRange:
			if e.values[0] != nil {
				frags = append(frags, e.column+" >= ?")
				args = append(args, e.values[0])
			}
			if e.values[1] != nil {
				frags = append(frags, e.column+" <= ?")
				args = append(args, e.values[1])
			}
		case kindIn:
			if len(e.values) == 0 {
				continue
			}
			frags = append(frags, e.column+" IN ?")
			args = append(args, e.values)
		}
	}
	return strings.Join(frags, " AND "), args
}

// Named lowers the filter to a named-parameter fragment in the warehouse's
// {name:Type} form plus a param map sent alongside the query body.
func (f Filter) Named() (string, map[string]string) {
	if len(f.exprs) == 0 {
		return "", nil
	}

	var (
		frags  []string
		params = make(map[string]string)
		n      int
	)
	bind := func(v any) string {
		name := "p" + strconv.Itoa(n)
		n++
		params[name] = paramValue(v)
		return "{" + name + ":" + paramType(v) + "}"
	}

	for _, e := range f.exprs {
		switch e.kind {
		case kindEquals:
			frags = append(frags, e.column+" = "+bind(e.values[0]))
		case kindLike:
			frags = append(frags, e.column+" LIKE "+bind(e.values[0]))
		case kindRange:
			if e.values[0] != nil {
				frags = append(frags, e.column+" >= "+bind(e.values[0]))
			}
			if e.values[1] != nil {
				frags = append(frags, e.column+" <= "+bind(e.values[1]))
			}
		case kindIn:
			if len(e.values) == 0 {
				continue
			}
			holes := make([]string, 0, len(e.values))
			for _, v := range e.values {
				holes = append(holes, bind(v))
			}
			frags = append(frags, e.column+" IN ("+strings.Join(holes, ", ")+")")
		}
	}
	return strings.Join(frags, " AND "), params
}

func paramType(v any) string {
	switch v.(type) {
	case uint, uint32, uint64:
		return "UInt64"
	case int, int32, int64:
		return "Int64"
	case time.Time:
		return "DateTime64(6)"
	default:
		return "String"
	}
}

func paramValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.UTC().Format("2006-01-02 15:04:05.000000")
	default:
		return fmt.Sprintf("%v", t)
	}
}
