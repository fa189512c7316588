package postgres

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// listQuery accumulates WHERE clauses and positional args for the list
// endpoints, which all share ListOpts pagination.
type listQuery struct {
	base  string
	conds []string
	args  []any
}

func newListQuery(base string) *listQuery {
	return &listQuery{base: base}
}

// and adds a condition. format receives the next placeholder index for
// every %d it contains, all bound to the same arg.
func (q *listQuery) and(format string, arg any) {
	q.args = append(q.args, arg)
	n := strings.Count(format, "%d")
	idx := make([]any, n)
	for i := range idx {
		idx[i] = len(q.args)
	}
	q.conds = append(q.conds, fmt.Sprintf(format, idx...))
}

// timeRange applies opts.Since and opts.Until to col, inclusive.
func (q *listQuery) timeRange(col string, opts domain.ListOpts) {
	if opts.Since != nil {
		q.and(col+" >= $%d", *opts.Since)
	}
	if opts.Until != nil {
		q.and(col+" <= $%d", *opts.Until)
	}
}

// build renders the final SQL with ordering and pagination.
func (q *listQuery) build(orderBy string, opts domain.ListOpts) (string, []any) {
	var sb strings.Builder
	sb.WriteString(q.base)
	for i, c := range q.conds {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		sb.WriteString(c)
	}
	if orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(orderBy)
	}
	args := q.args
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}
	return sb.String(), args
}

// addrParam stores addresses lowercase so lookups need no case folding. The
// zero address maps to NULL.
func addrParam(a common.Address) any {
	if a == (common.Address{}) {
		return nil
	}
	return strings.ToLower(a.Hex())
}

func idParam(id uint64) any {
	if id == 0 {
		return nil
	}
	return int64(id)
}

func utc(t time.Time) time.Time { return t.UTC() }
