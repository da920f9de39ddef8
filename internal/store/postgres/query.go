package postgres

import (
	"fmt"
	"strings"

	"github.com/ciyexa/cryptoagent/internal/domain"
)

// maxListLimit caps page sizes on list queries.
const maxListLimit = 500

// listQuery appends time filters, newest-first ordering and pagination from
// opts to base, which must select from a table with a created_at column.
func listQuery(base string, opts domain.ListOpts) (string, []any) {
	var sb strings.Builder
	sb.WriteString(base)
	args := []any{}

	where := " WHERE"
	if opts.Since != nil {
		args = append(args, *opts.Since)
		fmt.Fprintf(&sb, "%s created_at >= $%d", where, len(args))
		where = " AND"
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		fmt.Fprintf(&sb, "%s created_at <= $%d", where, len(args))
	}

	sb.WriteString(" ORDER BY created_at DESC")

	limit := opts.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	args = append(args, limit)
	fmt.Fprintf(&sb, " LIMIT $%d", len(args))

	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}
	return sb.String(), args
}
