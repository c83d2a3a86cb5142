// Package persistence contains helpers shared by store implementations.
package persistence

import (
	"fmt"
	"strconv"
	"strings"

	"example.com/directory/internal/domain"
)

// PageLimits bounds client supplied page sizes.
type PageLimits struct {
	// Max rejects explicit limits above it; 0 disables the check.
	Max int
}

// ParsePage decodes limit/offset query values. An empty limit yields Limit 0, which stores treat
// as unbounded.
func ParsePage(rawLimit, rawOffset string, limits PageLimits) (domain.Page, error) {
	var page domain.Page

	if raw := strings.TrimSpace(rawLimit); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return domain.Page{}, &domain.ValidationError{Field: "limit", Reason: "must be a positive integer"}
		}
		if limits.Max > 0 && limit > limits.Max {
			return domain.Page{}, &domain.ValidationError{Field: "limit", Reason: fmt.Sprintf("must be at most %d", limits.Max)}
		}
		page.Limit = limit
	}

	if raw := strings.TrimSpace(rawOffset); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return domain.Page{}, &domain.ValidationError{Field: "offset", Reason: "must be a non-negative integer"}
		}
		page.Offset = offset
	}
	return page, nil
}

// LimitClause renders the SQL tail for page, binding values from position next onwards.
// It returns the clause and the values to append to the query arguments.
func LimitClause(page domain.Page, next int) (string, []any) {
	if page.Limit > 0 {
		return fmt.Sprintf(" LIMIT $%d OFFSET $%d", next, next+1), []any{page.Limit, page.Offset}
	}
	return fmt.Sprintf(" OFFSET $%d", next), []any{page.Offset}
}
