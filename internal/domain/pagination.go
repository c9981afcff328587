package domain

import "strconv"

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

type Page struct {
	Page  int
	Limit int
}

// ParsePage reads page/limit query values; bad or missing values fall back to defaults.
func ParsePage(page, limit string) Page {
	p, _ := strconv.Atoi(page)
	l, _ := strconv.Atoi(limit)
	if l == 0 {
		l = DefaultPageLimit
	}
	return Page{Page: p, Limit: l}.Normalize()
}

func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

func (p Page) Offset() int { return (p.Page - 1) * p.Limit }

type PageMeta struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	TotalCount  int64 `json:"totalCount"`
	TotalPages  int   `json:"totalPages"`
	HasNextPage bool  `json:"hasNextPage"`
	HasPrevPage bool  `json:"hasPrevPage"`
}

func NewPageMeta(p Page, total int64) PageMeta {
	p = p.Normalize()
	pages := int((total + int64(p.Limit) - 1) / int64(p.Limit))
	return PageMeta{
		Page:        p.Page,
		Limit:       p.Limit,
		TotalCount:  total,
		TotalPages:  pages,
		HasNextPage: p.Page < pages,
		HasPrevPage: p.Page > 1,
	}
}

type Paginated[T any] struct {
	Data       []T      `json:"data"`
	Pagination PageMeta `json:"pagination"`
}
