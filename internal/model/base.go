package model

// Pagination represents common pagination parameters
type Pagination struct {
	Page     int `json:"page" form:"page"`
	PageSize int `json:"page_size" form:"limit"`
}

// Normalize applies the defaults used by every list endpoint.
func (p *Pagination) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 10
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
}

// Offset returns the row offset for the current page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// SortOrder represents sorting parameters
type SortOrder struct {
	Field string `json:"field" form:"sortBy"`
	Dir   string `json:"direction" form:"sortOrder"`
}
