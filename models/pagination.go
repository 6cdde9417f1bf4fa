package models

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type PageInfo struct {
	Page  int   `json:"page"`
	Size  int   `json:"size"`
	Total int64 `json:"total"`
}

// NormalizePage clamps page/size into sane bounds (page >= 1, 1 <= size <= max)
// and returns the SQL offset alongside.
func NormalizePage(page, size int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size, (page - 1) * size
}
