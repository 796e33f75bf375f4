// Package utils holds small paging helpers shared by the HTTP layer and the
// booking service.
package utils

import "strconv"

// Page bounds used by list endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AtoiDefault parses s, returning def when s is empty or not an integer.
// Surrounding whitespace is not trimmed.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ParsePage reads raw page and page_size values and clamps them with
// ClampPage.
func ParsePage(pageRaw, sizeRaw string) (page, size int) {
	return ClampPage(AtoiDefault(pageRaw, 1), AtoiDefault(sizeRaw, DefaultPageSize))
}

// ClampPage keeps page >= 1 and size within (0, MaxPageSize]. A
// non-positive size falls back to DefaultPageSize.
func ClampPage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case size <= 0:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}
	return page, size
}

// Offset is the number of rows before page.
func Offset(page, size int) int { return (page - 1) * size }

// TotalPages rounds total/size up.
func TotalPages(total int64, size int) int {
	if size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
