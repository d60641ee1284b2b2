package domain

import (
	"fmt"
	"math"
	"time"
)

// MaxPageSize bounds PageRequest.Size.
const MaxPageSize = 500

// PageRequest selects a zero-based page of a stably ordered result.
type PageRequest struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// Validate rejects negative pages, sizes outside [1, MaxPageSize] and pages
// whose end does not fit in an int.
func (p PageRequest) Validate() error {
	if p.Page < 0 {
		return fmt.Errorf("%w: page must not be negative", ErrInvalidOperation)
	}
	if p.Size < 1 || p.Size > MaxPageSize {
		return fmt.Errorf("%w: size must be between 1 and %d", ErrInvalidOperation, MaxPageSize)
	}
	if p.Page > (math.MaxInt-p.Size)/p.Size {
		return fmt.Errorf("%w: page %d is out of range", ErrInvalidOperation, p.Page)
	}
	return nil
}

// Offset is the number of rows skipped before the page starts.
func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// Page is one slice of a larger ordered result.
type Page[T any] struct {
	Items         []T   `json:"items"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"total_elements"`
	TotalPages    int   `json:"total_pages"`
}

// NewPage assembles a page, computing TotalPages from total.
func NewPage[T any](items []T, req PageRequest, total int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if req.Size > 0 {
		pages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	return Page[T]{
		Items:         items,
		Page:          req.Page,
		Size:          req.Size,
		TotalElements: total,
		TotalPages:    pages,
	}
}

// Paginate cuts the requested page out of an already ordered slice.
func Paginate[T any](all []T, req PageRequest) Page[T] {
	start, end := len(all), len(all)
	if req.Size > 0 && req.Page >= 0 && req.Page <= len(all)/req.Size {
		start = req.Offset()
		end = min(start+req.Size, len(all))
	}
	items := make([]T, end-start)
	copy(items, all[start:end])
	return NewPage(items, req, int64(len(all)))
}

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date as a UTC day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", ErrInvalidOperation, s)
	}
	return t.UTC(), nil
}
