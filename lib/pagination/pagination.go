// Package pagination splits query results into numbered pages. Out of
// range page numbers are clamped, never rejected.
package pagination

import (
	"fmt"
	"strconv"

	"github.com/medleyhq/medley/lib/validation"
	"gorm.io/gorm"
)

type Page[T any] struct {
	Items    []T
	Number   int
	Size     int
	Total    int64
	NumPages int
}

func (p Page[T]) HasNext() bool { return p.Number < p.NumPages }

func (p Page[T]) HasPrevious() bool { return p.Number > 1 }

func (p Page[T]) NextNumber() int { return p.Number + 1 }

func (p Page[T]) PreviousNumber() int { return p.Number - 1 }

// Numbers lists every page number, for page links.
func (p Page[T]) Numbers() []int {
	nums := make([]int, p.NumPages)
	for i := range nums {
		nums[i] = i + 1
	}
	return nums
}

// Number parses a page query value. Anything that is not a positive
// integer is page 1.
func Number(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// Query counts base and loads page number of size rows. Scopes apply to the
// row query only, so ordering and preloads stay out of the count.
func Query[T any](base *gorm.DB, number, size int, scopes ...func(*gorm.DB) *gorm.DB) (Page[T], error) {
	if err := validation.ValidatePagination(max(number, 1), size); err != nil {
		return Page[T]{}, err
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return Page[T]{}, fmt.Errorf("failed to count rows: %w", err)
	}

	page := newPage[T](total, number, size)
	if total == 0 {
		return page, nil
	}

	q := base.Session(&gorm.Session{}).Scopes(scopes...)
	if err := q.Offset((page.Number - 1) * size).Limit(size).Find(&page.Items).Error; err != nil {
		return Page[T]{}, fmt.Errorf("failed to load page: %w", err)
	}
	return page, nil
}

// Slice pages through an in-memory list.
func Slice[T any](items []T, number, size int) Page[T] {
	if size < 1 {
		size = 1
	}
	page := newPage[T](int64(len(items)), number, size)
	start := (page.Number - 1) * size
	end := min(start+size, len(items))
	if start < end {
		page.Items = items[start:end]
	}
	return page
}

func newPage[T any](total int64, number, size int) Page[T] {
	numPages := int((total + int64(size) - 1) / int64(size))
	if numPages < 1 {
		numPages = 1
	}
	number = max(1, min(number, numPages))
	return Page[T]{Number: number, Size: size, Total: total, NumPages: numPages, Items: []T{}}
}

// Map converts the items of p, keeping its numbering.
func Map[T, U any](p Page[T], f func(T) U) Page[U] {
	out := Page[U]{Number: p.Number, Size: p.Size, Total: p.Total, NumPages: p.NumPages, Items: make([]U, len(p.Items))}
	for i, item := range p.Items {
		out.Items[i] = f(item)
	}
	return out
}
