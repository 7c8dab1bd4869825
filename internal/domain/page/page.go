// Package page holds the paging primitives used by list operations.
package page

import "math"

const (
	DefaultSize = 20
	MaxSize     = 100
	// MaxNumber keeps Number*Size within int.
	MaxNumber = math.MaxInt / MaxSize
)

// Request selects one page. Number is zero-based.
type Request struct {
	Number int
	Size   int
}

// Normalize clamps the request to sane bounds.
func (r Request) Normalize() Request {
	switch {
	case r.Number < 0:
		r.Number = 0
	case r.Number > MaxNumber:
		r.Number = MaxNumber
	}
	switch {
	case r.Size <= 0:
		r.Size = DefaultSize
	case r.Size > MaxSize:
		r.Size = MaxSize
	}
	return r
}

// Offset returns the number of rows to skip.
func (r Request) Offset() int {
	return r.Number * r.Size
}

// Page is one slice of a larger result set.
type Page[T any] struct {
	Items  []T
	Number int
	Size   int
	Total  int64
}

// New assembles a page for the given request.
func New[T any](items []T, req Request, total int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Number: req.Number, Size: req.Size, Total: total}
}

// TotalPages returns the number of pages needed for Total items.
func (p Page[T]) TotalPages() int {
	if p.Size <= 0 {
		return 0
	}
	return int((p.Total + int64(p.Size) - 1) / int64(p.Size))
}

// Map converts the items of a page, keeping its bounds.
func Map[T, U any](p Page[T], fn func(T) U) Page[U] {
	out := make([]U, len(p.Items))
	for i, it := range p.Items {
		out[i] = fn(it)
	}
	return Page[U]{Items: out, Number: p.Number, Size: p.Size, Total: p.Total}
}

// Slice returns the window of items selected by req. It backs stores that
// keep everything in memory.
func Slice[T any](all []T, req Request) Page[T] {
	req = req.Normalize()
	start := req.Offset()
	if start < 0 || start > len(all) {
		start = len(all)
	}
	end := start + req.Size
	if end > len(all) {
		end = len(all)
	}
	return New(append([]T(nil), all[start:end]...), req, int64(len(all)))
}
