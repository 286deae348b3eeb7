package view

// PageSize is the number of rows per list page.
const PageSize = 10

// Pagination is the list position of one client.
type Pagination struct {
	Page       int
	TotalPages int
}

// TotalPages returns ceil(n / PageSize).
func TotalPages(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + PageSize - 1) / PageSize
}

// Paginate positions page against n rows. A page past the end, or below 1,
// resets to 1.
func Paginate(n, page int) Pagination {
	p := Pagination{Page: page, TotalPages: TotalPages(n)}
	if p.Page < 1 || p.Page > p.TotalPages {
		p.Page = 1
	}
	return p
}

// Window returns the slice bounds of the current page.
func (p Pagination) Window(n int) (start, end int) {
	start = (p.Page - 1) * PageSize
	if start > n {
		start = n
	}
	end = start + PageSize
	if end > n {
		end = n
	}
	return start, end
}

// ShowControls hides pagination when everything fits on one page.
func (p Pagination) ShowControls() bool { return p.TotalPages > 1 }

func (p Pagination) HasPrev() bool { return p.Page > 1 }
func (p Pagination) HasNext() bool { return p.Page < p.TotalPages }

// Prev and Next clamp to the valid range.
func (p Pagination) Prev() int {
	if p.Page > 1 {
		return p.Page - 1
	}
	return 1
}

func (p Pagination) Next() int {
	if p.Page < p.TotalPages {
		return p.Page + 1
	}
	return p.Page
}

// PageOf is a convenience returning the rows of page.
func PageOf[T any](rows []T, page int) ([]T, Pagination) {
	p := Paginate(len(rows), page)
	start, end := p.Window(len(rows))
	return rows[start:end], p
}
