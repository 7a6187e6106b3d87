package weather

import "strconv"

// PartialPageSize is the number of rows per page in the partial views.
const PartialPageSize = 5

// Page is one slice of a paginated list.
type Page[T any] struct {
	Items       []T  `json:"items"`
	Number      int  `json:"number"`
	NumPages    int  `json:"num_pages"`
	PerPage     int  `json:"per_page"`
	Count       int  `json:"count"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// Paginate returns the requested page of items. The raw page number is
// resolved leniently: anything that is not an integer yields the first page
// and integers out of range (past the end, zero or negative) yield the last
// page. An empty list
// still has one (empty) page.
func Paginate[T any](items []T, rawPage string, perPage int) Page[T] {
	if perPage <= 0 {
		perPage = PartialPageSize
	}
	count := len(items)
	numPages := (count + perPage - 1) / perPage
	if numPages == 0 {
		numPages = 1
	}

	number, err := strconv.Atoi(rawPage)
	switch {
	case err != nil:
		number = 1
	case number < 1 || number > numPages:
		number = numPages
	}

	start := (number - 1) * perPage
	end := start + perPage
	if end > count {
		end = count
	}
	pageItems := make([]T, 0, end-start)
	pageItems = append(pageItems, items[start:end]...)

	return Page[T]{
		Items:       pageItems,
		Number:      number,
		NumPages:    numPages,
		PerPage:     perPage,
		Count:       count,
		HasNext:     number < numPages,
		HasPrevious: number > 1,
	}
}
