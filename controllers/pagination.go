package controllers

import (
	"errors"
	"strconv"

	"gorm.io/gorm"
)

// errPageOutOfRange is returned by paginate in strict mode for pages past the end.
var errPageOutOfRange = errors.New("page out of range")

// Page describes one slice of a listing.
type Page struct {
	Number  int
	PerPage int
	Total   int64
}

// Pages is the number of pages, at least one.
func (p Page) Pages() int {
	if p.Total == 0 || p.PerPage <= 0 {
		return 1
	}
	return int((p.Total + int64(p.PerPage) - 1) / int64(p.PerPage))
}

func (p Page) HasPrev() bool { return p.Number > 1 }
func (p Page) HasNext() bool { return p.Number < p.Pages() }

// PrevNum is the page before Number, or the last page when Number is past the end.
func (p Page) PrevNum() int { return min(p.Number-1, p.Pages()) }

func (p Page) NextNum() int { return p.Number + 1 }

// Numbers lists page numbers for a pagination widget. Zero marks a gap.
func (p Page) Numbers() []int {
	const leftEdge, leftCurrent, rightCurrent, rightEdge = 2, 2, 5, 2
	var out []int
	last := 0
	for n := 1; n <= p.Pages(); n++ {
		if n <= leftEdge ||
			(n > p.Number-leftCurrent-1 && n < p.Number+rightCurrent) ||
			n > p.Pages()-rightEdge {
			if last+1 != n {
				out = append(out, 0)
			}
			out = append(out, n)
			last = n
		}
	}
	return out
}

// parsePage reads ?page=. Anything that is not a number means the first page.
func parsePage(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 1
	}
	return n
}

// paginate loads page number of query into dest. Out-of-range pages yield an empty slice, or
// errPageOutOfRange when strict is set. scopes apply to the row query only, not the count.
func paginate(query *gorm.DB, number, perPage int, strict bool, dest interface{}, scopes ...func(*gorm.DB) *gorm.DB) (Page, error) {
	base := query.Session(&gorm.Session{})
	if number < 1 {
		if strict {
			return Page{}, errPageOutOfRange
		}
		number = 1
	}
	page := Page{Number: number, PerPage: perPage}
	if err := base.Count(&page.Total).Error; err != nil {
		return page, err
	}
	if number > page.Pages() {
		if strict {
			return page, errPageOutOfRange
		}
		return page, nil
	}
	err := base.Scopes(scopes...).Offset((number - 1) * perPage).Limit(perPage).Find(dest).Error
	return page, err
}

// lastPage counts query and returns its final page number.
func lastPage(query *gorm.DB, perPage int) (int, error) {
	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return 0, err
	}
	return Page{Number: 1, PerPage: perPage, Total: total}.Pages(), nil
}

func withAuthor(db *gorm.DB) *gorm.DB { return db.Preload("Author") }
