package policy

import (
	"sort"
	"time"
)

// Template lists the bookable start hours of each weekday.
type Template struct {
	hours map[time.Weekday][]int
}

// DefaultTemplate: weekdays 09:00-20:00, Saturday 09:00-16:00, Sunday closed. Hours are
// slot start hours, so the last weekday slot runs 20:00-21:00.
func DefaultTemplate() Template {
	return NewTemplate(map[time.Weekday][]int{
		time.Monday:    hourRange(9, 20),
		time.Tuesday:   hourRange(9, 20),
		time.Wednesday: hourRange(9, 20),
		time.Thursday:  hourRange(9, 20),
		time.Friday:    hourRange(9, 20),
		time.Saturday:  hourRange(9, 16),
	})
}

func NewTemplate(hours map[time.Weekday][]int) Template {
	t := Template{hours: make(map[time.Weekday][]int, len(hours))}
	for day, hs := range hours {
		cp := append([]int(nil), hs...)
		sort.Ints(cp)
		t.hours[day] = cp
	}
	return t
}

func hourRange(first, last int) []int {
	hs := make([]int, 0, last-first+1)
	for h := first; h <= last; h++ {
		hs = append(hs, h)
	}
	return hs
}

// Hours returns the start hours for day, in order.
func (t Template) Hours(day time.Weekday) []int {
	return append([]int(nil), t.hours[day]...)
}

func (t Template) Allows(day time.Weekday, hour int) bool {
	for _, h := range t.hours[day] {
		if h == hour {
			return true
		}
	}
	return false
}
