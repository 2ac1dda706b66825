package discount

import (
	"time"

	"github.com/go-faster/errors"
)

// PromotionWindow is a closed range of calendar days. Only the year, month
// and day of Start, End and the tested date are compared.
type PromotionWindow struct {
	Name  string
	Start time.Time
	End   time.Time
}

// NewPromotionWindow returns a window covering start..end inclusive.
func NewPromotionWindow(start, end time.Time) PromotionWindow {
	return PromotionWindow{Start: start, End: end}
}

// Contains reports whether day falls within the window. A window whose start
// is after its end contains no day.
func (w PromotionWindow) Contains(day time.Time) bool {
	d := dateOf(day)
	return !d.Before(dateOf(w.Start)) && !d.After(dateOf(w.End))
}

// EndsBeforeStart reports whether End falls on an earlier calendar day than
// Start. Such a window contains no day.
func (w PromotionWindow) EndsBeforeStart() bool {
	return dateOf(w.End).Before(dateOf(w.Start))
}

// dateOf truncates t to midnight UTC of its own calendar day.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// PromotionCalendar resolves the promotion window active on a given day.
type PromotionCalendar interface {
	ActiveWindow(today time.Time) (PromotionWindow, bool)
}

// Seasonal is a promotion that recurs every year between the same month/day
// bounds, both inclusive.
type Seasonal struct {
	Name       string
	StartMonth time.Month
	StartDay   int
	EndMonth   time.Month
	EndDay     int
}

var _ PromotionCalendar = Seasonal{}

// December is the default yearly promotion: December 1 to December 31.
var December = Seasonal{
	Name:       "december",
	StartMonth: time.December,
	StartDay:   1,
	EndMonth:   time.December,
	EndDay:     31,
}

// Validate checks that both bounds name real days and that the season does
// not wrap around the new year.
func (s Seasonal) Validate() error {
	if !validMonthDay(s.StartMonth, s.StartDay) {
		return errors.Errorf("seasonal promotion %q: invalid start %d-%d", s.Name, s.StartMonth, s.StartDay)
	}
	if !validMonthDay(s.EndMonth, s.EndDay) {
		return errors.Errorf("seasonal promotion %q: invalid end %d-%d", s.Name, s.EndMonth, s.EndDay)
	}
	if s.EndMonth < s.StartMonth || (s.EndMonth == s.StartMonth && s.EndDay < s.StartDay) {
		return errors.Errorf("seasonal promotion %q: end before start", s.Name)
	}
	return nil
}

// Window returns the concrete window for the given year. Days past the end
// of the month, such as February 29 in a common year, are clamped to the
// month's last day.
func (s Seasonal) Window(year int) PromotionWindow {
	return PromotionWindow{
		Name:  s.Name,
		Start: monthDay(year, s.StartMonth, s.StartDay),
		End:   monthDay(year, s.EndMonth, s.EndDay),
	}
}

func monthDay(year int, m time.Month, day int) time.Time {
	day = min(day, daysIn(year, m))
	return time.Date(year, m, day, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, m time.Month) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ActiveWindow returns the season's window for today's year when it contains
// today.
func (s Seasonal) ActiveWindow(today time.Time) (PromotionWindow, bool) {
	w := s.Window(today.Year())
	if !w.Contains(today) {
		return PromotionWindow{}, false
	}
	return w, true
}

func validMonthDay(m time.Month, day int) bool {
	if m < time.January || m > time.December || day < 1 {
		return false
	}
	// Leap year so that February 29 is accepted.
	return day <= daysIn(2024, m)
}

// Schedule is a fixed list of promotion windows, typically a snapshot loaded
// from storage.
type Schedule []PromotionWindow

var _ PromotionCalendar = Schedule(nil)

// ActiveWindow returns the first window that contains today.
func (s Schedule) ActiveWindow(today time.Time) (PromotionWindow, bool) {
	for _, w := range s {
		if w.Contains(today) {
			return w, true
		}
	}
	return PromotionWindow{}, false
}
