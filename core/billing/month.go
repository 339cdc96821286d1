package billing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// YearMonth identifies a calendar month, independent of any time zone.
type YearMonth struct {
	Year  int
	Month time.Month
}

// ParseYearMonth parses "YYYY-MM". A full date "YYYY-MM-DD" is accepted too, its day is ignored.
func ParseYearMonth(s string) (YearMonth, error) {
	s = strings.TrimSpace(s)
	if len(s) == len("2006-01-02") {
		s = s[:len("2006-01")]
	}
	parts := strings.Split(s, "-")
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) != 2 {
		return YearMonth{}, errors.Wrapf(ErrInvalidMonth, "parsing %q", s)
	}
	y, err := strconv.Atoi(parts[0])
	if err != nil {
		return YearMonth{}, errors.Wrapf(ErrInvalidMonth, "parsing %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return YearMonth{}, errors.Wrapf(ErrInvalidMonth, "parsing %q", s)
	}
	ym := YearMonth{Year: y, Month: time.Month(m)}
	if !ym.Valid() {
		return YearMonth{}, errors.Wrapf(ErrInvalidMonth, "parsing %q", s)
	}
	return ym, nil
}

// MonthOf returns the calendar month of t, as seen in t's own location.
func MonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

func (ym YearMonth) Valid() bool {
	return ym.Year >= 1 && ym.Year <= 9999 && ym.Month >= time.January && ym.Month <= time.December
}

// Start is the first day of the month, midnight UTC.
func (ym YearMonth) Start() time.Time {
	return time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC)
}

func (ym YearMonth) Next() YearMonth {
	if ym.Month == time.December {
		return YearMonth{Year: ym.Year + 1, Month: time.January}
	}
	return YearMonth{Year: ym.Year, Month: ym.Month + 1}
}

// AddMonths moves n months forward, or backward when n is negative.
func (ym YearMonth) AddMonths(n int) YearMonth {
	idx := ym.Year*12 + int(ym.Month-time.January) + n
	return YearMonth{Year: idx / 12, Month: time.Month(idx%12) + time.January}
}

// Contains reports whether the civil date of t falls within [Start, Next.Start).
func (ym YearMonth) Contains(t time.Time) bool {
	return t.Year() == ym.Year && t.Month() == ym.Month
}

// Day builds the date of the given day in this month. day is clamped to [1, 28] so it exists in every month.
func (ym YearMonth) Day(day int) time.Time {
	return time.Date(ym.Year, ym.Month, clampDueDay(day), 0, 0, 0, 0, time.UTC)
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

func (ym YearMonth) MarshalJSON() ([]byte, error) {
	return json.Marshal(ym.String())
}

func (ym *YearMonth) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "unmarshalling month")
	}
	parsed, err := ParseYearMonth(s)
	if err != nil {
		return err
	}
	*ym = parsed
	return nil
}

func clampDueDay(day int) int {
	switch {
	case day < 1:
		return 1
	case day > 28:
		return 28
	}
	return day
}

// civilDate drops the clock and the location of t, keeping its calendar date.
func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
