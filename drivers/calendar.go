package drivers

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Calendars understood by the drivers.
const (
	Calendar360   = "360day"
	Calendar365   = "365day"
	CalendarGreg  = "gregorian"
	secondsPerDay = 86400
)

var noLeapMonths = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// DateSpec is a `Y,M,D,h,m[,s]` tuple, used both for dates
// (TASKSTART, MODELBASIS) and for durations (TASKLENGTH).
type DateSpec struct {
	Year, Month, Day, Hour, Minute, Second int
}

// ParseDateSpec parses a `Y,M,D,h,m[,s]` date.
func ParseDateSpec(s string) (DateSpec, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) < 5 || len(parts) > 6 {
		return DateSpec{}, fmt.Errorf("malformed date `%s`: expecting Y,M,D,h,m[,s]", s)
	}
	var vals [6]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return DateSpec{}, fmt.Errorf("malformed date `%s`: %w", s, err)
		}
		if v < 0 {
			return DateSpec{}, fmt.Errorf("malformed date `%s`: negative field", s)
		}
		vals[i] = v
	}
	return DateSpec{vals[0], vals[1], vals[2], vals[3], vals[4], vals[5]}, nil
}

// Compact returns the date as YYYYMMDD.
func (d DateSpec) Compact() string {
	return fmt.Sprintf("%04d%02d%02d", d.Year, d.Month, d.Day)
}

func (d DateSpec) clock() int64 {
	return int64(d.Hour)*3600 + int64(d.Minute)*60 + int64(d.Second)
}

// RunLength returns the length in seconds of a run starting at
// start and lasting length, in the given calendar.
func RunLength(calendar string, start, length DateSpec) (int64, error) {
	switch calendar {
	case Calendar360:
		days := int64(length.Year)*360 + int64(length.Month)*30 + int64(length.Day)
		return days*secondsPerDay + length.clock(), nil

	case Calendar365:
		if start.Month < 1 || start.Month > 12 {
			return 0, fmt.Errorf("invalid start month %d", start.Month)
		}
		days := int64(length.Year) * 365
		for i := 0; i < length.Month; i++ {
			days += int64(noLeapMonths[(start.Month-1+i)%12])
		}
		days += int64(length.Day)
		return days*secondsPerDay + length.clock(), nil

	case CalendarGreg:
		from := time.Date(start.Year, time.Month(start.Month), start.Day, start.Hour, start.Minute, start.Second, 0, time.UTC)
		to := from.AddDate(length.Year, length.Month, length.Day).
			Add(time.Duration(length.clock()) * time.Second)
		return int64(to.Sub(from) / time.Second), nil
	}
	return 0, fmt.Errorf("unknown calendar `%s`: expecting one of %s, %s, %s", calendar, Calendar360, Calendar365, CalendarGreg)
}

// YearSeconds is the mean length of a year in calendar.
func YearSeconds(calendar string) (float64, error) {
	switch calendar {
	case Calendar360:
		return 360 * secondsPerDay, nil
	case Calendar365:
		return 365 * secondsPerDay, nil
	case CalendarGreg:
		return 365.2425 * secondsPerDay, nil
	}
	return 0, fmt.Errorf("unknown calendar `%s`", calendar)
}

// runSeconds reads TASKSTART, TASKLENGTH and CALENDAR from common.
func runSeconds(common map[string]string) (DateSpec, int64, error) {
	start, err := ParseDateSpec(common["TASKSTART"])
	if err != nil {
		return DateSpec{}, 0, fmt.Errorf("TASKSTART: %w", err)
	}
	length, err := ParseDateSpec(common["TASKLENGTH"])
	if err != nil {
		return DateSpec{}, 0, fmt.Errorf("TASKLENGTH: %w", err)
	}
	secs, err := RunLength(common["CALENDAR"], start, length)
	if err != nil {
		return DateSpec{}, 0, err
	}
	return start, secs, nil
}

// SimulatedYears is the length of the task in years of the calendar.
func SimulatedYears(common map[string]string) (float64, error) {
	_, secs, err := runSeconds(common)
	if err != nil {
		return 0, err
	}
	year, err := YearSeconds(common["CALENDAR"])
	if err != nil {
		return 0, err
	}
	return float64(secs) / year, nil
}
