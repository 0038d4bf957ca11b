// Package calendar provides the civil-calendar math shared by the
// Session Store's daily-reset-boundary check and the Cleanup
// Observer's once-per-day bucketing. Algorithm from
// http://howardhinnant.github.io/date_algorithms.html.
package calendar

import "fmt"

// UnixDaysToDate converts days since the Unix epoch to a
// proleptic-Gregorian year/month/day.
func UnixDaysToDate(days int64) (year, month, day int) {
	z := days + 719468
	era := z / 146097
	if z < 0 {
		era = (z - 146096) / 146097
	}
	doe := z - era*146097
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365
	y := yoe + era*400
	doy := doe - (365*yoe + yoe/4 - yoe/100)
	mp := (5*doy + 2) / 153
	d := doy - (153*mp+2)/5 + 1
	m := mp + 3
	if mp >= 10 {
		m = mp - 9
	}
	if m <= 2 {
		y++
	}
	return int(y), int(m), int(d)
}

// DateToUnixDays converts a year/month/day to days since the Unix
// epoch. Inverse of UnixDaysToDate.
func DateToUnixDays(year, month, day int) int64 {
	y := int64(year)
	m := int64(month)
	d := int64(day)
	if m <= 2 {
		y--
	}
	era := y / 400
	if y < 0 {
		era = (y - 399) / 400
	}
	yoe := y - era*400
	var doy int64
	if m > 2 {
		doy = (153*(m-3)+2)/5 + d - 1
	} else {
		doy = (153*(m+9)+2)/5 + d - 1
	}
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	return era*146097 + doe - 719468
}

// DayKey returns the "YYYY-MM-DD" bucket key for a given day, used by
// the Cleanup Observer to track whether it already ran today.
func DayKey(year, month, day int) string {
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}
