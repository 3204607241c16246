package dimension

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/starload/starload/internal/schema"
)

// NewDate derives the calendar attributes of d. Weeks start on Monday.
func NewDate(d civil.Date) schema.DimDate {
	dow := DayOfWeek(d)
	return schema.DimDate{
		Date:      d,
		Year:      d.Year,
		Month:     int(d.Month),
		Day:       d.Day,
		Quarter:   (int(d.Month)-1)/3 + 1,
		DayOfWeek: dow,
		DayName:   d.In(time.UTC).Weekday().String(),
		MonthName: d.Month.String(),
		IsWeekend: dow >= 5,
	}
}

// DayOfWeek returns 0 for Monday through 6 for Sunday.
func DayOfWeek(d civil.Date) int {
	return (int(d.In(time.UTC).Weekday()) + 6) % 7
}
