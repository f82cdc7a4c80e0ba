package db

import (
	"fmt"
	"time"
)

const (
	// BookingWindowDays is how far ahead customers can book.
	BookingWindowDays = 30

	firstSlotHour = 9
	lastSlotHour  = 17
)

// AvailableDates lists the days customers can pick, starting the day after now.
func AvailableDates(now time.Time, days int) []string {
	dates := make([]string, 0, days)
	for i := 1; i <= days; i++ {
		dates = append(dates, now.AddDate(0, 0, i).Format("2006-01-02"))
	}
	return dates
}

// TimeSlots lists the bookable start times, every half hour from 9:00 to 17:00.
func TimeSlots() []string {
	slots := make([]string, 0, 2*(lastSlotHour-firstSlotHour)+1)
	for hour := firstSlotHour; hour <= lastSlotHour; hour++ {
		slots = append(slots, fmt.Sprintf("%d:00", hour))
		if hour < lastSlotHour {
			slots = append(slots, fmt.Sprintf("%d:30", hour))
		}
	}
	return slots
}
