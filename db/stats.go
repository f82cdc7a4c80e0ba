package db

import (
	"sort"

	"studiobook/models"
)

// UnknownServiceName is shown for bookings whose service has been deleted.
const UnknownServiceName = "Unknown service"

const recentBookingsCount = 5

// Dashboard is the admin overview of the bookings collection.
type Dashboard struct {
	TotalBookings     int              `json:"totalBookings"`
	PendingBookings   int              `json:"pendingBookings"`
	ConfirmedBookings int              `json:"confirmedBookings"`
	CancelledBookings int              `json:"cancelledBookings"`
	EstimatedRevenue  float64          `json:"estimatedRevenue"`
	RecentBookings    []models.Booking `json:"recentBookings"`
}

// Dashboard computes booking counts, the estimated revenue of confirmed
// bookings and the most recently created bookings. A confirmed booking whose
// service no longer exists contributes nothing to the revenue.
func (db *Database) Dashboard() Dashboard {
	db.mu.Lock()
	bookings := append(make([]models.Booking, 0, len(db.bookings)), db.bookings...)
	prices := make(map[string]float64, len(db.services))
	for _, s := range db.services {
		prices[s.ID] = s.Price
	}
	db.mu.Unlock()

	d := Dashboard{TotalBookings: len(bookings)}
	for _, b := range bookings {
		switch b.Status {
		case models.StatusPending:
			d.PendingBookings++
		case models.StatusConfirmed:
			d.ConfirmedBookings++
			d.EstimatedRevenue += prices[b.ServiceID]
		case models.StatusCancelled:
			d.CancelledBookings++
		}
	}

	sort.SliceStable(bookings, func(i, j int) bool {
		return createdTime(bookings[j]).Before(createdTime(bookings[i]))
	})
	if len(bookings) > recentBookingsCount {
		bookings = bookings[:recentBookingsCount]
	}
	d.RecentBookings = bookings
	return d
}

// ResolveServiceName returns the current title of the booked service, or
// UnknownServiceName when the reference dangles.
func (db *Database) ResolveServiceName(b models.Booking) string {
	if s, ok := db.GetService(b.ServiceID); ok {
		return s.Title
	}
	return UnknownServiceName
}
