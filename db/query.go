package db

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"studiobook/models"
)

// QueryBookingsParams holds all parameters for querying bookings.
type QueryBookingsParams struct {
	Search string // Case-insensitive substring of name, email or serviceName
	Status string // "all" (default) or one booking status
	SortBy string // "date" (default, date+time of the slot) or "createdAt"
	Order  string // "desc" (default) or "asc"
	Page   int    // 1-based page number
	Limit  int    // Max items per page (max 100)
}

// QueryBookings filters, sorts and paginates bookings. It returns the page and
// the number of bookings matching before pagination.
func (db *Database) QueryBookings(params QueryBookingsParams) ([]models.Booking, int, error) {
	var status models.BookingStatus
	if s := strings.TrimSpace(params.Status); s != "" && !strings.EqualFold(s, "all") {
		parsed, err := models.ParseBookingStatus(s)
		if err != nil {
			return nil, 0, err
		}
		status = parsed
	}

	term := strings.ToLower(strings.TrimSpace(params.Search))
	filtered := make([]models.Booking, 0)
	for _, b := range db.ListBookings() {
		if status != "" && b.Status != status {
			continue
		}
		if term != "" && !matchesSearch(b, term) {
			continue
		}
		filtered = append(filtered, b)
	}

	total := len(filtered)

	if err := sortBookings(filtered, params.SortBy, params.Order); err != nil {
		return nil, 0, err
	}

	return paginateBookings(filtered, params.Page, params.Limit), total, nil
}

func matchesSearch(b models.Booking, term string) bool {
	return strings.Contains(strings.ToLower(b.Name), term) ||
		strings.Contains(strings.ToLower(b.Email), term) ||
		strings.Contains(strings.ToLower(b.ServiceName), term)
}

// --- Sorting Helper ---
func sortBookings(bookings []models.Booking, sortBy, order string) error {
	var key func(models.Booking) time.Time
	switch strings.ToLower(sortBy) {
	case "date", "":
		key = slotTime
	case "createdat", "created_at":
		key = createdTime
	default:
		return fmt.Errorf("invalid sort_by value: '%s', expected 'date' or 'createdAt'", sortBy)
	}

	desc := true
	switch strings.ToLower(order) {
	case "desc", "":
	case "asc":
		desc = false
	default:
		return fmt.Errorf("invalid order value: '%s', expected 'asc' or 'desc'", order)
	}

	sort.SliceStable(bookings, func(i, j int) bool {
		if desc {
			return key(bookings[j]).Before(key(bookings[i]))
		}
		return key(bookings[i]).Before(key(bookings[j]))
	})
	return nil
}

// slotTime parses the booked slot. Hours may be written without a leading zero ("9:30").
// Unparsable values sort as the zero time.
func slotTime(b models.Booking) time.Time {
	t, err := time.Parse("2006-01-02 15:04", b.Date+" "+b.Time)
	if err != nil {
		return time.Time{}
	}
	return t
}

func createdTime(b models.Booking) time.Time {
	t, err := time.Parse(time.RFC3339, b.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// --- Pagination Helper ---
const defaultLimit = 20
const maxLimit = 100

func paginateBookings(bookings []models.Booking, page, limit int) []models.Booking {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	startIndex := (page - 1) * limit
	if startIndex >= len(bookings) {
		return []models.Booking{}
	}
	endIndex := startIndex + limit
	if endIndex > len(bookings) {
		endIndex = len(bookings)
	}
	return bookings[startIndex:endIndex]
}
