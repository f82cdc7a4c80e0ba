package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiobook/kvstore"
	"studiobook/models"
)

// seedBookings stores bookings verbatim so tests control every field.
func seedBookings(t *testing.T, bookings []models.Booking) *Database {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	require.NoError(t, saveCollection(ctx, store, models.KeyServices, []models.Service{
		{ID: "1", Title: "Photography Session", Price: 199, Duration: 60},
		{ID: "2", Title: "Video Production", Price: 499, Duration: 180},
	}))
	require.NoError(t, saveCollection(ctx, store, models.KeyBookings, bookings))
	db, err := NewDatabase(ctx, store)
	require.NoError(t, err)
	return db
}

func sampleBookings() []models.Booking {
	return []models.Booking{
		{ID: "a", ServiceID: "1", ServiceName: "Photography Session", Date: "2024-06-01", Time: "9:30", Name: "Alice Smith", Email: "alice@example.com", Status: models.StatusPending, CreatedAt: "2024-05-01T10:00:00.000Z"},
		{ID: "b", ServiceID: "2", ServiceName: "Video Production", Date: "2024-06-03", Time: "14:00", Name: "Bob Jones", Email: "bob@studio.test", Status: models.StatusConfirmed, CreatedAt: "2024-05-03T10:00:00.000Z"},
		{ID: "c", ServiceID: "1", ServiceName: "Photography Session", Date: "2024-06-01", Time: "16:30", Name: "Carol White", Email: "carol@example.com", Status: models.StatusConfirmed, CreatedAt: "2024-05-02T10:00:00.000Z"},
		{ID: "d", ServiceID: "gone", ServiceName: "Old Workshop", Date: "2024-05-20", Time: "11:00", Name: "Dan Brown", Email: "dan@example.com", Status: models.StatusConfirmed, CreatedAt: "2024-04-20T10:00:00.000Z"},
		{ID: "e", ServiceID: "2", ServiceName: "Video Production", Date: "2024-07-01", Time: "10:00", Name: "Eve Black", Email: "eve@example.com", Status: models.StatusCancelled, CreatedAt: "2024-05-05T10:00:00.000Z"},
		{ID: "f", ServiceID: "1", ServiceName: "Photography Session", Date: "2024-06-10", Time: "12:00", Name: "Frank Green", Email: "frank@example.com", Status: models.StatusPending, CreatedAt: "2024-05-04T10:00:00.000Z"},
	}
}

func ids(bookings []models.Booking) []string {
	out := make([]string, len(bookings))
	for i, b := range bookings {
		out[i] = b.ID
	}
	return out
}

func TestQueryBookings_DefaultSortIsSlotNewestFirst(t *testing.T) {
	db := seedBookings(t, sampleBookings())

	got, total, err := db.QueryBookings(QueryBookingsParams{})
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	assert.Equal(t, []string{"e", "f", "b", "c", "a", "d"}, ids(got))
}

func TestQueryBookings_Search(t *testing.T) {
	db := seedBookings(t, sampleBookings())

	testCases := []struct {
		name   string
		search string
		want   []string
	}{
		{"ByName", "alice", []string{"a"}},
		{"ByEmailDomain", "STUDIO.TEST", []string{"b"}},
		{"ByServiceName", "video", []string{"e", "b"}},
		{"NoMatch", "zzz", []string{}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, total, err := db.QueryBookings(QueryBookingsParams{Search: tc.search})
			require.NoError(t, err)
			assert.Equal(t, len(tc.want), total)
			assert.Equal(t, tc.want, ids(got))
		})
	}
}

func TestQueryBookings_StatusFilter(t *testing.T) {
	db := seedBookings(t, sampleBookings())

	got, total, err := db.QueryBookings(QueryBookingsParams{Status: "confirmed"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"b", "c", "d"}, ids(got))

	_, total, err = db.QueryBookings(QueryBookingsParams{Status: "all"})
	require.NoError(t, err)
	assert.Equal(t, 6, total)

	_, _, err = db.QueryBookings(QueryBookingsParams{Status: "archived"})
	assert.ErrorIs(t, err, models.ErrInvalidStatus)
}

func TestQueryBookings_SortByCreatedAt(t *testing.T) {
	db := seedBookings(t, sampleBookings())

	got, _, err := db.QueryBookings(QueryBookingsParams{SortBy: "createdAt", Order: "asc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "a", "c", "b", "f", "e"}, ids(got))

	_, _, err = db.QueryBookings(QueryBookingsParams{SortBy: "price"})
	assert.Error(t, err)
	_, _, err = db.QueryBookings(QueryBookingsParams{Order: "sideways"})
	assert.Error(t, err)
}

func TestQueryBookings_Pagination(t *testing.T) {
	db := seedBookings(t, sampleBookings())

	page1, total, err := db.QueryBookings(QueryBookingsParams{Page: 1, Limit: 4})
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	assert.Equal(t, []string{"e", "f", "b", "c"}, ids(page1))

	page2, _, err := db.QueryBookings(QueryBookingsParams{Page: 2, Limit: 4})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "d"}, ids(page2))

	page3, total, err := db.QueryBookings(QueryBookingsParams{Page: 3, Limit: 4})
	require.NoError(t, err)
	assert.Equal(t, 6, total, "total ignores pagination")
	assert.Empty(t, page3)
}

func TestPaginateBookings_Limits(t *testing.T) {
	many := make([]models.Booking, 150)
	assert.Len(t, paginateBookings(many, 0, 0), defaultLimit)
	assert.Len(t, paginateBookings(many, 1, 1000), maxLimit)
	assert.Len(t, paginateBookings(many, 2, 100), 50)
}

func TestDashboard(t *testing.T) {
	db := seedBookings(t, sampleBookings())

	d := db.Dashboard()
	assert.Equal(t, 6, d.TotalBookings)
	assert.Equal(t, 2, d.PendingBookings)
	assert.Equal(t, 3, d.ConfirmedBookings)
	assert.Equal(t, 1, d.CancelledBookings)
	// b (499) + c (199); d references a deleted service
	assert.Equal(t, 698.0, d.EstimatedRevenue)
	assert.Equal(t, []string{"e", "f", "b", "c", "a"}, ids(d.RecentBookings))
}

func TestDashboard_Empty(t *testing.T) {
	db := seedBookings(t, []models.Booking{})
	d := db.Dashboard()
	assert.Zero(t, d.TotalBookings)
	assert.Zero(t, d.EstimatedRevenue)
	assert.Empty(t, d.RecentBookings)
}

func TestResolveServiceName(t *testing.T) {
	db := seedBookings(t, sampleBookings())
	bookings := db.ListBookings()

	assert.Equal(t, "Photography Session", db.ResolveServiceName(bookings[0]))
	assert.Equal(t, UnknownServiceName, db.ResolveServiceName(bookings[3]))
}

func TestAvailableDates(t *testing.T) {
	now := time.Date(2024, 12, 20, 15, 0, 0, 0, time.UTC)
	dates := AvailableDates(now, BookingWindowDays)

	require.Len(t, dates, 30)
	assert.Equal(t, "2024-12-21", dates[0], "starts tomorrow")
	assert.Equal(t, "2025-01-19", dates[29])
}

func TestTimeSlots(t *testing.T) {
	slots := TimeSlots()
	require.Len(t, slots, 17)
	assert.Equal(t, "9:00", slots[0])
	assert.Equal(t, "9:30", slots[1])
	assert.Equal(t, "16:30", slots[15])
	assert.Equal(t, "17:00", slots[16])
	assert.NotContains(t, slots, "17:30")
}
