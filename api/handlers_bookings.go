package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"studiobook/config"
	"studiobook/db"
	"studiobook/models"
	"studiobook/utils"
)

// BookingRequest is the public booking form. Any status or serviceName sent
// by the client is ignored.
type BookingRequest struct {
	ServiceID string `json:"serviceId"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// SlotsResponse lists what the booking form offers.
type SlotsResponse struct {
	Dates []string `json:"dates"`
	Times []string `json:"times"`
}

// GetBookingsResponse defines the structure for the paginated booking list results.
type GetBookingsResponse struct {
	Data  []models.Booking `json:"data"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

// BookingDetail adds the service's current title, which may differ from the
// name copied at booking time.
type BookingDetail struct {
	models.Booking
	CurrentServiceName string `json:"currentServiceName"`
}

// StatusRequest is the body of a status change.
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// GetSlotsHandler returns the bookable dates and time slots.
// @Summary      Bookable dates and time slots
// @Tags         Bookings
// @Produce      json
// @Success      200  {object}  SlotsResponse
// @Router       /booking/slots [get]
func GetSlotsHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	c.JSON(http.StatusOK, SlotsResponse{
		Dates: db.AvailableDates(time.Now(), db.BookingWindowDays),
		Times: db.TimeSlots(),
	})
}

// CreateBookingHandler records a booking request. It always starts pending.
// @Summary      Request a booking
// @Tags         Bookings
// @Accept       json
// @Produce      json
// @Param        booking body BookingRequest true "Booking form"
// @Success      201  {object}  models.Booking
// @Failure      400  {object}  utils.APIError "A required field is missing"
// @Failure      429  {object}  utils.APIError "Too many booking requests from this client"
// @Router       /bookings [post]
func CreateBookingHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	var req BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	// serviceName is a copy of the title at booking time; unknown services leave it empty.
	serviceName := ""
	if service, found := database.GetService(req.ServiceID); found {
		serviceName = service.Title
	}

	booking, err := database.AddBooking(c.Request.Context(), models.BookingFields{
		ServiceID:   req.ServiceID,
		ServiceName: serviceName,
		Date:        req.Date,
		Time:        req.Time,
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
	})
	if err != nil {
		respondStoreError(c, "create booking", err)
		return
	}
	c.JSON(http.StatusCreated, booking)
}

// GetBookingsHandler searches bookings for the admin list.
// @Summary      Search bookings
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        search   query  string  false  "Name, email or service name"
// @Param        status   query  string  false  "all, pending, confirmed or cancelled"
// @Param        sort_by  query  string  false  "date or createdAt"
// @Param        order    query  string  false  "asc or desc"
// @Param        page     query  int     false  "Page number (starts at 1)"
// @Param        limit    query  int     false  "Page size (max 100)"
// @Success      200  {object}  GetBookingsResponse
// @Failure      400  {object}  utils.APIError
// @Router       /admin/bookings [get]
func GetBookingsHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	page, errPage := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, errLimit := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if errPage != nil || errLimit != nil || page < 1 || limit < 1 {
		utils.GinBadRequest(c, "Invalid 'page' or 'limit' query parameter. Must be positive integers.")
		return
	}
	if limit > 100 {
		limit = 100
	}

	params := db.QueryBookingsParams{
		Search: c.Query("search"),
		Status: c.DefaultQuery("status", "all"),
		SortBy: c.DefaultQuery("sort_by", "date"),
		Order:  c.DefaultQuery("order", "desc"),
		Page:   page,
		Limit:  limit,
	}

	bookings, total, err := database.QueryBookings(params)
	if err != nil {
		utils.GinBadRequest(c, err.Error())
		return
	}

	c.JSON(http.StatusOK, GetBookingsResponse{
		Data:  bookings,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

func GetBookingHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	booking, found := database.GetBooking(c.Param("id"))
	if !found {
		utils.GinNotFound(c, "Booking not found")
		return
	}
	c.JSON(http.StatusOK, BookingDetail{
		Booking:            booking,
		CurrentServiceName: database.ResolveServiceName(booking),
	})
}

// UpdateBookingHandler replaces a booking's details. Status and createdAt are
// kept; serviceName is taken from the request as the admin entered it.
func UpdateBookingHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	var fields models.BookingFields
	if err := c.ShouldBindJSON(&fields); err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	booking, found, err := database.UpdateBooking(c.Request.Context(), c.Param("id"), fields)
	if err != nil {
		respondStoreError(c, "update booking", err)
		return
	}
	if !found {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// UpdateBookingStatusHandler moves a booking to any of the three statuses.
func UpdateBookingStatusHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Invalid request body: %v. 'status' must be provided.", err))
		return
	}
	status, err := models.ParseBookingStatus(req.Status)
	if err != nil {
		utils.GinBadRequest(c, err.Error())
		return
	}

	booking, found, err := database.UpdateBookingStatus(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		respondStoreError(c, "update booking status", err)
		return
	}
	if !found {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func DeleteBookingHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	if err := database.DeleteBooking(c.Request.Context(), c.Param("id")); err != nil {
		respondStoreError(c, "delete booking", err)
		return
	}
	c.Status(http.StatusNoContent)
}

const (
	defaultQRSize = 256
	minQRSize     = 64
	maxQRSize     = 1024
)

// GetBookingQRCodeHandler renders the booking reference as a PNG QR code for
// check-in at the studio.
func GetBookingQRCodeHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	booking, found := database.GetBooking(c.Param("id"))
	if !found {
		utils.GinNotFound(c, "Booking not found")
		return
	}

	size, err := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(defaultQRSize)))
	if err != nil || size < minQRSize || size > maxQRSize {
		utils.GinBadRequest(c, fmt.Sprintf("Invalid 'size' parameter. Must be between %d and %d.", minQRSize, maxQRSize))
		return
	}

	png, err := qrcode.Encode(bookingReference(booking), qrcode.Medium, size)
	if err != nil {
		utils.GinInternalServerError(c, fmt.Sprintf("Failed to render QR code: %v", err))
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func bookingReference(b models.Booking) string {
	return fmt.Sprintf("studiobook:booking:%s|%s %s|%s", b.ID, b.Date, b.Time, b.Name)
}
