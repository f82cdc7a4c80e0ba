package models

import (
	"errors"
	"fmt"
	"strings"
)

// Fixed storage keys. Each collection is stored as one JSON array under its key.
const (
	KeyServices     = "services"
	KeyBookings     = "bookings"
	KeyVideos       = "videos"
	KeyAdmin        = "admin"
	KeySessionToken = "adminToken"
)

var (
	// ErrMissingField is returned when a required field is empty.
	ErrMissingField = errors.New("missing required field")
	// ErrInvalidField is returned when a field is present but out of range.
	ErrInvalidField = errors.New("invalid field")
	// ErrInvalidStatus is returned for a booking status outside the enum.
	ErrInvalidStatus = errors.New("invalid booking status")
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
)

// Valid reports whether s is one of the three known statuses.
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// ParseBookingStatus converts a raw string into a BookingStatus.
func ParseBookingStatus(raw string) (BookingStatus, error) {
	s := BookingStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: '%s', expected 'pending', 'confirmed' or 'cancelled'", ErrInvalidStatus, raw)
	}
	return s, nil
}

// Service is a bookable studio offering.
type Service struct {
	ID          string  `json:"id" yaml:"id"`
	Title       string  `json:"title" yaml:"title"`
	Description string  `json:"description" yaml:"description"`
	Price       float64 `json:"price" yaml:"price"`       // Non-negative
	Duration    int     `json:"duration" yaml:"duration"` // Minutes, positive
	Image       string  `json:"image" yaml:"image"`       // URI
	Featured    bool    `json:"featured" yaml:"featured"`
}

// ServiceFields are the caller-supplied fields of a Service (everything but the id).
type ServiceFields struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Duration    int     `json:"duration"`
	Image       string  `json:"image"`
	Featured    bool    `json:"featured"`
}

// Validate runs the required-field checks for a service.
func (f ServiceFields) Validate() error {
	if strings.TrimSpace(f.Title) == "" {
		return missing("title")
	}
	if strings.TrimSpace(f.Description) == "" {
		return missing("description")
	}
	if f.Price < 0 {
		return fmt.Errorf("%w: 'price' must not be negative", ErrInvalidField)
	}
	if f.Duration <= 0 {
		return missing("duration")
	}
	if strings.TrimSpace(f.Image) == "" {
		return missing("image")
	}
	return nil
}

// WithID builds the stored Service from its fields.
func (f ServiceFields) WithID(id string) Service {
	return Service{
		ID:          id,
		Title:       f.Title,
		Description: f.Description,
		Price:       f.Price,
		Duration:    f.Duration,
		Image:       f.Image,
		Featured:    f.Featured,
	}
}

// Booking is a customer's request for a service slot.
type Booking struct {
	ID          string        `json:"id"`
	ServiceID   string        `json:"serviceId"`   // Soft reference, never validated
	ServiceName string        `json:"serviceName"` // Title at booking time
	Date        string        `json:"date"`
	Time        string        `json:"time"`
	Name        string        `json:"name"`
	Email       string        `json:"email"`
	Phone       string        `json:"phone"`
	Status      BookingStatus `json:"status"`
	CreatedAt   string        `json:"createdAt"` // RFC3339, immutable
}

// BookingFields are the caller-supplied fields of a Booking. Status and
// CreatedAt are always assigned by the store.
type BookingFields struct {
	ServiceID   string `json:"serviceId"`
	ServiceName string `json:"serviceName"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
}

// Validate runs the required-field checks for a booking.
func (f BookingFields) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"serviceId", f.ServiceID},
		{"date", f.Date},
		{"time", f.Time},
		{"name", f.Name},
		{"email", f.Email},
		{"phone", f.Phone},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return missing(r.name)
		}
	}
	return nil
}

// Video is a showcased YouTube video.
type Video struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	YoutubeID   string `json:"youtubeId" yaml:"youtubeId"`
	Description string `json:"description" yaml:"description"`
}

// VideoFields are the caller-supplied fields of a Video.
type VideoFields struct {
	Title       string `json:"title"`
	YoutubeID   string `json:"youtubeId"`
	Description string `json:"description"`
}

// Validate runs the required-field checks for a video.
func (f VideoFields) Validate() error {
	if strings.TrimSpace(f.Title) == "" {
		return missing("title")
	}
	if strings.TrimSpace(f.YoutubeID) == "" {
		return missing("youtubeId")
	}
	if strings.TrimSpace(f.Description) == "" {
		return missing("description")
	}
	return nil
}

// WithID builds the stored Video from its fields.
func (f VideoFields) WithID(id string) Video {
	return Video{ID: id, Title: f.Title, YoutubeID: f.YoutubeID, Description: f.Description}
}

// AdminCredential is the single admin login, compared verbatim.
// The password is stored and compared in plaintext.
type AdminCredential struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

func missing(field string) error {
	return fmt.Errorf("%w: '%s'", ErrMissingField, field)
}
