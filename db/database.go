package db

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"studiobook/events"
	"studiobook/kvstore"
	"studiobook/models"
	"studiobook/utils"
)

// createdAtLayout matches the millisecond ISO timestamps the site has always stored.
const createdAtLayout = "2006-01-02T15:04:05.000Z07:00"

// Publisher receives a notification after every successful mutation.
type Publisher interface {
	Publish(change events.Change)
}

// Database owns the three studio collections on top of a kvstore.Store.
// Every operation is serialized by one mutex, so a process has a single writer.
// The cached slices are the last view loaded from or written to the store.
type Database struct {
	store     kvstore.Store
	publisher Publisher
	now       func() time.Time

	mu       sync.Mutex
	services []models.Service
	bookings []models.Booking
	videos   []models.Video
	pending  []events.Change
}

// NewDatabase wraps store and loads the current view of every collection.
func NewDatabase(ctx context.Context, store kvstore.Store) (*Database, error) {
	db := &Database{
		store: store,
		now:   time.Now,
	}
	if err := db.Reload(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// SetPublisher registers the change listener. nil disables notifications.
func (db *Database) SetPublisher(p Publisher) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.publisher = p
}

// Store exposes the underlying key-value store.
func (db *Database) Store() kvstore.Store {
	return db.store
}

// Reload re-reads every collection from the store, replacing the cached views.
func (db *Database) Reload(ctx context.Context) error {
	db.mu.Lock()
	defer db.unlock()

	services, err := loadCollection[models.Service](ctx, db.store, models.KeyServices)
	if err != nil {
		return err
	}
	bookings, err := loadCollection[models.Booking](ctx, db.store, models.KeyBookings)
	if err != nil {
		return err
	}
	videos, err := loadCollection[models.Video](ctx, db.store, models.KeyVideos)
	if err != nil {
		return err
	}

	db.services, db.bookings, db.videos = services, bookings, videos
	logrus.WithFields(logrus.Fields{
		"services": len(services),
		"bookings": len(bookings),
		"videos":   len(videos),
	}).Info("Loaded collections")

	db.notify(events.Change{Collection: "*", Action: events.ActionReloaded})
	return nil
}

// Close releases the underlying store, flushing any pending save.
func (db *Database) Close() error {
	return db.store.Close()
}

// loadCollection reads key as a JSON array of T. An absent key, content that is
// not a JSON array, or an array that does not decode into T all read as empty.
func loadCollection[T any](ctx context.Context, store kvstore.Store, key string) ([]T, error) {
	raw, found, err := store.Read(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read '%s': %w", key, err)
	}
	if !found {
		return []T{}, nil
	}
	if !gjson.Valid(raw) || !gjson.Parse(raw).IsArray() {
		logrus.WithField("key", key).Warn("Stored collection is not a JSON array, treating as empty")
		return []T{}, nil
	}

	var items []T
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Stored collection has malformed entries, treating as empty")
		return []T{}, nil
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func saveCollection[T any](ctx context.Context, store kvstore.Store, key string, items []T) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode '%s': %w", key, err)
	}
	if err := store.Write(ctx, key, string(data)); err != nil {
		return fmt.Errorf("write '%s': %w", key, err)
	}
	return nil
}

// notify queues change for delivery once db.mu is released by unlock.
// It must be called with db.mu held.
func (db *Database) notify(change events.Change) {
	if db.publisher == nil {
		return
	}
	if change.At.IsZero() {
		change.At = db.now().UTC()
	}
	db.pending = append(db.pending, change)
}

// unlock releases db.mu and then delivers the queued changes, so a slow
// subscriber never holds up readers or writers of the collections.
func (db *Database) unlock() {
	pending, publisher := db.pending, db.publisher
	db.pending = nil
	db.mu.Unlock()

	if publisher == nil {
		return
	}
	for _, change := range pending {
		publisher.Publish(change)
	}
}

// --- Services ---

// ListServices returns every service in insertion order.
func (db *Database) ListServices() []models.Service {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append(make([]models.Service, 0, len(db.services)), db.services...)
}

// FeaturedServices returns the services flagged as featured, in insertion order.
func (db *Database) FeaturedServices() []models.Service {
	db.mu.Lock()
	defer db.mu.Unlock()
	featured := make([]models.Service, 0)
	for _, s := range db.services {
		if s.Featured {
			featured = append(featured, s)
		}
	}
	return featured
}

// GetService looks a service up by id.
func (db *Database) GetService(id string) (models.Service, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return findByID(db.services, id, func(s models.Service) string { return s.ID })
}

// AddService validates fields, assigns a new id and appends the service.
func (db *Database) AddService(ctx context.Context, fields models.ServiceFields) (models.Service, error) {
	if err := fields.Validate(); err != nil {
		return models.Service{}, err
	}

	db.mu.Lock()
	defer db.unlock()

	services, err := loadCollection[models.Service](ctx, db.store, models.KeyServices)
	if err != nil {
		return models.Service{}, err
	}
	service := fields.WithID(utils.GenerateDashlessUUID())
	services = append(services, service)
	if err := saveCollection(ctx, db.store, models.KeyServices, services); err != nil {
		return models.Service{}, err
	}
	db.services = services

	logrus.WithFields(logrus.Fields{"id": service.ID, "title": service.Title}).Info("Created service")
	db.notify(events.Change{Collection: models.KeyServices, Action: events.ActionCreated, ID: service.ID})
	return service, nil
}

// UpdateService replaces every field of the service with the given id.
// found is false, and nothing is written, when the id is unknown.
func (db *Database) UpdateService(ctx context.Context, id string, fields models.ServiceFields) (models.Service, bool, error) {
	if err := fields.Validate(); err != nil {
		return models.Service{}, false, err
	}

	db.mu.Lock()
	defer db.unlock()

	services, err := loadCollection[models.Service](ctx, db.store, models.KeyServices)
	if err != nil {
		return models.Service{}, false, err
	}
	idx := indexByID(services, id, func(s models.Service) string { return s.ID })
	if idx < 0 {
		db.services = services
		return models.Service{}, false, nil
	}
	services[idx] = fields.WithID(id)
	if err := saveCollection(ctx, db.store, models.KeyServices, services); err != nil {
		return models.Service{}, false, err
	}
	db.services = services

	logrus.WithField("id", id).Info("Updated service")
	db.notify(events.Change{Collection: models.KeyServices, Action: events.ActionUpdated, ID: id})
	return services[idx], true, nil
}

// DeleteService removes the service with the given id. Unknown ids are ignored.
// Bookings that reference the service keep their copied serviceName.
func (db *Database) DeleteService(ctx context.Context, id string) error {
	db.mu.Lock()
	defer db.unlock()

	services, err := loadCollection[models.Service](ctx, db.store, models.KeyServices)
	if err != nil {
		return err
	}
	remaining, removed := removeByID(services, id, func(s models.Service) string { return s.ID })
	if !removed {
		db.services = services
		return nil
	}
	if err := saveCollection(ctx, db.store, models.KeyServices, remaining); err != nil {
		return err
	}
	db.services = remaining

	logrus.WithField("id", id).Info("Deleted service")
	db.notify(events.Change{Collection: models.KeyServices, Action: events.ActionDeleted, ID: id})
	return nil
}

// --- Videos ---

// ListVideos returns every video in insertion order.
func (db *Database) ListVideos() []models.Video {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append(make([]models.Video, 0, len(db.videos)), db.videos...)
}

// AddVideo validates fields, normalizes the YouTube id and appends the video.
func (db *Database) AddVideo(ctx context.Context, fields models.VideoFields) (models.Video, error) {
	if err := fields.Validate(); err != nil {
		return models.Video{}, err
	}
	fields.YoutubeID = utils.NormalizeYouTubeID(fields.YoutubeID)

	db.mu.Lock()
	defer db.unlock()

	videos, err := loadCollection[models.Video](ctx, db.store, models.KeyVideos)
	if err != nil {
		return models.Video{}, err
	}
	video := fields.WithID(utils.GenerateDashlessUUID())
	videos = append(videos, video)
	if err := saveCollection(ctx, db.store, models.KeyVideos, videos); err != nil {
		return models.Video{}, err
	}
	db.videos = videos

	logrus.WithFields(logrus.Fields{"id": video.ID, "youtubeId": video.YoutubeID}).Info("Created video")
	db.notify(events.Change{Collection: models.KeyVideos, Action: events.ActionCreated, ID: video.ID})
	return video, nil
}

// UpdateVideo replaces every field of the video with the given id.
func (db *Database) UpdateVideo(ctx context.Context, id string, fields models.VideoFields) (models.Video, bool, error) {
	if err := fields.Validate(); err != nil {
		return models.Video{}, false, err
	}
	fields.YoutubeID = utils.NormalizeYouTubeID(fields.YoutubeID)

	db.mu.Lock()
	defer db.unlock()

	videos, err := loadCollection[models.Video](ctx, db.store, models.KeyVideos)
	if err != nil {
		return models.Video{}, false, err
	}
	idx := indexByID(videos, id, func(v models.Video) string { return v.ID })
	if idx < 0 {
		db.videos = videos
		return models.Video{}, false, nil
	}
	videos[idx] = fields.WithID(id)
	if err := saveCollection(ctx, db.store, models.KeyVideos, videos); err != nil {
		return models.Video{}, false, err
	}
	db.videos = videos

	logrus.WithField("id", id).Info("Updated video")
	db.notify(events.Change{Collection: models.KeyVideos, Action: events.ActionUpdated, ID: id})
	return videos[idx], true, nil
}

// DeleteVideo removes the video with the given id. Unknown ids are ignored.
func (db *Database) DeleteVideo(ctx context.Context, id string) error {
	db.mu.Lock()
	defer db.unlock()

	videos, err := loadCollection[models.Video](ctx, db.store, models.KeyVideos)
	if err != nil {
		return err
	}
	remaining, removed := removeByID(videos, id, func(v models.Video) string { return v.ID })
	if !removed {
		db.videos = videos
		return nil
	}
	if err := saveCollection(ctx, db.store, models.KeyVideos, remaining); err != nil {
		return err
	}
	db.videos = remaining

	logrus.WithField("id", id).Info("Deleted video")
	db.notify(events.Change{Collection: models.KeyVideos, Action: events.ActionDeleted, ID: id})
	return nil
}

// --- Bookings ---

// ListBookings returns every booking in insertion order.
func (db *Database) ListBookings() []models.Booking {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append(make([]models.Booking, 0, len(db.bookings)), db.bookings...)
}

// GetBooking looks a booking up by id.
func (db *Database) GetBooking(id string) (models.Booking, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return findByID(db.bookings, id, func(b models.Booking) string { return b.ID })
}

// AddBooking validates fields and appends a new pending booking stamped with
// the current time. serviceId is not checked against the services collection.
func (db *Database) AddBooking(ctx context.Context, fields models.BookingFields) (models.Booking, error) {
	if err := fields.Validate(); err != nil {
		return models.Booking{}, err
	}

	db.mu.Lock()
	defer db.unlock()

	bookings, err := loadCollection[models.Booking](ctx, db.store, models.KeyBookings)
	if err != nil {
		return models.Booking{}, err
	}
	booking := models.Booking{
		ID:          utils.GenerateDashlessUUID(),
		ServiceID:   fields.ServiceID,
		ServiceName: fields.ServiceName,
		Date:        fields.Date,
		Time:        fields.Time,
		Name:        fields.Name,
		Email:       fields.Email,
		Phone:       fields.Phone,
		Status:      models.StatusPending,
		CreatedAt:   db.now().UTC().Format(createdAtLayout),
	}
	bookings = append(bookings, booking)
	if err := saveCollection(ctx, db.store, models.KeyBookings, bookings); err != nil {
		return models.Booking{}, err
	}
	db.bookings = bookings

	logrus.WithFields(logrus.Fields{"id": booking.ID, "serviceId": booking.ServiceID, "date": booking.Date, "time": booking.Time}).Info("Created booking")
	db.notify(events.Change{Collection: models.KeyBookings, Action: events.ActionCreated, ID: booking.ID})
	return booking, nil
}

// UpdateBooking replaces the caller-supplied fields of the booking with the
// given id. status and createdAt are kept. Unknown ids are a no-op.
func (db *Database) UpdateBooking(ctx context.Context, id string, fields models.BookingFields) (models.Booking, bool, error) {
	if err := fields.Validate(); err != nil {
		return models.Booking{}, false, err
	}

	db.mu.Lock()
	defer db.unlock()

	bookings, err := loadCollection[models.Booking](ctx, db.store, models.KeyBookings)
	if err != nil {
		return models.Booking{}, false, err
	}
	idx := indexByID(bookings, id, func(b models.Booking) string { return b.ID })
	if idx < 0 {
		db.bookings = bookings
		return models.Booking{}, false, nil
	}
	current := bookings[idx]
	bookings[idx] = models.Booking{
		ID:          current.ID,
		ServiceID:   fields.ServiceID,
		ServiceName: fields.ServiceName,
		Date:        fields.Date,
		Time:        fields.Time,
		Name:        fields.Name,
		Email:       fields.Email,
		Phone:       fields.Phone,
		Status:      current.Status,
		CreatedAt:   current.CreatedAt,
	}
	if err := saveCollection(ctx, db.store, models.KeyBookings, bookings); err != nil {
		return models.Booking{}, false, err
	}
	db.bookings = bookings

	logrus.WithField("id", id).Info("Updated booking")
	db.notify(events.Change{Collection: models.KeyBookings, Action: events.ActionUpdated, ID: id})
	return bookings[idx], true, nil
}

// UpdateBookingStatus sets the status of the booking with the given id. Any
// status may move to any other. No other field is touched.
func (db *Database) UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus) (models.Booking, bool, error) {
	if !status.Valid() {
		return models.Booking{}, false, fmt.Errorf("%w: '%s'", models.ErrInvalidStatus, status)
	}

	db.mu.Lock()
	defer db.unlock()

	bookings, err := loadCollection[models.Booking](ctx, db.store, models.KeyBookings)
	if err != nil {
		return models.Booking{}, false, err
	}
	idx := indexByID(bookings, id, func(b models.Booking) string { return b.ID })
	if idx < 0 {
		db.bookings = bookings
		return models.Booking{}, false, nil
	}
	bookings[idx].Status = status
	if err := saveCollection(ctx, db.store, models.KeyBookings, bookings); err != nil {
		return models.Booking{}, false, err
	}
	db.bookings = bookings

	logrus.WithFields(logrus.Fields{"id": id, "status": status}).Info("Updated booking status")
	db.notify(events.Change{Collection: models.KeyBookings, Action: events.ActionUpdated, ID: id})
	return bookings[idx], true, nil
}

// DeleteBooking removes the booking with the given id. Unknown ids are ignored.
func (db *Database) DeleteBooking(ctx context.Context, id string) error {
	db.mu.Lock()
	defer db.unlock()

	bookings, err := loadCollection[models.Booking](ctx, db.store, models.KeyBookings)
	if err != nil {
		return err
	}
	remaining, removed := removeByID(bookings, id, func(b models.Booking) string { return b.ID })
	if !removed {
		db.bookings = bookings
		return nil
	}
	if err := saveCollection(ctx, db.store, models.KeyBookings, remaining); err != nil {
		return err
	}
	db.bookings = remaining

	logrus.WithField("id", id).Info("Deleted booking")
	db.notify(events.Change{Collection: models.KeyBookings, Action: events.ActionDeleted, ID: id})
	return nil
}

// --- helpers ---

func indexByID[T any](items []T, id string, idOf func(T) string) int {
	for i, item := range items {
		if idOf(item) == id {
			return i
		}
	}
	return -1
}

func findByID[T any](items []T, id string, idOf func(T) string) (T, bool) {
	if i := indexByID(items, id, idOf); i >= 0 {
		return items[i], true
	}
	var zero T
	return zero, false
}

func removeByID[T any](items []T, id string, idOf func(T) string) ([]T, bool) {
	remaining := make([]T, 0, len(items))
	for _, item := range items {
		if idOf(item) != id {
			remaining = append(remaining, item)
		}
	}
	return remaining, len(remaining) != len(items)
}
