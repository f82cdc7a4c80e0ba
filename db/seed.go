package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"studiobook/kvstore"
	"studiobook/models"
)

//go:embed seed.yaml
var seedYAML []byte

// SeedData is the default content of a fresh store.
type SeedData struct {
	Services []models.Service       `yaml:"services"`
	Videos   []models.Video         `yaml:"videos"`
	Admin    models.AdminCredential `yaml:"admin"`
}

// DefaultSeed parses the embedded defaults.
func DefaultSeed() (SeedData, error) {
	var seed SeedData
	if err := yaml.Unmarshal(seedYAML, &seed); err != nil {
		return SeedData{}, fmt.Errorf("parse seed data: %w", err)
	}
	if seed.Services == nil {
		seed.Services = []models.Service{}
	}
	if seed.Videos == nil {
		seed.Videos = []models.Video{}
	}
	return seed, nil
}

// Seed writes the default value of each fixed key that is entirely absent from
// the store, then reloads the collections. Keys that exist are never touched,
// even when they hold an empty array or malformed content.
func (db *Database) Seed(ctx context.Context) error {
	seed, err := DefaultSeed()
	if err != nil {
		return err
	}

	defaults := []struct {
		key   string
		value any
	}{
		{models.KeyServices, seed.Services},
		{models.KeyBookings, []models.Booking{}},
		{models.KeyVideos, seed.Videos},
		{models.KeyAdmin, seed.Admin},
	}

	db.mu.Lock()
	for _, d := range defaults {
		seeded, err := seedKey(ctx, db.store, d.key, d.value)
		if err != nil {
			db.mu.Unlock()
			return err
		}
		if seeded {
			logrus.WithField("key", d.key).Info("Seeded default data")
		}
	}
	db.mu.Unlock()

	return db.Reload(ctx)
}

func seedKey(ctx context.Context, store kvstore.Store, key string, value any) (bool, error) {
	_, found, err := store.Read(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read '%s': %w", key, err)
	}
	if found {
		return false, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("encode default '%s': %w", key, err)
	}
	if err := store.Write(ctx, key, string(data)); err != nil {
		return false, fmt.Errorf("write default '%s': %w", key, err)
	}
	return true, nil
}
