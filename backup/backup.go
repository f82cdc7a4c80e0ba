// Package backup writes point-in-time copies of every stored key, on demand or
// on a cron schedule.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"studiobook/kvstore"
)

const filePrefix = "studiobook-"

// Snapshot copies every key of store into a timestamped JSON file in dir and
// returns the file path. Values that are not JSON are kept as JSON strings.
func Snapshot(ctx context.Context, store kvstore.Store, dir string, now time.Time) (string, error) {
	keys, err := store.Keys(ctx)
	if err != nil {
		return "", fmt.Errorf("list keys: %w", err)
	}

	snapshot := make(map[string]json.RawMessage, len(keys))
	for _, key := range keys {
		value, found, err := store.Read(ctx, key)
		if err != nil {
			return "", fmt.Errorf("read '%s': %w", key, err)
		}
		if !found {
			continue
		}
		if gjson.Valid(value) {
			snapshot[key] = json.RawMessage(value)
			continue
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return "", err
		}
		snapshot[key] = encoded
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}
	path := filepath.Join(dir, filePrefix+now.UTC().Format("20060102T150405.000Z")+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename snapshot into place: %w", err)
	}

	logrus.WithFields(logrus.Fields{"path": path, "keys": len(snapshot)}).Info("Wrote store snapshot")
	return path, nil
}

// Scheduler takes snapshots on a cron schedule.
type Scheduler struct {
	cron  *cron.Cron
	store kvstore.Store
	dir   string
}

// NewScheduler validates the standard five-field cron expression and registers
// the snapshot job. Nothing runs until Start.
func NewScheduler(store kvstore.Store, dir, schedule string) (*Scheduler, error) {
	s := &Scheduler{
		cron:  cron.New(),
		store: store,
		dir:   dir,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid backup schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := Snapshot(ctx, s.store, s.dir, time.Now()); err != nil {
		logrus.WithError(err).Error("Scheduled snapshot failed")
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logrus.WithField("dir", s.dir).Info("Backup scheduler started")
}

// Stop halts the schedule and waits for a running snapshot to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		logrus.Warn("Timed out waiting for running snapshot")
	}
}
