package kvstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// FileOptions configures a FileStore.
type FileOptions struct {
	Path         string
	SaveInterval time.Duration // <= 0 saves synchronously on every write
	EnableBackup bool          // keep a .bak of the previous file
	Watch        bool          // reload when another process rewrites the file
}

// FileStore keeps every key in memory and persists them as one JSON object on disk.
// Saves are debounced and written atomically through a temp file and rename.
type FileStore struct {
	opts FileOptions

	mu   sync.RWMutex
	data map[string]json.RawMessage

	persistMu sync.Mutex // one save at a time, so snapshots reach disk in order

	saveMutex   sync.Mutex  // guards the save timer logic
	saveTimer   *time.Timer // timer for debounced saving
	savePending bool
	lastWritten []byte // last bytes this process wrote, to ignore our own watch events

	watcher  *fsnotify.Watcher
	onChange func()
}

// NewFileStore loads opts.Path (a missing file is an empty store) and starts
// the watcher if requested. A file that exists but cannot be parsed is an error.
func NewFileStore(opts FileOptions) (*FileStore, error) {
	fs := &FileStore{
		opts: opts,
		data: make(map[string]json.RawMessage),
	}

	logrus.WithField("path", opts.Path).Info("Initializing file store")
	if err := fs.Load(); err != nil {
		return nil, err
	}

	if opts.Watch {
		if err := fs.startWatcher(); err != nil {
			return nil, fmt.Errorf("watch store file: %w", err)
		}
	}
	return fs, nil
}

// Load reads the store file, replacing the in-memory state.
func (fs *FileStore) Load() error {
	fileData, err := os.ReadFile(fs.opts.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logrus.WithField("path", fs.opts.Path).Info("Store file not found. Starting with an empty store.")
			fs.mu.Lock()
			fs.data = make(map[string]json.RawMessage)
			fs.mu.Unlock()
			return nil
		}
		return fmt.Errorf("read store file '%s': %w", fs.opts.Path, err)
	}

	data, err := decodeFile(fileData)
	if err != nil {
		logrus.WithError(err).WithField("path", fs.opts.Path).Error("Failed to parse store file")
		return fmt.Errorf("parse store file '%s': %w", fs.opts.Path, err)
	}

	fs.mu.Lock()
	fs.data = data
	fs.mu.Unlock()

	fs.saveMutex.Lock()
	fs.lastWritten = fileData
	fs.saveMutex.Unlock()

	logrus.WithFields(logrus.Fields{"path": fs.opts.Path, "keys": len(data)}).Info("Loaded store file")
	return nil
}

func decodeFile(fileData []byte) (map[string]json.RawMessage, error) {
	data := make(map[string]json.RawMessage)
	if len(bytes.TrimSpace(fileData)) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(fileData, &data); err != nil {
		return nil, err
	}
	if data == nil { // file held "null"
		data = make(map[string]json.RawMessage)
	}
	return data, nil
}

func (fs *FileStore) Read(_ context.Context, key string) (string, bool, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	raw, found := fs.data[key]
	if !found {
		return "", false, nil
	}
	return string(raw), true, nil
}

// Write stores value under key. The value must be valid JSON since it is
// embedded verbatim in the store file.
func (fs *FileStore) Write(_ context.Context, key, value string) error {
	if !gjson.Valid(value) {
		return fmt.Errorf("value for key '%s' is not valid JSON", key)
	}
	fs.mu.Lock()
	fs.data[key] = json.RawMessage(value)
	fs.mu.Unlock()
	return fs.requestSave()
}

func (fs *FileStore) Delete(_ context.Context, key string) error {
	fs.mu.Lock()
	_, found := fs.data[key]
	delete(fs.data, key)
	fs.mu.Unlock()
	if !found {
		return nil
	}
	return fs.requestSave()
}

func (fs *FileStore) Keys(_ context.Context) ([]string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	keys := make([]string, 0, len(fs.data))
	for k := range fs.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// OnExternalChange registers fn to run after the file was reloaded because
// another process rewrote it.
func (fs *FileStore) OnExternalChange(fn func()) {
	fs.saveMutex.Lock()
	defer fs.saveMutex.Unlock()
	fs.onChange = fn
}

// persist writes the current state to disk atomically.
func (fs *FileStore) persist() error {
	fs.persistMu.Lock()
	defer fs.persistMu.Unlock()

	fs.mu.RLock()
	jsonData, err := json.MarshalIndent(fs.data, "", "  ")
	fs.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}

	tempFilePath := fs.opts.Path + ".tmp"
	backupFilePath := fs.opts.Path + ".bak"

	if dir := filepath.Dir(fs.opts.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create store directory: %w", err)
		}
	}

	if err := os.WriteFile(tempFilePath, jsonData, 0644); err != nil {
		return fmt.Errorf("write temp store file '%s': %w", tempFilePath, err)
	}

	if fs.opts.EnableBackup {
		if _, err := os.Stat(fs.opts.Path); err == nil {
			if err := os.Rename(fs.opts.Path, backupFilePath); err != nil {
				logrus.WithError(err).Warnf("Failed to rename '%s' to '%s' for backup. Proceeding with save.", fs.opts.Path, backupFilePath)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			logrus.WithError(err).Warnf("Error checking store file '%s' before backup", fs.opts.Path)
		}
	}

	fs.saveMutex.Lock()
	fs.lastWritten = jsonData
	fs.saveMutex.Unlock()

	if err := os.Rename(tempFilePath, fs.opts.Path); err != nil {
		_ = os.Remove(tempFilePath)
		return fmt.Errorf("rename temp store file into place: %w", err)
	}

	logrus.WithField("path", fs.opts.Path).Debug("Saved store file")
	return nil
}

// requestSave persists immediately when the interval is <= 0, otherwise
// (re)starts the debounce timer.
func (fs *FileStore) requestSave() error {
	if fs.opts.SaveInterval <= 0 {
		return fs.persist()
	}

	fs.saveMutex.Lock()
	defer fs.saveMutex.Unlock()

	if fs.saveTimer != nil {
		fs.saveTimer.Stop()
	}
	fs.savePending = true

	fs.saveTimer = time.AfterFunc(fs.opts.SaveInterval, func() {
		fs.saveMutex.Lock()
		if !fs.savePending {
			fs.saveMutex.Unlock()
			return
		}
		fs.savePending = false
		fs.saveMutex.Unlock()

		if err := fs.persist(); err != nil {
			logrus.WithError(err).Error("Debounced persist failed")
		}
	})
	return nil
}

func (fs *FileStore) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// fsnotify watches directories; the rename into place shows up as a Create.
	if err := watcher.Add(filepath.Dir(fs.opts.Path)); err != nil {
		watcher.Close()
		return err
	}
	fs.watcher = watcher
	go fs.watchLoop()
	return nil
}

func (fs *FileStore) watchLoop() {
	target := filepath.Clean(fs.opts.Path)
	for {
		select {
		case event, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			fs.reloadIfChanged()
		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			logrus.WithError(err).Warn("Store file watcher error")
		}
	}
}

// reloadIfChanged replaces the in-memory state with the file contents when
// they differ from what this process last wrote. Last write wins.
func (fs *FileStore) reloadIfChanged() {
	fileData, err := os.ReadFile(fs.opts.Path)
	if err != nil {
		return
	}

	fs.saveMutex.Lock()
	own := bytes.Equal(fileData, fs.lastWritten)
	onChange := fs.onChange
	fs.saveMutex.Unlock()
	if own {
		return
	}

	data, err := decodeFile(fileData)
	if err != nil {
		// Probably a partial write from the other process; the next event retries.
		logrus.WithError(err).Debug("Ignoring unparsable store file change")
		return
	}

	fs.mu.Lock()
	fs.data = data
	fs.mu.Unlock()

	fs.saveMutex.Lock()
	fs.lastWritten = fileData
	fs.saveMutex.Unlock()

	logrus.WithField("path", fs.opts.Path).Info("Store file changed on disk, reloaded")
	if onChange != nil {
		onChange()
	}
}

// Close stops the watcher and completes any pending save.
func (fs *FileStore) Close() error {
	if fs.watcher != nil {
		fs.watcher.Close()
	}

	var needsFinalPersist bool
	fs.saveMutex.Lock()
	if fs.saveTimer != nil {
		fs.saveTimer.Stop()
		fs.saveTimer = nil
	}
	if fs.savePending {
		needsFinalPersist = true
		fs.savePending = false
	}
	fs.saveMutex.Unlock()

	if needsFinalPersist {
		logrus.Info("Performing final persist on close...")
		if err := fs.persist(); err != nil {
			return fmt.Errorf("final persist: %w", err)
		}
	}
	return nil
}
