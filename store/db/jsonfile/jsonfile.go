// Package jsonfile implements the preference store over two human-diffable
// JSON documents, one per logical table. Every mutation rewrites the whole
// document through a write-then-rename, so readers never observe a partially
// written state. The O(subscriber count) rewrite per update is acceptable
// while subscriber counts stay small; the sqlite driver covers larger
// deployments under the same contract.
package jsonfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/itregistry/regrelay/store"
)

const (
	prefsFile  = "tg_prefs.json"
	loginsFile = "tg_logins.json"
)

// subscriptionRecord is the on-disk shape of one subscription. Field names
// match the historical data files.
type subscriptionRecord struct {
	Department string            `json:"dept"`
	Filters    map[string]string `json:"filters"`
}

// DB keeps both tables in memory under independent locks and persists each
// table to its own file. Keys are the subscriber identity rendered as a
// string, matching the historical format.
type DB struct {
	prefsPath  string
	loginsPath string

	prefsMu sync.RWMutex
	prefs   map[string]*subscriptionRecord

	loginsMu sync.RWMutex
	logins   map[string]string
}

// NewDB opens the driver over the given data directory, loading any existing
// documents. A missing document starts the table empty; a document that
// exists but cannot be parsed fails the open rather than silently discarding
// subscriber state.
func NewDB(dataDir string) (*DB, error) {
	d := &DB{
		prefsPath:  filepath.Join(dataDir, prefsFile),
		loginsPath: filepath.Join(dataDir, loginsFile),
		prefs:      make(map[string]*subscriptionRecord),
		logins:     make(map[string]string),
	}
	if err := loadJSON(d.prefsPath, &d.prefs); err != nil {
		return nil, err
	}
	if err := loadJSON(d.loginsPath, &d.logins); err != nil {
		return nil, err
	}
	return d, nil
}

func (*DB) Close() error {
	return nil
}

func (d *DB) UpsertSubscription(_ context.Context, upsert *store.UpsertSubscription) (*store.Subscription, error) {
	key := strconv.FormatInt(upsert.ID, 10)

	d.prefsMu.Lock()
	defer d.prefsMu.Unlock()

	rec, ok := d.prefs[key]
	if !ok {
		rec = &subscriptionRecord{Filters: make(map[string]string)}
		d.prefs[key] = rec
	}
	if rec.Filters == nil {
		rec.Filters = make(map[string]string)
	}
	if upsert.Department != nil {
		rec.Department = *upsert.Department
	}
	if upsert.FilterFieldID != nil && upsert.FilterValue != nil {
		rec.Filters[*upsert.FilterFieldID] = *upsert.FilterValue
	}

	if err := saveJSON(d.prefsPath, d.prefs); err != nil {
		return nil, err
	}
	return recordToSubscription(upsert.ID, rec), nil
}

func (d *DB) GetSubscription(_ context.Context, id int64) (*store.Subscription, error) {
	d.prefsMu.RLock()
	defer d.prefsMu.RUnlock()

	rec, ok := d.prefs[strconv.FormatInt(id, 10)]
	if !ok {
		return &store.Subscription{ID: id, Filters: map[string]string{}}, nil
	}
	return recordToSubscription(id, rec), nil
}

func (d *DB) RemoveSubscription(_ context.Context, id int64) error {
	key := strconv.FormatInt(id, 10)

	d.prefsMu.Lock()
	defer d.prefsMu.Unlock()

	if _, ok := d.prefs[key]; !ok {
		return nil
	}
	delete(d.prefs, key)
	return saveJSON(d.prefsPath, d.prefs)
}

func (d *DB) SubscribersByDepartment(_ context.Context, department string) ([]int64, error) {
	d.prefsMu.RLock()
	defer d.prefsMu.RUnlock()

	var ids []int64
	for key, rec := range d.prefs {
		if rec.Department != department {
			continue
		}
		if id, err := strconv.ParseInt(key, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	sortIDs(ids)
	return ids, nil
}

func (d *DB) SubscribersByDepartmentAndFilter(_ context.Context, department, fieldID, value string) ([]int64, error) {
	d.prefsMu.RLock()
	defer d.prefsMu.RUnlock()

	var ids []int64
	for key, rec := range d.prefs {
		if rec.Department != department {
			continue
		}
		if rec.Filters[fieldID] != value {
			continue
		}
		if id, err := strconv.ParseInt(key, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	sortIDs(ids)
	return ids, nil
}

func (d *DB) SetLoginLink(_ context.Context, id int64, login string) error {
	d.loginsMu.Lock()
	defer d.loginsMu.Unlock()

	d.logins[strconv.FormatInt(id, 10)] = login
	return saveJSON(d.loginsPath, d.logins)
}

func (d *DB) GetLoginLink(_ context.Context, id int64) (string, error) {
	d.loginsMu.RLock()
	defer d.loginsMu.RUnlock()

	return d.logins[strconv.FormatInt(id, 10)], nil
}

func (d *DB) DeleteLoginLink(_ context.Context, id int64) error {
	key := strconv.FormatInt(id, 10)

	d.loginsMu.Lock()
	defer d.loginsMu.Unlock()

	if _, ok := d.logins[key]; !ok {
		return nil
	}
	delete(d.logins, key)
	return saveJSON(d.loginsPath, d.logins)
}

func recordToSubscription(id int64, rec *subscriptionRecord) *store.Subscription {
	sub := &store.Subscription{
		ID:         id,
		Department: rec.Department,
		Filters:    make(map[string]string, len(rec.Filters)),
	}
	for fieldID, value := range rec.Filters {
		sub.Filters[fieldID] = value
	}
	return sub
}

func loadJSON(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "failed to read %s", path)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return errors.Wrapf(err, "failed to parse %s", path)
	}
	return nil
}

// saveJSON writes the whole document to a temporary file and atomically
// replaces the durable one. Callers must hold the table's write lock so two
// writers never interleave their temporary files.
func saveJSON(path string, data any) error {
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", path)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o640); err != nil {
		return errors.Wrapf(err, "failed to write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "failed to replace %s", path)
	}
	return nil
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
