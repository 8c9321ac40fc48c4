package dispatcher

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itregistry/regrelay/internal/apperr"
	"github.com/itregistry/regrelay/plugin/tracker"
	"github.com/itregistry/regrelay/store"
	"github.com/itregistry/regrelay/store/db/jsonfile"
)

const (
	deptField   = "customfield_10100"
	filterField = "customfield_10201"
)

type fakeGateway struct {
	issues map[string]*tracker.Issue
}

func (f *fakeGateway) GetIssue(_ context.Context, key string) (*tracker.Issue, error) {
	if issue, ok := f.issues[key]; ok {
		return issue, nil
	}
	return nil, apperr.NotFound("no such record " + key)
}

type recordingMessenger struct {
	mu       sync.Mutex
	sent     []int64
	failFor  map[int64]bool
	lastText string
}

func (m *recordingMessenger) SendMessage(_ context.Context, subscriberID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[subscriberID] {
		return errors.New("chat unreachable")
	}
	m.sent = append(m.sent, subscriberID)
	m.lastText = text
	return nil
}

func (m *recordingMessenger) sentIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := append([]int64(nil), m.sent...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func issueWith(key, department, filterValue string) *tracker.Issue {
	fields := map[string]json.RawMessage{}
	if department != "" {
		fields[deptField] = json.RawMessage(`{"value": "` + department + `"}`)
	}
	if filterValue != "" {
		fields[filterField] = json.RawMessage(`{"value": "` + filterValue + `"}`)
	}
	return &tracker.Issue{Key: key, Fields: fields}
}

func newTestDispatcher(t *testing.T, gateway Gateway, messenger Messenger) (*Dispatcher, *store.Store) {
	t.Helper()
	driver, err := jsonfile.NewDB(t.TempDir())
	require.NoError(t, err)
	st := store.New(driver)
	t.Cleanup(func() { st.Close() })

	d := New(Config{
		Store:             st,
		Gateway:           gateway,
		Messenger:         messenger,
		Renderer:          &TextRenderer{BrowseBaseURL: "http://localhost:8080"},
		DepartmentFieldID: deptField,
		DepartmentFilters: map[string]string{"Закупки": filterField},
	})
	return d, st
}

func ptr(s string) *string { return &s }

func subscribe(t *testing.T, st *store.Store, id int64, department, filterValue string) {
	t.Helper()
	upsert := &store.UpsertSubscription{ID: id, Department: ptr(department)}
	if filterValue != "" {
		upsert.FilterFieldID = ptr(filterField)
		upsert.FilterValue = ptr(filterValue)
	}
	_, err := st.UpsertSubscription(context.Background(), upsert)
	require.NoError(t, err)
}

// TestFilteredFanOut is the end-to-end matching scenario: only exact
// department+filter matches receive a delivery once a secondary field is
// configured and populated.
func TestFilteredFanOut(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{issues: map[string]*tracker.Issue{
		"REG-42": issueWith("REG-42", "Закупки", "Office365"),
	}}
	messenger := &recordingMessenger{}
	d, st := newTestDispatcher(t, gateway, messenger)

	subscribe(t, st, 1, "Закупки", "Office365")
	subscribe(t, st, 2, "Закупки", "Office365")
	subscribe(t, st, 3, "Закупки", "Jira") // filter mismatch
	subscribe(t, st, 4, "Закупки", "")     // department only, excluded by design
	subscribe(t, st, 5, "HelpDesk", "")

	require.NoError(t, d.HandleEvent(ctx, "REG-42"))
	assert.Equal(t, []int64{1, 2}, messenger.sentIDs())
	assert.Contains(t, messenger.lastText, "REG-42")
	assert.Contains(t, messenger.lastText, "http://localhost:8080/browse/REG-42")
	assert.Contains(t, messenger.lastText, "Закупки")
}

func TestDepartmentOnlyFanOut(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{issues: map[string]*tracker.Issue{
		"REG-7": issueWith("REG-7", "IDM", ""),
	}}
	messenger := &recordingMessenger{}
	d, st := newTestDispatcher(t, gateway, messenger)

	subscribe(t, st, 10, "IDM", "")
	subscribe(t, st, 11, "IDM", "")
	subscribe(t, st, 12, "Закупки", "")

	require.NoError(t, d.HandleEvent(ctx, "REG-7"))
	assert.Equal(t, []int64{10, 11}, messenger.sentIDs())
}

// TestEmptySecondaryValueFallsBack pins the historical fallback: a record of
// a filter-configured department whose secondary field is empty notifies the
// department-only lookup.
func TestEmptySecondaryValueFallsBack(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{issues: map[string]*tracker.Issue{
		"REG-8": issueWith("REG-8", "Закупки", ""),
	}}
	messenger := &recordingMessenger{}
	d, st := newTestDispatcher(t, gateway, messenger)

	subscribe(t, st, 20, "Закупки", "")
	subscribe(t, st, 21, "Закупки", "Office365")

	require.NoError(t, d.HandleEvent(ctx, "REG-8"))
	assert.Equal(t, []int64{20, 21}, messenger.sentIDs())
}

func TestDeliveryFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{issues: map[string]*tracker.Issue{
		"REG-42": issueWith("REG-42", "Закупки", "Office365"),
	}}
	messenger := &recordingMessenger{failFor: map[int64]bool{2: true}}
	d, st := newTestDispatcher(t, gateway, messenger)

	subscribe(t, st, 1, "Закупки", "Office365")
	subscribe(t, st, 2, "Закупки", "Office365")
	subscribe(t, st, 3, "Закупки", "Office365")

	require.NoError(t, d.HandleEvent(ctx, "REG-42"))
	assert.Equal(t, []int64{1, 3}, messenger.sentIDs())
}

func TestFetchFailureAbortsEventOnly(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{issues: map[string]*tracker.Issue{}}
	messenger := &recordingMessenger{}
	d, st := newTestDispatcher(t, gateway, messenger)

	subscribe(t, st, 1, "Закупки", "Office365")

	err := d.HandleEvent(ctx, "REG-404")
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
	assert.Empty(t, messenger.sentIDs())

	// The dispatcher keeps working for the next event.
	gateway.issues["REG-1"] = issueWith("REG-1", "Закупки", "Office365")
	require.NoError(t, d.HandleEvent(ctx, "REG-1"))
	assert.Equal(t, []int64{1}, messenger.sentIDs())
}

func TestConcurrentEvents(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{issues: map[string]*tracker.Issue{
		"REG-1": issueWith("REG-1", "IDM", ""),
		"REG-2": issueWith("REG-2", "IDM", ""),
		"REG-3": issueWith("REG-3", "IDM", ""),
	}}
	messenger := &recordingMessenger{}
	d, st := newTestDispatcher(t, gateway, messenger)

	subscribe(t, st, 1, "IDM", "")
	subscribe(t, st, 2, "IDM", "")

	var wg sync.WaitGroup
	for _, key := range []string{"REG-1", "REG-2", "REG-3"} {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			assert.NoError(t, d.HandleEvent(ctx, k))
		}(key)
	}
	wg.Wait()

	// Three events times two subscribers, in whatever order they completed.
	assert.Equal(t, []int64{1, 1, 1, 2, 2, 2}, messenger.sentIDs())
}
