package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itregistry/regrelay/internal/apperr"
	"github.com/itregistry/regrelay/plugin/tracker"
	"github.com/itregistry/regrelay/store"
	"github.com/itregistry/regrelay/store/db/jsonfile"
)

type fakeGateway struct {
	departments []string
	values      map[string][]string
	issues      map[string]*tracker.Issue
	latest      map[string]*tracker.Issue
	groups      map[string][]string

	listValueCalls int
}

func (f *fakeGateway) GetIssue(_ context.Context, key string) (*tracker.Issue, error) {
	if issue, ok := f.issues[key]; ok {
		return issue, nil
	}
	return nil, apperr.NotFound("no such record " + key)
}

func (f *fakeGateway) ListUniqueDepartments(context.Context) ([]string, error) {
	return f.departments, nil
}

func (f *fakeGateway) ListUniqueValues(_ context.Context, fieldID string) ([]string, error) {
	f.listValueCalls++
	return f.values[fieldID], nil
}

func (f *fakeGateway) SearchLatestByDepartment(_ context.Context, department string) (*tracker.Issue, error) {
	return f.latest[department], nil
}

func (f *fakeGateway) SearchOneByDepartmentAndField(_ context.Context, department, fieldID, value string) (*tracker.Issue, error) {
	return f.latest[department+"/"+fieldID+"="+value], nil
}

func (f *fakeGateway) UserInGroup(_ context.Context, username, group string) (bool, error) {
	for _, member := range f.groups[group] {
		if member == username {
			return true, nil
		}
	}
	return false, nil
}

func newTestService(t *testing.T, gateway *fakeGateway) (*Service, *store.Store) {
	t.Helper()
	driver, err := jsonfile.NewDB(t.TempDir())
	require.NoError(t, err)
	s := store.New(driver)
	t.Cleanup(func() { s.Close() })
	return NewService(s, gateway, "reg_editors", nil, time.Minute), s
}

func TestTwoStepSelection(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{
		departments: []string{"HelpDesk", "Закупки"},
		values:      map[string][]string{"customfield_10201": {"Jira", "Office365"}},
	}
	svc, st := newTestService(t, gateway)

	departments, err := svc.StartSelection(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"HelpDesk", "Закупки"}, departments)

	result, err := svc.PickDepartment(ctx, 100, "Закупки")
	require.NoError(t, err)
	assert.False(t, result.Done)
	assert.Equal(t, "customfield_10201", result.FieldID)
	assert.Equal(t, []string{"Jira", "Office365"}, result.Options)

	value, err := svc.PickOption(ctx, 100, "customfield_10201", 1)
	require.NoError(t, err)
	assert.Equal(t, "Office365", value)

	sub, err := st.GetSubscription(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "Закупки", sub.Department)
	assert.Equal(t, map[string]string{"customfield_10201": "Office365"}, sub.Filters)
}

func TestPickDepartmentWithoutFilter(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{departments: []string{"IDM"}}
	svc, st := newTestService(t, gateway)

	result, err := svc.PickDepartment(ctx, 7, "IDM")
	require.NoError(t, err)
	assert.True(t, result.Done)
	assert.Empty(t, result.FieldID)
	assert.Zero(t, gateway.listValueCalls)

	sub, err := st.GetSubscription(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "IDM", sub.Department)
}

func TestPickDepartmentWithEmptyOptionList(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{values: map[string][]string{}}
	svc, _ := newTestService(t, gateway)

	result, err := svc.PickDepartment(ctx, 7, "Закупки")
	require.NoError(t, err)
	assert.True(t, result.Done)
}

func TestPickOptionInvalidSelections(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{
		values: map[string][]string{"customfield_10201": {"Jira", "Office365"}},
	}
	svc, _ := newTestService(t, gateway)

	t.Run("no prior fetch", func(t *testing.T) {
		_, err := svc.PickOption(ctx, 100, "customfield_10201", 0)
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
	})

	t.Run("index out of range", func(t *testing.T) {
		_, err := svc.PickDepartment(ctx, 100, "Закупки")
		require.NoError(t, err)

		_, err = svc.PickOption(ctx, 100, "customfield_10201", 2)
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
	})

	t.Run("index cannot be reused after a pick", func(t *testing.T) {
		_, err := svc.PickDepartment(ctx, 100, "Закупки")
		require.NoError(t, err)

		_, err = svc.PickOption(ctx, 100, "customfield_10201", 0)
		require.NoError(t, err)

		// The list was consumed; the flow must restart.
		_, err = svc.PickOption(ctx, 100, "customfield_10201", 0)
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
	})
}

func TestRestartOverwritesNonDestructively(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{
		values: map[string][]string{"customfield_10201": {"Jira", "Office365"}},
	}
	svc, st := newTestService(t, gateway)

	_, err := svc.PickDepartment(ctx, 100, "Закупки")
	require.NoError(t, err)
	_, err = svc.PickOption(ctx, 100, "customfield_10201", 1)
	require.NoError(t, err)

	// Re-invoking step 1 keeps the old filter until a new pick overwrites it.
	_, err = svc.PickDepartment(ctx, 100, "Закупки")
	require.NoError(t, err)

	sub, err := st.GetSubscription(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"customfield_10201": "Office365"}, sub.Filters)
}

func TestLatestForSubscription(t *testing.T) {
	ctx := context.Background()
	withFilter := &tracker.Issue{Key: "REG-10"}
	deptOnly := &tracker.Issue{Key: "REG-20"}
	gateway := &fakeGateway{
		values: map[string][]string{"customfield_10201": {"Office365"}},
		latest: map[string]*tracker.Issue{
			"Закупки/customfield_10201=Office365": withFilter,
			"IDM":                                 deptOnly,
		},
	}
	svc, _ := newTestService(t, gateway)

	t.Run("no department yet", func(t *testing.T) {
		_, err := svc.LatestForSubscription(ctx, 1)
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
	})

	t.Run("filter subscription uses combined search", func(t *testing.T) {
		_, err := svc.PickDepartment(ctx, 1, "Закупки")
		require.NoError(t, err)
		_, err = svc.PickOption(ctx, 1, "customfield_10201", 0)
		require.NoError(t, err)

		issue, err := svc.LatestForSubscription(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "REG-10", issue.Key)
	})

	t.Run("department-only subscription uses latest search", func(t *testing.T) {
		_, err := svc.PickDepartment(ctx, 2, "IDM")
		require.NoError(t, err)

		issue, err := svc.LatestForSubscription(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, "REG-20", issue.Key)
	})
}

func TestResolveRecord(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{
		issues: map[string]*tracker.Issue{"REG-42": {Key: "REG-42"}},
		latest: map[string]*tracker.Issue{"Закупки": {Key: "REG-99"}},
	}
	svc, _ := newTestService(t, gateway)

	issue, err := svc.ResolveRecord(ctx, "reg-42")
	require.NoError(t, err)
	assert.Equal(t, "REG-42", issue.Key)

	issue, err = svc.ResolveRecord(ctx, "Закупки")
	require.NoError(t, err)
	assert.Equal(t, "REG-99", issue.Key)
}

func TestLoginLinkFlow(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{
		groups: map[string][]string{"reg_editors": {"jira-admin"}},
	}
	svc, _ := newTestService(t, gateway)

	t.Run("member links successfully", func(t *testing.T) {
		linked, err := svc.LinkLogin(ctx, 100, "jira-admin")
		require.NoError(t, err)
		assert.True(t, linked)

		login, err := svc.Login(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, "jira-admin", login)
	})

	t.Run("non-member is rejected without linking", func(t *testing.T) {
		linked, err := svc.LinkLogin(ctx, 200, "stranger")
		require.NoError(t, err)
		assert.False(t, linked)

		login, err := svc.Login(ctx, 200)
		require.NoError(t, err)
		assert.Empty(t, login)
	})

	t.Run("unlink removes the link", func(t *testing.T) {
		require.NoError(t, svc.Unlink(ctx, 100))
		login, err := svc.Login(ctx, 100)
		require.NoError(t, err)
		assert.Empty(t, login)
	})
}
