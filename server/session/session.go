// Package session implements the two-step subscription dialogue: the
// subscriber first picks a department, then (when that department carries a
// secondary filter field) one value from a dynamically fetched option list.
package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/itregistry/regrelay/internal/apperr"
	"github.com/itregistry/regrelay/plugin/tracker"
	"github.com/itregistry/regrelay/store"
)

// Gateway is the slice of the tracker client the selection flow depends on.
type Gateway interface {
	GetIssue(ctx context.Context, key string) (*tracker.Issue, error)
	ListUniqueDepartments(ctx context.Context) ([]string, error)
	ListUniqueValues(ctx context.Context, fieldID string) ([]string, error)
	SearchLatestByDepartment(ctx context.Context, department string) (*tracker.Issue, error)
	SearchOneByDepartmentAndField(ctx context.Context, department, fieldID, value string) (*tracker.Issue, error)
	UserInGroup(ctx context.Context, username, group string) (bool, error)
}

// DefaultDepartmentFilters is the static department to secondary-filter-field
// mapping. Departments absent from the map need no second selection step.
func DefaultDepartmentFilters() map[string]string {
	return map[string]string{
		"Закупки":  "customfield_10201", // Лицензии
		"HelpDesk": "customfield_10205", // Система
	}
}

// Service drives the selection dialogue and the login-link flow.
type Service struct {
	store       *store.Store
	gateway     Gateway
	editorGroup string
	// departmentFilters maps department to the field whose value forms the
	// second subscription level.
	departmentFilters map[string]string
	options           *OptionCache
	logger            *slog.Logger
}

// NewService creates the selection service. A nil departmentFilters map
// falls back to DefaultDepartmentFilters.
func NewService(s *store.Store, gateway Gateway, editorGroup string, departmentFilters map[string]string, optionTTL time.Duration) *Service {
	if departmentFilters == nil {
		departmentFilters = DefaultDepartmentFilters()
	}
	return &Service{
		store:             s,
		gateway:           gateway,
		editorGroup:       editorGroup,
		departmentFilters: departmentFilters,
		options:           NewOptionCache(optionTTL),
		logger:            slog.Default(),
	}
}

// FilterFieldFor returns the secondary filter field configured for the
// department, or "" when none is.
func (s *Service) FilterFieldFor(department string) string {
	return s.departmentFilters[department]
}

// StartSelection begins a dialogue by listing the selectable departments.
func (s *Service) StartSelection(ctx context.Context) ([]string, error) {
	departments, err := s.gateway.ListUniqueDepartments(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list departments")
	}
	return departments, nil
}

// DepartmentResult is the outcome of a department pick. When Done is true
// the flow terminated with the department recorded; otherwise Options holds
// the fetched values of FieldID for the second step, in presentation order.
type DepartmentResult struct {
	Department string
	Done       bool
	FieldID    string
	Options    []string
}

// PickDepartment records the department choice and, when the department
// carries a secondary filter field, fetches and caches the option list for
// the next step. Old subscription values persist until overwritten.
func (s *Service) PickDepartment(ctx context.Context, subscriberID int64, department string) (*DepartmentResult, error) {
	if _, err := s.store.UpsertSubscription(ctx, &store.UpsertSubscription{
		ID:         subscriberID,
		Department: &department,
	}); err != nil {
		return nil, errors.Wrapf(err, "failed to record department for %d", subscriberID)
	}

	fieldID := s.departmentFilters[department]
	if fieldID == "" {
		return &DepartmentResult{Department: department, Done: true}, nil
	}

	options, err := s.gateway.ListUniqueValues(ctx, fieldID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list values of %s", fieldID)
	}
	if len(options) == 0 {
		// Nothing to choose from; the department-level subscription stands.
		return &DepartmentResult{Department: department, Done: true}, nil
	}

	s.options.Put(subscriberID, fieldID, options)
	return &DepartmentResult{Department: department, FieldID: fieldID, Options: options}, nil
}

// PickOption consumes the cached option list and records the value at the
// submitted index. A missing list or an out-of-range index is terminal: the
// subscriber must restart the dialogue, which re-fetches the options.
func (s *Service) PickOption(ctx context.Context, subscriberID int64, fieldID string, index int) (string, error) {
	options, ok := s.options.Take(subscriberID, fieldID)
	if !ok {
		return "", apperr.Validation("selection not recognized, restart the flow")
	}
	if index < 0 || index >= len(options) {
		return "", apperr.Validation("selection not recognized, restart the flow")
	}

	value := options[index]
	if _, err := s.store.UpsertSubscription(ctx, &store.UpsertSubscription{
		ID:            subscriberID,
		FilterFieldID: &fieldID,
		FilterValue:   &value,
	}); err != nil {
		return "", errors.Wrapf(err, "failed to record filter for %d", subscriberID)
	}
	return value, nil
}

// LatestForSubscription resolves the most recent record matching the
// subscriber's stored preference: the first stored filter when one exists,
// else the department alone. Returns nil when nothing matches.
func (s *Service) LatestForSubscription(ctx context.Context, subscriberID int64) (*tracker.Issue, error) {
	sub, err := s.store.GetSubscription(ctx, subscriberID)
	if err != nil {
		return nil, err
	}
	if sub.Department == "" {
		return nil, apperr.Validation("no department selected, start the flow first")
	}

	for fieldID, value := range sub.Filters {
		return s.gateway.SearchOneByDepartmentAndField(ctx, sub.Department, fieldID, value)
	}
	return s.gateway.SearchLatestByDepartment(ctx, sub.Department)
}

// ResolveRecord loads a record from free-form input: a record key fetches
// that record, anything else is treated as a department name and resolves to
// its most recent record. Returns nil when nothing matches the department.
func (s *Service) ResolveRecord(ctx context.Context, arg string) (*tracker.Issue, error) {
	arg = strings.TrimSpace(arg)
	if tracker.IsIssueKey(arg) {
		return s.gateway.GetIssue(ctx, strings.ToUpper(arg))
	}
	return s.gateway.SearchLatestByDepartment(ctx, arg)
}

// LinkLogin verifies group membership for the given tracker login and, on
// success, links it to the subscriber. Returns false when the login is not
// in the editor group.
func (s *Service) LinkLogin(ctx context.Context, subscriberID int64, login string) (bool, error) {
	ok, err := s.gateway.UserInGroup(ctx, login, s.editorGroup)
	if err != nil {
		return false, errors.Wrapf(err, "failed to check group membership for %q", login)
	}
	if !ok {
		return false, nil
	}
	if err := s.store.SetLoginLink(ctx, subscriberID, login); err != nil {
		return false, err
	}
	s.logger.Info("linked tracker login",
		slog.Int64("subscriber", subscriberID), slog.String("login", login))
	return true, nil
}

// Login returns the linked tracker login, or "" when none is linked.
func (s *Service) Login(ctx context.Context, subscriberID int64) (string, error) {
	return s.store.GetLoginLink(ctx, subscriberID)
}

// Unlink removes the subscriber's login link.
func (s *Service) Unlink(ctx context.Context, subscriberID int64) error {
	return s.store.DeleteLoginLink(ctx, subscriberID)
}
