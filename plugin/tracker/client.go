// Package tracker is the query gateway to the issue tracker's REST API:
// fetch-by-key, JQL search, distinct value enumeration and group membership,
// all with pagination and a shared error taxonomy.
package tracker

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/itregistry/regrelay/internal/apperr"
)

const (
	// searchPageSize is the documented page size for search pagination.
	searchPageSize = 100
	// groupPageSize is the documented page size for group member pagination.
	groupPageSize = 50
)

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is the tracker base URL, e.g. "http://localhost:8080".
	BaseURL string
	// Username and Password authenticate every call (basic auth).
	Username string
	Password string
	// VerifyTLS controls certificate verification for https trackers.
	VerifyTLS bool
	// ProjectKey scopes every search to one project.
	ProjectKey string
	// DepartmentFieldID is the field id of the department field.
	DepartmentFieldID string
	// EditorGroup is the default group for membership checks.
	EditorGroup string
	// Timeout is the per-call timeout. Defaults to 15s.
	Timeout time.Duration
	// SearchCap bounds the total number of records scanned during value
	// enumeration and membership checks. Defaults to 100000.
	SearchCap int
	// HTTPClient overrides the transport. Used by tests.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client issues authenticated calls against the tracker. It holds no state
// beyond connection configuration; every call is stateless and idempotent
// from the relay's perspective.
type Client struct {
	baseURL           string
	username          string
	password          string
	projectKey        string
	departmentFieldID string
	editorGroup       string
	searchCap         int
	httpClient        *http.Client
	logger            *slog.Logger
}

// NewClient creates a tracker client.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("tracker: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, errors.Wrapf(err, "tracker: invalid BaseURL %q", config.BaseURL)
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	searchCap := config.SearchCap
	if searchCap <= 0 {
		searchCap = 100_000
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if !config.VerifyTLS {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		httpClient = &http.Client{Transport: transport, Timeout: timeout}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:           strings.TrimRight(config.BaseURL, "/"),
		username:          config.Username,
		password:          config.Password,
		projectKey:        config.ProjectKey,
		departmentFieldID: config.DepartmentFieldID,
		editorGroup:       config.EditorGroup,
		searchCap:         searchCap,
		httpClient:        httpClient,
		logger:            logger,
	}, nil
}

// DepartmentFieldID returns the configured department field id.
func (c *Client) DepartmentFieldID() string {
	return c.departmentFieldID
}

// EditorGroup returns the configured editor group name.
func (c *Client) EditorGroup() string {
	return c.editorGroup
}

// GetIssue fetches one record by key, with the names label expansion.
func (c *Client) GetIssue(ctx context.Context, key string) (*Issue, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/rest/api/2/issue/"+url.PathEscape(key),
		url.Values{"expand": {"names"}}, nil)
	if err != nil {
		return nil, err
	}
	var issue Issue
	if err := json.Unmarshal(body, &issue); err != nil {
		return nil, errors.Wrapf(err, "tracker: failed to parse issue %s", key)
	}
	return &issue, nil
}

// GetEditMeta fetches the edit metadata of one record.
func (c *Client) GetEditMeta(ctx context.Context, key string) (*EditMeta, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/rest/api/2/issue/"+url.PathEscape(key)+"/editmeta", nil, nil)
	if err != nil {
		return nil, err
	}
	var meta EditMeta
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, errors.Wrapf(err, "tracker: failed to parse editmeta for %s", key)
	}
	return &meta, nil
}

// UpdateIssueFields updates field values on one record.
func (c *Client) UpdateIssueFields(ctx context.Context, key string, fields map[string]any) error {
	_, err := c.doRequest(ctx, http.MethodPut, "/rest/api/2/issue/"+url.PathEscape(key), nil,
		map[string]any{"fields": fields})
	return err
}

// SearchLatestByDepartment returns the most recently created record of the
// given department, or nil when none matches.
func (c *Client) SearchLatestByDepartment(ctx context.Context, department string) (*Issue, error) {
	return c.searchOne(ctx, c.jqlByDepartment(department))
}

// SearchOneByDepartmentAndField returns the most recently created record
// matching both the department and a secondary field equality, or nil.
func (c *Client) SearchOneByDepartmentAndField(ctx context.Context, department, fieldID, value string) (*Issue, error) {
	return c.searchOne(ctx, c.jqlByDepartmentAndField(department, fieldID, value))
}

func (c *Client) searchOne(ctx context.Context, jql string) (*Issue, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/rest/api/2/search", url.Values{
		"jql":        {jql},
		"maxResults": {"1"},
		"expand":     {"names"},
	}, nil)
	if err != nil {
		return nil, err
	}
	var page searchResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, errors.Wrap(err, "tracker: failed to parse search response")
	}
	if len(page.Issues) == 0 {
		return nil, nil
	}
	return page.Issues[0], nil
}

// ListUniqueDepartments enumerates every non-empty department value across
// the project, sorted lexicographically.
func (c *Client) ListUniqueDepartments(ctx context.Context) ([]string, error) {
	values, err := c.collectUniqueValues(ctx, c.departmentFieldID)
	if err != nil {
		return nil, err
	}
	sort.Strings(values)
	return values, nil
}

// ListUniqueValues enumerates every non-empty value of the given field across
// the project, sorted case-insensitively.
func (c *Client) ListUniqueValues(ctx context.Context, fieldID string) ([]string, error) {
	values, err := c.collectUniqueValues(ctx, fieldID)
	if err != nil {
		return nil, err
	}
	sort.Slice(values, func(i, j int) bool {
		return strings.ToLower(values[i]) < strings.ToLower(values[j])
	})
	return values, nil
}

// collectUniqueValues exhaustively paginates the search endpoint, collecting
// the distinct normalized values of one field. The scan stops on an empty
// page, once the reported total is reached, or at the configured cap. A cap
// hit silently truncates the result.
func (c *Client) collectUniqueValues(ctx context.Context, fieldID string) ([]string, error) {
	seen := make(map[string]struct{})
	start := 0
	for {
		body, err := c.doRequest(ctx, http.MethodGet, "/rest/api/2/search", url.Values{
			"jql":        {c.jqlProject()},
			"fields":     {fieldID},
			"startAt":    {strconv.Itoa(start)},
			"maxResults": {strconv.Itoa(searchPageSize)},
		}, nil)
		if err != nil {
			return nil, err
		}
		var page searchResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, errors.Wrap(err, "tracker: failed to parse search response")
		}
		if len(page.Issues) == 0 {
			break
		}
		for _, issue := range page.Issues {
			value := strings.TrimSpace(Normalize(issue.Fields[fieldID], fieldID))
			if value != "" {
				seen[value] = struct{}{}
			}
		}
		start += len(page.Issues)
		if start >= page.Total || start >= c.searchCap {
			break
		}
	}

	values := make([]string, 0, len(seen))
	for value := range seen {
		values = append(values, value)
	}
	return values, nil
}

// UserInGroup reports whether the given tracker login belongs to the group,
// comparing case-insensitively against member name and key. A missing group
// is reported as false, not as an error.
func (c *Client) UserInGroup(ctx context.Context, username, group string) (bool, error) {
	nameLower := strings.ToLower(strings.TrimSpace(username))
	if nameLower == "" {
		return false, nil
	}

	start := 0
	for {
		body, err := c.doRequest(ctx, http.MethodGet, "/rest/api/2/group/member", url.Values{
			"groupname":            {group},
			"includeInactiveUsers": {"true"},
			"startAt":              {strconv.Itoa(start)},
			"maxResults":           {strconv.Itoa(groupPageSize)},
		}, nil)
		if err != nil {
			if apperr.IsCode(err, apperr.CodeNotFound) {
				c.logger.Warn("group not found", slog.String("group", group))
				return false, nil
			}
			return false, err
		}
		var page groupMemberResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return false, errors.Wrap(err, "tracker: failed to parse group member response")
		}
		for _, member := range page.Values {
			if member.Name != "" && strings.ToLower(member.Name) == nameLower {
				return true, nil
			}
			if member.Key != "" && strings.ToLower(member.Key) == nameLower {
				return true, nil
			}
		}
		if page.IsLast {
			break
		}
		start += groupPageSize
		if start >= c.searchCap {
			break
		}
	}
	return false, nil
}

// doRequest performs one authenticated call and maps failures onto the
// relay's error taxonomy: 404 -> NotFound, 401/403 -> Auth, network or
// timeout -> Transport.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var requestBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "tracker: failed to encode request body")
		}
		requestBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, requestBody)
	if err != nil {
		return nil, errors.Wrap(err, "tracker: failed to build request")
	}
	req.SetBasicAuth(c.username, c.password)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Transport(fmt.Sprintf("tracker request %s %s failed", method, path), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Transport(fmt.Sprintf("tracker response read for %s failed", path), err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperr.NotFound(fmt.Sprintf("tracker has no resource at %s", path))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperr.Auth(resp.StatusCode, fmt.Sprintf("tracker rejected access to %s", path))
	default:
		return nil, errors.Errorf("tracker: unexpected status %d for %s %s: %s",
			resp.StatusCode, method, path, truncate(string(body), 200))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
