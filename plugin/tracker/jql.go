package tracker

import (
	"fmt"
	"regexp"
	"strings"
)

var issueKeyPattern = regexp.MustCompile(`^(?i)[A-Z][A-Z0-9_]+-\d+$`)

// IsIssueKey reports whether the trimmed input looks like a record key
// (e.g. "REG-42") rather than a department name.
func IsIssueKey(s string) bool {
	return issueKeyPattern.MatchString(strings.TrimSpace(s))
}

// jqlField rewrites a field identifier into its JQL form:
// customfield_10100 -> cf[10100]; cf[10100] passes through unchanged;
// anything else is treated as a field name and quoted.
func jqlField(fieldIDOrName string) string {
	if rest, ok := strings.CutPrefix(fieldIDOrName, "customfield_"); ok {
		return "cf[" + rest + "]"
	}
	if strings.HasPrefix(fieldIDOrName, "cf[") {
		return fieldIDOrName
	}
	return `"` + fieldIDOrName + `"`
}

// Literal values are interpolated with surrounding double quotes and no
// escaping. Callers must not pass attacker-controlled quote characters;
// the values handled here come from the tracker's own field enumeration.

func (c *Client) jqlProject() string {
	return fmt.Sprintf("project = %q", c.projectKey)
}

func (c *Client) jqlByDepartment(department string) string {
	return fmt.Sprintf("%s AND %s = %q ORDER BY created DESC",
		c.jqlProject(), jqlField(c.departmentFieldID), department)
}

func (c *Client) jqlByDepartmentAndField(department, fieldID, value string) string {
	return fmt.Sprintf("%s AND %s = %q AND %s = %q ORDER BY created DESC",
		c.jqlProject(), jqlField(c.departmentFieldID), department, jqlField(fieldID), value)
}
