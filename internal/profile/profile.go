package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the relay server.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// Addr is the binding address for the webhook server
	Addr string
	// Port is the binding port for the webhook server
	Port int
	// Data is the data directory holding the durable preference files
	Data string
	// Driver is the preference store driver (jsonfile or sqlite)
	Driver string
	// DSN points to the sqlite database file when Driver is "sqlite"
	DSN string

	// Tracker connection
	TrackerBaseURL string // JIRA_BASE_URL
	BrowseBaseURL  string // PUBLIC_JIRA_BASE_URL, used in rendered links
	TrackerUser    string // JIRA_USERNAME
	TrackerPass    string // JIRA_PASSWORD
	VerifyTLS      bool   // JIRA_VERIFY_SSL

	// Tracker query surface
	ProjectKey        string        // PROJECT_KEY (default: REG)
	DepartmentFieldID string        // DEPARTMENT_FIELD_ID (default: customfield_10100)
	EditorGroup       string        // EDITOR_GROUP (default: reg_editors)
	HTTPTimeout       time.Duration // HTTP_TIMEOUT, per-call timeout in seconds
	SearchCap         int           // SEARCH_CAP, hard cap on paginated scans
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	v := strings.ToLower(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	switch v {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// FromEnv loads configuration from environment variables.
// Every value has a default suitable for local development; production
// deployments must override at least the credentials and VerifyTLS.
func (p *Profile) FromEnv() {
	p.TrackerBaseURL = strings.TrimRight(getEnvOrDefault("JIRA_BASE_URL", "http://localhost:8080"), "/")
	p.BrowseBaseURL = strings.TrimRight(getEnvOrDefault("PUBLIC_JIRA_BASE_URL", p.TrackerBaseURL), "/")
	p.TrackerUser = getEnvOrDefault("JIRA_USERNAME", "admin")
	p.TrackerPass = getEnvOrDefault("JIRA_PASSWORD", "admin")
	p.VerifyTLS = getBoolEnv("JIRA_VERIFY_SSL", true)

	p.ProjectKey = getEnvOrDefault("PROJECT_KEY", "REG")
	p.DepartmentFieldID = getEnvOrDefault("DEPARTMENT_FIELD_ID", "customfield_10100")
	p.EditorGroup = getEnvOrDefault("EDITOR_GROUP", "reg_editors")

	if secs, err := strconv.ParseFloat(getEnvOrDefault("HTTP_TIMEOUT", "15"), 64); err == nil && secs > 0 {
		p.HTTPTimeout = time.Duration(secs * float64(time.Second))
	}
	if cap, err := strconv.Atoi(getEnvOrDefault("SEARCH_CAP", "100000")); err == nil && cap > 0 {
		p.SearchCap = cap
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			p.Port = port
		}
	} else if p.Port == 0 {
		p.Port = 8081
	}
	if p.Data == "" {
		p.Data = getEnvOrDefault("DATA_DIR", "")
	}
	if p.Driver == "" {
		p.Driver = getEnvOrDefault("STORE_DRIVER", "jsonfile")
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(dataDir, 0o750); err != nil {
				return "", errors.Wrapf(err, "unable to create data folder %s", dataDir)
			}
			return dataDir, nil
		}
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}
	if p.Port <= 0 {
		p.Port = 8081
	}
	if p.HTTPTimeout <= 0 {
		p.HTTPTimeout = 15 * time.Second
	}
	if p.SearchCap <= 0 {
		p.SearchCap = 100_000
	}

	if p.Data == "" {
		if p.Mode == "prod" {
			p.Data = "/var/opt/regrelay"
		} else {
			p.Data = "./data"
		}
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return err
	}
	p.Data = dataDir

	switch p.Driver {
	case "jsonfile":
	case "sqlite":
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("regrelay_%s.db", p.Mode))
		}
	default:
		return errors.Errorf("unknown store driver %q: only 'jsonfile' and 'sqlite' are supported", p.Driver)
	}

	return nil
}
