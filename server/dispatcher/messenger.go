package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/itregistry/regrelay/plugin/tracker"
)

// Messenger delivers one rendered notification to one subscriber. The
// messaging transport (and any retry policy it wants) lives behind this
// interface.
type Messenger interface {
	SendMessage(ctx context.Context, subscriberID int64, text string) error
}

// Renderer turns a changed record into the notification text. Card markup
// is the renderer's concern, not the dispatcher's.
type Renderer interface {
	RenderNotification(issue *tracker.Issue, department string) string
}

// TextRenderer is a minimal plain-text renderer used for local development
// and tests: key, browse link and the department line.
type TextRenderer struct {
	// BrowseBaseURL is the public tracker URL rendered into the record link.
	BrowseBaseURL string
}

func (r *TextRenderer) RenderNotification(issue *tracker.Issue, department string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", issue.Key)
	if r.BrowseBaseURL != "" {
		fmt.Fprintf(&b, "%s/browse/%s\n", strings.TrimRight(r.BrowseBaseURL, "/"), issue.Key)
	}
	if department == "" {
		department = "—"
	}
	fmt.Fprintf(&b, "Отдел: %s", department)
	return b.String()
}

// LogMessenger writes deliveries to the log instead of a messaging backend.
// Useful when running without a configured transport.
type LogMessenger struct {
	Logger *slog.Logger
}

func (m *LogMessenger) SendMessage(_ context.Context, subscriberID int64, text string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification delivery",
		slog.Int64("subscriber", subscriberID),
		slog.String("text", text))
	return nil
}
