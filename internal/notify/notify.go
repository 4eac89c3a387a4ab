package notify

import (
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Urgency levels for notifications
type Urgency int

const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyCritical
)

// Notification represents a desktop notification
type Notification struct {
	Title   string
	Body    string
	Urgency Urgency
	Timeout time.Duration
	Icon    string // Optional icon name
}

// Notifier handles sending desktop notifications
type Notifier struct {
	enabled bool
	logger  *zap.Logger
	// run executes notify-send; replaced in tests
	run func(args []string) error
}

// NewNotifier creates a new notifier
func NewNotifier(logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		enabled: true,
		logger:  logger,
		run: func(args []string) error {
			return exec.Command("notify-send", args...).Run()
		},
	}
}

// SetEnabled enables or disables notifications
func (n *Notifier) SetEnabled(enabled bool) {
	n.enabled = enabled
}

// IsEnabled returns whether notifications are enabled
func (n *Notifier) IsEnabled() bool {
	return n.enabled
}

// Send sends a desktop notification using notify-send
func (n *Notifier) Send(notification Notification) error {
	if !n.enabled {
		return nil
	}
	return n.run(buildArgs(notification))
}

func buildArgs(notification Notification) []string {
	args := []string{}

	switch notification.Urgency {
	case UrgencyLow:
		args = append(args, "-u", "low")
	case UrgencyCritical:
		args = append(args, "-u", "critical")
	default:
		args = append(args, "-u", "normal")
	}

	// Timeout in milliseconds
	if notification.Timeout > 0 {
		args = append(args, "-t", strconv.Itoa(int(notification.Timeout.Milliseconds())))
	}

	if notification.Icon != "" {
		args = append(args, "-i", notification.Icon)
	}

	args = append(args, "-a", "terrain")

	args = append(args, notification.Title)
	if notification.Body != "" {
		args = append(args, notification.Body)
	}
	return args
}

// SendSimple sends a simple notification with title and body
func (n *Notifier) SendSimple(title, body string) error {
	return n.Send(Notification{
		Title:   title,
		Body:    body,
		Urgency: UrgencyNormal,
		Timeout: 5 * time.Second,
	})
}

// Alert reports a failed save. It never fails: when the desktop cannot
// show it, the alert is only logged.
func (n *Notifier) Alert(title string, err error) {
	n.logger.Warn("alert", zap.String("title", title), zap.Error(err))
	body := "Your change is kept on this device. Check the connection and try again."
	if err != nil {
		body = err.Error() + "\n" + body
	}
	sendErr := n.Send(Notification{
		Title:   title,
		Body:    body,
		Urgency: UrgencyCritical,
		Timeout: 15 * time.Second,
		Icon:    "dialog-error-symbolic",
	})
	if sendErr != nil {
		n.logger.Debug("desktop notification failed", zap.Error(sendErr))
	}
}

// SendSessionCommitted confirms a work session was saved to the ledger
func (n *Notifier) SendSessionCommitted(work string, price float64) error {
	return n.Send(Notification{
		Title:   "Session saved",
		Body:    fmt.Sprintf("%s worked, %.2f €", work, price),
		Urgency: UrgencyLow,
		Timeout: 5 * time.Second,
		Icon:    "alarm-symbolic",
	})
}

// SendVisitReminder announces a scheduled visit
func (n *Notifier) SendVisitReminder(address string, at time.Time) error {
	return n.Send(Notification{
		Title:   "Visit planned",
		Body:    fmt.Sprintf("%s on %s", address, at.Format("Mon 2 Jan 15:04")),
		Urgency: UrgencyNormal,
		Timeout: 10 * time.Second,
		Icon:    "appointment-soon-symbolic",
	})
}
