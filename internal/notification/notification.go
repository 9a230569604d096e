// Package notification pushes farmer alerts for confirmed detections
// through shoutrrr providers (Telegram, ntfy, email and friends), with a
// danger-level floor and per-pest rate limiting.
package notification

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"strings"
	"sync"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/palayguard/palayguard-go/internal/catalog"
	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/errors"
	"github.com/palayguard/palayguard-go/internal/logging"
	"github.com/palayguard/palayguard-go/internal/observability/metrics"
)

const senderTimeout = 10 * time.Second

var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
)

func init() {
	var err error
	logger, _, err = logging.NewFileLogger("logs/notifications.log", "notifications", serviceLevelVar)
	if err != nil || logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil)).With("service", "notifications")
	}
}

// Alert carries everything a farmer-facing push message needs.
type Alert struct {
	PestType        string
	ScientificName  string
	DangerLevel     string
	Confidence      int
	Source          string
	Recommendations []string
	Timestamp       time.Time
}

// Notifier delivers alerts through a shoutrrr service router.
type Notifier struct {
	sender       *router.ServiceRouter
	minRank      int
	interval     time.Duration
	nodeName     string
	metrics      *metrics.NotificationMetrics
	send         func(title, message string) []error
	timeProvider func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// New builds a Notifier from the realtime notification settings. Returns
// an error when no provider URLs are configured or a URL fails shoutrrr
// validation.
func New(settings *conf.Settings, notificationMetrics *metrics.NotificationMetrics) (*Notifier, error) {
	nConf := settings.Realtime.Notification

	if len(nConf.Providers) == 0 {
		return nil, errors.Newf("no notification provider URLs configured").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sender, err := shoutrrr.CreateSender(nConf.Providers...)
	if err != nil {
		return nil, errors.New(fmt.Errorf("creating shoutrrr sender: %w", err)).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Context("providers", len(nConf.Providers)).
			Build()
	}
	sender.Timeout = senderTimeout
	sender.SetLogger(log.New(io.Discard, "", 0))

	minRank := catalog.RankDangerLevel(nConf.MinDangerLevel)
	if minRank < 0 {
		minRank = 0
	}

	n := &Notifier{
		sender:       sender,
		minRank:      minRank,
		interval:     time.Duration(nConf.Interval) * time.Second,
		nodeName:     settings.Main.Name,
		metrics:      notificationMetrics,
		timeProvider: time.Now,
		lastSent:     make(map[string]time.Time),
	}
	n.send = n.sendViaRouter
	return n, nil
}

// NotifyDetection pushes one alert, applying the danger-level floor and
// the per-pest interval. Suppressed alerts return nil.
func (n *Notifier) NotifyDetection(ctx context.Context, alert *Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rank := catalog.RankDangerLevel(alert.DangerLevel)
	if rank < 0 {
		rank = 0
	}
	if rank < n.minRank {
		logger.Debug("alert below danger floor, skipping",
			"pest", alert.PestType,
			"danger_level", alert.DangerLevel)
		return nil
	}

	if !n.shouldSend(alert.PestType) {
		if n.metrics != nil {
			n.metrics.IncrementSuppressed()
		}
		logger.Debug("alert suppressed by interval",
			"pest", alert.PestType,
			"interval", n.interval)
		return nil
	}

	title, message := formatAlert(n.nodeName, alert)

	start := time.Now()
	errs := n.send(title, message)
	for _, sendErr := range errs {
		if sendErr == nil {
			continue
		}
		if n.metrics != nil {
			n.metrics.RecordDelivery("error")
		}
		return errors.New(fmt.Errorf("sending notification: %w", sendErr)).
			Component("notification").
			Category(errors.CategoryNotification).
			Context("pest", alert.PestType).
			Build()
	}

	if n.metrics != nil {
		n.metrics.RecordDelivery("success")
		n.metrics.RecordDeliveryDuration(time.Since(start).Seconds())
	}
	logger.Info("alert delivered",
		"pest", alert.PestType,
		"confidence", alert.Confidence,
		"danger_level", alert.DangerLevel)
	return nil
}

// shouldSend records the send time for the pest and reports whether the
// per-pest interval has elapsed since the previous alert.
func (n *Notifier) shouldSend(pestType string) bool {
	if n.interval <= 0 {
		return true
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.timeProvider()
	if last, ok := n.lastSent[pestType]; ok && now.Sub(last) < n.interval {
		return false
	}
	n.lastSent[pestType] = now
	return true
}

func (n *Notifier) sendViaRouter(title, message string) []error {
	params := stypes.Params{}
	if title != "" {
		params.SetTitle(title)
	}
	return n.sender.Send(message, &params)
}

// formatAlert renders a push title and body for the alert.
func formatAlert(nodeName string, alert *Alert) (title, message string) {
	title = fmt.Sprintf("%s detected (%d%%)", alert.PestType, alert.Confidence)

	var b strings.Builder
	if alert.ScientificName != "" {
		fmt.Fprintf(&b, "%s (%s)\n", alert.PestType, alert.ScientificName)
	} else {
		fmt.Fprintf(&b, "%s\n", alert.PestType)
	}
	fmt.Fprintf(&b, "Danger level: %s\n", alert.DangerLevel)
	if nodeName != "" {
		fmt.Fprintf(&b, "Station: %s", nodeName)
	}
	if alert.Source != "" {
		fmt.Fprintf(&b, " (%s)", alert.Source)
	}
	b.WriteString("\n")
	if !alert.Timestamp.IsZero() {
		fmt.Fprintf(&b, "Time: %s\n", alert.Timestamp.Format("2006-01-02 15:04:05"))
	}
	if len(alert.Recommendations) > 0 {
		b.WriteString("Recommended actions:\n")
		for i, step := range alert.Recommendations {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step)
		}
	}
	return title, strings.TrimRight(b.String(), "\n")
}
