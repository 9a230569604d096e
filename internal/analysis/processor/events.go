package processor

import (
	"time"

	"github.com/google/uuid"

	"github.com/palayguard/palayguard-go/internal/catalog"
	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/datastore"
	"github.com/palayguard/palayguard-go/internal/frame"
	"github.com/palayguard/palayguard-go/internal/localizer"
	"github.com/palayguard/palayguard-go/internal/paddynet"
)

// DetectionEvent is the reconciled outcome of one classified frame region.
// Rejected verdicts are delivered too, with Detected false and the winning
// label and scores preserved, so observers can show near misses.
type DetectionEvent struct {
	// CorrelationID ties log lines, spray commands and database rows from
	// the same verdict together.
	CorrelationID string

	Detected       bool
	PestType       string
	ScientificName string

	// Confidence and Margin are integer percentages derived from the raw
	// score vector.
	Confidence int
	Margin     int

	// Regions holds the localizer output that produced this verdict.
	Regions []localizer.Region

	// Rankings is the trimmed ranked distribution behind the verdict,
	// persisted alongside the detection row.
	Rankings []paddynet.LabelScore

	// Species is the catalog entry for the winning label, nil when the
	// verdict was rejected or the label is unknown.
	Species *catalog.Species

	Recommendations []string

	// Source identifies the frame source the event originated from.
	Source string

	// ClipName is the saved snapshot path, set by the snapshot action when
	// export is enabled.
	ClipName string

	// Frame is the captured frame backing this event. It is only valid
	// during synchronous dispatch; the scan loop closes it when the
	// iteration ends.
	Frame *frame.Frame

	ProcessingTime time.Duration
	Timestamp      time.Time
}

// DangerLevel returns the catalog danger level of the detected species,
// empty when no species is attached.
func (e *DetectionEvent) DangerLevel() string {
	if e.Species == nil {
		return ""
	}
	return e.Species.DangerLevel
}

func newCorrelationID() string {
	return uuid.New().String()
}

// buildDetectionRecord maps an event onto the datastore row shape.
func buildDetectionRecord(settings *conf.Settings, event *DetectionEvent) datastore.Detection {
	var node string
	if settings != nil {
		node = settings.Main.Name
	}
	return datastore.Detection{
		SourceNode:     node,
		Date:           event.Timestamp.Format("2006-01-02"),
		Time:           event.Timestamp.Format("15:04:05"),
		Source:         event.Source,
		BeginTime:      event.Timestamp,
		PestType:       event.PestType,
		ScientificName: event.ScientificName,
		Confidence:     event.Confidence,
		Margin:         event.Margin,
		Detected:       event.Detected,
		DangerLevel:    event.DangerLevel(),
		RegionCount:    len(event.Regions),
		ClipName:       event.ClipName,
		ProcessingTime: event.ProcessingTime,
	}
}
