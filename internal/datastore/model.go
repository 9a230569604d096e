// model.go defines the persistence model for reconciled detections
package datastore

import "time"

// Detection represents a single reconciled pest observation.
type Detection struct {
	ID             uint   `gorm:"primaryKey"`
	SourceNode     string // field station name from Main.Name
	Date           string `gorm:"index:idx_detections_date;index:idx_detections_date_pest_confidence"`
	Time           string `gorm:"index:idx_detections_time"`
	Source         string // frame source identifier
	BeginTime      time.Time
	PestType       string `gorm:"index:idx_detections_pest;index:idx_detections_date_pest_confidence"`
	ScientificName string `gorm:"index:idx_detections_sciname"`
	Confidence     int    `gorm:"index:idx_detections_date_pest_confidence"` // winning confidence, percent
	Margin         int    // winner minus runner-up, percent
	Detected       bool   // false for rejected verdicts kept for transparency
	DangerLevel    string
	RegionCount    int
	ClipName       string // saved snapshot path, empty when export disabled
	ProcessingTime time.Duration
	Scores         []Scores `gorm:"foreignKey:DetectionID;constraint:OnDelete:CASCADE"`
}

// Scores represents one entry of the trimmed ranked distribution behind a
// detection, linked to its Detection.
type Scores struct {
	ID          uint `gorm:"primaryKey"`
	DetectionID uint `gorm:"index;not null;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;foreignKey:DetectionID;references:ID"`
	Label       string
	Score       float32
}

// Copy creates a deep copy of the Scores struct
func (s Scores) Copy() Scores {
	return Scores{
		ID:          s.ID,
		DetectionID: s.DetectionID,
		Label:       s.Label,
		Score:       s.Score,
	}
}

// SpeciesSummaryRow aggregates detections per pest type.
type SpeciesSummaryRow struct {
	PestType       string
	ScientificName string
	Count          int
	MaxConfidence  int
	FirstSeen      time.Time
	LastSeen       time.Time
}

// SearchFilter narrows SearchDetections results. Zero values mean
// "no constraint" except Limit, which defaults to 100 when unset.
type SearchFilter struct {
	Query         string // matched against pest type and scientific name
	PestType      string // exact match
	DateStart     string // inclusive, YYYY-MM-DD
	DateEnd       string // inclusive, YYYY-MM-DD
	OnlyDetected  bool   // drop rejected verdicts
	SortAscending bool
	Limit         int
	Offset        int
}
