// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/errors"
)

// Interface abstracts the underlying database implementation and defines
// the operations the rest of the application may perform on it.
type Interface interface {
	Open() error
	Close() error
	Save(detection *Detection, scores []Scores) error
	Get(id string) (Detection, error)
	Delete(id string) error
	GetLastDetections(numDetections int) ([]Detection, error)
	SpeciesSummary() ([]SpeciesSummaryRow, error)
	SearchDetections(filter *SearchFilter) ([]Detection, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the provided configuration.
// Returns nil when no output backend is enabled.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		return nil
	}
}

// Save stores a detection and its ranked scores as a single transaction.
func (ds *DataStore) Save(detection *Detection, scores []Scores) error {
	start := time.Now()

	// Begin a transaction
	tx := ds.DB.Begin()
	if tx.Error != nil {
		return fmt.Errorf("starting transaction: %w", tx.Error)
	}

	// Roll back the transaction if a panic occurs
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	// Omit the association so GORM does not auto-save rows the loop below
	// creates; otherwise a populated detection.Scores double-inserts.
	if err := tx.Omit("Scores").Create(detection).Error; err != nil {
		tx.Rollback()
		recordOperation(OpDbInsert, "error")
		return errors.New(fmt.Errorf("saving detection: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save").
			Build()
	}

	// Assign the detection ID to each score row and save them
	for i := range scores {
		scores[i].DetectionID = detection.ID
		if err := tx.Create(&scores[i]).Error; err != nil {
			tx.Rollback()
			recordOperation(OpDbInsert, "error")
			return errors.New(fmt.Errorf("saving score: %w", err)).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("operation", "save").
				Context("label", scores[i].Label).
				Build()
		}
	}

	if err := tx.Commit().Error; err != nil {
		recordOperation(OpDbInsert, "error")
		return fmt.Errorf("committing transaction: %w", err)
	}

	recordOperation(OpDbInsert, "success")
	recordOperationDuration(OpDbInsert, time.Since(start).Seconds())
	if m := getMetrics(); m != nil {
		m.IncrementDetectionsSaved()
	}

	logger.Debug("detection saved",
		"id", detection.ID,
		"pest", detection.PestType,
		"confidence", detection.Confidence,
		"scores", len(scores))
	return nil
}

// Get retrieves a detection with its scores by ID.
func (ds *DataStore) Get(id string) (Detection, error) {
	detectionID, err := strconv.Atoi(id)
	if err != nil {
		return Detection{}, fmt.Errorf("converting ID to integer: %w", err)
	}

	var detection Detection
	if err := ds.DB.Preload("Scores").First(&detection, detectionID).Error; err != nil {
		recordOperation(OpDbQuery, "error")
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return Detection{}, errors.Newf("detection with ID %d not found", detectionID).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return Detection{}, fmt.Errorf("getting detection with ID %d: %w", detectionID, err)
	}
	recordOperation(OpDbQuery, "success")
	return detection, nil
}

// Delete removes a detection and its associated scores.
func (ds *DataStore) Delete(id string) error {
	detectionID, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return fmt.Errorf("converting ID to integer: %w", err)
	}

	// Perform the deletion within a transaction
	err = ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("detection_id = ?", detectionID).Delete(&Scores{}).Error; err != nil {
			return fmt.Errorf("deleting scores for detection ID %d: %w", detectionID, err)
		}
		if err := tx.Delete(&Detection{}, detectionID).Error; err != nil {
			return fmt.Errorf("deleting detection with ID %d: %w", detectionID, err)
		}
		return nil
	})
	if err != nil {
		recordOperation(OpDbDelete, "error")
		return err
	}

	recordOperation(OpDbDelete, "success")
	if m := getMetrics(); m != nil {
		m.IncrementDetectionsDeleted()
	}
	return nil
}

// GetLastDetections retrieves the most recent detections with their scores.
func (ds *DataStore) GetLastDetections(numDetections int) ([]Detection, error) {
	var detections []Detection

	result := ds.DB.Preload("Scores").
		Order("date DESC, time DESC").
		Limit(numDetections).
		Find(&detections)
	if result.Error != nil {
		recordOperation(OpDbQuery, "error")
		return nil, fmt.Errorf("error getting last detections: %w", result.Error)
	}

	recordOperation(OpDbQuery, "success")
	return detections, nil
}

// SpeciesSummary aggregates confirmed detections per pest type.
func (ds *DataStore) SpeciesSummary() ([]SpeciesSummaryRow, error) {
	var rows []SpeciesSummaryRow

	err := ds.DB.Table("detections").
		Select(`pest_type,
			MAX(scientific_name) as scientific_name,
			COUNT(*) as count,
			MAX(confidence) as max_confidence,
			MIN(begin_time) as first_seen,
			MAX(begin_time) as last_seen`).
		Where("detected = ?", true).
		Group("pest_type").
		Order("count DESC").
		Scan(&rows).Error
	if err != nil {
		recordOperation(OpDbQuery, "error")
		return nil, fmt.Errorf("error summarizing species: %w", err)
	}

	recordOperation(OpDbQuery, "success")
	return rows, nil
}

// SearchDetections performs a filtered search with sorting and pagination.
func (ds *DataStore) SearchDetections(filter *SearchFilter) ([]Detection, error) {
	if filter == nil {
		filter = &SearchFilter{}
	}

	query := ds.DB.Preload("Scores")

	if filter.Query != "" {
		like := "%" + filter.Query + "%"
		query = query.Where("pest_type LIKE ? OR scientific_name LIKE ?", like, like)
	}
	if filter.PestType != "" {
		query = query.Where("pest_type = ?", filter.PestType)
	}
	if filter.DateStart != "" {
		query = query.Where("date >= ?", filter.DateStart)
	}
	if filter.DateEnd != "" {
		query = query.Where("date <= ?", filter.DateEnd)
	}
	if filter.OnlyDetected {
		query = query.Where("detected = ?", true)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var detections []Detection
	err := query.Order("id " + sortAscendingString(filter.SortAscending)).
		Limit(limit).
		Offset(filter.Offset).
		Find(&detections).Error
	if err != nil {
		recordOperation(OpSearch, "error")
		return nil, fmt.Errorf("error searching detections: %w", err)
	}

	recordOperation(OpSearch, "success")
	return detections, nil
}

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(&Detection{}, &Scores{}); err != nil {
		return errors.New(fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("db_type", dbType).
			Build()
	}

	if debug {
		logger.Debug("database connection initialized",
			"db_type", dbType,
			"connection", connectionInfo)
	}

	return nil
}

// sortAscendingString returns "ASC" or "DESC" based on the boolean input.
func sortAscendingString(asc bool) string {
	if asc {
		return "ASC"
	}
	return "DESC"
}
