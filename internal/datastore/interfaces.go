// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"log"
	"os"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jkarvon/vikinglab/internal/conf"
	"github.com/jkarvon/vikinglab/internal/errors"
)

// Store is the operation surface available both on the root datastore and
// inside a transaction. Every multi-row mutation goes through Transaction so
// a failure anywhere inside an operation leaves no partial state.
type Store interface {
	Transaction(fn func(tx Store) error) error

	SavePatient(patient *Patient) error
	GetPatient(id uint) (Patient, error)
	FindPatientByName(firstName string) (Patient, error)

	SaveSession(session *Session) error
	GetSession(id uint) (Session, error)
	GetSessions() ([]Session, error)
	GetSessionByContentHash(hash string) (Session, error)
	SetSessionStatus(id uint, status string) error
	SetSessionDoubleCheckMode(id uint, enabled bool) error
	TouchSession(id uint) error
	DeleteSession(id uint) error

	SaveChannels(channels []Channel) error
	GetChannel(id uint) (Channel, error)
	GetChannelsBySession(sessionID uint) ([]Channel, error)
	SetChannelDoubleChecked(id uint, checked bool) error
	CountPendingDoubleChecks(sessionID uint) (int64, error)

	GetLabelByName(name string) (Label, error)
	SaveLabel(label *Label) error

	SaveAnnotation(annotation *Annotation) error
	GetAnnotation(id uint) (Annotation, error)
	GetAnnotationsByChannel(channelID uint) ([]Annotation, error)
	DeleteAnnotation(id uint) (bool, error)
}

// Interface adds connection lifecycle on top of Store and abstracts the
// underlying database implementation.
type Interface interface {
	Store
	Open() error
	Close() error
}

// DataStore implements Store using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the provided settings.
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

// Transaction runs fn inside a unit of work. All store calls made through
// the passed Store ride the same transaction, any error rolls the whole
// unit back.
func (ds *DataStore) Transaction(fn func(tx Store) error) error {
	return ds.DB.Transaction(func(tx *gorm.DB) error {
		return fn(&DataStore{DB: tx})
	})
}

// SavePatient inserts or updates a patient row.
func (ds *DataStore) SavePatient(patient *Patient) error {
	if err := ds.DB.Save(patient).Error; err != nil {
		return dbError(err, "save_patient", "")
	}
	return nil
}

// GetPatient retrieves a patient by its ID.
func (ds *DataStore) GetPatient(id uint) (Patient, error) {
	var patient Patient
	if err := ds.DB.First(&patient, id).Error; err != nil {
		if errIsRecordNotFound(err) {
			return Patient{}, notFoundError("patient", id)
		}
		return Patient{}, dbError(err, "get_patient", "", "patient_id", id)
	}
	return patient, nil
}

// FindPatientByName retrieves a patient by first name.
func (ds *DataStore) FindPatientByName(firstName string) (Patient, error) {
	var patient Patient
	if err := ds.DB.Where("first_name = ?", firstName).First(&patient).Error; err != nil {
		if errIsRecordNotFound(err) {
			return Patient{}, notFoundError("patient", firstName)
		}
		return Patient{}, dbError(err, "find_patient_by_name", "")
	}
	return patient, nil
}

// SaveSession inserts or updates a session row. The unique content hash
// constraint rejects a second insert of the same imported file.
func (ds *DataStore) SaveSession(session *Session) error {
	session.UpdatedAt = time.Now()
	if err := ds.DB.Omit("Channels").Save(session).Error; err != nil {
		if isConstraintViolation(err) {
			return conflictError(err, "save_session", "content_hash",
				"input_file_name", session.InputFileName)
		}
		return dbError(err, "save_session", "")
	}
	return nil
}

// GetSession retrieves a session by its ID.
func (ds *DataStore) GetSession(id uint) (Session, error) {
	var session Session
	if err := ds.DB.First(&session, id).Error; err != nil {
		if errIsRecordNotFound(err) {
			return Session{}, notFoundError("session", id)
		}
		return Session{}, dbError(err, "get_session", "", "session_id", id)
	}
	return session, nil
}

// GetSessions retrieves all sessions, most recently updated first.
func (ds *DataStore) GetSessions() ([]Session, error) {
	var sessions []Session
	if err := ds.DB.Order("updated_at DESC").Find(&sessions).Error; err != nil {
		return nil, dbError(err, "get_sessions", "")
	}
	return sessions, nil
}

// GetSessionByContentHash retrieves the session a file content hash was
// previously imported under, for duplicate detection.
func (ds *DataStore) GetSessionByContentHash(hash string) (Session, error) {
	var session Session
	if err := ds.DB.Where("content_hash = ?", hash).First(&session).Error; err != nil {
		if errIsRecordNotFound(err) {
			return Session{}, notFoundError("session", hash)
		}
		return Session{}, dbError(err, "get_session_by_content_hash", "")
	}
	return session, nil
}

// SetSessionStatus updates the workflow status and bumps updated_at.
func (ds *DataStore) SetSessionStatus(id uint, status string) error {
	result := ds.DB.Model(&Session{}).Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now()})
	if result.Error != nil {
		return dbError(result.Error, "set_session_status", "", "session_id", id)
	}
	if result.RowsAffected == 0 {
		return notFoundError("session", id)
	}
	return nil
}

// SetSessionDoubleCheckMode toggles the session's double-check mode flag.
func (ds *DataStore) SetSessionDoubleCheckMode(id uint, enabled bool) error {
	result := ds.DB.Model(&Session{}).Where("id = ?", id).
		Updates(map[string]any{"double_check_mode": enabled, "updated_at": time.Now()})
	if result.Error != nil {
		return dbError(result.Error, "set_session_double_check_mode", "", "session_id", id)
	}
	if result.RowsAffected == 0 {
		return notFoundError("session", id)
	}
	return nil
}

// TouchSession bumps the session's updated_at timestamp.
func (ds *DataStore) TouchSession(id uint) error {
	result := ds.DB.Model(&Session{}).Where("id = ?", id).
		Update("updated_at", time.Now())
	if result.Error != nil {
		return dbError(result.Error, "touch_session", "", "session_id", id)
	}
	if result.RowsAffected == 0 {
		return notFoundError("session", id)
	}
	return nil
}

// DeleteSession removes a session with its channels and their annotations.
// Deletion cascades explicitly inside one transaction so it behaves the same
// on every supported database.
func (ds *DataStore) DeleteSession(id uint) error {
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		channelIDs := tx.Model(&Channel{}).Select("id").Where("session_id = ?", id)
		if err := tx.Where("channel_id IN (?)", channelIDs).Delete(&Annotation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", id).Delete(&Channel{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Session{}, id).Error
	})
	if err != nil {
		return dbError(err, "delete_session", "", "session_id", id)
	}
	return nil
}

// SaveChannels bulk-inserts channel rows as a single transaction so a
// failed import never leaves partially-inserted channels.
func (ds *DataStore) SaveChannels(channels []Channel) error {
	if len(channels) == 0 {
		return nil
	}
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		for i := range channels {
			if err := tx.Omit("Annotations").Create(&channels[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return dbError(err, "save_channels", "", "channel_count", len(channels))
	}
	return nil
}

// GetChannel retrieves a channel by its ID.
func (ds *DataStore) GetChannel(id uint) (Channel, error) {
	var channel Channel
	if err := ds.DB.First(&channel, id).Error; err != nil {
		if errIsRecordNotFound(err) {
			return Channel{}, notFoundError("channel", id)
		}
		return Channel{}, dbError(err, "get_channel", "", "channel_id", id)
	}
	return channel, nil
}

// GetChannelsBySession retrieves all channels belonging to a session.
func (ds *DataStore) GetChannelsBySession(sessionID uint) ([]Channel, error) {
	var channels []Channel
	if err := ds.DB.Where("session_id = ?", sessionID).Order("id ASC").Find(&channels).Error; err != nil {
		return nil, dbError(err, "get_channels_by_session", "", "session_id", sessionID)
	}
	return channels, nil
}

// SetChannelDoubleChecked updates a channel's double-check flag.
func (ds *DataStore) SetChannelDoubleChecked(id uint, checked bool) error {
	result := ds.DB.Model(&Channel{}).Where("id = ?", id).
		Update("double_checked", checked)
	if result.Error != nil {
		return dbError(result.Error, "set_channel_double_checked", "", "channel_id", id)
	}
	if result.RowsAffected == 0 {
		return notFoundError("channel", id)
	}
	return nil
}

// CountPendingDoubleChecks returns how many of a session's channels still
// await a double check.
func (ds *DataStore) CountPendingDoubleChecks(sessionID uint) (int64, error) {
	var count int64
	err := ds.DB.Model(&Channel{}).
		Where("session_id = ? AND double_checked = ?", sessionID, false).
		Count(&count).Error
	if err != nil {
		return 0, dbError(err, "count_pending_double_checks", "", "session_id", sessionID)
	}
	return count, nil
}

// GetLabelByName retrieves a label by name, case-insensitively.
func (ds *DataStore) GetLabelByName(name string) (Label, error) {
	var label Label
	if err := ds.DB.Where("LOWER(name) = LOWER(?)", name).First(&label).Error; err != nil {
		if errIsRecordNotFound(err) {
			return Label{}, notFoundError("label", name)
		}
		return Label{}, dbError(err, "get_label_by_name", "")
	}
	return label, nil
}

// SaveLabel inserts or updates a label row.
func (ds *DataStore) SaveLabel(label *Label) error {
	if err := ds.DB.Save(label).Error; err != nil {
		if isConstraintViolation(err) {
			return conflictError(err, "save_label", "label_name", "name", label.Name)
		}
		return dbError(err, "save_label", "")
	}
	return nil
}

// SaveAnnotation inserts or updates an annotation row.
func (ds *DataStore) SaveAnnotation(annotation *Annotation) error {
	if err := ds.DB.Save(annotation).Error; err != nil {
		return dbError(err, "save_annotation", "", "channel_id", annotation.ChannelID)
	}
	return nil
}

// GetAnnotation retrieves an annotation by its ID with its label name filled.
func (ds *DataStore) GetAnnotation(id uint) (Annotation, error) {
	var annotation Annotation
	if err := ds.DB.First(&annotation, id).Error; err != nil {
		if errIsRecordNotFound(err) {
			return Annotation{}, notFoundError("annotation", id)
		}
		return Annotation{}, dbError(err, "get_annotation", "", "annotation_id", id)
	}
	var label Label
	if err := ds.DB.First(&label, annotation.LabelID).Error; err == nil {
		annotation.LabelName = label.Name
	}
	return annotation, nil
}

// GetAnnotationsByChannel retrieves all annotations on a channel ordered by
// start time, label names filled in.
func (ds *DataStore) GetAnnotationsByChannel(channelID uint) ([]Annotation, error) {
	var annotations []Annotation
	err := ds.DB.Where("channel_id = ?", channelID).
		Order("start_time_ms ASC").
		Find(&annotations).Error
	if err != nil {
		return nil, dbError(err, "get_annotations_by_channel", "", "channel_id", channelID)
	}
	ds.fillLabelNames(annotations)
	return annotations, nil
}

// fillLabelNames populates the virtual LabelName field from the labels table.
func (ds *DataStore) fillLabelNames(annotations []Annotation) {
	if len(annotations) == 0 {
		return
	}
	ids := make([]uint, 0, len(annotations))
	for i := range annotations {
		ids = append(ids, annotations[i].LabelID)
	}
	var labels []Label
	if err := ds.DB.Where("id IN ?", ids).Find(&labels).Error; err != nil {
		return
	}
	byID := make(map[uint]string, len(labels))
	for i := range labels {
		byID[labels[i].ID] = labels[i].Name
	}
	for i := range annotations {
		annotations[i].LabelName = byID[annotations[i].LabelID]
	}
}

// DeleteAnnotation removes an annotation. Returns false without error when
// the annotation does not exist.
func (ds *DataStore) DeleteAnnotation(id uint) (bool, error) {
	result := ds.DB.Delete(&Annotation{}, id)
	if result.Error != nil {
		return false, dbError(result.Error, "delete_annotation", "", "annotation_id", id)
	}
	return result.RowsAffected > 0, nil
}

// errIsRecordNotFound reports whether err is GORM's missing-row error.
func errIsRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
			Colorful:      true,
		},
	)
}
