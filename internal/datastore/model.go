// model.go this code defines the data model for the application
package datastore

import (
	"encoding/json"
	"time"
)

// Session status values. The labeling engine owns the transition rules, the
// store only persists the value.
const (
	StatusNew                = "NEW"
	StatusInProgress         = "IN_PROGRESS"
	StatusStudentCompleted   = "STUDENT_COMPLETED"
	StatusDoctorCompleted    = "DOCTOR_COMPLETED"
	StatusRequestDoubleCheck = "REQUEST_DOUBLE_CHECK"
	StatusWaitForDoubleCheck = "WAIT_FOR_DOUBLE_CHECK"
)

// Measurement types recognized on a session.
const (
	MeasurementECG     = "ECG"
	MeasurementEEG     = "EEG"
	MeasurementEMG     = "EMG"
	MeasurementUnknown = "UNKNOWN"
)

// Patient represents the person a recording session belongs to
type Patient struct {
	ID        uint `gorm:"primaryKey"`
	FirstName string
	Gender    string    `gorm:"type:varchar(16)"`
	Sessions  []Session `gorm:"foreignKey:PatientID;constraint:OnDelete:CASCADE"`
}

// Session represents one imported recording, identified by patient and
// acquisition window and tracked through the labeling workflow status.
type Session struct {
	ID              uint   `gorm:"primaryKey"`
	PatientID       uint   `gorm:"index;not null;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;foreignKey:PatientID;references:ID"`
	MeasurementType string `gorm:"type:varchar(16)"` // Values: "ECG", "EEG", "EMG", "UNKNOWN"
	StartTime       time.Time
	EndTime         time.Time
	Status          string `gorm:"type:varchar(32);index"`
	InputFileName   string
	ContentHash     string `gorm:"uniqueIndex;not null"` // import deduplication key
	DoubleCheckMode bool
	UpdatedAt       time.Time
	Channels        []Channel `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"` // One-to-many relationship with cascade delete
}

// Channel represents a single decoded signal trace belonging to a session.
// RawSamples holds the unit-scaled sample sequence JSON-encoded, channels
// can carry tens of thousands of samples and are read back as one value.
type Channel struct {
	ID                   uint   `gorm:"primaryKey"`
	SessionID            uint   `gorm:"index;not null;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;foreignKey:SessionID;references:ID"`
	ChannelNumber        int    // device channel index, not unique, disambiguated by kind and sweep index
	Kind                 string `gorm:"type:varchar(16)"` // Values: "average", "trace", "longtrace"
	SweepIndex           *int   // set only for kind "trace"
	RawSamples           string `gorm:"type:text"`
	SamplingFrequencyKhz float64
	SubsampledKhz        float64 // override of sampling rate when downsampled
	DurationMs           float64
	Algorithm            string
	DoubleChecked        bool
	Annotations          []Annotation `gorm:"foreignKey:ChannelID;constraint:OnDelete:CASCADE"` // One-to-many relationship with cascade delete
}

// Samples decodes the stored sample sequence.
func (c *Channel) Samples() ([]float64, error) {
	if c.RawSamples == "" {
		return nil, nil
	}
	var samples []float64
	if err := json.Unmarshal([]byte(c.RawSamples), &samples); err != nil {
		return nil, err
	}
	return samples, nil
}

// SetSamples encodes and stores a sample sequence.
func (c *Channel) SetSamples(samples []float64) error {
	if samples == nil {
		samples = []float64{}
	}
	encoded, err := json.Marshal(samples)
	if err != nil {
		return err
	}
	c.RawSamples = string(encoded)
	return nil
}

// EffectiveRateKhz returns the rate the channel was actually stored at, the
// subsampled override when present.
func (c *Channel) EffectiveRateKhz() float64 {
	if c.SubsampledKhz > 0 {
		return c.SubsampledKhz
	}
	return c.SamplingFrequencyKhz
}

// SampleIntervalMs derives the spacing of the channel's sample grid in
// milliseconds. Returns 0 when no rate is derivable.
func (c *Channel) SampleIntervalMs() float64 {
	rate := c.EffectiveRateKhz()
	if rate <= 0 {
		return 0
	}
	// kHz is samples per millisecond
	return 1.0 / rate
}

// Label represents an annotation label, shared across annotations and
// created lazily the first time a name is referenced.
type Label struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;not null"`
}

// Annotation represents a time-ranged label attached to a channel. The
// [StartTimeMs, EndTimeMs) range is half-open, both bounds lie on the
// channel's sample grid.
type Annotation struct {
	ID          uint `gorm:"primaryKey"`
	ChannelID   uint `gorm:"index;not null;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;foreignKey:ChannelID;references:ID"`
	LabelID     uint `gorm:"index;not null"`
	StartTimeMs float64
	EndTimeMs   float64
	Note        string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Virtual field populated from the Label row on reads
	LabelName string `gorm:"-"`
}

// Overlaps reports whether two half-open annotation ranges intersect.
func (a *Annotation) Overlaps(other *Annotation) bool {
	return a.StartTimeMs < other.EndTimeMs && other.StartTimeMs < a.EndTimeMs
}
