package importer

import (
	"strings"
	"time"

	"github.com/jkarvon/vikinglab/internal/datastore"
	"github.com/jkarvon/vikinglab/internal/vikingfile"
)

// sessionMetadata is what the export header tells us about the recording.
type sessionMetadata struct {
	patientName     string
	gender          string
	measurementType string
	startTime       time.Time
	endTime         time.Time
}

// unknownPatient is used when the export names no patient, every session
// needs an owner row.
const unknownPatient = "Unknown"

var (
	patientNameKeys = []string{"Patient Name", "First Name", "Patient"}
	genderKeys      = []string{"Gender", "Sex"}
	testTypeKeys    = []string{"Test Type", "Modality", "Measurement"}
	startTimeKeys   = []string{"Start Time", "Recording Start"}
	endTimeKeys     = []string{"End Time", "Recording End"}
)

// timeLayouts are the clock formats seen in exports, probed in order.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"02.01.2006 15:04:05",
	"15:04:05",
}

// readSessionMetadata pulls session-level fields out of the parsed
// document. Everything is optional, absent fields get safe defaults.
func readSessionMetadata(doc *vikingfile.Document) sessionMetadata {
	meta := sessionMetadata{
		patientName:     unknownPatient,
		measurementType: datastore.MeasurementUnknown,
	}

	if name, ok := findLeaf(doc.Root, patientNameKeys...); ok && strings.TrimSpace(name) != "" {
		meta.patientName = strings.TrimSpace(name)
	}
	if gender, ok := findLeaf(doc.Root, genderKeys...); ok {
		meta.gender = strings.TrimSpace(gender)
	}
	if testType, ok := findLeaf(doc.Root, testTypeKeys...); ok {
		meta.measurementType = classifyMeasurement(testType)
	}
	if raw, ok := findLeaf(doc.Root, startTimeKeys...); ok {
		meta.startTime, _ = parseTime(raw)
	}
	if raw, ok := findLeaf(doc.Root, endTimeKeys...); ok {
		meta.endTime, _ = parseTime(raw)
	}

	return meta
}

// classifyMeasurement maps a free-text test type onto the known measurement
// types.
func classifyMeasurement(testType string) string {
	upper := strings.ToUpper(testType)
	switch {
	case strings.Contains(upper, datastore.MeasurementEMG):
		return datastore.MeasurementEMG
	case strings.Contains(upper, datastore.MeasurementEEG):
		return datastore.MeasurementEEG
	case strings.Contains(upper, datastore.MeasurementECG):
		return datastore.MeasurementECG
	default:
		return datastore.MeasurementUnknown
	}
}

func parseTime(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	var firstErr error
	for _, layout := range timeLayouts {
		parsed, err := time.Parse(layout, trimmed)
		if err == nil {
			return parsed, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// findLeaf searches the tree depth-first for the first leaf whose key
// matches one of the given names, exact match first, then case-insensitive.
func findLeaf(node *vikingfile.Node, names ...string) (string, bool) {
	for _, name := range names {
		if value, ok := node.Leaf(name); ok {
			return value, true
		}
	}
	for _, name := range names {
		lower := strings.ToLower(name)
		for _, key := range node.Keys() {
			if strings.EqualFold(key, name) || strings.Contains(strings.ToLower(key), lower) {
				if value, ok := node.Leaf(key); ok {
					return value, true
				}
			}
		}
	}
	for _, key := range node.Keys() {
		if section, ok := node.Section(key); ok {
			if value, found := findLeaf(section, names...); found {
				return value, true
			}
		}
	}
	return "", false
}
