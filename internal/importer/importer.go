// Package importer turns a Viking export file into a persisted recording
// session: decode, parse, extract channels, deduplicate by content hash and
// bulk-insert everything inside a single unit of work.
package importer

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"path/filepath"

	"github.com/jkarvon/vikinglab/internal/conf"
	"github.com/jkarvon/vikinglab/internal/datastore"
	"github.com/jkarvon/vikinglab/internal/errors"
	"github.com/jkarvon/vikinglab/internal/extraction"
	"github.com/jkarvon/vikinglab/internal/logging"
	"github.com/jkarvon/vikinglab/internal/vikingfile"
)

// Importer imports Viking export files into the datastore.
type Importer struct {
	store    datastore.Store
	settings *conf.Settings
	log      *slog.Logger
}

// New creates an importer using the given store and settings.
func New(store datastore.Store, settings *conf.Settings) *Importer {
	log := logging.ForService("importer")
	if log == nil {
		log = slog.Default()
	}
	return &Importer{store: store, settings: settings, log: log}
}

// ImportFile imports one export file and returns the created session ID.
// The same file content imported twice is rejected as a duplicate. The
// session, its patient and all channels are written in one unit of work so
// a failed import leaves no partial state.
func (im *Importer) ImportFile(path string) (uint, error) {
	content, err := vikingfile.ReadFile(path)
	if err != nil {
		return 0, err
	}

	if im.settings.Import.RequireSignature && !vikingfile.CheckSignature(content) {
		return 0, errors.Newf("file %s carries no Viking export signature", filepath.Base(path)).
			Component("importer").
			Category(errors.CategoryFileParsing).
			FileContext(path, int64(len(content))).
			Build()
	}

	hash := contentHash(content)
	if existing, err := im.store.GetSessionByContentHash(hash); err == nil {
		return 0, errors.Newf("file content already imported as session %d", existing.ID).
			Component("importer").
			Category(errors.CategoryConflict).
			Context("session_id", existing.ID).
			Context("content_hash", hash).
			Build()
	} else if !errors.IsNotFound(err) {
		return 0, err
	}

	doc := vikingfile.Parse(content)
	channels := extraction.Extract(doc)
	if !im.settings.Import.KeepEmptyChannels {
		channels = dropEmptyChannels(channels)
	}
	meta := readSessionMetadata(doc)

	var sessionID uint
	err = im.store.Transaction(func(tx datastore.Store) error {
		patient, err := resolvePatient(tx, meta)
		if err != nil {
			return err
		}

		session := datastore.Session{
			PatientID:       patient.ID,
			MeasurementType: meta.measurementType,
			StartTime:       meta.startTime,
			EndTime:         meta.endTime,
			Status:          datastore.StatusNew,
			InputFileName:   filepath.Base(path),
			ContentHash:     hash,
		}
		if err := tx.SaveSession(&session); err != nil {
			return err
		}

		rows, err := channelRows(session.ID, channels)
		if err != nil {
			return err
		}
		if err := tx.SaveChannels(rows); err != nil {
			return err
		}

		sessionID = session.ID
		return nil
	})
	if err != nil {
		return 0, err
	}

	im.log.Info("file imported",
		"file", filepath.Base(path),
		"session_id", sessionID,
		"channels", len(channels))
	return sessionID, nil
}

// contentHash is the import deduplication key over the decoded file content.
func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func dropEmptyChannels(channels []extraction.Channel) []extraction.Channel {
	kept := channels[:0]
	for _, channel := range channels {
		if len(channel.RawSamples) > 0 {
			kept = append(kept, channel)
		}
	}
	return kept
}

// channelRows converts extracted channels into datastore rows.
func channelRows(sessionID uint, channels []extraction.Channel) ([]datastore.Channel, error) {
	rows := make([]datastore.Channel, 0, len(channels))
	for i := range channels {
		row := datastore.Channel{
			SessionID:            sessionID,
			ChannelNumber:        channels[i].ChannelNumber,
			Kind:                 string(channels[i].Kind),
			SweepIndex:           channels[i].SweepIndex,
			SamplingFrequencyKhz: channels[i].SamplingFrequencyKhz,
			SubsampledKhz:        channels[i].SubsampledKhz,
			DurationMs:           channels[i].DurationMs,
			Algorithm:            channels[i].Algorithm,
		}
		if err := row.SetSamples(channels[i].RawSamples); err != nil {
			return nil, errors.New(err).
				Component("importer").
				Category(errors.CategoryDatabase).
				Context("channel_number", row.ChannelNumber).
				Build()
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// resolvePatient fetches the patient named in the export, inserting a row
// on first sight.
func resolvePatient(tx datastore.Store, meta sessionMetadata) (datastore.Patient, error) {
	patient, err := tx.FindPatientByName(meta.patientName)
	if err == nil {
		return patient, nil
	}
	if !errors.IsNotFound(err) {
		return datastore.Patient{}, err
	}

	patient = datastore.Patient{FirstName: meta.patientName, Gender: meta.gender}
	if err := tx.SavePatient(&patient); err != nil {
		return datastore.Patient{}, err
	}
	return patient, nil
}
