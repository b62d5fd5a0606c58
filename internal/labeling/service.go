// Package labeling implements the annotation integrity engine: it validates
// proposed annotation boundaries against channel duration, snaps them onto
// the channel's sample grid, enforces the overlap policy and persists every
// mutation atomically while cascading session-status transitions.
package labeling

import (
	"log/slog"
	"math"
	"strings"

	"github.com/jkarvon/vikinglab/internal/datastore"
	"github.com/jkarvon/vikinglab/internal/errors"
	"github.com/jkarvon/vikinglab/internal/logging"
	"github.com/jkarvon/vikinglab/internal/timegrid"
)

// Sentinel errors for the distinct failure kinds the engine can reject an
// operation with. They are wrapped with category metadata before being
// returned, errors.Is still matches them.
var (
	ErrTimeNotFinite      = errors.NewStd("annotation time must be a finite number")
	ErrTimeNegative       = errors.NewStd("annotation time must not be negative")
	ErrEndNotAfterStart   = errors.NewStd("annotation end must be greater than start")
	ErrEndBeyondDuration  = errors.NewStd("annotation end must not exceed channel duration")
	ErrLabelNameEmpty     = errors.NewStd("label name must not be empty")
	ErrOverlap            = errors.NewStd("annotation overlaps an existing annotation")
	ErrStatusTransition   = errors.NewStd("invalid session status transition")
	ErrDoubleCheckPending = errors.NewStd("session has channels awaiting double check")
	ErrUnknownStatus      = errors.NewStd("unknown session status")
)

// StatusObserver is notified after a committed mutation changed or touched a
// session, with the session's current workflow status. Presentation-layer
// collaborators register here, the engine never calls them inside a
// transaction.
type StatusObserver interface {
	SessionStatusChanged(sessionID uint, status string)
}

// AnnotationUpdate carries the fields of an annotation an update may change.
// Nil fields are left untouched. ConfirmOverlap acknowledges an overlap the
// edit would newly introduce.
type AnnotationUpdate struct {
	StartTimeMs    *float64
	EndTimeMs      *float64
	LabelName      *string
	Note           *string
	ConfirmOverlap bool
}

// ChannelSignal is the read model handed to the presentation layer for
// rendering one channel.
type ChannelSignal struct {
	SamplingRateHz float64
	DurationMs     float64
	Samples        []float64
	Annotations    []datastore.Annotation
}

// Service is the annotation integrity engine. All mutations run inside a
// store transaction, observers are notified only after a successful commit.
type Service struct {
	store     datastore.Store
	observers []StatusObserver
	log       *slog.Logger
}

// NewService creates an engine on top of the given store.
func NewService(store datastore.Store) *Service {
	log := logging.ForService("labeling")
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, log: log}
}

// RegisterObserver adds a session-status observer.
func (s *Service) RegisterObserver(observer StatusObserver) {
	s.observers = append(s.observers, observer)
}

func (s *Service) notify(sessionID uint, status string) {
	for _, observer := range s.observers {
		observer.SessionStatusChanged(sessionID, status)
	}
}

// CreateAnnotation validates, snaps and persists a new annotation on a
// channel, lazily creating the label by name. An overlap with an existing
// annotation on the same channel is rejected unless confirmOverlap is set.
// If the owning session was still NEW it is promoted to IN_PROGRESS.
func (s *Service) CreateAnnotation(channelID uint, startTimeMs, endTimeMs float64, labelName, note string, confirmOverlap bool) (datastore.Annotation, error) {
	var annotation datastore.Annotation
	var sessionID uint
	var sessionStatus string

	err := s.store.Transaction(func(tx datastore.Store) error {
		channel, err := tx.GetChannel(channelID)
		if err != nil {
			return err
		}

		if err := validateBounds(startTimeMs, endTimeMs, channel.DurationMs); err != nil {
			return err
		}

		start, end := snapBounds(startTimeMs, endTimeMs, &channel)
		if end <= start {
			return validationError(ErrEndNotAfterStart, "rule", "end_after_start_snapped")
		}

		label, err := resolveLabel(tx, labelName)
		if err != nil {
			return err
		}

		siblings, err := tx.GetAnnotationsByChannel(channelID)
		if err != nil {
			return err
		}
		annotation = datastore.Annotation{
			ChannelID:   channelID,
			LabelID:     label.ID,
			StartTimeMs: start,
			EndTimeMs:   end,
			Note:        note,
		}
		if overlapping := anyOverlap(&annotation, siblings, 0); overlapping && !confirmOverlap {
			return overlapError(channelID, start, end)
		}

		if err := tx.SaveAnnotation(&annotation); err != nil {
			return err
		}
		annotation.LabelName = label.Name

		sessionStatus, err = promoteOrTouch(tx, channel.SessionID)
		if err != nil {
			return err
		}
		sessionID = channel.SessionID
		return nil
	})
	if err != nil {
		return datastore.Annotation{}, err
	}

	s.log.Info("annotation created",
		"annotation_id", annotation.ID,
		"channel_id", channelID,
		"label", annotation.LabelName)
	s.notify(sessionID, sessionStatus)
	return annotation, nil
}

// UpdateAnnotation applies a partial update to an existing annotation. A
// boundary change is re-validated, re-snapped and re-checked for overlap,
// but an edit that merely preserves a pre-existing overlap is permitted
// without reconfirmation.
func (s *Service) UpdateAnnotation(annotationID uint, updates AnnotationUpdate) (datastore.Annotation, error) {
	var annotation datastore.Annotation
	var sessionID uint
	var sessionStatus string

	err := s.store.Transaction(func(tx datastore.Store) error {
		var err error
		annotation, err = tx.GetAnnotation(annotationID)
		if err != nil {
			return err
		}

		channel, err := tx.GetChannel(annotation.ChannelID)
		if err != nil {
			return err
		}

		if updates.LabelName != nil {
			label, err := resolveLabel(tx, *updates.LabelName)
			if err != nil {
				return err
			}
			annotation.LabelID = label.ID
			annotation.LabelName = label.Name
		}
		if updates.Note != nil {
			annotation.Note = *updates.Note
		}

		boundsChanged := updates.StartTimeMs != nil || updates.EndTimeMs != nil
		if boundsChanged {
			siblings, err := tx.GetAnnotationsByChannel(annotation.ChannelID)
			if err != nil {
				return err
			}
			wasOverlapping := anyOverlap(&annotation, siblings, annotation.ID)

			start := annotation.StartTimeMs
			end := annotation.EndTimeMs
			if updates.StartTimeMs != nil {
				start = *updates.StartTimeMs
			}
			if updates.EndTimeMs != nil {
				end = *updates.EndTimeMs
			}

			if err := validateBounds(start, end, channel.DurationMs); err != nil {
				return err
			}
			start, end = snapBounds(start, end, &channel)
			if end <= start {
				return validationError(ErrEndNotAfterStart, "rule", "end_after_start_snapped")
			}
			annotation.StartTimeMs = start
			annotation.EndTimeMs = end

			nowOverlapping := anyOverlap(&annotation, siblings, annotation.ID)
			if nowOverlapping && !wasOverlapping && !updates.ConfirmOverlap {
				return overlapError(annotation.ChannelID, start, end)
			}
		}

		if err := tx.SaveAnnotation(&annotation); err != nil {
			return err
		}

		sessionStatus, err = promoteOrTouch(tx, channel.SessionID)
		if err != nil {
			return err
		}
		sessionID = channel.SessionID
		return nil
	})
	if err != nil {
		return datastore.Annotation{}, err
	}

	s.notify(sessionID, sessionStatus)
	return annotation, nil
}

// DeleteAnnotation removes an annotation. Returns false without error when
// the annotation does not exist, in which case nothing is touched and no
// observer is notified. Deletion only touches the owning session, it never
// changes its workflow status.
func (s *Service) DeleteAnnotation(annotationID uint) (bool, error) {
	var deleted bool
	var sessionID uint
	var sessionStatus string

	err := s.store.Transaction(func(tx datastore.Store) error {
		annotation, err := tx.GetAnnotation(annotationID)
		if err != nil {
			if errors.IsNotFound(err) {
				return nil
			}
			return err
		}

		channel, err := tx.GetChannel(annotation.ChannelID)
		if err != nil {
			return err
		}

		deleted, err = tx.DeleteAnnotation(annotationID)
		if err != nil || !deleted {
			return err
		}

		session, err := tx.GetSession(channel.SessionID)
		if err != nil {
			return err
		}
		if err := tx.TouchSession(channel.SessionID); err != nil {
			return err
		}
		sessionStatus = session.Status
		sessionID = channel.SessionID
		return nil
	})
	if err != nil {
		return false, err
	}

	if deleted {
		s.notify(sessionID, sessionStatus)
	}
	return deleted, nil
}

// GetChannelSignal returns a channel's decoded signal with its annotations
// for display. Reads are not wrapped transactionally, callers may observe a
// pre- or post-update snapshot but never a partially-written row.
func (s *Service) GetChannelSignal(channelID uint) (ChannelSignal, error) {
	channel, err := s.store.GetChannel(channelID)
	if err != nil {
		return ChannelSignal{}, err
	}

	samples, err := channel.Samples()
	if err != nil {
		return ChannelSignal{}, errors.New(err).
			Component("labeling").
			Category(errors.CategoryDatabase).
			Context("channel_id", channelID).
			Build()
	}

	annotations, err := s.store.GetAnnotationsByChannel(channelID)
	if err != nil {
		return ChannelSignal{}, err
	}

	return ChannelSignal{
		SamplingRateHz: channel.EffectiveRateKhz() * 1000.0,
		DurationMs:     channel.DurationMs,
		Samples:        samples,
		Annotations:    annotations,
	}, nil
}

// validateBounds applies the boundary validation rules in their fixed
// order, each a distinct failure kind.
func validateBounds(start, end, durationMs float64) error {
	switch {
	case math.IsNaN(start) || math.IsInf(start, 0) || math.IsNaN(end) || math.IsInf(end, 0):
		return validationError(ErrTimeNotFinite, "rule", "finite")
	case start < 0 || end < 0:
		return validationError(ErrTimeNegative, "rule", "non_negative")
	case end <= start:
		return validationError(ErrEndNotAfterStart, "rule", "end_after_start")
	case end > durationMs:
		return validationError(ErrEndBeyondDuration, "rule", "within_duration")
	}
	return nil
}

// snapBounds moves both boundaries to the nearest points of the channel's
// sample grid. Channels without a derivable sample interval keep the raw
// boundaries.
func snapBounds(start, end float64, channel *datastore.Channel) (float64, float64) {
	interval := channel.SampleIntervalMs()
	if interval <= 0 {
		return start, end
	}
	grid := timegrid.Grid(channel.DurationMs, interval)
	if snapped, ok := timegrid.Nearest(start, grid); ok {
		start = snapped
	}
	if snapped, ok := timegrid.Nearest(end, grid); ok {
		end = snapped
	}
	return start, end
}

// anyOverlap reports whether the annotation's half-open range intersects any
// sibling, skipping the annotation itself by ID.
func anyOverlap(annotation *datastore.Annotation, siblings []datastore.Annotation, selfID uint) bool {
	for i := range siblings {
		if selfID != 0 && siblings[i].ID == selfID {
			continue
		}
		if annotation.Overlaps(&siblings[i]) {
			return true
		}
	}
	return false
}

// resolveLabel fetches the label by name, lazily inserting it on first use.
func resolveLabel(tx datastore.Store, name string) (datastore.Label, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return datastore.Label{}, validationError(ErrLabelNameEmpty, "field", "label_name")
	}

	label, err := tx.GetLabelByName(trimmed)
	if err == nil {
		return label, nil
	}
	if !errors.IsNotFound(err) {
		return datastore.Label{}, err
	}

	label = datastore.Label{Name: trimmed}
	if err := tx.SaveLabel(&label); err != nil {
		return datastore.Label{}, err
	}
	return label, nil
}

// promoteOrTouch promotes a NEW session to IN_PROGRESS, otherwise just
// bumps its updated_at. Returns the session's resulting status.
func promoteOrTouch(tx datastore.Store, sessionID uint) (string, error) {
	session, err := tx.GetSession(sessionID)
	if err != nil {
		return "", err
	}
	if session.Status == datastore.StatusNew {
		if err := tx.SetSessionStatus(sessionID, datastore.StatusInProgress); err != nil {
			return "", err
		}
		return datastore.StatusInProgress, nil
	}
	if err := tx.TouchSession(sessionID); err != nil {
		return "", err
	}
	return session.Status, nil
}

func validationError(sentinel error, key string, value any) error {
	return errors.New(sentinel).
		Component("labeling").
		Category(errors.CategoryValidation).
		Context(key, value).
		Build()
}

func overlapError(channelID uint, start, end float64) error {
	return errors.New(ErrOverlap).
		Component("labeling").
		Category(errors.CategoryConflict).
		Context("channel_id", channelID).
		Context("start_time_ms", start).
		Context("end_time_ms", end).
		Build()
}
