package labeling

import (
	"github.com/jkarvon/vikinglab/internal/datastore"
	"github.com/jkarvon/vikinglab/internal/errors"
)

// knownStatuses is the closed set of workflow states a session can be in.
var knownStatuses = map[string]bool{
	datastore.StatusNew:                true,
	datastore.StatusInProgress:         true,
	datastore.StatusStudentCompleted:   true,
	datastore.StatusDoctorCompleted:    true,
	datastore.StatusRequestDoubleCheck: true,
	datastore.StatusWaitForDoubleCheck: true,
}

func isCompletion(status string) bool {
	return status == datastore.StatusStudentCompleted || status == datastore.StatusDoctorCompleted
}

// UpdateSessionStatus moves a session through the labeling workflow.
// Regressing a session that already left NEW back to NEW is refused, and
// completion is refused while any channel still awaits a double check.
func (s *Service) UpdateSessionStatus(sessionID uint, status string) error {
	if !knownStatuses[status] {
		return errors.New(ErrUnknownStatus).
			Component("labeling").
			Category(errors.CategoryValidation).
			Context("status", status).
			Build()
	}

	var changed bool
	err := s.store.Transaction(func(tx datastore.Store) error {
		session, err := tx.GetSession(sessionID)
		if err != nil {
			return err
		}
		if session.Status == status {
			return nil
		}

		if status == datastore.StatusNew {
			return stateError(ErrStatusTransition, session.Status, status)
		}

		if isCompletion(status) && session.DoubleCheckMode {
			pending, err := tx.CountPendingDoubleChecks(sessionID)
			if err != nil {
				return err
			}
			if pending > 0 {
				return errors.New(ErrDoubleCheckPending).
					Component("labeling").
					Category(errors.CategoryState).
					Context("session_id", sessionID).
					Context("pending_channels", pending).
					Build()
			}
		}

		changed = true
		return tx.SetSessionStatus(sessionID, status)
	})
	if err != nil {
		return err
	}

	if changed {
		s.log.Info("session status updated", "session_id", sessionID, "status", status)
		s.notify(sessionID, status)
	}
	return nil
}

// EnableDoubleCheckMode turns on double-check mode for a session. Channels
// not yet marked double-checked will block completion until reviewed.
func (s *Service) EnableDoubleCheckMode(sessionID uint) error {
	return s.setDoubleCheckMode(sessionID, true)
}

// DisableDoubleCheckMode turns off double-check mode for a session.
func (s *Service) DisableDoubleCheckMode(sessionID uint) error {
	return s.setDoubleCheckMode(sessionID, false)
}

func (s *Service) setDoubleCheckMode(sessionID uint, enabled bool) error {
	var status string
	err := s.store.Transaction(func(tx datastore.Store) error {
		session, err := tx.GetSession(sessionID)
		if err != nil {
			return err
		}
		status = session.Status
		return tx.SetSessionDoubleCheckMode(sessionID, enabled)
	})
	if err != nil {
		return err
	}

	s.notify(sessionID, status)
	return nil
}

// SetChannelDoubleChecked records the reviewer's verdict on one channel and
// touches the owning session.
func (s *Service) SetChannelDoubleChecked(channelID uint, checked bool) error {
	var sessionID uint
	var status string

	err := s.store.Transaction(func(tx datastore.Store) error {
		channel, err := tx.GetChannel(channelID)
		if err != nil {
			return err
		}
		if err := tx.SetChannelDoubleChecked(channelID, checked); err != nil {
			return err
		}

		status, err = promoteOrTouch(tx, channel.SessionID)
		if err != nil {
			return err
		}
		sessionID = channel.SessionID
		return nil
	})
	if err != nil {
		return err
	}

	s.notify(sessionID, status)
	return nil
}

func stateError(sentinel error, from, to string) error {
	return errors.New(sentinel).
		Component("labeling").
		Category(errors.CategoryState).
		Context("from", from).
		Context("to", to).
		Build()
}
