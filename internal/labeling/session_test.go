package labeling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkarvon/vikinglab/internal/datastore"
	"github.com/jkarvon/vikinglab/internal/errors"
)

func TestUpdateSessionStatus(t *testing.T) {
	t.Parallel()
	service, store, observer := createService(t)
	sessionID, _ := seedChannel(t, store)

	require.NoError(t, service.UpdateSessionStatus(sessionID, datastore.StatusInProgress))

	session, err := store.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusInProgress, session.Status)

	event, ok := observer.last()
	require.True(t, ok)
	assert.Equal(t, statusEvent{SessionID: sessionID, Status: datastore.StatusInProgress}, event)
}

func TestUpdateSessionStatus_SameStatusIsNoOp(t *testing.T) {
	t.Parallel()
	service, store, observer := createService(t)
	sessionID, _ := seedChannel(t, store)

	require.NoError(t, service.UpdateSessionStatus(sessionID, datastore.StatusNew))
	assert.Zero(t, observer.count(), "unchanged status must not notify")

	session, err := store.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusNew, session.Status)
}

func TestUpdateSessionStatus_RegressionToNewRefused(t *testing.T) {
	t.Parallel()
	service, store, _ := createService(t)
	sessionID, _ := seedChannel(t, store)

	require.NoError(t, service.UpdateSessionStatus(sessionID, datastore.StatusInProgress))

	err := service.UpdateSessionStatus(sessionID, datastore.StatusNew)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStatusTransition)

	session, err := store.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusInProgress, session.Status, "refused transition must not change the session")
}

func TestUpdateSessionStatus_UnknownStatus(t *testing.T) {
	t.Parallel()
	service, store, _ := createService(t)
	sessionID, _ := seedChannel(t, store)

	err := service.UpdateSessionStatus(sessionID, "DONE")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownStatus)
	assert.True(t, errors.IsValidation(err))
}

func TestUpdateSessionStatus_UnknownSession(t *testing.T) {
	t.Parallel()
	service, _, _ := createService(t)

	err := service.UpdateSessionStatus(9999, datastore.StatusInProgress)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestUpdateSessionStatus_CompletionLanes(t *testing.T) {
	t.Parallel()
	service, store, _ := createService(t)
	sessionID, _ := seedChannel(t, store)

	require.NoError(t, service.UpdateSessionStatus(sessionID, datastore.StatusInProgress))
	require.NoError(t, service.UpdateSessionStatus(sessionID, datastore.StatusStudentCompleted))

	session, err := store.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusStudentCompleted, session.Status)

	require.NoError(t, service.UpdateSessionStatus(sessionID, datastore.StatusDoctorCompleted))
}

func TestUpdateSessionStatus_DoubleCheckLane(t *testing.T) {
	t.Parallel()
	service, store, _ := createService(t)
	sessionID, _ := seedChannel(t, store)

	require.NoError(t, service.UpdateSessionStatus(sessionID, datastore.StatusRequestDoubleCheck))
	require.NoError(t, service.UpdateSessionStatus(sessionID, datastore.StatusWaitForDoubleCheck))
	require.NoError(t, service.UpdateSessionStatus(sessionID, datastore.StatusRequestDoubleCheck))

	session, err := store.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusRequestDoubleCheck, session.Status)
}

func TestCompletionBlockedWhileDoubleChecksPending(t *testing.T) {
	t.Parallel()
	service, store, _ := createService(t)
	sessionID, channelID := seedChannel(t, store)

	require.NoError(t, service.EnableDoubleCheckMode(sessionID))

	err := service.UpdateSessionStatus(sessionID, datastore.StatusStudentCompleted)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDoubleCheckPending)

	require.NoError(t, service.SetChannelDoubleChecked(channelID, true))
	assert.NoError(t, service.UpdateSessionStatus(sessionID, datastore.StatusStudentCompleted),
		"completion allowed once every channel is double-checked")
}

func TestCompletionUnblockedWhenModeDisabled(t *testing.T) {
	t.Parallel()
	service, store, _ := createService(t)
	sessionID, _ := seedChannel(t, store)

	require.NoError(t, service.EnableDoubleCheckMode(sessionID))
	require.Error(t, service.UpdateSessionStatus(sessionID, datastore.StatusDoctorCompleted))

	require.NoError(t, service.DisableDoubleCheckMode(sessionID))
	assert.NoError(t, service.UpdateSessionStatus(sessionID, datastore.StatusDoctorCompleted),
		"pending channels only block while double-check mode is on")
}

func TestSetChannelDoubleCheckedPromotesNewSession(t *testing.T) {
	t.Parallel()
	service, store, observer := createService(t)
	sessionID, channelID := seedChannel(t, store)

	require.NoError(t, service.SetChannelDoubleChecked(channelID, true))

	session, err := store.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusInProgress, session.Status)

	event, ok := observer.last()
	require.True(t, ok)
	assert.Equal(t, datastore.StatusInProgress, event.Status)

	channel, err := store.GetChannel(channelID)
	require.NoError(t, err)
	assert.True(t, channel.DoubleChecked)
}
