package datastore

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkarvon/vikinglab/internal/conf"
	"github.com/jkarvon/vikinglab/internal/errors"
)

// createDatabase opens a fresh SQLite datastore in a temp directory and
// closes it when the test finishes.
func createDatabase(t *testing.T) Interface {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "test.db")

	store := New(settings)
	require.NotNil(t, store)
	require.NoError(t, store.Open(), "failed to open test database")
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return store
}

// createSession persists a patient and session, returning the session ID.
func createSession(t *testing.T, store Store, hash string) uint {
	t.Helper()

	patient := Patient{FirstName: "Matti", Gender: "M"}
	require.NoError(t, store.SavePatient(&patient))

	session := Session{
		PatientID:       patient.ID,
		MeasurementType: MeasurementEMG,
		Status:          StatusNew,
		InputFileName:   "export.txt",
		ContentHash:     hash,
		StartTime:       time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		EndTime:         time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveSession(&session))
	return session.ID
}

// createChannel persists one channel on a session, returning the channel ID.
func createChannel(t *testing.T, store Store, sessionID uint) uint {
	t.Helper()

	channel := Channel{
		SessionID:            sessionID,
		ChannelNumber:        1,
		Kind:                 "average",
		SamplingFrequencyKhz: 1,
		DurationMs:           1000,
	}
	require.NoError(t, channel.SetSamples([]float64{1, 2, 3}))
	require.NoError(t, store.SaveChannels([]Channel{channel}))

	channels, err := store.GetChannelsBySession(sessionID)
	require.NoError(t, err)
	require.NotEmpty(t, channels)
	return channels[len(channels)-1].ID
}

func TestPatientRoundTrip(t *testing.T) {
	t.Parallel()
	store := createDatabase(t)

	patient := Patient{FirstName: "Liisa", Gender: "F"}
	require.NoError(t, store.SavePatient(&patient))
	require.NotZero(t, patient.ID)

	got, err := store.GetPatient(patient.ID)
	require.NoError(t, err)
	assert.Equal(t, "Liisa", got.FirstName)

	byName, err := store.FindPatientByName("Liisa")
	require.NoError(t, err)
	assert.Equal(t, patient.ID, byName.ID)

	_, err = store.FindPatientByName("Nobody")
	assert.True(t, errors.IsNotFound(err))
}

func TestSessionContentHashUnique(t *testing.T) {
	t.Parallel()
	store := createDatabase(t)

	createSession(t, store, "hash-a")

	patient := Patient{FirstName: "Other"}
	require.NoError(t, store.SavePatient(&patient))
	dup := Session{PatientID: patient.ID, Status: StatusNew, ContentHash: "hash-a"}

	err := store.SaveSession(&dup)
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err), "duplicate content hash should surface as a conflict")
}

func TestGetSessionByContentHash(t *testing.T) {
	t.Parallel()
	store := createDatabase(t)

	id := createSession(t, store, "hash-b")

	got, err := store.GetSessionByContentHash("hash-b")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)

	_, err = store.GetSessionByContentHash("unseen")
	assert.True(t, errors.IsNotFound(err))
}

func TestSetSessionStatus(t *testing.T) {
	t.Parallel()
	store := createDatabase(t)

	id := createSession(t, store, "hash-c")
	require.NoError(t, store.SetSessionStatus(id, StatusInProgress))

	got, err := store.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, got.Status)

	err = store.SetSessionStatus(9999, StatusInProgress)
	assert.True(t, errors.IsNotFound(err))
}

func TestSessionsOrderedByRecency(t *testing.T) {
	t.Parallel()
	store := createDatabase(t)

	first := createSession(t, store, "hash-d1")
	second := createSession(t, store, "hash-d2")

	// bump the older session so it sorts first again
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, store.TouchSession(first))

	sessions, err := store.GetSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, first, sessions[0].ID)
	assert.Equal(t, second, sessions[1].ID)
}

func TestChannelRoundTrip(t *testing.T) {
	t.Parallel()
	store := createDatabase(t)

	sessionID := createSession(t, store, "hash-e")
	channelID := createChannel(t, store, sessionID)

	got, err := store.GetChannel(channelID)
	require.NoError(t, err)
	assert.Equal(t, sessionID, got.SessionID)

	samples, err := got.Samples()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, samples)
}

func TestDeleteSessionCascades(t *testing.T) {
	t.Parallel()
	store := createDatabase(t)

	sessionID := createSession(t, store, "hash-f")
	channelID := createChannel(t, store, sessionID)

	label := Label{Name: "artifact"}
	require.NoError(t, store.SaveLabel(&label))
	annotation := Annotation{ChannelID: channelID, LabelID: label.ID, StartTimeMs: 0, EndTimeMs: 100}
	require.NoError(t, store.SaveAnnotation(&annotation))

	require.NoError(t, store.DeleteSession(sessionID))

	_, err := store.GetSession(sessionID)
	assert.True(t, errors.IsNotFound(err))
	_, err = store.GetChannel(channelID)
	assert.True(t, errors.IsNotFound(err), "channels should be deleted with their session")
	_, err = store.GetAnnotation(annotation.ID)
	assert.True(t, errors.IsNotFound(err), "annotations should be deleted with their channel")
}

func TestLabelLookupIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	store := createDatabase(t)

	label := Label{Name: "Tremor"}
	require.NoError(t, store.SaveLabel(&label))

	got, err := store.GetLabelByName("tremor")
	require.NoError(t, err)
	assert.Equal(t, label.ID, got.ID)
	assert.Equal(t, "Tremor", got.Name, "stored spelling is kept")

	_, err = store.GetLabelByName("unknown")
	assert.True(t, errors.IsNotFound(err))
}

func TestAnnotationsByChannelOrderedWithLabelNames(t *testing.T) {
	t.Parallel()
	store := createDatabase(t)

	sessionID := createSession(t, store, "hash-g")
	channelID := createChannel(t, store, sessionID)

	label := Label{Name: "spike"}
	require.NoError(t, store.SaveLabel(&label))

	late := Annotation{ChannelID: channelID, LabelID: label.ID, StartTimeMs: 500, EndTimeMs: 600}
	early := Annotation{ChannelID: channelID, LabelID: label.ID, StartTimeMs: 100, EndTimeMs: 200}
	require.NoError(t, store.SaveAnnotation(&late))
	require.NoError(t, store.SaveAnnotation(&early))

	annotations, err := store.GetAnnotationsByChannel(channelID)
	require.NoError(t, err)
	require.Len(t, annotations, 2)
	assert.Equal(t, 100.0, annotations[0].StartTimeMs, "annotations sorted by start time")
	assert.Equal(t, "spike", annotations[0].LabelName)
	assert.Equal(t, "spike", annotations[1].LabelName)
}

func TestDeleteAnnotation(t *testing.T) {
	t.Parallel()
	store := createDatabase(t)

	sessionID := createSession(t, store, "hash-h")
	channelID := createChannel(t, store, sessionID)

	label := Label{Name: "blink"}
	require.NoError(t, store.SaveLabel(&label))
	annotation := Annotation{ChannelID: channelID, LabelID: label.ID, StartTimeMs: 0, EndTimeMs: 50}
	require.NoError(t, store.SaveAnnotation(&annotation))

	deleted, err := store.DeleteAnnotation(annotation.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.DeleteAnnotation(annotation.ID)
	require.NoError(t, err)
	assert.False(t, deleted, "second delete of the same annotation is a no-op")
}

func TestDoubleCheckBookkeeping(t *testing.T) {
	t.Parallel()
	store := createDatabase(t)

	sessionID := createSession(t, store, "hash-i")
	first := createChannel(t, store, sessionID)
	second := createChannel(t, store, sessionID)

	require.NoError(t, store.SetSessionDoubleCheckMode(sessionID, true))
	got, err := store.GetSession(sessionID)
	require.NoError(t, err)
	assert.True(t, got.DoubleCheckMode)

	pending, err := store.CountPendingDoubleChecks(sessionID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, pending)

	require.NoError(t, store.SetChannelDoubleChecked(first, true))
	pending, err = store.CountPendingDoubleChecks(sessionID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)

	require.NoError(t, store.SetChannelDoubleChecked(second, true))
	pending, err = store.CountPendingDoubleChecks(sessionID)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestTransactionRollsBackOnError(t *testing.T) {
	t.Parallel()
	store := createDatabase(t)

	sentinel := fmt.Errorf("abort")
	var sessionID uint
	err := store.Transaction(func(tx Store) error {
		sessionID = createSession(t, tx, "hash-j")
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	_, err = store.GetSession(sessionID)
	assert.True(t, errors.IsNotFound(err), "rolled-back session must not be visible")
}

func TestTransactionCommits(t *testing.T) {
	t.Parallel()
	store := createDatabase(t)

	var sessionID uint
	require.NoError(t, store.Transaction(func(tx Store) error {
		sessionID = createSession(t, tx, "hash-k")
		_ = createChannel(t, tx, sessionID)
		return nil
	}))

	channels, err := store.GetChannelsBySession(sessionID)
	require.NoError(t, err)
	assert.Len(t, channels, 1)
}
