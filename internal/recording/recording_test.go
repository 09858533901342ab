package recording_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourly/internal/capture"
	"tourly/internal/recording"
	"tourly/internal/steps"
	"tourly/internal/testsupport"
)

const (
	noDebounce   = time.Duration(0)
	armingWindow = 2 * time.Second
)

func navSnapshot(text string) *capture.ElementSnapshot {
	return &capture.ElementSnapshot{
		Target: capture.Node{Tag: "a", Text: text},
		Ancestors: []capture.Node{
			{Tag: "nav", ID: "mainbar"},
		},
	}
}

func TestStart(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	tour := testsupport.CreateTestTour(t, db, "Recorded Tour", "course", []int64{1}, true, false)

	session, err := recording.Start(db, logger, tour.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.True(t, session.Active)
	assert.Empty(t, session.Drafts)

	// Starting again drops the previous session for the tour.
	replacement, err := recording.Start(db, logger, tour.ID)
	require.NoError(t, err)
	assert.NotEqual(t, session.Token, replacement.Token)

	_, err = recording.GetByToken(db, session.Token)
	var notFound *recording.SessionNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestCapture(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	tour := testsupport.CreateTestTour(t, db, "Capture Tour", "course", []int64{1}, true, false)

	t.Run("appends classified drafts in order", func(t *testing.T) {
		session, err := recording.Start(db, logger, tour.ID)
		require.NoError(t, err)

		first, err := recording.Capture(db, logger, session.Token, navSnapshot("Courses"), noDebounce, armingWindow)
		require.NoError(t, err)
		require.NotNil(t, first)
		assert.Equal(t, 1, first.SortOrder)
		assert.Equal(t, steps.ElementMainbar, first.ElementType)
		assert.Equal(t, "Courses", first.Element)

		second, err := recording.Capture(db, logger, session.Token, navSnapshot("Grades"), noDebounce, armingWindow)
		require.NoError(t, err)
		require.NotNil(t, second)
		assert.Equal(t, 2, second.SortOrder)

		reloaded, err := recording.GetByToken(db, session.Token)
		require.NoError(t, err)
		assert.Len(t, reloaded.Drafts, 2)
	})

	t.Run("nil snapshot is a no-op", func(t *testing.T) {
		session, err := recording.Start(db, logger, tour.ID)
		require.NoError(t, err)

		draft, err := recording.Capture(db, logger, session.Token, nil, noDebounce, armingWindow)
		require.NoError(t, err)
		assert.Nil(t, draft)
	})

	t.Run("debounce suppresses a rapid second trigger", func(t *testing.T) {
		session, err := recording.Start(db, logger, tour.ID)
		require.NoError(t, err)

		draft, err := recording.Capture(db, logger, session.Token, navSnapshot("Courses"), time.Minute, armingWindow)
		require.NoError(t, err)
		require.NotNil(t, draft)

		suppressed, err := recording.Capture(db, logger, session.Token, navSnapshot("Grades"), time.Minute, armingWindow)
		require.NoError(t, err)
		assert.Nil(t, suppressed)
	})

	t.Run("same element twice in immediate succession is suppressed", func(t *testing.T) {
		session, err := recording.Start(db, logger, tour.ID)
		require.NoError(t, err)

		debounce := 20 * time.Millisecond

		draft, err := recording.Capture(db, logger, session.Token, navSnapshot("Courses"), debounce, armingWindow)
		require.NoError(t, err)
		require.NotNil(t, draft)

		// Past the debounce but inside the duplicate-suppression window.
		time.Sleep(25 * time.Millisecond)
		dup, err := recording.Capture(db, logger, session.Token, navSnapshot("Courses"), debounce, armingWindow)
		require.NoError(t, err)
		assert.Nil(t, dup)

		// A different element at the same moment is a real capture.
		other, err := recording.Capture(db, logger, session.Token, navSnapshot("Grades"), debounce, armingWindow)
		require.NoError(t, err)
		assert.NotNil(t, other)
	})

	t.Run("paused session does not capture", func(t *testing.T) {
		session, err := recording.Start(db, logger, tour.ID)
		require.NoError(t, err)
		require.NoError(t, recording.Pause(db, logger, session.Token))

		draft, err := recording.Capture(db, logger, session.Token, navSnapshot("Courses"), noDebounce, armingWindow)
		require.NoError(t, err)
		assert.Nil(t, draft)

		require.NoError(t, recording.Resume(db, logger, session.Token))
		draft, err = recording.Capture(db, logger, session.Token, navSnapshot("Courses"), noDebounce, armingWindow)
		require.NoError(t, err)
		assert.NotNil(t, draft)
	})
}

func TestClickArming(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	tour := testsupport.CreateTestTour(t, db, "Arming Tour", "course", []int64{1}, true, false)

	t.Run("click inside the window binds advance-on-click", func(t *testing.T) {
		session, err := recording.Start(db, logger, tour.ID)
		require.NoError(t, err)

		_, err = recording.Capture(db, logger, session.Token, navSnapshot("Courses"), noDebounce, armingWindow)
		require.NoError(t, err)

		consumed, err := recording.ClickObserved(db, logger, session.Token)
		require.NoError(t, err)
		assert.True(t, consumed)

		reloaded, err := recording.GetByToken(db, session.Token)
		require.NoError(t, err)
		assert.Equal(t, "Courses", reloaded.Drafts[0].OnNext)
		assert.Zero(t, reloaded.ArmedStepIndex)

		// The window is spent after one click.
		consumed, err = recording.ClickObserved(db, logger, session.Token)
		require.NoError(t, err)
		assert.False(t, consumed)
	})

	t.Run("click after the window expires is ignored", func(t *testing.T) {
		session, err := recording.Start(db, logger, tour.ID)
		require.NoError(t, err)

		_, err = recording.Capture(db, logger, session.Token, navSnapshot("Courses"), noDebounce, -time.Second)
		require.NoError(t, err)

		consumed, err := recording.ClickObserved(db, logger, session.Token)
		require.NoError(t, err)
		assert.False(t, consumed)

		reloaded, err := recording.GetByToken(db, session.Token)
		require.NoError(t, err)
		assert.Empty(t, reloaded.Drafts[0].OnNext)
	})
}

func TestNavigationObserved(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	tour := testsupport.CreateTestTour(t, db, "Navigation Tour", "course", []int64{1}, true, false)

	t.Run("sets the most recent draft's path", func(t *testing.T) {
		session, err := recording.Start(db, logger, tour.ID)
		require.NoError(t, err)

		_, err = recording.Capture(db, logger, session.Token, navSnapshot("Courses"), noDebounce, armingWindow)
		require.NoError(t, err)
		_, err = recording.Capture(db, logger, session.Token, navSnapshot("Grades"), noDebounce, armingWindow)
		require.NoError(t, err)

		require.NoError(t, recording.NavigationObserved(db, logger, session.Token, "/grades/overview"))

		reloaded, err := recording.GetByToken(db, session.Token)
		require.NoError(t, err)
		assert.Empty(t, reloaded.Drafts[0].Path)
		assert.Equal(t, "/grades/overview", reloaded.Drafts[1].Path)
	})

	t.Run("ignored before any capture", func(t *testing.T) {
		session, err := recording.Start(db, logger, tour.ID)
		require.NoError(t, err)

		require.NoError(t, recording.NavigationObserved(db, logger, session.Token, "/anywhere"))

		reloaded, err := recording.GetByToken(db, session.Token)
		require.NoError(t, err)
		assert.Empty(t, reloaded.Drafts)
	})
}

func TestDiscardAndCommit(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	t.Run("discard drops the session without persisting", func(t *testing.T) {
		tour := testsupport.CreateTestTour(t, db, "Discard Tour", "course", []int64{1}, true, false)
		session, err := recording.Start(db, logger, tour.ID)
		require.NoError(t, err)
		_, err = recording.Capture(db, logger, session.Token, navSnapshot("Courses"), noDebounce, armingWindow)
		require.NoError(t, err)

		require.NoError(t, recording.Discard(db, logger, session.Token))

		_, err = recording.GetByToken(db, session.Token)
		var notFound *recording.SessionNotFoundError
		assert.ErrorAs(t, err, &notFound)

		list, err := steps.GetStepsByTourID(db, tour.ID)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("commit replaces the tour's steps and drops the session", func(t *testing.T) {
		tour := testsupport.CreateTestTour(t, db, "Commit Tour", "course", []int64{1}, true, false)
		testsupport.CreateTestStep(t, db, tour.ID, "Old Step", "#old")

		session, err := recording.Start(db, logger, tour.ID)
		require.NoError(t, err)
		_, err = recording.Capture(db, logger, session.Token, navSnapshot("Courses"), noDebounce, armingWindow)
		require.NoError(t, err)
		_, err = recording.Capture(db, logger, session.Token, navSnapshot("Grades"), noDebounce, armingWindow)
		require.NoError(t, err)

		require.NoError(t, recording.Commit(db, logger, session.Token))

		list, err := steps.GetStepsByTourID(db, tour.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "Courses", list[0].Element)
		assert.Equal(t, 1, list[0].SortOrder)
		assert.Equal(t, "Grades", list[1].Element)
		assert.Equal(t, 2, list[1].SortOrder)

		_, err = recording.GetByToken(db, session.Token)
		var notFound *recording.SessionNotFoundError
		assert.ErrorAs(t, err, &notFound)
	})

	t.Run("committing an empty session is rejected", func(t *testing.T) {
		tour := testsupport.CreateTestTour(t, db, "Empty Commit", "course", []int64{1}, true, false)
		testsupport.CreateTestStep(t, db, tour.ID, "Keep Me", "#keep")

		session, err := recording.Start(db, logger, tour.ID)
		require.NoError(t, err)

		require.Error(t, recording.Commit(db, logger, session.Token))

		list, err := steps.GetStepsByTourID(db, tour.ID)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}

func TestBind(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	tour := testsupport.CreateTestTour(t, db, "Bind Tour", "course", []int64{1}, true, false)

	setup := func(t *testing.T) *recording.RecordingSession {
		session, err := recording.Start(db, logger, tour.ID)
		require.NoError(t, err)
		_, err = recording.Capture(db, logger, session.Token, navSnapshot("Courses"), noDebounce, armingWindow)
		require.NoError(t, err)
		return session
	}

	t.Run("binds onNext and onPrev from classified captures", func(t *testing.T) {
		session := setup(t)

		require.NoError(t, recording.Bind(db, logger, session.Token, 1, recording.BindNext, navSnapshot("Grades")))
		require.NoError(t, recording.Bind(db, logger, session.Token, 1, recording.BindPrev, navSnapshot("Home")))

		reloaded, err := recording.GetByToken(db, session.Token)
		require.NoError(t, err)
		assert.Equal(t, "Grades", reloaded.Drafts[0].OnNext)
		assert.Equal(t, "Home", reloaded.Drafts[0].OnPrev)
	})

	t.Run("clear wipes both bindings", func(t *testing.T) {
		session := setup(t)
		require.NoError(t, recording.Bind(db, logger, session.Token, 1, recording.BindNext, navSnapshot("Grades")))

		require.NoError(t, recording.Bind(db, logger, session.Token, 1, recording.BindClear, nil))

		reloaded, err := recording.GetByToken(db, session.Token)
		require.NoError(t, err)
		assert.Empty(t, reloaded.Drafts[0].OnNext)
		assert.Empty(t, reloaded.Drafts[0].OnPrev)
	})

	t.Run("rejects an out-of-range step index", func(t *testing.T) {
		session := setup(t)
		assert.Error(t, recording.Bind(db, logger, session.Token, 5, recording.BindNext, navSnapshot("Grades")))
		assert.Error(t, recording.Bind(db, logger, session.Token, 0, recording.BindNext, navSnapshot("Grades")))
	})
}

func TestCleanupStale(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	tour := testsupport.CreateTestTour(t, db, "Stale Tour", "course", []int64{1}, true, false)
	other := testsupport.CreateTestTour(t, db, "Fresh Tour", "course", []int64{1}, true, false)

	stale, err := recording.Start(db, logger, tour.ID)
	require.NoError(t, err)
	fresh, err := recording.Start(db, logger, other.ID)
	require.NoError(t, err)

	// Age the first session past the TTL.
	old := time.Now().UTC().Add(-3 * time.Hour)
	require.NoError(t, db.Model(&recording.RecordingSession{}).
		Where("id = ?", stale.ID).
		UpdateColumn("updated_at", old).Error)

	removed, err := recording.CleanupStale(db, logger, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = recording.GetByToken(db, stale.Token)
	var notFound *recording.SessionNotFoundError
	assert.ErrorAs(t, err, &notFound)

	_, err = recording.GetByToken(db, fresh.Token)
	assert.NoError(t, err)
}
