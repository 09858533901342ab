package tours_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourly/internal/steps"
	"tourly/internal/testsupport"
	"tourly/internal/tours"
	"tourly/internal/usage"
)

func TestCreateTour(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	t.Run("applies defaults", func(t *testing.T) {
		tour := &tours.Tour{Title: "Onboarding"}
		require.NoError(t, tours.CreateTour(db, tour))

		assert.NotZero(t, tour.ID)
		assert.Equal(t, tours.ObjectTypeAny, tour.ObjectType)
		assert.Equal(t, tours.TriggerModeNormal, tour.TriggerMode)
		assert.NotNil(t, tour.RoleIDs)
	})

	t.Run("requires a title", func(t *testing.T) {
		assert.Error(t, tours.CreateTour(db, &tours.Tour{}))
	})

	t.Run("rejects an invalid trigger mode", func(t *testing.T) {
		tour := &tours.Tour{Title: "Bad Mode", TriggerMode: "sometimes"}
		assert.Error(t, tours.CreateTour(db, tour))
	})
}

func TestGetTourByID(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	created := testsupport.CreateTestTour(t, db, "Lookup", "course", []int64{1}, true, false)

	tour, err := tours.GetTourByID(db, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lookup", tour.Title)

	_, err = tours.GetTourByID(db, 99999)
	var notFound *tours.TourNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestGetActiveTours(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	first := testsupport.CreateTestTour(t, db, "Active A", "course", []int64{1}, true, true)
	testsupport.CreateTestTour(t, db, "Inactive", "course", []int64{1}, false, true)
	second := testsupport.CreateTestTour(t, db, "Active B", "course", []int64{1}, true, true)

	list, err := tours.GetActiveTours(db)
	require.NoError(t, err)
	require.Len(t, list, 2)

	// Stable ID order: autostart selection depends on it.
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
}

func TestSetTourActive(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	tour := testsupport.CreateTestTour(t, db, "Toggle", "course", []int64{1}, false, false)

	require.NoError(t, tours.SetTourActive(db, tour.ID, true))
	reloaded, err := tours.GetTourByID(db, tour.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Active)

	var notFound *tours.TourNotFoundError
	assert.ErrorAs(t, tours.SetTourActive(db, 99999, true), &notFound)
}

func TestDeleteTour(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	tour := testsupport.CreateTestTour(t, db, "Doomed", "course", []int64{1}, true, true)
	testsupport.CreateTestStep(t, db, tour.ID, "One", "#one")

	historyID, err := usage.SetStarted(db, logger, tour.ID, 7)
	require.NoError(t, err)
	require.NoError(t, usage.SetTerminated(db, logger, tour.ID, 7, historyID))

	require.NoError(t, tours.DeleteTour(db, tour.ID))

	_, err = tours.GetTourByID(db, tour.ID)
	var notFound *tours.TourNotFoundError
	assert.ErrorAs(t, err, &notFound)

	list, err := steps.GetStepsByTourID(db, tour.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	stats, err := usage.GetUsageStats(db, tour.ID, 7)
	require.NoError(t, err)
	assert.Nil(t, stats)

	var historyCount int64
	db.Model(&usage.TourUsageEntry{}).Where("tour_id = ?", tour.ID).Count(&historyCount)
	assert.Zero(t, historyCount)
}

func TestRoleIDList(t *testing.T) {
	t.Run("scan handles blank and null", func(t *testing.T) {
		var list tours.RoleIDList
		require.NoError(t, list.Scan(nil))
		assert.NotNil(t, list)
		assert.Empty(t, list)

		require.NoError(t, list.Scan("  "))
		assert.Empty(t, list)

		require.NoError(t, list.Scan(`[1,2,3]`))
		assert.Equal(t, tours.RoleIDList{1, 2, 3}, list)
	})

	t.Run("intersection", func(t *testing.T) {
		list := tours.RoleIDList{1, 5}
		assert.True(t, list.IntersectsAny([]int64{5, 9}))
		assert.False(t, list.IntersectsAny([]int64{2, 3}))
		assert.False(t, tours.RoleIDList{}.IntersectsAny([]int64{1}))
	})
}

func TestGetToursWithUsage(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	tour := testsupport.CreateTestTour(t, db, "Counted", "course", []int64{1}, true, true)

	for userID := int64(1); userID <= 2; userID++ {
		id, err := usage.SetStarted(db, logger, tour.ID, userID)
		require.NoError(t, err)
		require.NoError(t, usage.SetTerminated(db, logger, tour.ID, userID, id))
	}
	_, err := usage.SetStarted(db, logger, tour.ID, 1)
	require.NoError(t, err)

	list, err := tours.GetToursWithUsage(db)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(3), list[0].TotalStarts)
	assert.Equal(t, int64(2), list[0].UniqueUsers)
}
