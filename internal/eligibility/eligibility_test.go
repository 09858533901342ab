package eligibility_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourly/internal/eligibility"
	"tourly/internal/testsupport"
	"tourly/internal/tours"
	"tourly/internal/usage"
)

func baseContext() eligibility.Context {
	return eligibility.Context{
		UserID:         7,
		UserRoles:      []int64{1, 2},
		UserLanguage:   "en",
		CurrentObjType: "course",
	}
}

const validScript = `[{"element":"#welcome","title":"Welcome","content":"Hello"}]`

func trigger(id int64) string {
	return fmt.Sprintf("gtour-%d", id)
}

func TestTourIDFromTrigger(t *testing.T) {
	cases := []struct {
		trigger string
		id      int64
		ok      bool
	}{
		{"gtour-12", 12, true},
		{"gtour-1", 1, true},
		{"gtour-", 0, false},
		{"gtour-abc", 0, false},
		{"gtour-12abc", 0, false},
		{"gtour--5", 0, false},
		{"gtour-0", 0, false},
		{"tour-12", 0, false},
		{"", 0, false},
		{"12", 0, false},
	}

	for _, tc := range cases {
		id, ok := eligibility.TourIDFromTrigger(tc.trigger)
		assert.Equal(t, tc.ok, ok, "trigger %q", tc.trigger)
		assert.Equal(t, tc.id, id, "trigger %q", tc.trigger)
	}
}

func TestSelectManualTour(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	ec := baseContext()

	tour := testsupport.CreateTestTour(t, db, "Manual Tour", "course", []int64{1}, true, false)
	tour.RawScript = validScript
	require.NoError(t, tours.UpdateTour(db, tour))

	t.Run("returns the script for an eligible tour", func(t *testing.T) {
		script, id := eligibility.SelectManualTour(db, logger, nil, trigger(tour.ID), ec)
		assert.Equal(t, tour.ID, id)
		assert.Contains(t, script, "#welcome")
	})

	t.Run("manual trigger bypasses the finished gate", func(t *testing.T) {
		historyID, err := usage.SetStarted(db, logger, tour.ID, ec.UserID)
		require.NoError(t, err)
		require.NoError(t, usage.SetTerminated(db, logger, tour.ID, ec.UserID, historyID))

		script, id := eligibility.SelectManualTour(db, logger, nil, trigger(tour.ID), ec)
		assert.Equal(t, tour.ID, id)
		assert.NotEmpty(t, script)
	})

	t.Run("fails closed on malformed triggers", func(t *testing.T) {
		script, id := eligibility.SelectManualTour(db, logger, nil, "gtour-nope", ec)
		assert.Zero(t, id)
		assert.Empty(t, script)
	})

	t.Run("rejects an unknown tour id", func(t *testing.T) {
		script, id := eligibility.SelectManualTour(db, logger, nil, "gtour-999", ec)
		assert.Zero(t, id)
		assert.Empty(t, script)
	})

	t.Run("rejects an inactive tour", func(t *testing.T) {
		require.NoError(t, tours.SetTourActive(db, tour.ID, false))
		defer func() { require.NoError(t, tours.SetTourActive(db, tour.ID, true)) }()

		_, id := eligibility.SelectManualTour(db, logger, nil, trigger(tour.ID), ec)
		assert.Zero(t, id)
	})

	t.Run("rejects a user without a shared role", func(t *testing.T) {
		outsider := ec
		outsider.UserRoles = []int64{99}

		_, id := eligibility.SelectManualTour(db, logger, nil, trigger(tour.ID), outsider)
		assert.Zero(t, id)
	})
}

func TestSelectAutostartTour(t *testing.T) {
	// Subtests share the root test's database, so each one starts by
	// clearing the catalog it is about to rebuild.
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	t.Run("selects the first matching tour in catalog order", func(t *testing.T) {
		testsupport.CleanAllTables(db)
		ec := baseContext()

		first := testsupport.CreateTestTour(t, db, "First", "course", []int64{1}, true, true)
		first.RawScript = validScript
		require.NoError(t, tours.UpdateTour(db, first))

		second := testsupport.CreateTestTour(t, db, "Second", "course", []int64{1}, true, true)
		second.RawScript = validScript
		require.NoError(t, tours.UpdateTour(db, second))

		script, id := eligibility.SelectAutostartTour(db, logger, nil, ec)
		assert.Equal(t, first.ID, id)
		assert.NotEmpty(t, script)

		// Deterministic: asking again yields the same winner.
		_, again := eligibility.SelectAutostartTour(db, logger, nil, ec)
		assert.Equal(t, id, again)
	})

	t.Run("wildcard tour beats a ref-pinned tour created after it", func(t *testing.T) {
		testsupport.CleanAllTables(db)
		refID := int64(555)
		ec := baseContext()
		ec.CurrentRefID = &refID

		wildcard := testsupport.CreateTestTour(t, db, "Wildcard", "any", []int64{1}, true, true)
		wildcard.RawScript = validScript
		require.NoError(t, tours.UpdateTour(db, wildcard))

		pinned := testsupport.CreateTestTour(t, db, "Pinned", "resource", []int64{1}, true, true)
		pinned.RefID = &refID
		pinned.RawScript = validScript
		require.NoError(t, tours.UpdateTour(db, pinned))

		_, id := eligibility.SelectAutostartTour(db, logger, nil, ec)
		assert.Equal(t, wildcard.ID, id)
	})

	t.Run("ref-pinned tour beats a wildcard tour created after it", func(t *testing.T) {
		testsupport.CleanAllTables(db)
		refID := int64(555)
		ec := baseContext()
		ec.CurrentRefID = &refID

		pinned := testsupport.CreateTestTour(t, db, "Pinned", "resource", []int64{1}, true, true)
		pinned.RefID = &refID
		pinned.RawScript = validScript
		require.NoError(t, tours.UpdateTour(db, pinned))

		wildcard := testsupport.CreateTestTour(t, db, "Wildcard", "any", []int64{1}, true, true)
		wildcard.RawScript = validScript
		require.NoError(t, tours.UpdateTour(db, wildcard))

		_, id := eligibility.SelectAutostartTour(db, logger, nil, ec)
		assert.Equal(t, pinned.ID, id)
	})

	t.Run("skips tours the user already finished", func(t *testing.T) {
		testsupport.CleanAllTables(db)
		ec := baseContext()

		first := testsupport.CreateTestTour(t, db, "Finished", "course", []int64{1}, true, true)
		first.RawScript = validScript
		require.NoError(t, tours.UpdateTour(db, first))

		second := testsupport.CreateTestTour(t, db, "Fresh", "course", []int64{1}, true, true)
		second.RawScript = validScript
		require.NoError(t, tours.UpdateTour(db, second))

		historyID, err := usage.SetStarted(db, logger, first.ID, ec.UserID)
		require.NoError(t, err)
		require.NoError(t, usage.SetTerminated(db, logger, first.ID, ec.UserID, historyID))

		_, id := eligibility.SelectAutostartTour(db, logger, nil, ec)
		assert.Equal(t, second.ID, id)
	})

	t.Run("stops when the first eligible tour's script is invalid", func(t *testing.T) {
		testsupport.CleanAllTables(db)
		ec := baseContext()

		broken := testsupport.CreateTestTour(t, db, "Broken", "course", []int64{1}, true, true)
		broken.RawScript = `{"element": "#a", "title": `
		require.NoError(t, tours.UpdateTour(db, broken))

		healthy := testsupport.CreateTestTour(t, db, "Healthy", "course", []int64{1}, true, true)
		healthy.RawScript = validScript
		require.NoError(t, tours.UpdateTour(db, healthy))

		script, id := eligibility.SelectAutostartTour(db, logger, nil, ec)
		assert.Zero(t, id)
		assert.Empty(t, script)
	})

	t.Run("ignores manual-only tours", func(t *testing.T) {
		testsupport.CleanAllTables(db)
		ec := baseContext()

		manual := testsupport.CreateTestTour(t, db, "Manual Only", "course", []int64{1}, true, false)
		manual.RawScript = validScript
		require.NoError(t, tours.UpdateTour(db, manual))

		_, id := eligibility.SelectAutostartTour(db, logger, nil, ec)
		assert.Zero(t, id)
	})

	t.Run("empty role set matches nobody", func(t *testing.T) {
		testsupport.CleanAllTables(db)
		ec := baseContext()

		tour := testsupport.CreateTestTour(t, db, "No Roles", "course", nil, true, true)
		tour.RawScript = validScript
		require.NoError(t, tours.UpdateTour(db, tour))

		_, id := eligibility.SelectAutostartTour(db, logger, nil, ec)
		assert.Zero(t, id)
	})

	t.Run("renders from steps when no raw script is authored", func(t *testing.T) {
		testsupport.CleanAllTables(db)
		ec := baseContext()

		tour := testsupport.CreateTestTour(t, db, "Stepped", "course", []int64{1}, true, true)
		testsupport.CreateTestStep(t, db, tour.ID, "Step One", "#step-one")

		script, id := eligibility.SelectAutostartTour(db, logger, nil, ec)
		assert.Equal(t, tour.ID, id)
		assert.Contains(t, script, "#step-one")
	})
}

func TestContextMatching(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	refID := int64(555)

	cases := []struct {
		name       string
		objectType string
		refID      *int64
		ctx        func(ec *eligibility.Context)
		want       bool
	}{
		{
			name:       "wildcard type matches any page",
			objectType: "any",
			ctx:        func(ec *eligibility.Context) { ec.CurrentObjType = "whatever" },
			want:       true,
		},
		{
			name:       "type match on obj type",
			objectType: "course",
			want:       true,
		},
		{
			name:       "type match on cmd class",
			objectType: "grading",
			ctx:        func(ec *eligibility.Context) { ec.CurrentCmdClass = "grading" },
			want:       true,
		},
		{
			name:       "type mismatch",
			objectType: "quiz",
			want:       false,
		},
		{
			name:       "ref id widens a type mismatch",
			objectType: "quiz",
			refID:      &refID,
			ctx:        func(ec *eligibility.Context) { ec.CurrentRefID = &refID },
			want:       true,
		},
		{
			name:       "set ref id must match exactly",
			objectType: "course",
			refID:      &refID,
			ctx: func(ec *eligibility.Context) {
				other := int64(556)
				ec.CurrentRefID = &other
			},
			want: false,
		},
		{
			name:       "set ref id with no current ref fails",
			objectType: "course",
			refID:      &refID,
			want:       false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			testsupport.CleanAllTables(db)
			ec := baseContext()
			if tc.ctx != nil {
				tc.ctx(&ec)
			}

			tour := testsupport.CreateTestTour(t, db, tc.name, tc.objectType, []int64{1}, true, true)
			tour.RawScript = validScript
			tour.RefID = tc.refID
			require.NoError(t, tours.UpdateTour(db, tour))

			_, id := eligibility.SelectAutostartTour(db, logger, nil, ec)
			if tc.want {
				assert.Equal(t, tour.ID, id)
			} else {
				assert.Zero(t, id)
			}
		})
	}
}

func TestLanguageMatching(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	cases := []struct {
		name         string
		tourLanguage string
		userLanguage string
		want         bool
	}{
		{"empty tour language matches all", "", "de", true},
		{"exact match", "de", "de", true},
		{"case insensitive match", "DE", "de", true},
		{"base language match", "de", "de-AT", true},
		{"mismatch", "de", "fr", false},
		{"garbage user language", "de", "???", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			testsupport.CleanAllTables(db)
			ec := baseContext()
			ec.UserLanguage = tc.userLanguage

			tour := testsupport.CreateTestTour(t, db, tc.name, "course", []int64{1}, true, true)
			tour.RawScript = validScript
			tour.LanguageCode = tc.tourLanguage
			require.NoError(t, tours.UpdateTour(db, tour))

			_, id := eligibility.SelectAutostartTour(db, logger, nil, ec)
			if tc.want {
				assert.Equal(t, tour.ID, id)
			} else {
				assert.Zero(t, id)
			}
		})
	}
}
