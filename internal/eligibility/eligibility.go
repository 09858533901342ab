// Package eligibility decides which tour, if any, a user gets on a given
// page. Manual triggers validate a single named tour; autostart scans the
// active catalog with a strict first-match policy. The engine never
// surfaces an error to the end user: every failure path degrades to "no
// tour shown".
package eligibility

import (
	"strconv"
	"strings"

	"log/slog"

	"golang.org/x/text/language"
	"gorm.io/gorm"

	"tourly/internal/script"
	"tourly/internal/steps"
	"tourly/internal/tours"
	"tourly/internal/usage"
)

// TriggerPrefix marks a manual tour trigger token.
const TriggerPrefix = "gtour-"

// Context carries everything about the requesting user and the page they
// are on that the decision needs.
type Context struct {
	UserID          int64
	UserRoles       []int64
	UserLanguage    string
	CurrentObjType  string
	CurrentCmdClass string
	CurrentRefID    *int64
}

// TourIDFromTrigger parses a "gtour-<id>" trigger token. It fails closed:
// any format mismatch or non-numeric suffix yields ok=false.
func TourIDFromTrigger(trigger string) (int64, bool) {
	suffix, found := strings.CutPrefix(trigger, TriggerPrefix)
	if !found || suffix == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// SelectManualTour resolves a manual trigger token to a rendered step
// script. Only the active, language and role gates apply: manually
// triggered tours are replayable on demand regardless of finish state, and
// neither type nor ref matching is checked. Returns ("", 0) when the tour
// is not eligible or its script does not validate.
func SelectManualTour(db *gorm.DB, logger *slog.Logger, resolver steps.PageContentResolver, trigger string, ec Context) (string, int64) {
	tourID, ok := TourIDFromTrigger(trigger)
	if !ok {
		return "", 0
	}

	tour, err := tours.GetTourByID(db, tourID)
	if err != nil {
		return "", 0
	}

	if !tour.Active {
		return "", 0
	}
	if !languageMatches(tour.LanguageCode, ec.UserLanguage) {
		return "", 0
	}
	if !tour.RoleIDs.IntersectsAny(ec.UserRoles) {
		return "", 0
	}

	rendered, err := renderTourScript(db, resolver, tour)
	if err != nil {
		logger.Debug("manual tour has no usable script", "tour_id", tour.ID, "error", err)
		return "", 0
	}
	return rendered, tour.ID
}

// SelectAutostartTour scans the active catalog in stable order and returns
// the script and id of the first tour the user is eligible to autostart,
// or ("", 0) when none applies.
//
// If the first eligible tour's script fails validation the scan stops
// instead of moving on to the next candidate. Later tours would otherwise
// shadow a broken one and make the breakage invisible to admins.
func SelectAutostartTour(db *gorm.DB, logger *slog.Logger, resolver steps.PageContentResolver, ec Context) (string, int64) {
	catalog, err := tours.GetActiveTours(db)
	if err != nil {
		logger.Error("failed to load tour catalog", "error", err)
		return "", 0
	}

	for i := range catalog {
		tour := &catalog[i]

		eligible, err := isAutostartEligible(db, tour, ec)
		if err != nil {
			logger.Error("eligibility check failed", "tour_id", tour.ID, "error", err)
			return "", 0
		}
		if !eligible {
			continue
		}

		rendered, err := renderTourScript(db, resolver, tour)
		if err != nil {
			logger.Warn("eligible tour has no usable script, skipping autostart", "tour_id", tour.ID, "error", err)
			return "", 0
		}
		return rendered, tour.ID
	}

	return "", 0
}

func isAutostartEligible(db *gorm.DB, tour *tours.Tour, ec Context) (bool, error) {
	if !tour.Active || !tour.AutoTriggered {
		return false, nil
	}
	if !languageMatches(tour.LanguageCode, ec.UserLanguage) {
		return false, nil
	}
	if !contextMatches(tour, ec) {
		return false, nil
	}
	if !tour.RoleIDs.IntersectsAny(ec.UserRoles) {
		return false, nil
	}

	finished, err := usage.HasFinished(db, tour.ID, ec.UserID)
	if err != nil {
		return false, err
	}
	return !finished, nil
}

// contextMatches implements the page-context gate. A tour pinned to a ref
// id is checkable purely by that id even when its type does not match, but
// a set ref id must then match exactly.
func contextMatches(tour *tours.Tour, ec Context) bool {
	typeMatches := tour.ObjectType == tours.ObjectTypeAny ||
		tour.ObjectType == ec.CurrentObjType ||
		tour.ObjectType == ec.CurrentCmdClass

	refIDMatches := tour.RefID == nil ||
		(ec.CurrentRefID != nil && *tour.RefID == *ec.CurrentRefID)

	return (typeMatches || tour.RefID != nil) && refIDMatches
}

// languageMatches gates a tour on the user's language. An empty tour code
// matches everything; otherwise the codes match exactly or share the same
// base language, so a tour tagged "de" is shown to a "de-AT" user.
func languageMatches(tourCode, userLanguage string) bool {
	tourCode = strings.TrimSpace(tourCode)
	if tourCode == "" {
		return true
	}
	if strings.EqualFold(tourCode, userLanguage) {
		return true
	}

	tourTag, err := language.Parse(tourCode)
	if err != nil {
		return false
	}
	userTag, err := language.Parse(userLanguage)
	if err != nil {
		return false
	}

	tourBase, _ := tourTag.Base()
	userBase, _ := userTag.Base()
	return tourBase == userBase
}

// renderTourScript produces the player script for a tour. The authored raw
// script wins when present; tours built through the step editor render
// from their step list instead.
func renderTourScript(db *gorm.DB, resolver steps.PageContentResolver, tour *tours.Tour) (string, error) {
	if strings.TrimSpace(tour.RawScript) != "" {
		return script.Parse(tour.RawScript)
	}

	list, err := steps.GetStepsByTourID(db, tour.ID)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "", &script.EmptyScriptError{TourID: tour.ID}
	}
	return steps.RenderScript(list, resolver)
}
