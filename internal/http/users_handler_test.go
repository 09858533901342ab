package http_test

import (
	"fmt"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourly/internal/testsupport"
)

func TestLoginFlow(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	app := testsupport.CreateMinimalTestApp(t, db)

	testsupport.CleanAllTables(db)
	testsupport.CreateTestUserForAuth(t, db, "admin@example.com", "correct-horse-battery")

	t.Run("valid credentials open an admin session", func(t *testing.T) {
		sessionValue := testsupport.LoginTestUser(t, app, "admin@example.com", "correct-horse-battery")

		req := httptest.NewRequest("GET", "/admin/tours", nil)
		req.Header.Set("User-Agent", "Mozilla/5.0 Test Browser")
		req.Header.Set("Cookie", fmt.Sprintf("%s=%s", testsupport.SessionCookieName, sessionValue))

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("wrong password is bounced back to the login page", func(t *testing.T) {
		form := url.Values{}
		form.Add("email", "admin@example.com")
		form.Add("password", "wrong-password")

		req := httptest.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("User-Agent", "Mozilla/5.0 Test Browser")
		req.Header.Set("Sec-Fetch-Site", "same-origin")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusFound, resp.StatusCode)
		assert.Equal(t, "/login", resp.Header.Get("Location"))
	})

	t.Run("login form post without browser headers is rejected", func(t *testing.T) {
		form := url.Values{}
		form.Add("email", "admin@example.com")
		form.Add("password", "correct-horse-battery")

		req := httptest.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})
}

func TestAdminRoutesRequireLogin(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	app := testsupport.CreateMinimalTestApp(t, db)

	for _, path := range []string{"/admin/tours", "/admin/statistics", "/admin/settings"} {
		req := httptest.NewRequest("GET", path, nil)
		req.Header.Set("User-Agent", "Mozilla/5.0 Test Browser")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusFound, resp.StatusCode, "path %s", path)
		assert.Equal(t, "/login", resp.Header.Get("Location"), "path %s", path)
	}
}
