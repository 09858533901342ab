package testsupport

import (
	"fmt"
	"log/slog"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/cache"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tourly/internal"
	"tourly/internal/config"
	"tourly/internal/recording"
	"tourly/internal/settings"
	"tourly/internal/steps"
	"tourly/internal/tours"
	"tourly/internal/usage"
	"tourly/internal/users"
)

// SessionCookieName is the expected cookie name for session cookies in tests.
// This should match the pattern used in routes.go: cfg.AppName + "_session"
const SessionCookieName = "tourly_session"

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with tourly's interface
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// allModels returns all tourly models for migration
func allModels() []any {
	return []any{
		&cache.CacheRecord{},
		&users.User{},
		&settings.Setting{},
		&tours.Tour{},
		&steps.Step{},
		&usage.UserTourState{},
		&usage.TourUsageEntry{},
		&recording.RecordingSession{},
	}
}

// SetupTestDB creates a test database with all tourly models migrated.
// Uses a named in-memory database with cache=shared to allow multiple connections
// to share the same database within a test. Caches the database by test name
// so multiple calls within the same test return the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	// Check cache first
	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	// Create a unique named in-memory database for each test
	// cache=shared allows multiple connections to the same database
	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	// Apply SQLite pragmas
	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	// Auto-migrate models
	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	// Cache the database
	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	// Register cleanup
	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()

	// SAFETY CHECK: Ensure we're in test environment
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set TOURLY_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	logger := GetLogger()
	dbManager := NewTestDBManager(db)

	return dbManager, logger
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	var tables []string
	for _, name := range tableNames {
		if name != "migrations" && name != "schema_migrations" {
			tables = append(tables, name)
		}
	}

	if len(tables) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// CleanTables cleans specific tables or all tables if none specified
func CleanTables(db *gorm.DB, tables []string) {
	if len(tables) == 0 {
		CleanAllTables(db)
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// CreateTestTour creates a tour in the database for testing. Options beyond
// the title are applied by mutating the returned struct before UpdateTour,
// but the common gates are parameters because nearly every test sets them.
func CreateTestTour(t *testing.T, db *gorm.DB, title, objectType string, roleIDs []int64, active, autoTriggered bool) *tours.Tour {
	t.Helper()

	tour := &tours.Tour{
		Title:         title,
		ObjectType:    objectType,
		RoleIDs:       tours.RoleIDList(roleIDs),
		Active:        active,
		AutoTriggered: autoTriggered,
	}
	require.NoError(t, tours.CreateTour(db, tour))
	return tour
}

// CreateTestStep appends a step to a tour for testing
func CreateTestStep(t *testing.T, db *gorm.DB, tourID int64, title, element string) *steps.Step {
	t.Helper()

	step := &steps.Step{
		TourID:      tourID,
		Title:       title,
		Element:     element,
		ElementType: steps.ElementCSSSelector,
		Content:     "content for " + title,
	}
	require.NoError(t, steps.CreateStep(db, GetLogger(), step))
	return step
}

// CreateTestUser creates a test user in the database
func CreateTestUser(db *gorm.DB, email, password string) users.User {
	var user users.User
	if db.Where("email = ?", email).First(&user).Error == nil {
		return user
	}

	user = users.User{
		Email:             email,
		EncryptedPassword: password,
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	db.Create(&user)
	return user
}

// CreateTestUserForAuth creates a user with properly hashed password for auth testing
func CreateTestUserForAuth(t *testing.T, db *gorm.DB, email, password string) *users.User {
	t.Helper()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)

	user := &users.User{
		Email:             email,
		EncryptedPassword: string(hashedPassword),
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateMinimalTestApp creates a test Fiber app with all routes
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager
	cfg.StaticDirectory = appConfig.PublicDirectory
	cfg.StaticPrefix = appConfig.PublicAssetsUrlPrefix
	cfg.TemplatesDirectory = appConfig.PublicDirectory
	// Enable SecFetchSite validation in tests to match production behavior
	cfg.EnableSecFetchSite = true
	cfg.SecFetchSiteAllowedValues = []string{"cross-site", "same-site", "same-origin"}

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}

// LoginTestUser logs in through POST /login and returns the session cookie
// value. Cross-request forgery protection is header-based (Sec-Fetch-Site),
// so the request carries the headers a browser would send.
func LoginTestUser(t *testing.T, app *fiber.App, email, password string) string {
	t.Helper()

	loginData := url.Values{}
	loginData.Add("email", email)
	loginData.Add("password", password)

	req := httptest.NewRequest("POST", "/login", strings.NewReader(loginData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 Test Browser")
	req.Header.Set("Sec-Fetch-Site", "same-origin")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/admin/tours", resp.Header.Get("Location"))

	var sessionValue string
	for _, cookie := range resp.Cookies() {
		if cookie.Name == SessionCookieName {
			sessionValue = cookie.Value
			break
		}
	}
	require.NotEmpty(t, sessionValue)

	return sessionValue
}
