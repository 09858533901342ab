package users_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tourly/internal/testsupport"
	"tourly/internal/users"
)

func TestFindByEmail(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	t.Run("finds existing user", func(t *testing.T) {
		testUser := testsupport.CreateTestUser(db, "test@example.com", "password123")

		foundUser, err := users.FindByEmail(db, "test@example.com")

		require.NoError(t, err)
		assert.NotNil(t, foundUser)
		assert.Equal(t, testUser.Email, foundUser.Email)
		assert.Equal(t, testUser.ID, foundUser.ID)
	})

	t.Run("returns error for non-existent user", func(t *testing.T) {
		foundUser, err := users.FindByEmail(db, "nonexistent@example.com")

		assert.Error(t, err)
		assert.Nil(t, foundUser)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})
}

func TestFindByID(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	created := testsupport.CreateTestUser(db, "byid@example.com", "password123")

	foundUser, err := users.FindByID(db, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Email, foundUser.Email)

	_, err = users.FindByID(db, created.ID+1000)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCreateAdminUser(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	t.Run("creates new admin user successfully", func(t *testing.T) {
		email := "newadmin@example.com"
		password := "securepassword123"

		err := users.CreateAdminUser(db, email, password)
		require.NoError(t, err)

		foundUser, err := users.FindByEmail(db, email)
		require.NoError(t, err)
		assert.Equal(t, email, foundUser.Email)
		assert.NotEmpty(t, foundUser.EncryptedPassword)
	})

	t.Run("returns error when user already exists", func(t *testing.T) {
		email := "existing@example.com"
		password := "password123"

		err := users.CreateAdminUser(db, email, password)
		require.NoError(t, err)

		err = users.CreateAdminUser(db, email, password)
		assert.Error(t, err)
		assert.ErrorIs(t, err, users.ErrUserExists)
	})

	t.Run("returns error for empty email", func(t *testing.T) {
		err := users.CreateAdminUser(db, "", "password123")
		assert.Error(t, err)
	})

	t.Run("returns error for empty password", func(t *testing.T) {
		err := users.CreateAdminUser(db, "emptypass@example.com", "")
		assert.Error(t, err)
	})
}

func TestChangePassword(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	t.Run("changes password successfully", func(t *testing.T) {
		email := "changepass@example.com"

		err := users.CreateAdminUser(db, email, "oldpassword123")
		require.NoError(t, err)

		userBefore, err := users.FindByEmail(db, email)
		require.NoError(t, err)
		oldEncryptedPassword := userBefore.EncryptedPassword

		err = users.ChangePassword(db, email, "newpassword456")
		require.NoError(t, err)

		userAfter, err := users.FindByEmail(db, email)
		require.NoError(t, err)
		assert.NotEqual(t, oldEncryptedPassword, userAfter.EncryptedPassword)
		assert.NotEmpty(t, userAfter.EncryptedPassword)
	})

	t.Run("returns error for non-existent user", func(t *testing.T) {
		err := users.ChangePassword(db, "missing@example.com", "whatever123")
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})

	t.Run("returns error for empty password", func(t *testing.T) {
		err := users.ChangePassword(db, "changepass@example.com", "")
		assert.Error(t, err)
	})
}

func TestSetupAdminUserIfNotExists(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	email := "bootstrap@example.com"

	users.SetupAdminUserIfNotExists(db, email)

	foundUser, err := users.FindByEmail(db, email)
	require.NoError(t, err)
	firstPassword := foundUser.EncryptedPassword

	// Running it again must not overwrite the existing credentials
	users.SetupAdminUserIfNotExists(db, email)

	foundUser, err = users.FindByEmail(db, email)
	require.NoError(t, err)
	assert.Equal(t, firstPassword, foundUser.EncryptedPassword)

	count, err := users.CountAdmins(db)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, int64(1))
}
