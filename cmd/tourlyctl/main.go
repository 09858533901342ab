// main.go - Admin control tool for Tourly
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"

	"log/slog"

	"tourly/internal"
	"tourly/internal/config"
	"tourly/internal/seeder"
	"tourly/internal/users"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// log is the tool's logger: human output on stderr, full history in a
// rotated file next to the database.
var log = logrus.New()

func setupLogging() {
	cfg := config.GetConfig()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
		Filename:   filepath.Join(cfg.GetLogDirectory(), "tourlyctl.log"),
		MaxSize:    cfg.GetLogMaxSizeMB(),
		MaxBackups: cfg.GetLogMaxBackups(),
		MaxAge:     cfg.GetLogMaxAgeDays(),
	}))
}

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&CreateAdminUserCommand{},
	&ChangeAdminPasswordCommand{},
	&MigrateCommand{},
	&SeedCommand{},
	&StatusCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()
	setupLogging()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Infof("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs()

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	app, err := internal.NewApp()
	if err != nil {
		log.Warnf("Failed to initialize app: %v", err)
		log.Info("Proceeding with limited functionality...")
	}

	defer func() {
		if app != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := app.Shutdown(shutdownCtx); err != nil {
				log.Warnf("Cleanup error: %v", err)
			}
		}
	}()

	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Infof("Command %s completed successfully", cmd.Name())
}

// readPassword prompts for a password without echoing it
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// CreateAdminUserCommand implements the command to create an initial admin user
type CreateAdminUserCommand struct{}

func (c *CreateAdminUserCommand) Name() string {
	return "create-admin-user"
}

func (c *CreateAdminUserCommand) Description() string {
	return "Creates an initial admin user"
}

func (c *CreateAdminUserCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <email> [password]", c.Name())
	}
	email := args[0]

	var password string
	if len(args) >= 2 {
		password = args[1]
	} else {
		pwd1, err := readPassword("Enter password: ")
		if err != nil {
			return err
		}
		pwd2, err := readPassword("Confirm password: ")
		if err != nil {
			return err
		}
		if pwd1 != pwd2 {
			return fmt.Errorf("passwords do not match")
		}
		password = pwd1
	}
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	log.Infof("Setting up initial user with email: %s", email)

	var db *gorm.DB
	if app != nil {
		db = app.DBManager.GetConnection()
	} else {
		return fmt.Errorf("app initialization failed, cannot connect to database")
	}

	if err := users.CreateAdminUser(db, email, password); err != nil {
		if errors.Is(err, users.ErrUserExists) {
			log.Infof("User %s already exists", email)
			return nil
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// ChangeAdminPasswordCommand implements password update for existing admin user
type ChangeAdminPasswordCommand struct{}

func (c *ChangeAdminPasswordCommand) Name() string {
	return "change-admin-password"
}

func (c *ChangeAdminPasswordCommand) Description() string {
	return "Changes the password of an existing admin user"
}

func (c *ChangeAdminPasswordCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	var email string
	if len(args) >= 1 {
		email = args[0]
	} else {
		fmt.Print("Enter admin email: ")
		if _, err := fmt.Scanln(&email); err != nil {
			return fmt.Errorf("failed to read email: %w", err)
		}
		email = strings.TrimSpace(email)
	}

	if email == "" {
		return fmt.Errorf("email is required")
	}

	var db *gorm.DB
	if app != nil {
		db = app.DBManager.GetConnection()
	} else {
		return fmt.Errorf("app initialization failed, cannot connect to database")
	}

	if _, err := users.FindByEmail(db, email); err != nil {
		return fmt.Errorf("user lookup failed: %w", err)
	}

	var newPassword string
	if len(args) >= 2 {
		newPassword = args[1]
	} else {
		pwd1, err := readPassword("Enter new password: ")
		if err != nil {
			return err
		}
		pwd2, err := readPassword("Confirm new password: ")
		if err != nil {
			return err
		}
		if pwd1 != pwd2 {
			return fmt.Errorf("passwords do not match")
		}
		newPassword = pwd1
	}

	if newPassword == "" {
		return fmt.Errorf("password cannot be empty")
	}

	if err := users.ChangePassword(db, email, newPassword); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	fmt.Println("Password updated successfully")
	return nil
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

func (c *StatusCommand) Name() string {
	return "status"
}

func (c *StatusCommand) Description() string {
	return "Shows the current system status"
}

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("cannot check status: app initialization failed")
	}

	db := app.DBManager.GetConnection()

	adminCount, err := users.CountAdmins(db)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	var tourCount int64
	if err := db.Table("tours").Count(&tourCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	log.Info("System Status:")
	log.Info("- Database: Connected")
	log.Infof("- Admin users: %d", adminCount)
	log.Infof("- Tours: %d", tourCount)

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}

	log.Infof("- Max Open Connections: %d", sqlDB.Stats().MaxOpenConnections)
	log.Infof("- Open Connections: %d", sqlDB.Stats().OpenConnections)
	log.Infof("- In Use: %d", sqlDB.Stats().InUse)
	log.Infof("- Idle: %d", sqlDB.Stats().Idle)

	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string {
	return "help"
}

func (c *HelpCommand) Description() string {
	return "Shows usage information"
}

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fmt.Println("Usage: tourlyctl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}

	return nil
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot run migrations")
	}

	log.Info("Running database migrations...")

	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info("Migrations completed successfully")
	return nil
}

// SeedCommand populates the DB with demo tours and synthetic usage
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the database with sample data" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	userCount := fs.Int("users", 50, "number of synthetic users to generate usage for")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if app == nil {
		return fmt.Errorf("unable to initialise app")
	}

	se := seeder.NewSeeder(app.DBManager, slog.Default(), *userCount)
	return se.Run(ctx)
}

// Helper functions

// parseArgs parses the command name and arguments
func parseArgs() (string, []string) {
	args := os.Args[1:]
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	fmt.Println("Usage: tourlyctl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}

	os.Exit(1)
}
