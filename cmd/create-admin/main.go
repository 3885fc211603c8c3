package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"strings"

	"magiclink-auth/internal/config"
	"magiclink-auth/internal/database"
	"magiclink-auth/internal/logger"
	"magiclink-auth/internal/model"
	"magiclink-auth/internal/repository"
)

type userDirectory interface {
	FindByEmail(ctx context.Context, email string) (model.User, error)
	Create(ctx context.Context, email string, name string, role string) (model.User, error)
	Update(ctx context.Context, u model.User) (model.User, error)
}

// ensureAdmin finds or creates the account for the email and grants it
// the admin role. Promoting an existing admin is a no-op.
func ensureAdmin(ctx context.Context, users userDirectory, email string, name string) (model.User, bool, error) {
	user, err := users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		created, err := users.Create(ctx, email, name, model.RoleAdmin)
		return created, true, err
	}
	if err != nil {
		return model.User{}, false, err
	}

	if user.Role == model.RoleAdmin {
		return user, false, nil
	}

	user.Role = model.RoleAdmin
	if name != "" {
		user.Name = name
	}

	updated, err := users.Update(ctx, user)
	return updated, false, err
}

func main() {
	email := flag.String("email", "", "email of the admin account")
	name := flag.String("name", "", "display name when the account is created")
	flag.Parse()

	slog.SetDefault(logger.New(os.Getenv("ENVIRONMENT"), slog.LevelInfo))

	if strings.TrimSpace(*email) == "" {
		slog.Error("usage: create-admin -email <address> [-name <name>]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure database schema", "error", err)
		os.Exit(1)
	}

	users := repository.NewUserRepository(db.Pool)

	user, created, err := ensureAdmin(ctx, users, strings.ToLower(strings.TrimSpace(*email)), strings.TrimSpace(*name))
	if err != nil {
		slog.Error("failed to ensure admin account", "email", *email, "error", err)
		os.Exit(1)
	}

	if created {
		slog.Info("admin account created", "user_id", user.ID, "email", user.Email)
	} else {
		slog.Info("admin role ensured", "user_id", user.ID, "email", user.Email)
	}
}
