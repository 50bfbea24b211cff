package repository

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"typingschool/identity/internal/auth"
	"typingschool/identity/internal/db"
	"typingschool/identity/internal/model"
)

func openTestDB(t *testing.T) *pgxpool.Pool {
	url := os.Getenv("IDENTITY_TEST_DB")
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		t.Skip("IDENTITY_TEST_DB or DATABASE_URL not set")
		return nil
	}
	pool, err := db.NewPool(context.Background(), url)
	if err != nil {
		t.Skipf("db unavailable: %v", err)
		return nil
	}
	if err := db.Migrate(context.Background(), pool); err != nil {
		pool.Close()
		t.Fatalf("migrate error: %v", err)
	}
	return pool
}

func TestStoreUserLifecycle(t *testing.T) {
	pool := openTestDB(t)
	if pool == nil {
		return
	}
	defer pool.Close()

	ctx := context.Background()
	store := NewStore(pool)
	suffix := strconv.FormatInt(time.Now().UnixNano(), 10)
	now := time.Now().UTC()
	grade := 5

	student, err := store.CreateUser(ctx, model.User{
		Email:        "Student." + suffix + "@Example.local",
		Name:         "Test Student",
		Role:         auth.RoleStudent,
		PasswordHash: "hash",
		Grade:        &grade,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("create error: %v", err)
	}

	found, err := store.FindUserByEmail(ctx, "student."+suffix+"@example.local")
	if err != nil || found.ID != student.ID {
		t.Fatalf("expected case-insensitive lookup, got %+v %v", found, err)
	}
	if found.Grade == nil || *found.Grade != 5 {
		t.Fatalf("expected grade 5, got %v", found.Grade)
	}

	_, err = store.CreateUser(ctx, model.User{
		Email:        "STUDENT." + suffix + "@example.local",
		Name:         "Duplicate",
		Role:         auth.RoleStudent,
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	role := auth.RoleInstructor
	if _, err := store.FindUserByID(ctx, student.ID, &role); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong role, got %v", err)
	}
	role = auth.RoleStudent
	if _, err := store.FindUserByID(ctx, student.ID, &role); err != nil {
		t.Fatalf("expected student lookup to succeed: %v", err)
	}

	if err := store.UpdateLastLogin(ctx, student.ID, now); err != nil {
		t.Fatalf("update last login error: %v", err)
	}
	found, err = store.FindUserByID(ctx, student.ID, nil)
	if err != nil || found.LastLoginAt == nil {
		t.Fatalf("expected last login to be set, got %+v %v", found, err)
	}

	counts, err := store.CountUsersByRole(ctx)
	if err != nil || counts[auth.RoleStudent] < 1 {
		t.Fatalf("expected at least one student, got %v %v", counts, err)
	}
}
