package identity

import (
	"context"
	"errors"
	"time"

	"typingschool/identity/internal/auth"
	"typingschool/identity/internal/crypto"
	"typingschool/identity/internal/model"
	"typingschool/identity/internal/repository"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type DirectoryStore interface {
	UserStore
	CreateUser(ctx context.Context, user model.User) (model.User, error)
	ListUsers(ctx context.Context, role *auth.Role, limit int) ([]model.User, error)
}

// Directory provisions and looks up accounts.
type Directory struct {
	store  DirectoryStore
	hasher *crypto.Hasher
	now    func() time.Time
}

func NewDirectory(store DirectoryStore, hasher *crypto.Hasher) *Directory {
	return &Directory{store: store, hasher: hasher, now: time.Now}
}

func (d *Directory) Create(ctx context.Context, req NewUser) (model.User, error) {
	hash, err := d.hasher.Hash(req.Password)
	if err != nil {
		return model.User{}, internal("hash password", err)
	}
	now := d.now().UTC()
	user, err := d.store.CreateUser(ctx, model.User{
		Email:        req.Email,
		Name:         req.Name,
		Role:         req.Role,
		PasswordHash: hash,
		Grade:        req.Grade,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if errors.Is(err, repository.ErrEmailTaken) {
		return model.User{}, ErrEmailTaken
	}
	if err != nil {
		return model.User{}, internal("create user", err)
	}
	return user, nil
}

func (d *Directory) Get(ctx context.Context, rawID string) (model.User, error) {
	id, err := ParseUserID(rawID)
	if err != nil {
		return model.User{}, err
	}
	return d.Find(ctx, id)
}

func (d *Directory) Find(ctx context.Context, id int64) (model.User, error) {
	if id <= 0 {
		return model.User{}, invalid("invalid_user_id")
	}
	user, err := d.store.FindUserByID(ctx, id, nil)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, internal("find user", err)
	}
	return user, nil
}

// List returns users, optionally of one role. A limit outside 1..200 falls back
// to the default.
func (d *Directory) List(ctx context.Context, rawRole string, limit int) ([]model.User, error) {
	var role *auth.Role
	if rawRole != "" {
		parsed, ok := auth.ParseRole(rawRole)
		if !ok {
			return nil, invalid("invalid_role")
		}
		role = &parsed
	}
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	users, err := d.store.ListUsers(ctx, role, limit)
	if err != nil {
		return nil, internal("list users", err)
	}
	return users, nil
}

// EnsureAdmin creates an admin account unless the email is already in use.
// It reports whether an account was created.
func (d *Directory) EnsureAdmin(ctx context.Context, email, password, name string) (bool, error) {
	req, err := ParseCreateUserRequest(CreateUserRequest{
		Email:    email,
		Name:     name,
		Role:     string(auth.RoleAdmin),
		Password: password,
	})
	if err != nil {
		return false, err
	}
	_, err = d.store.FindUserByEmail(ctx, req.Email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return false, internal("find user", err)
	}
	if _, err := d.Create(ctx, req); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
