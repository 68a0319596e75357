package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"

	"github.com/pkg/errors"
	"github.com/takaful/backoffice-api/internal/models"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = stderrors.New("invalid credentials")
	ErrUserDisabled       = stderrors.New("user cannot sign in")
	ErrEmailTaken         = stderrors.New("email already registered")
)

type CreateUserParams struct {
	Name         string
	Email        string
	Password     string
	OfficerEmail string
}

// UserRepository is the user directory the workflow and dispatcher read from.
type UserRepository interface {
	// CreateUser registers a pending user and records a user.registered event.
	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByID(ctx context.Context, userID string) (models.User, error)
	ListUserIDsByStatus(ctx context.Context, status models.UserStatus) ([]string, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, name, email, password_hash, officer_email, status, created_at, updated_at`

func (u *userRepository) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	email := strings.ToLower(strings.TrimSpace(params.Email))
	name := strings.TrimSpace(params.Name)
	officer := strings.ToLower(strings.TrimSpace(params.OfficerEmail))

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	var user models.User
	err = withTx(ctx, u.db, func(tx *sql.Tx) error {
		const query = `
			INSERT INTO membership.users (name, email, password_hash, officer_email, status)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING ` + userColumns
		var officerEmail interface{}
		if officer != "" {
			officerEmail = officer
		}
		user, err = scanUser(tx.QueryRowContext(ctx, query, name, email, string(hash), officerEmail, models.UserStatusPending))
		if err != nil {
			return err
		}
		_, err = insertEvent(ctx, tx, models.EventUserRegistered, user.ID, nil, &user.ID)
		return err
	})
	if err != nil {
		if isUniqueViolation(err, "users_email_key") {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, err
	}
	return user, nil
}

func (u *userRepository) AuthenticateUser(ctx context.Context, email, password string) (models.User, error) {
	user, err := u.GetUserByEmail(ctx, email)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}

	if !user.Status.CanSignIn() {
		return models.User{}, ErrUserDisabled
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}

	return user, nil
}

func (u *userRepository) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM membership.users
		WHERE lower(email) = lower($1)`
	return scanUser(u.db.QueryRowContext(ctx, query, strings.TrimSpace(email)))
}

func (u *userRepository) GetUserByID(ctx context.Context, userID string) (models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM membership.users
		WHERE id = $1`
	return scanUser(u.db.QueryRowContext(ctx, query, userID))
}

func (u *userRepository) ListUserIDsByStatus(ctx context.Context, status models.UserStatus) ([]string, error) {
	const query = `
		SELECT id
		FROM membership.users
		WHERE status = $1
		ORDER BY created_at`

	rows, err := u.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list users with status %q", status)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func scanUser(scanner rowScanner) (models.User, error) {
	var (
		user    models.User
		officer sql.NullString
	)
	if err := scanner.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&officer,
		&user.Status,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return models.User{}, err
	}
	if officer.Valid {
		user.OfficerEmail = officer.String
	}
	return user, nil
}
