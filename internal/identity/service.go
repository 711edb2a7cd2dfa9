package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/secure/precis"
)

// Service wraps account business rules: registration and authentication.
type Service struct {
	repo   Repository
	hasher Hasher
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, hasher Hasher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, hasher: hasher, logger: logger, now: time.Now}
}

// RegisterInput carries the registration request fields.
type RegisterInput struct {
	Email       string
	Password    string
	Username    string
	DisplayName string
	City        string
	Region      string
	Country     string
}

// Register creates a new account. The email and username pre-checks are
// advisory; the accounts table's unique indexes are the authoritative
// guard under concurrent registration, and a storage conflict from the
// insert is translated to the same duplicate errors the pre-checks use.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*Account, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	username, err := precis.UsernameCaseMapped.String(strings.TrimSpace(input.Username))
	if err != nil {
		return nil, fmt.Errorf("%w: username: %v", ErrEncoding, err)
	}

	digest, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	var created *Account
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.FindByEmail(ctx, email); err == nil {
			return ErrDuplicateEmail
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if _, err := repo.FindByUsername(ctx, username); err == nil {
			return ErrDuplicateUsername
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		now := s.now().UTC()
		acct, err := repo.Create(ctx, &Account{
			ID:               uuid.NewString(),
			Email:            email,
			Username:         username,
			CredentialDigest: digest,
			DisplayName:      input.DisplayName,
			City:             input.City,
			Region:           input.Region,
			Country:          input.Country,
			Role:             RoleMember,
			Active:           true,
			CreatedAt:        now,
		})
		if err != nil {
			return err
		}
		created = acct
		return nil
	})
	if err != nil {
		return nil, translateConflict(err)
	}
	return created, nil
}

// translateConflict maps a storage-layer uniqueness violation onto the
// duplicate errors the caller already handles. This is the only place
// that interpretation happens.
func translateConflict(err error) error {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		switch conflict.Field {
		case "username":
			return ErrDuplicateUsername
		default:
			return ErrDuplicateEmail
		}
	}
	return err
}

// Authenticate validates email/password credentials. The account and its
// credential digest come from one read. An unknown email, an inactive
// account, and a wrong password all produce the identical
// ErrInvalidCredentials; a storage failure produces ErrAuthUnavailable.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	acct, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("authenticate: account lookup", slog.Any("error", err))
		return nil, ErrAuthUnavailable
	}
	if !acct.Active {
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(password, acct.CredentialDigest)
	if err != nil {
		if errors.Is(err, ErrEncoding) {
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("authenticate: verify digest", slog.Any("error", err))
		return nil, ErrAuthUnavailable
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	at := s.now().UTC()
	matched, err := s.repo.RecordLogin(ctx, acct.ID, at)
	if err != nil {
		s.logger.Error("authenticate: record login", slog.Any("error", err))
		return nil, ErrAuthUnavailable
	}
	if matched {
		acct.LastLoginAt = &at
	}
	return acct, nil
}

// GetByID returns the account with the given identifier.
func (s *Service) GetByID(ctx context.Context, id string) (*Account, error) {
	return s.repo.FindByID(ctx, id)
}
