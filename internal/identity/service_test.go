package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lumora-social/lumora/internal/identity"
)

// fakeRepo is an in-memory Repository with scriptable failures.
type fakeRepo struct {
	byEmail    map[string]*identity.Account
	byUsername map[string]*identity.Account
	byID       map[string]*identity.Account

	createErr error
	findErr   error
	loginErr  error

	recordLoginCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		byEmail:    map[string]*identity.Account{},
		byUsername: map[string]*identity.Account{},
		byID:       map[string]*identity.Account{},
	}
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, identity.Repository) error) error {
	return fn(ctx, f)
}

func (f *fakeRepo) Create(ctx context.Context, acct *identity.Account) (*identity.Account, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.byEmail[acct.Email]; ok {
		return nil, &identity.ConflictError{Constraint: "uq_accounts_email", Field: "email"}
	}
	if _, ok := f.byUsername[acct.Username]; ok {
		return nil, &identity.ConflictError{Constraint: "uq_accounts_username", Field: "username"}
	}
	stored := *acct
	stored.UpdatedAt = stored.CreatedAt
	f.byEmail[stored.Email] = &stored
	f.byUsername[stored.Username] = &stored
	f.byID[stored.ID] = &stored
	return &stored, nil
}

func (f *fakeRepo) FindByEmail(ctx context.Context, email string) (*identity.Account, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	acct, ok := f.byEmail[email]
	if !ok {
		return nil, identity.ErrNotFound
	}
	clone := *acct
	return &clone, nil
}

func (f *fakeRepo) FindByUsername(ctx context.Context, username string) (*identity.Account, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	acct, ok := f.byUsername[username]
	if !ok {
		return nil, identity.ErrNotFound
	}
	clone := *acct
	return &clone, nil
}

func (f *fakeRepo) FindByID(ctx context.Context, id string) (*identity.Account, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	acct, ok := f.byID[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	clone := *acct
	return &clone, nil
}

func (f *fakeRepo) RecordLogin(ctx context.Context, id string, at time.Time) (bool, error) {
	if f.loginErr != nil {
		return false, f.loginErr
	}
	f.recordLoginCalls++
	acct, ok := f.byID[id]
	if !ok {
		return false, nil
	}
	t := at
	acct.LastLoginAt = &t
	return true, nil
}

func newService(repo identity.Repository) *identity.Service {
	return identity.NewService(repo, identity.NewArgon2Hasher(testParams), nil)
}

func TestRegisterThenAuthenticate(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo)

	acct, err := svc.Register(context.Background(), identity.RegisterInput{
		Email:    "A@X.com",
		Password: "secret123",
		Username: "Alice",
		City:     "Lisbon",
	})
	if err != nil {
		t.Fatalf("Register error = %v", err)
	}
	if acct.ID == "" {
		t.Fatalf("expected an assigned id")
	}
	if acct.Email != "a@x.com" {
		t.Fatalf("email not lowercased: %q", acct.Email)
	}
	if acct.Username != "alice" {
		t.Fatalf("username not case-mapped: %q", acct.Username)
	}
	if acct.CredentialDigest == "" || acct.CredentialDigest == "secret123" {
		t.Fatalf("credential digest must be non-empty and never the plaintext")
	}
	if acct.Role != identity.RoleMember || !acct.Active {
		t.Fatalf("expected default role and active account")
	}

	authed, err := svc.Authenticate(context.Background(), "a@x.com", "secret123")
	if err != nil {
		t.Fatalf("Authenticate error = %v", err)
	}
	if authed.ID != acct.ID {
		t.Fatalf("expected account %s, got %s", acct.ID, authed.ID)
	}
	if authed.LastLoginAt == nil {
		t.Fatalf("expected last login timestamp after success")
	}
	if repo.recordLoginCalls != 1 {
		t.Fatalf("expected one RecordLogin call, got %d", repo.recordLoginCalls)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo)

	if _, err := svc.Register(context.Background(), identity.RegisterInput{Email: "a@x.com", Password: "secret123", Username: "alice"}); err != nil {
		t.Fatalf("first Register error = %v", err)
	}
	_, err := svc.Register(context.Background(), identity.RegisterInput{Email: "a@x.com", Password: "other-pass", Username: "bob"})
	if !errors.Is(err, identity.ErrDuplicateEmail) {
		t.Fatalf("err = %v, want ErrDuplicateEmail", err)
	}
	if len(repo.byID) != 1 {
		t.Fatalf("duplicate registration must not create a row")
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo)

	if _, err := svc.Register(context.Background(), identity.RegisterInput{Email: "a@x.com", Password: "secret123", Username: "alice"}); err != nil {
		t.Fatalf("first Register error = %v", err)
	}
	_, err := svc.Register(context.Background(), identity.RegisterInput{Email: "b@x.com", Password: "secret123", Username: "Alice"})
	if !errors.Is(err, identity.ErrDuplicateUsername) {
		t.Fatalf("err = %v, want ErrDuplicateUsername", err)
	}
}

// A conflicting insert that slipped past both pre-checks (the concurrent
// registration race) must still come back as the duplicate error.
func TestRegisterTranslatesStorageConflict(t *testing.T) {
	repo := newFakeRepo()
	repo.createErr = &identity.ConflictError{Constraint: "uq_accounts_email", Field: "email"}
	svc := newService(repo)

	_, err := svc.Register(context.Background(), identity.RegisterInput{Email: "a@x.com", Password: "secret123", Username: "alice"})
	if !errors.Is(err, identity.ErrDuplicateEmail) {
		t.Fatalf("err = %v, want ErrDuplicateEmail", err)
	}

	repo.createErr = &identity.ConflictError{Constraint: "uq_accounts_username", Field: "username"}
	_, err = svc.Register(context.Background(), identity.RegisterInput{Email: "a@x.com", Password: "secret123", Username: "alice"})
	if !errors.Is(err, identity.ErrDuplicateUsername) {
		t.Fatalf("err = %v, want ErrDuplicateUsername", err)
	}
}

func TestAuthenticateFailureIsUniform(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo)

	if _, err := svc.Register(context.Background(), identity.RegisterInput{Email: "a@x.com", Password: "secret123", Username: "alice"}); err != nil {
		t.Fatalf("Register error = %v", err)
	}

	_, wrongPass := svc.Authenticate(context.Background(), "a@x.com", "wrongpass")
	_, unknownEmail := svc.Authenticate(context.Background(), "nobody@x.com", "secret123")

	if !errors.Is(wrongPass, identity.ErrInvalidCredentials) {
		t.Fatalf("wrong password: err = %v, want ErrInvalidCredentials", wrongPass)
	}
	if wrongPass != unknownEmail {
		t.Fatalf("failure values differ: %v vs %v", wrongPass, unknownEmail)
	}
	if repo.recordLoginCalls != 0 {
		t.Fatalf("failed logins must not record authentication")
	}
}

func TestAuthenticateInactiveAccount(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo)

	acct, err := svc.Register(context.Background(), identity.RegisterInput{Email: "a@x.com", Password: "secret123", Username: "alice"})
	if err != nil {
		t.Fatalf("Register error = %v", err)
	}
	repo.byEmail["a@x.com"].Active = false

	_, err = svc.Authenticate(context.Background(), acct.Email, "secret123")
	if !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthenticateStorageFailureMapsToUnavailable(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo)

	if _, err := svc.Register(context.Background(), identity.RegisterInput{Email: "a@x.com", Password: "secret123", Username: "alice"}); err != nil {
		t.Fatalf("Register error = %v", err)
	}

	repo.findErr = identity.ErrStoreUnavailable
	_, err := svc.Authenticate(context.Background(), "a@x.com", "secret123")
	if !errors.Is(err, identity.ErrAuthUnavailable) {
		t.Fatalf("lookup failure: err = %v, want ErrAuthUnavailable", err)
	}

	repo.findErr = nil
	repo.loginErr = identity.ErrStoreUnavailable
	_, err = svc.Authenticate(context.Background(), "a@x.com", "secret123")
	if !errors.Is(err, identity.ErrAuthUnavailable) {
		t.Fatalf("record-login failure: err = %v, want ErrAuthUnavailable", err)
	}
}
