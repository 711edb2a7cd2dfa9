package identity

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/lumora-social/lumora/internal/platform/httpx"
	"github.com/lumora-social/lumora/internal/token"
	"github.com/lumora-social/lumora/jobs"
)

// Enqueuer submits background tasks. *asynq.Client satisfies it.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Handler wires the /auth HTTP endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	tokens    *token.Issuer
	enqueuer  Enqueuer
	validator *validator.Validate
}

// NewHandler constructs a Handler instance. enqueuer may be nil; the
// welcome email is then skipped.
func NewHandler(logger *slog.Logger, service *Service, tokens *token.Issuer, enqueuer Enqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		tokens:    tokens,
		enqueuer:  enqueuer,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Username string `json:"username" validate:"required,min=3,max=30"`
	FullName string `json:"fullName" validate:"max=120"`
	City     string `json:"city" validate:"max=120"`
	Region   string `json:"region" validate:"max=120"`
	Country  string `json:"country" validate:"max=120"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AccountView is the outward JSON shape of an account. The credential
// digest never appears here.
type AccountView struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	FullName    string     `json:"fullName,omitempty"`
	City        string     `json:"city,omitempty"`
	Region      string     `json:"region,omitempty"`
	Country     string     `json:"country,omitempty"`
	Role        string     `json:"role"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

// NewAccountView maps an account onto its outward shape.
func NewAccountView(acct *Account) AccountView {
	return AccountView{
		ID:          acct.ID,
		Email:       acct.Email,
		Username:    acct.Username,
		FullName:    acct.DisplayName,
		City:        acct.City,
		Region:      acct.Region,
		Country:     acct.Country,
		Role:        acct.Role,
		Active:      acct.Active,
		CreatedAt:   acct.CreatedAt,
		LastLoginAt: acct.LastLoginAt,
	}
}

type sessionResponse struct {
	Token   string      `json:"token"`
	Account AccountView `json:"account"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "validation_failed", "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "validation_failed", "Validation Failed", validationDetail(err))
		return
	}

	acct, err := h.service.Register(r.Context(), RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		Username:    req.Username,
		DisplayName: req.FullName,
		City:        req.City,
		Region:      req.Region,
		Country:     req.Country,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	signed, err := h.tokens.Issue(acct.ID, acct.Username)
	if err != nil {
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.Internal(w)
		return
	}

	h.enqueueWelcome(acct.Email, acct.Username)

	httpx.JSON(w, http.StatusCreated, sessionResponse{Token: signed, Account: NewAccountView(acct)})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "validation_failed", "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		// A malformed login still reads as a credentials failure so the
		// response shape stays uniform.
		httpx.Problem(w, http.StatusUnauthorized, "invalid_credentials", "Invalid Credentials", "")
		return
	}

	acct, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(w, err)
		return
	}

	signed, err := h.tokens.Issue(acct.ID, acct.Username)
	if err != nil {
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.Internal(w)
		return
	}

	httpx.JSON(w, http.StatusOK, sessionResponse{Token: signed, Account: NewAccountView(acct)})
}

// enqueueWelcome submits the welcome email best-effort; a queue failure
// never fails the registration.
func (h *Handler) enqueueWelcome(email, username string) {
	if h.enqueuer == nil {
		return
	}
	task, err := jobs.NewWelcomeEmailTask(jobs.WelcomeEmailPayload{Email: email, Username: username})
	if err != nil {
		h.logger.Warn("build welcome email task", slog.Any("error", err))
		return
	}
	if _, err := h.enqueuer.Enqueue(task); err != nil {
		h.logger.Warn("enqueue welcome email", slog.Any("error", err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDuplicateEmail):
		httpx.Problem(w, http.StatusBadRequest, "duplicate_email", "Duplicate Email", "email is already registered")
	case errors.Is(err, ErrDuplicateUsername):
		httpx.Problem(w, http.StatusBadRequest, "duplicate_username", "Duplicate Username", "username is already taken")
	case errors.Is(err, ErrEncoding):
		httpx.Problem(w, http.StatusBadRequest, "validation_failed", "Validation Failed", "input is not representable")
	case errors.Is(err, ErrInvalidCredentials):
		httpx.Problem(w, http.StatusUnauthorized, "invalid_credentials", "Invalid Credentials", "")
	case errors.Is(err, ErrAuthUnavailable):
		httpx.Problem(w, http.StatusServiceUnavailable, "authentication_unavailable", "Authentication Unavailable", "")
	case errors.Is(err, ErrStoreUnavailable):
		httpx.Problem(w, http.StatusServiceUnavailable, "store_unavailable", "Store Unavailable", "")
	default:
		h.logger.Error("auth request failed", slog.Any("error", err))
		httpx.Internal(w)
	}
}

func validationDetail(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid input"
	}
	detail := ""
	for i, fe := range fieldErrs {
		if i > 0 {
			detail += "; "
		}
		detail += fe.Field() + " failed " + fe.Tag()
	}
	return detail
}
