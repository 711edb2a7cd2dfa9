package profile

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/lumora-social/lumora/internal/identity"
	"github.com/lumora-social/lumora/internal/platform/httpx"
	"github.com/lumora-social/lumora/internal/token"
)

// AccountSource resolves accounts by identifier.
type AccountSource interface {
	GetByID(ctx context.Context, id string) (*identity.Account, error)
}

// Handler wires the /users HTTP endpoints.
type Handler struct {
	logger   *slog.Logger
	accounts AccountSource
	cache    *Cache
	issuer   *token.Issuer
	group    singleflight.Group
}

// NewHandler constructs a Handler instance. cache may be nil.
func NewHandler(logger *slog.Logger, accounts AccountSource, cache *Cache, issuer *token.Issuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, accounts: accounts, cache: cache, issuer: issuer}
}

// MountRoutes registers profile routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(token.Middleware(h.issuer)).Get("/profile", h.handleOwnProfile)
	r.Get("/{id}", h.handleGetByID)
}

func (h *Handler) handleOwnProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := token.ClaimsFromContext(r.Context())
	if !ok {
		httpx.Unauthorized(w)
		return
	}
	acct, err := h.accounts.GetByID(r.Context(), claims.UserID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, identity.NewAccountView(acct))
}

func (h *Handler) handleGetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var view identity.AccountView
	// Concurrent misses for the same id collapse into one database read.
	result, err, _ := h.group.Do("profile:"+id, func() (any, error) {
		var v identity.AccountView
		err := h.cache.FetchJSON(r.Context(), "profile:"+id, &v, func(ctx context.Context) (any, error) {
			acct, err := h.accounts.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			return identity.NewAccountView(acct), nil
		})
		return v, err
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	view = result.(identity.AccountView)
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrNotFound):
		httpx.NotFound(w)
	case errors.Is(err, identity.ErrStoreUnavailable):
		httpx.Problem(w, http.StatusServiceUnavailable, "store_unavailable", "Store Unavailable", "")
	default:
		h.logger.Error("profile lookup failed", slog.Any("error", err))
		httpx.Internal(w)
	}
}
