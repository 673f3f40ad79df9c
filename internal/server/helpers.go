package server

import (
	"errors"
	"strings"

	"animegram/internal/models"
	"animegram/internal/service"
	"animegram/internal/store"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

const (
	maxPaginationLimit = 100
	maxPaginationPage  = 1_000_000
)

// respondError answers with the status the error maps to.
func respondError(c *fiber.Ctx, err error) error {
	return models.RespondWithError(c, models.StatusFor(err), err)
}

// respondFetchError answers a failed orchestrated fetch. A superseded fetch
// is a conflict; a source failure carries the text stored on the slice.
func respondFetchError(c *fiber.Ctx, what string, err error) error {
	if errors.Is(err, store.ErrSuperseded) {
		return models.RespondWithError(c, fiber.StatusConflict,
			models.NewConflictError("Superseded by a newer request"))
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusBadGateway).JSON(models.ErrorResponse{
		Error: store.FailureMessage(what, err),
	})
}

// viewerStore returns the session store AuthRequired attached to the request.
// On failure it writes a 401 response and returns errResponseWritten.
func viewerStore(c *fiber.Ctx) (*store.Store, error) {
	st, ok := c.Locals("store").(*store.Store)
	if !ok || st == nil {
		_ = models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Authorization required"))
		return nil, errResponseWritten
	}
	return st, nil
}

func claimsOf(c *fiber.Ctx) (*service.Claims, bool) {
	claims, ok := c.Locals("claims").(*service.Claims)
	return claims, ok && claims != nil
}

// parseFetchParams reads page and limit, clamping them to maxPaginationPage
// and maxPaginationLimit.
// Missing or non-positive values fall back to the fetch defaults.
func parseFetchParams(c *fiber.Ctx, defaultLimit int) store.FetchParams {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}
	page := c.QueryInt("page", store.DefaultPage)
	if page <= 0 {
		page = store.DefaultPage
	}
	if page > maxPaginationPage {
		page = maxPaginationPage
	}
	return store.FetchParams{Page: page, Limit: limit}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(c *fiber.Ctx) string {
	parts := strings.Fields(c.Get(fiber.HeaderAuthorization))
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

// parseBody decodes the JSON body into dest. On failure it writes a 400
// response and returns errResponseWritten.
func parseBody(c *fiber.Ctx, dest interface{}) error {
	if err := c.BodyParser(dest); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
		return errResponseWritten
	}
	return nil
}
