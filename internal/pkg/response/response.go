package response

import (
	"errors"

	"bloodbank-ledger/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// SuccessBody is the standardized success JSON shape.
type SuccessBody struct {
	Status   string      `json:"status"`
	Message  string      `json:"message"`
	Data     interface{} `json:"data"`
	Metadata interface{} `json:"metadata,omitempty"`
}

// ErrorBody is the standardized error JSON shape.
type ErrorBody struct {
	Status string      `json:"status"`
	Error  ErrorDetail `json:"error"`
}

// ErrorDetail is the nested error object.
type ErrorDetail struct {
	Message    string      `json:"message"`
	StatusCode int         `json:"statusCode"`
	Details    interface{} `json:"details,omitempty"`
}

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Success sends a 200 OK response with the standard success format.
func Success(c *fiber.Ctx, message string, data interface{}, metadata interface{}) error {
	return send(c, fiber.StatusOK, message, data, metadata)
}

// SuccessCreated is Success with 201 Created.
func SuccessCreated(c *fiber.Ctx, message string, data interface{}, metadata interface{}) error {
	return send(c, fiber.StatusCreated, message, data, metadata)
}

func send(c *fiber.Ctx, status int, message string, data, metadata interface{}) error {
	if metadata == nil {
		metadata = fiber.Map{}
	}
	return c.Status(status).JSON(SuccessBody{
		Status:   statusSuccess,
		Message:  message,
		Data:     data,
		Metadata: metadata,
	})
}

// Error sends a response with the standard error format. Details default to {}.
func Error(c *fiber.Ctx, message string, statusCode int, details interface{}) error {
	if details == nil {
		details = fiber.Map{}
	}
	return c.Status(statusCode).JSON(ErrorBody{
		Status: statusError,
		Error:  ErrorDetail{Message: message, StatusCode: statusCode, Details: details},
	})
}

// kinds maps each domain error kind to its status code and details code.
var kinds = []struct {
	kind   error
	status int
	code   string
}{
	{domain.ErrNotFound, fiber.StatusNotFound, "not_found"},
	{domain.ErrInvalidRange, fiber.StatusBadRequest, "invalid_range"},
	{domain.ErrInvalidQuantity, fiber.StatusBadRequest, "invalid_quantity"},
	{domain.ErrInvalidBloodGroup, fiber.StatusBadRequest, "invalid_blood_group"},
	{domain.ErrInvalidCounterparty, fiber.StatusBadRequest, "invalid_counterparty"},
	{domain.ErrSubscriptionRequired, fiber.StatusForbidden, "subscription_required"},
	{domain.ErrInsufficientCapacity, fiber.StatusBadRequest, "insufficient_capacity"},
	{domain.ErrInsufficientStock, fiber.StatusConflict, "insufficient_stock"},
	{domain.ErrAlreadySubscribed, fiber.StatusBadRequest, "already_subscribed"},
	{domain.ErrConflict, fiber.StatusConflict, "conflict"},
}

// FromError renders a service error. Domain errors keep their message;
// anything else is logged and hidden behind a generic 500.
func FromError(c *fiber.Ctx, err error) error {
	for _, k := range kinds {
		if !errors.Is(err, k.kind) {
			continue
		}
		details := fiber.Map{"code": k.code}
		var stock *domain.InsufficientStockError
		var capErr *domain.InsufficientCapacityError
		switch {
		case errors.As(err, &stock):
			details["blood_group"] = stock.BloodGroup
			details["available"] = stock.Available
			details["requested"] = stock.Requested
			details["shortfall"] = stock.Shortfall()
		case errors.As(err, &capErr):
			details["available"] = capErr.Available
			details["requested"] = capErr.Requested
		}
		return Error(c, err.Error(), k.status, details)
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return Error(c, fe.Message, fe.Code, nil)
	}
	traceID, _ := c.Locals("trace_id").(string)
	log.Error().Err(err).Str("trace_id", traceID).Str("method", c.Method()).Str("path", c.Path()).Msg("request failed")
	return Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
}
