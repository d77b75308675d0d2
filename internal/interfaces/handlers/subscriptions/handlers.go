package subscriptions

import (
	subsvc "bloodbank-ledger/internal/application/subscriptions"
	"bloodbank-ledger/internal/domain"
	"bloodbank-ledger/internal/pkg/response"
	"bloodbank-ledger/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *subsvc.Service
}

type pairBody struct {
	SubscriberID   string `json:"subscriber_id"`
	OrganisationID string `json:"organisation_id"`
	HospitalID     string `json:"hospital_id"`
}

// parsePair reads the two ids named by first and second from the body.
func parsePair(c *fiber.Ctx, first, second string) (uuid.UUID, uuid.UUID, error) {
	var body pairBody
	if err := c.BodyParser(&body); err != nil {
		return uuid.Nil, uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	fields := map[string]string{
		"subscriber_id":   body.SubscriberID,
		"organisation_id": body.OrganisationID,
		"hospital_id":     body.HospitalID,
	}
	a, err := validation.ParseUUID(first, fields[first])
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	b, err := validation.ParseUUID(second, fields[second])
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return a, b, nil
}

// POST /api/v1/subscriptions/subscribe
func (h *Handlers) Subscribe(c *fiber.Ctx) error {
	subscriberID, orgID, err := parsePair(c, "subscriber_id", "organisation_id")
	if err != nil {
		return response.FromError(c, err)
	}
	edge, err := h.Service.Subscribe(c.UserContext(), subscriberID, orgID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Subscribed successfully", edge, nil)
}

// POST /api/v1/subscriptions/unsubscribe
func (h *Handlers) Unsubscribe(c *fiber.Ctx) error {
	subscriberID, orgID, err := parsePair(c, "subscriber_id", "organisation_id")
	if err != nil {
		return response.FromError(c, err)
	}
	if err := h.Service.Unsubscribe(c.UserContext(), subscriberID, orgID); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Unsubscribed successfully", nil, nil)
}

// POST /api/v1/subscriptions/subscribe-hospital
func (h *Handlers) SubscribeHospital(c *fiber.Ctx) error {
	orgID, hospitalID, err := parsePair(c, "organisation_id", "hospital_id")
	if err != nil {
		return response.FromError(c, err)
	}
	edge, err := h.Service.SubscribeToHospital(c.UserContext(), orgID, hospitalID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Subscribed to hospital successfully", edge, nil)
}

// POST /api/v1/subscriptions/unsubscribe-hospital
func (h *Handlers) UnsubscribeHospital(c *fiber.Ctx) error {
	orgID, hospitalID, err := parsePair(c, "organisation_id", "hospital_id")
	if err != nil {
		return response.FromError(c, err)
	}
	if err := h.Service.UnsubscribeFromHospital(c.UserContext(), orgID, hospitalID); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Unsubscribed from hospital successfully", nil, nil)
}

// GET /api/v1/subscriptions/my-subscriptions?subscriber_id=
func (h *Handlers) MySubscriptions(c *fiber.Ctx) error {
	subscriberID, err := validation.ParseUUID("subscriber_id", c.Query("subscriber_id"))
	if err != nil {
		return response.FromError(c, err)
	}
	views, err := h.Service.ListActiveFor(c.UserContext(), subscriberID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Subscriptions fetched successfully", views, fiber.Map{"count": len(views)})
}

// GET /api/v1/subscriptions/my-subscribers?organisation_id=&role=
func (h *Handlers) MySubscribers(c *fiber.Ctx) error {
	objectID, err := validation.ParseUUID("organisation_id", c.Query("organisation_id"))
	if err != nil {
		return response.FromError(c, err)
	}
	role := domain.Role(c.Query("role"))
	switch role {
	case "", domain.RoleDonor, domain.RoleHospital, domain.RoleOrganisation:
	default:
		return response.Error(c, "role must be donor, hospital or organisation", fiber.StatusBadRequest, nil)
	}
	views, err := h.Service.ListSubscribersOf(c.UserContext(), objectID, role)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Subscribers fetched successfully", views, fiber.Map{"count": len(views)})
}

// GET /api/v1/subscriptions/available-organisations?subscriber_id=
func (h *Handlers) AvailableOrganisations(c *fiber.Ctx) error {
	subscriberID, err := validation.ParseUUID("subscriber_id", c.Query("subscriber_id"))
	if err != nil {
		return response.FromError(c, err)
	}
	orgs, err := h.Service.AvailableOrganisations(c.UserContext(), subscriberID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Available organisations fetched successfully", orgs, nil)
}

// GET /api/v1/subscriptions/check-status?subscriber_id=&organisation_id=
func (h *Handlers) CheckStatus(c *fiber.Ctx) error {
	subscriberID, err := validation.ParseUUID("subscriber_id", c.Query("subscriber_id"))
	if err != nil {
		return response.FromError(c, err)
	}
	orgID, err := validation.ParseUUID("organisation_id", c.Query("organisation_id"))
	if err != nil {
		return response.FromError(c, err)
	}
	status, err := h.Service.Status(c.UserContext(), subscriberID, orgID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Subscription status fetched successfully", status, nil)
}
