package capacity

import (
	capsvc "bloodbank-ledger/internal/application/capacity"
	"bloodbank-ledger/internal/domain"
	"bloodbank-ledger/internal/pkg/response"
	"bloodbank-ledger/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *capsvc.Service
}

// POST /api/v1/capacity/set-capacity
func (h *Handlers) SetCapacity(c *fiber.Ctx) error {
	var body struct {
		DonorID           string   `json:"donor_id"`
		BloodGroup        string   `json:"blood_group"`
		TotalCapacityMl   int      `json:"total_capacity_ml"`
		DonationFrequency string   `json:"donation_frequency"`
		HealthStatus      string   `json:"health_status"`
		Restrictions      []string `json:"restrictions"`
		Notes             *string  `json:"notes"`
		IsActive          *bool    `json:"is_active"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	donorID, err := validation.ParseUUID("donor_id", body.DonorID)
	if err != nil {
		return response.FromError(c, err)
	}
	if body.BloodGroup == "" || body.TotalCapacityMl == 0 {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest,
			fiber.Map{"required": []string{"blood_group", "total_capacity_ml"}})
	}

	view, err := h.Service.SetCapacity(c.UserContext(), donorID, capsvc.Settings{
		BloodGroup:        body.BloodGroup,
		TotalCapacityMl:   body.TotalCapacityMl,
		DonationFrequency: domain.DonationFrequency(body.DonationFrequency),
		HealthStatus:      domain.HealthStatus(body.HealthStatus),
		Restrictions:      body.Restrictions,
		Notes:             body.Notes,
		IsActive:          body.IsActive,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Capacity saved successfully", view, nil)
}

// POST /api/v1/capacity/reset-capacity
func (h *Handlers) ResetCapacity(c *fiber.Ctx) error {
	var body struct {
		DonorID string `json:"donor_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	donorID, err := validation.ParseUUID("donor_id", body.DonorID)
	if err != nil {
		return response.FromError(c, err)
	}
	view, err := h.Service.Reset(c.UserContext(), donorID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Capacity reset successfully", view, nil)
}

// GET /api/v1/capacity/my-capacity?donor_id=
func (h *Handlers) MyCapacity(c *fiber.Ctx) error {
	donorID, err := validation.ParseUUID("donor_id", c.Query("donor_id"))
	if err != nil {
		return response.FromError(c, err)
	}
	view, err := h.Service.Get(c.UserContext(), donorID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Capacity fetched successfully", view, nil)
}

// GET /api/v1/capacity/donors-with-capacity?blood_group=&min_capacity=&only_eligible=
func (h *Handlers) DonorsWithCapacity(c *fiber.Ctx) error {
	group, err := validation.OptionalBloodGroup(c.Query("blood_group"))
	if err != nil {
		return response.FromError(c, err)
	}
	minCapacity := c.QueryInt("min_capacity", 0)
	if minCapacity < 0 {
		return response.Error(c, "min_capacity must not be negative", fiber.StatusBadRequest, nil)
	}
	donors, err := h.Service.ListDonors(c.UserContext(), capsvc.DonorFilter{
		BloodGroup:   group,
		MinCapacity:  minCapacity,
		OnlyEligible: c.QueryBool("only_eligible", false),
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Donors fetched successfully", donors, fiber.Map{"count": len(donors)})
}

// GET /api/v1/capacity/capacity-stats?donor_id=
func (h *Handlers) CapacityStats(c *fiber.Ctx) error {
	donorID, err := validation.ParseUUID("donor_id", c.Query("donor_id"))
	if err != nil {
		return response.FromError(c, err)
	}
	stats, err := h.Service.Stats(c.UserContext(), donorID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Capacity stats fetched successfully", stats, nil)
}
