package donations

import (
	donationsvc "bloodbank-ledger/internal/application/donations"
	"bloodbank-ledger/internal/domain"
	"bloodbank-ledger/internal/pkg/response"
	"bloodbank-ledger/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
)

// IdempotencyHeader lets clients retry a donation without applying it twice.
const IdempotencyHeader = "Idempotency-Key"

type Handlers struct {
	Service *donationsvc.Service
}

// POST /api/v1/donations/donate
func (h *Handlers) Donate(c *fiber.Ctx) error {
	var body struct {
		DonorID        string            `json:"donor_id"`
		OrganisationID string            `json:"organisation_id"`
		BloodGroup     string            `json:"blood_group"`
		AmountMl       int               `json:"amount_ml"`
		DonationType   string            `json:"donation_type"`
		Notes          string            `json:"notes"`
		Screening      *domain.Screening `json:"screening"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	if body.BloodGroup == "" || body.AmountMl == 0 {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest,
			fiber.Map{"required": []string{"donor_id", "organisation_id", "blood_group", "amount_ml"}})
	}
	donorID, err := validation.ParseUUID("donor_id", body.DonorID)
	if err != nil {
		return response.FromError(c, err)
	}
	orgID, err := validation.ParseUUID("organisation_id", body.OrganisationID)
	if err != nil {
		return response.FromError(c, err)
	}

	res, err := h.Service.Donate(c.UserContext(), donationsvc.DonateRequest{
		DonorID:        donorID,
		OrganisationID: orgID,
		BloodGroup:     body.BloodGroup,
		AmountMl:       body.AmountMl,
		DonationType:   domain.DonationType(body.DonationType),
		Notes:          body.Notes,
		Screening:      body.Screening,
		IdempotencyKey: c.Get(IdempotencyHeader),
	})
	if err != nil {
		return response.FromError(c, err)
	}
	if res.Replayed {
		return response.Success(c, "Donation already recorded", res, nil)
	}
	return response.SuccessCreated(c, "Donation recorded successfully", res, nil)
}

// GET /api/v1/donations/organisation-donations
func (h *Handlers) OrganisationDonations(c *fiber.Ctx) error {
	orgID, err := validation.ParseUUID("organisation_id", c.Query("organisation_id"))
	if err != nil {
		return response.FromError(c, err)
	}
	group, err := validation.OptionalBloodGroup(c.Query("blood_group"))
	if err != nil {
		return response.FromError(c, err)
	}
	f := donationsvc.Filter{
		OrganisationID: orgID,
		BloodGroup:     group,
		DonorEmail:     c.Query("donor_email"),
	}
	if raw := c.Query("donation_type"); raw != "" {
		f.DonationType = domain.DonationType(raw)
		if !f.DonationType.Valid() {
			return response.Error(c, "donation_type must be whole_blood, plasma, platelets or red_cells", fiber.StatusBadRequest, nil)
		}
	}
	if f.From, f.To, err = validation.DateRange(c.Query("start_date"), c.Query("end_date")); err != nil {
		return response.FromError(c, err)
	}
	views, err := h.Service.ListForOrganisation(c.UserContext(), f)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Donations fetched successfully", views, fiber.Map{"count": len(views)})
}

// GET /api/v1/donations/donor-donations?donor_id=
func (h *Handlers) DonorDonations(c *fiber.Ctx) error {
	donorID, err := validation.ParseUUID("donor_id", c.Query("donor_id"))
	if err != nil {
		return response.FromError(c, err)
	}
	views, err := h.Service.ListForDonor(c.UserContext(), donorID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Donations fetched successfully", views, fiber.Map{"count": len(views)})
}
