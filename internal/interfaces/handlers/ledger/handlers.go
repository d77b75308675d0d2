package ledger

import (
	donationsvc "bloodbank-ledger/internal/application/donations"
	ledgersvc "bloodbank-ledger/internal/application/ledger"
	"bloodbank-ledger/internal/domain"
	"bloodbank-ledger/internal/pkg/response"
	"bloodbank-ledger/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service  *ledgersvc.Service
	Workflow *donationsvc.Service
}

// POST /api/v1/inventory/dispense
func (h *Handlers) Dispense(c *fiber.Ctx) error {
	var body struct {
		HospitalID     string `json:"hospital_id"`
		OrganisationID string `json:"organisation_id"`
		BloodGroup     string `json:"blood_group"`
		AmountMl       int    `json:"amount_ml"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	hospitalID, err := validation.ParseUUID("hospital_id", body.HospitalID)
	if err != nil {
		return response.FromError(c, err)
	}
	orgID, err := validation.ParseUUID("organisation_id", body.OrganisationID)
	if err != nil {
		return response.FromError(c, err)
	}
	entry, err := h.Workflow.Dispense(c.UserContext(), hospitalID, orgID, body.BloodGroup, body.AmountMl)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Blood dispensed successfully", entry, nil)
}

// GET /api/v1/inventory/balance?organisation_id=&blood_group=
func (h *Handlers) Balance(c *fiber.Ctx) error {
	orgID, err := validation.ParseUUID("organisation_id", c.Query("organisation_id"))
	if err != nil {
		return response.FromError(c, err)
	}
	bal, err := h.Service.Balance(c.UserContext(), orgID, c.Query("blood_group"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Balance fetched successfully", bal, nil)
}

// GET /api/v1/inventory/balance-summary?organisation_id=
func (h *Handlers) BalanceSummary(c *fiber.Ctx) error {
	orgID, err := validation.ParseUUID("organisation_id", c.Query("organisation_id"))
	if err != nil {
		return response.FromError(c, err)
	}
	summary, err := h.Service.Summary(c.UserContext(), orgID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Balance summary fetched successfully", summary, nil)
}

// GET /api/v1/inventory/entries
func (h *Handlers) Entries(c *fiber.Ctx) error {
	var f ledgersvc.EntryFilter
	if raw := c.Query("organisation_id"); raw != "" {
		orgID, err := validation.ParseUUID("organisation_id", raw)
		if err != nil {
			return response.FromError(c, err)
		}
		f.OrganisationID = &orgID
	}
	group, err := validation.OptionalBloodGroup(c.Query("blood_group"))
	if err != nil {
		return response.FromError(c, err)
	}
	f.BloodGroup = group
	if raw := c.Query("direction"); raw != "" {
		dir, ok := domain.ParseDirection(raw)
		if !ok {
			return response.Error(c, "direction must be in or out", fiber.StatusBadRequest, nil)
		}
		f.Direction = dir
	}
	f.Email = c.Query("email")
	if f.From, f.To, err = validation.DateRange(c.Query("start_date"), c.Query("end_date")); err != nil {
		return response.FromError(c, err)
	}
	entries, err := h.Service.ListEntries(c.UserContext(), f)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Entries fetched successfully", entries, fiber.Map{"count": len(entries)})
}

// GET /api/v1/inventory/recent?organisation_id=
func (h *Handlers) Recent(c *fiber.Ctx) error {
	orgID, err := validation.ParseUUID("organisation_id", c.Query("organisation_id"))
	if err != nil {
		return response.FromError(c, err)
	}
	entries, err := h.Service.Recent(c.UserContext(), orgID, c.QueryInt("limit", 0))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Recent entries fetched successfully", entries, nil)
}

// GET /api/v1/inventory/donors?organisation_id=
func (h *Handlers) Donors(c *fiber.Ctx) error {
	orgID, err := validation.ParseUUID("organisation_id", c.Query("organisation_id"))
	if err != nil {
		return response.FromError(c, err)
	}
	parties, err := h.Service.DonorsOf(c.UserContext(), orgID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Donors fetched successfully", parties, nil)
}

// GET /api/v1/inventory/hospitals?organisation_id=
func (h *Handlers) Hospitals(c *fiber.Ctx) error {
	orgID, err := validation.ParseUUID("organisation_id", c.Query("organisation_id"))
	if err != nil {
		return response.FromError(c, err)
	}
	parties, err := h.Service.HospitalsOf(c.UserContext(), orgID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Hospitals fetched successfully", parties, nil)
}

// GET /api/v1/inventory/organisations?donor_id=
func (h *Handlers) DonorOrganisations(c *fiber.Ctx) error {
	donorID, err := validation.ParseUUID("donor_id", c.Query("donor_id"))
	if err != nil {
		return response.FromError(c, err)
	}
	parties, err := h.Service.OrganisationsOfDonor(c.UserContext(), donorID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Organisations fetched successfully", parties, nil)
}

// GET /api/v1/inventory/hospital-organisations?hospital_id=
func (h *Handlers) HospitalOrganisations(c *fiber.Ctx) error {
	hospitalID, err := validation.ParseUUID("hospital_id", c.Query("hospital_id"))
	if err != nil {
		return response.FromError(c, err)
	}
	parties, err := h.Service.OrganisationsOfHospital(c.UserContext(), hospitalID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Organisations fetched successfully", parties, nil)
}
