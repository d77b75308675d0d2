package domain

import "strings"

// BloodGroup is one of the eight ABO/Rh groups the ledger tracks.
type BloodGroup string

const (
	APositive  BloodGroup = "A+"
	ANegative  BloodGroup = "A-"
	BPositive  BloodGroup = "B+"
	BNegative  BloodGroup = "B-"
	ABPositive BloodGroup = "AB+"
	ABNegative BloodGroup = "AB-"
	OPositive  BloodGroup = "O+"
	ONegative  BloodGroup = "O-"
)

// BloodGroups lists every supported group in display order.
var BloodGroups = []BloodGroup{OPositive, ONegative, ABPositive, ABNegative, APositive, ANegative, BPositive, BNegative}

// ParseBloodGroup normalizes s ("o+", " AB- ") and rejects anything outside BloodGroups.
func ParseBloodGroup(s string) (BloodGroup, error) {
	g := BloodGroup(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range BloodGroups {
		if g == known {
			return g, nil
		}
	}
	return "", NewError(ErrInvalidBloodGroup, "Invalid blood group: "+s)
}

// Role tags a party in the identity directory.
type Role string

const (
	RoleDonor        Role = "donor"
	RoleHospital     Role = "hospital"
	RoleOrganisation Role = "organisation"
	RoleAdmin        Role = "admin"
)

// Direction of a ledger entry relative to the organisation's stock.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

func ParseDirection(s string) (Direction, bool) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case DirectionIn:
		return DirectionIn, true
	case DirectionOut:
		return DirectionOut, true
	}
	return "", false
}

type RelationshipStatus string

const (
	StatusActive   RelationshipStatus = "active"
	StatusInactive RelationshipStatus = "inactive"
	StatusPending  RelationshipStatus = "pending"
)

// DonationFrequency sets the cooldown between donations.
type DonationFrequency string

const (
	FrequencyMonthly   DonationFrequency = "monthly"
	FrequencyQuarterly DonationFrequency = "quarterly"
	FrequencyBiannual  DonationFrequency = "biannual"
	FrequencyAnnual    DonationFrequency = "annual"
)

// Months returns the calendar-month offset for the frequency. Unknown values fall back to quarterly.
func (f DonationFrequency) Months() int {
	switch f {
	case FrequencyMonthly:
		return 1
	case FrequencyBiannual:
		return 6
	case FrequencyAnnual:
		return 12
	default:
		return 3
	}
}

func (f DonationFrequency) Valid() bool {
	switch f {
	case FrequencyMonthly, FrequencyQuarterly, FrequencyBiannual, FrequencyAnnual:
		return true
	}
	return false
}

type HealthStatus string

const (
	HealthExcellent  HealthStatus = "excellent"
	HealthGood       HealthStatus = "good"
	HealthFair       HealthStatus = "fair"
	HealthRestricted HealthStatus = "restricted"
)

func (h HealthStatus) Valid() bool {
	switch h {
	case HealthExcellent, HealthGood, HealthFair, HealthRestricted:
		return true
	}
	return false
}

type DonationType string

const (
	DonationWholeBlood DonationType = "whole_blood"
	DonationPlasma     DonationType = "plasma"
	DonationPlatelets  DonationType = "platelets"
	DonationRedCells   DonationType = "red_cells"
)

func (t DonationType) Valid() bool {
	switch t {
	case DonationWholeBlood, DonationPlasma, DonationPlatelets, DonationRedCells:
		return true
	}
	return false
}

type DonationStatus string

const (
	DonationCompleted DonationStatus = "completed"
	DonationPending   DonationStatus = "pending"
	DonationCancelled DonationStatus = "cancelled"
)
