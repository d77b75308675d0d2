package validation

import (
	"strings"
	"time"

	"bloodbank-ledger/internal/domain"

	"github.com/google/uuid"
)

// ParseUUID parses a required id field; the error message names the field.
func ParseUUID(field, value string) (uuid.UUID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return uuid.Nil, domain.InvalidRange(field + " is required")
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, domain.InvalidRange("Invalid UUID format for " + field)
	}
	return id, nil
}

// OptionalBloodGroup returns "" for an empty value.
func OptionalBloodGroup(value string) (domain.BloodGroup, error) {
	if strings.TrimSpace(value) == "" {
		return "", nil
	}
	return domain.ParseBloodGroup(value)
}

// ParseDate accepts RFC 3339 or a plain YYYY-MM-DD. An empty value yields nil.
// endOfDay moves a plain date to its last instant so "to" filters are inclusive.
func ParseDate(field, value string, endOfDay bool) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, domain.InvalidRange("Invalid date for " + field + ", expected YYYY-MM-DD")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// DateRange parses from/to and rejects a reversed range.
func DateRange(from, to string) (*time.Time, *time.Time, error) {
	start, err := ParseDate("start_date", from, false)
	if err != nil {
		return nil, nil, err
	}
	end, err := ParseDate("end_date", to, true)
	if err != nil {
		return nil, nil, err
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, domain.InvalidRange("end_date must not be before start_date")
	}
	return start, end, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsPattern lowercases value and wraps it for a LIKE ... ESCAPE '\'
// substring match, with the wildcard characters in value matched literally.
func ContainsPattern(value string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(value)) + "%"
}
