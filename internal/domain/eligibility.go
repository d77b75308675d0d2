package domain

import (
	"math"
	"time"
)

// AddMonthsClamped adds calendar months to t. When the day of month does not
// exist in the target month it is clamped to that month's last day, so
// Jan 31 + 1 month is Feb 28 (Feb 29 in leap years) rather than rolling into March.
func AddMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	target := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysInMonth(target.Year(), target.Month()); d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// NextEligibleAt is the end of the cooldown that starts at lastDonation.
func NextEligibleAt(lastDonation time.Time, f DonationFrequency) time.Time {
	return AddMonthsClamped(lastDonation, f.Months())
}

func DonatedMl(c DonorCapacity) int {
	return c.TotalCapacityMl - c.AvailableCapacityMl
}

func UtilizationPercentage(c DonorCapacity) int {
	if c.TotalCapacityMl == 0 {
		return 0
	}
	return int(math.Round(float64(DonatedMl(c)) / float64(c.TotalCapacityMl) * 100))
}

// IsEligible is evaluated lazily: a cooldown ends by the clock passing
// NextEligibleAt, there is no stored transition.
func IsEligible(c DonorCapacity, now time.Time) bool {
	if !c.IsActive || c.AvailableCapacityMl <= 0 {
		return false
	}
	return c.NextEligibleAt == nil || !now.Before(*c.NextEligibleAt)
}

// DaysUntilEligible rounds the remaining cooldown up to whole days; never negative.
func DaysUntilEligible(c DonorCapacity, now time.Time) int {
	if c.NextEligibleAt == nil {
		return 0
	}
	remaining := c.NextEligibleAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}
