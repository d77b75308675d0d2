package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the ledger write paths. A nil *Metrics is a no-op so
// services and tests can run without a registry.
type Metrics struct {
	LedgerEntries       *prometheus.CounterVec
	LedgerVolumeMl      *prometheus.CounterVec
	StockRejections     *prometheus.CounterVec
	CapacityRejections  prometheus.Counter
	DonationOutcomes    *prometheus.CounterVec
	SubscriptionChanges *prometheus.CounterVec
	LockConflicts       *prometheus.CounterVec
}

// New registers every collector on reg. Pass a fresh prometheus.NewRegistry()
// per app so tests can build several apps in one process.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LedgerEntries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodbank_ledger_entries_total",
			Help: "Ledger entries appended by direction and blood group",
		}, []string{"direction", "blood_group"}),

		LedgerVolumeMl: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodbank_ledger_volume_ml_total",
			Help: "Millilitres moved through the ledger by direction and blood group",
		}, []string{"direction", "blood_group"}),

		StockRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodbank_stock_rejections_total",
			Help: "Outgoing entries rejected for insufficient stock",
		}, []string{"blood_group"}),

		CapacityRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "bloodbank_capacity_rejections_total",
			Help: "Donations rejected for insufficient donor capacity",
		}),

		DonationOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodbank_donation_outcomes_total",
			Help: "Donation workflow results by outcome",
		}, []string{"outcome"}), // outcome: "completed", "replayed", "rejected", "failed"

		SubscriptionChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodbank_subscription_changes_total",
			Help: "Subscription edges created, reactivated or deactivated",
		}, []string{"action"}),

		LockConflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodbank_lock_conflicts_total",
			Help: "Writes that gave up waiting for a lock",
		}, []string{"scope"}),
	}
}

func (m *Metrics) ObserveEntry(direction, bloodGroup string, quantityMl int) {
	if m != nil {
		m.LedgerEntries.WithLabelValues(direction, bloodGroup).Inc()
		m.LedgerVolumeMl.WithLabelValues(direction, bloodGroup).Add(float64(quantityMl))
	}
}

func (m *Metrics) IncStockRejection(bloodGroup string) {
	if m != nil {
		m.StockRejections.WithLabelValues(bloodGroup).Inc()
	}
}

func (m *Metrics) IncCapacityRejection() {
	if m != nil {
		m.CapacityRejections.Inc()
	}
}

func (m *Metrics) IncDonation(outcome string) {
	if m != nil {
		m.DonationOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncSubscription(action string) {
	if m != nil {
		m.SubscriptionChanges.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) IncLockConflict(scope string) {
	if m != nil {
		m.LockConflicts.WithLabelValues(scope).Inc()
	}
}
