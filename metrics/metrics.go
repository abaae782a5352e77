package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const relayerNamespace = "relayer"

// MetricsGenerator is what the transfer engine increments; keeping it an
// interface lets tests pass a no-op.
type MetricsGenerator interface {
	IncSubmission(mode, outcome string)
	IncSponsorship(outcome string)
	IncWalletDeployed()
	IncAddressDerivationRetry()
}

// RelayerMetrics instruments the transfer pipeline.
type RelayerMetrics struct {
	numSubmissions     *prometheus.CounterVec
	numSponsorships    *prometheus.CounterVec
	numWalletsDeployed prometheus.Counter
	numSaltRetries     prometheus.Counter
}

func NewRelayerMetrics(reg prometheus.Registerer) *RelayerMetrics {
	return &RelayerMetrics{
		numSubmissions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: relayerNamespace,
				Name:      "num_submissions_total",
				Help:      "User operations submitted, labeled by submission mode and outcome",
			}, []string{"mode", "outcome"}),

		numSponsorships: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: relayerNamespace,
				Name:      "num_sponsorships_total",
				Help:      "Paymaster sponsorship attempts, labeled by outcome",
			}, []string{"outcome"}),

		numWalletsDeployed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: relayerNamespace,
				Name:      "num_wallets_deployed_total",
				Help:      "Smart wallets deployed through initCode on first submission",
			}),

		numSaltRetries: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: relayerNamespace,
				Name:      "num_address_derivation_retries_total",
				Help:      "Counterfactual address derivations that hit an occupied address and retried with a fresh salt",
			}),
	}
}

func (m *RelayerMetrics) IncSubmission(mode, outcome string) {
	m.numSubmissions.WithLabelValues(mode, outcome).Inc()
}

func (m *RelayerMetrics) IncSponsorship(outcome string) {
	m.numSponsorships.WithLabelValues(outcome).Inc()
}

func (m *RelayerMetrics) IncWalletDeployed() {
	m.numWalletsDeployed.Inc()
}

func (m *RelayerMetrics) IncAddressDerivationRetry() {
	m.numSaltRetries.Inc()
}

// NoopMetrics satisfies MetricsGenerator without a registry.
type NoopMetrics struct{}

func (NoopMetrics) IncSubmission(string, string) {}
func (NoopMetrics) IncSponsorship(string)        {}
func (NoopMetrics) IncWalletDeployed()           {}
func (NoopMetrics) IncAddressDerivationRetry()   {}
