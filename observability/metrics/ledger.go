package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks reward-claim and marketplace activity served by girod.
type LedgerMetrics struct {
	rewardsClaimed   *prometheus.CounterVec
	claimRejects     *prometheus.CounterVec
	rewardPool       prometheus.Gauge
	productsByStatus *prometheus.GaugeVec
	rpcRequests      *prometheus.CounterVec
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger returns the process-wide ledger metrics collector, registering it on
// first use.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			rewardsClaimed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "giro_rewards_claimed_total",
				Help: "Count of successful reward claims by kind.",
			}, []string{"kind"}),
			claimRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "giro_reward_claim_rejects_total",
				Help: "Count of rejected reward claims by reason.",
			}, []string{"reason"}),
			rewardPool: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "giro_reward_pool_balance_wei",
				Help: "Current owner-held reward pool balance in wei.",
			}),
			productsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "giro_products",
				Help: "Marketplace products by lifecycle status.",
			}, []string{"status"}),
			rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "giro_rpc_requests_total",
				Help: "JSON-RPC requests served by method and outcome.",
			}, []string{"method", "outcome"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.rewardsClaimed,
			ledgerRegistry.claimRejects,
			ledgerRegistry.rewardPool,
			ledgerRegistry.productsByStatus,
			ledgerRegistry.rpcRequests,
		)
	})
	return ledgerRegistry
}

// RewardClaimed records one successful claim for the kind.
func (m *LedgerMetrics) RewardClaimed(kind string) {
	m.rewardsClaimed.WithLabelValues(kind).Inc()
}

// ClaimRejected records one rejected claim with the normalised reason.
func (m *LedgerMetrics) ClaimRejected(reason string) {
	m.claimRejects.WithLabelValues(reason).Inc()
}

// SetRewardPool publishes the pool balance after a claim or mint.
func (m *LedgerMetrics) SetRewardPool(wei float64) {
	m.rewardPool.Set(wei)
}

// SetProducts publishes the current product count for a status.
func (m *LedgerMetrics) SetProducts(status string, count float64) {
	m.productsByStatus.WithLabelValues(status).Set(count)
}

// RPCRequest records one served JSON-RPC call.
func (m *LedgerMetrics) RPCRequest(method, outcome string) {
	m.rpcRequests.WithLabelValues(method, outcome).Inc()
}
