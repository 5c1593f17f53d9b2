// Package metrics exposes farm activity to Prometheus.
package metrics

import (
	"HodlFarm/internal/amount"
	"HodlFarm/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	operations     *prometheus.CounterVec
	yieldPaid      prometheus.Counter
	rewardPool     prometheus.Gauge
	farmCollateral prometheus.Gauge
	totalStaked    prometheus.Gauge
	totalPending   prometheus.Gauge
	stakers        prometheus.Gauge
}

// New registers the farm collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hodlfarm_operations_total",
			Help: "farm operations by kind and result",
		}, []string{"operation", "result"}),
		yieldPaid: factory.NewCounter(prometheus.CounterOpts{
			Name: "hodlfarm_yield_paid_tokens_total",
			Help: "reward tokens paid out of the pool",
		}),
		rewardPool: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hodlfarm_reward_pool_tokens",
			Help: "reward tokens held by the farm",
		}),
		farmCollateral: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hodlfarm_farm_collateral_tokens",
			Help: "collateral tokens held by the farm",
		}),
		totalStaked: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hodlfarm_total_staked_tokens",
			Help: "sum of all staked amounts",
		}),
		totalPending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hodlfarm_total_pending_yield_tokens",
			Help: "yield owed to all positions, settled or not",
		}),
		stakers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hodlfarm_stakers",
			Help: "number of positions with a non-zero stake",
		}),
	}
}

// ObserveOperation counts one farm call. result is "ok" or an error class.
func (m *Metrics) ObserveOperation(kind model.OperationKind, result string) {
	m.operations.WithLabelValues(string(kind), result).Inc()
}

func (m *Metrics) AddYieldPaid(a amount.Amount) {
	m.yieldPaid.Add(a.Float64())
}

func (m *Metrics) SetRewardPool(a amount.Amount) {
	m.rewardPool.Set(a.Float64())
}

// SetPoolStats refreshes every gauge from a consistent snapshot.
func (m *Metrics) SetPoolStats(s model.PoolStats) {
	m.rewardPool.Set(s.RewardPool.Float64())
	m.farmCollateral.Set(s.FarmCollateral.Float64())
	m.totalStaked.Set(s.TotalStaked.Float64())
	m.totalPending.Set(s.TotalPending.Float64())
	m.stakers.Set(float64(s.Stakers))
}
