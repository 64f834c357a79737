package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 业务指标统一使用 result 标签：success | 具体失败原因（already_owned / insufficient_funds ...）

var (
	claimTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squares_claim_total",
			Help: "Total box claims by result and game type",
		},
		[]string{"result", "game_type"},
	)
	claimDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "squares_claim_duration_ms",
			Help:    "Box claim duration in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"result"},
	)

	assignTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squares_assign_total",
			Help: "Number assignment attempts by result and trigger",
		},
		[]string{"result", "trigger"},
	)

	settlementTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squares_settlement_total",
			Help: "Settlement operations by op and result",
		},
		[]string{"op", "result"},
	)
	settlementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "squares_settlement_duration_ms",
			Help:    "Settlement operation duration in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"op"},
	)
	payoutIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "squares_payout_issued_total",
			Help: "Payout ledger entries created",
		},
	)

	withdrawalTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squares_withdrawal_total",
			Help: "Withdrawal transitions by action and result",
		},
		[]string{"action", "result"},
	)

	ledgerTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squares_ledger_ops_total",
			Help: "Ledger operations (purchase/verify/adjust) by op and result",
		},
		[]string{"op", "result"},
	)

	outboxTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squares_outbox_dispatch_total",
			Help: "Outbox messages dispatched by topic and result",
		},
		[]string{"topic", "result"},
	)
)

func norm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return s
}

// RecordClaim 记录抢格子结果；gameType: free | paid
func RecordClaim(result, gameType string, started time.Time) {
	res := norm(result)
	claimTotal.WithLabelValues(res, norm(gameType)).Inc()
	claimDuration.WithLabelValues(res).Observe(float64(time.Since(started).Milliseconds()))
}

// RecordAssign 记录号码分配；trigger: admin | scheduler
func RecordAssign(result, trigger string) {
	assignTotal.WithLabelValues(norm(result), norm(trigger)).Inc()
}

// RecordSettlement 记录比分录入/派彩；op: scores | payouts
func RecordSettlement(op, result string, started time.Time) {
	settlementTotal.WithLabelValues(norm(op), norm(result)).Inc()
	settlementDuration.WithLabelValues(norm(op)).Observe(float64(time.Since(started).Milliseconds()))
}

// AddPayoutIssued 累加本次新派彩条数
func AddPayoutIssued(n int) {
	if n > 0 {
		payoutIssued.Add(float64(n))
	}
}

// RecordWithdrawal action: request | approve | reject
func RecordWithdrawal(action, result string) {
	withdrawalTotal.WithLabelValues(norm(action), norm(result)).Inc()
}

// RecordLedger op: purchase | verify | adjust
func RecordLedger(op, result string) {
	ledgerTotal.WithLabelValues(norm(op), norm(result)).Inc()
}

// RecordOutbox 记录 outbox 投递结果
func RecordOutbox(topic, result string) {
	outboxTotal.WithLabelValues(norm(topic), norm(result)).Inc()
}
