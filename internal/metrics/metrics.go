// Package metrics exposes Prometheus collectors fed from ledger events
// and call outcomes.
package metrics

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Klingon-tech/klingnet-launchpad/internal/factory"
	"github.com/Klingon-tech/klingnet-launchpad/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-launchpad/internal/log"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

// Metrics holds the launchpad collectors.
type Metrics struct {
	// Throughput
	Calls        *prometheus.CounterVec
	Events       *prometheus.CounterVec
	TokensMinted prometheus.Counter

	// Factory activity
	TokensCreated prometheus.Counter
	Purchases     prometheus.Counter
	PaymentCoins  prometheus.Counter
	Withdrawals   prometheus.Counter
	WithdrawCoins prometheus.Counter

	// State
	Height prometheus.Gauge

	ledger *ledger.Ledger
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Calls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "launchpad_calls_total",
			Help: "Executed ledger calls by method and outcome",
		}, []string{"method", "status"}),
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "launchpad_events_total",
			Help: "Committed contract events by name",
		}, []string{"event"}),
		TokensMinted: f.NewCounter(prometheus.CounterOpts{
			Name: "launchpad_tokens_minted_units_total",
			Help: "Token base units minted through purchases",
		}),
		TokensCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "launchpad_tokens_created_total",
			Help: "Tokens created by the factory",
		}),
		Purchases: f.NewCounter(prometheus.CounterOpts{
			Name: "launchpad_purchases_total",
			Help: "Successful token purchases",
		}),
		PaymentCoins: f.NewCounter(prometheus.CounterOpts{
			Name: "launchpad_payments_coins_total",
			Help: "Native coins paid for tokens",
		}),
		Withdrawals: f.NewCounter(prometheus.CounterOpts{
			Name: "launchpad_withdrawals_total",
			Help: "Owner withdrawals from the factory",
		}),
		WithdrawCoins: f.NewCounter(prometheus.CounterOpts{
			Name: "launchpad_withdrawn_coins_total",
			Help: "Native coins withdrawn from the factory",
		}),
		Height: f.NewGauge(prometheus.GaugeOpts{
			Name: "launchpad_ledger_height",
			Help: "Committed ledger height",
		}),
	}
}

// Attach subscribes the collectors to l.
func (m *Metrics) Attach(l *ledger.Ledger) {
	m.ledger = l
	m.Height.Set(float64(l.Height()))
	l.Subscribe(m.OnEvent)
	l.Observe(m.OnCall)
}

// OnCall counts an executed call.
func (m *Metrics) OnCall(msg ledger.Message, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	method := msg.Method
	if method == "" {
		method = "transfer"
	}
	m.Calls.WithLabelValues(method, status).Inc()
	if m.ledger != nil {
		m.Height.Set(float64(m.ledger.Height()))
	}
}

// OnEvent updates the collectors for a committed event.
func (m *Metrics) OnEvent(ev ledger.Event) {
	m.Events.WithLabelValues(ev.Name).Inc()

	var err error
	switch ev.Name {
	case factory.EventCreation:
		m.TokensCreated.Inc()
	case factory.EventPurchase:
		var p factory.PurchaseEvent
		if err = ev.Decode(&p); err == nil {
			m.Purchases.Inc()
			m.TokensMinted.Add(float64(p.Minted))
			m.PaymentCoins.Add(coins(p.PaymentOf()))
		}
	case factory.EventWithdrawal:
		var w factory.WithdrawalEvent
		if err = ev.Decode(&w); err == nil {
			m.Withdrawals.Inc()
			m.WithdrawCoins.Add(coins(w.AmountOf()))
		}
	}
	if err != nil {
		klog.Node.Warn().Err(err).Str("event", ev.Name).Uint64("seq", ev.Seq).Msg("Undecodable event")
	}
}

// coins converts base units to a float coin value for display.
func coins(units *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(units), new(big.Float).SetInt(types.Coin())).Float64()
	return f
}
