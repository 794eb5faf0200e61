package metrics

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orchkeeper"

// Collector 暴露 keeper 的周期与交易指标。指标注册在独立的 registry 中。
type Collector struct {
	registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	transactions  *prometheus.CounterVec
	currentRound  prometheus.Gauge
	roundLocked   prometheus.Gauge
	pendingStake  prometheus.Gauge
	pendingFees   prometheus.Gauge
	cycleDuration prometheus.Histogram
}

// New 创建 Collector。
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Polling cycles by result (ok, partial, abandoned).",
		}, []string{"result"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Transactions by action and final status.",
		}, []string{"action", "status"}),
		currentRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_round",
			Help:      "Last observed protocol round.",
		}),
		roundLocked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "round_locked",
			Help:      "1 when the last observed round was locked.",
		}),
		pendingStake: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_stake_wei",
			Help:      "Pending stake of the orchestrator in wei.",
		}),
		pendingFees: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_fees_wei",
			Help:      "Pending fees of the orchestrator in wei.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one polling cycle including confirmation waits.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}
	reg.MustRegister(c.cycles, c.transactions, c.currentRound, c.roundLocked, c.pendingStake, c.pendingFees, c.cycleDuration)
	return c
}

// Registry 返回底层 registry。
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveCycle 记录一个周期的结果与耗时。
func (c *Collector) ObserveCycle(result string, duration time.Duration) {
	c.cycles.WithLabelValues(result).Inc()
	c.cycleDuration.Observe(duration.Seconds())
}

// ObserveRound 记录最近一次读到的轮次。
func (c *Collector) ObserveRound(round uint64, locked bool) {
	c.currentRound.Set(float64(round))
	if locked {
		c.roundLocked.Set(1)
	} else {
		c.roundLocked.Set(0)
	}
}

// ObserveBalances 记录待领取余额。数值转为 float64 后仅用于展示。
func (c *Collector) ObserveBalances(stake, fees *big.Int) {
	c.pendingStake.Set(toFloat(stake))
	c.pendingFees.Set(toFloat(fees))
}

// ObserveTransaction 记录一笔交易的终态。
func (c *Collector) ObserveTransaction(action, status string) {
	c.transactions.WithLabelValues(action, status).Inc()
}

// Handler 以 Prometheus 文本格式输出指标。
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

// StartServer 在 addr 上提供 /metrics 与 /healthz，ctx 取消后优雅关闭。
func StartServer(ctx context.Context, addr string, c *Collector) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-errCh
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
