// ============================================================================
// Intro Sequencer Metrics - Prometheus 監控指標
// ============================================================================
//
// Package: internal/metrics
// 文件: metrics.go
// 功能: 收集和暴露序列播放與排程器指標
//
// 指標分類:
//
//   1. 生命週期計數器 (Counter)：
//      - sequencer_runs_started_total: 開始的 run 數（首次播放 + 重播）
//      - sequencer_skips_total: 跳過次數
//      - sequencer_restarts_total: 重播次數
//      - sequencer_runs_completed_total: 走到重播按鈕出現的 run 數
//      - sequencer_navigations_total{target}: 選單導航次數
//
//   2. 排程器計數器 (Counter)：
//      - sequencer_actions_scheduled_total: 已登記的延遲動作
//      - sequencer_actions_fired_total: 已執行的延遲動作
//      - sequencer_ticks_total: 打字機 tick 次數
//      - sequencer_actions_cancelled_total: 被取消的動作
//      - sequencer_actions_dropped_total: run 取消或重新排程後才觸發而被丟棄的計時器
//
//   3. 狀態指標 (Gauge)：
//      - sequencer_pending_actions: Pending Action Set 大小
//      - sequencer_current_run_id: 目前的 run id
//
// 使用場景:
//   - sequencer_actions_dropped_total 持續增長 → 取消與觸發之間的競態頻繁
//   - teardown 後 sequencer_pending_actions != 0 → 計時器洩漏
//
// HTTP 端點:
//   /metrics，默認端口 9090
//
// ============================================================================

package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ChuLiYu/intro-sequencer/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector Prometheus 指標收集器，實作 sequencer.Recorder
type Collector struct {
	// 生命週期
	runsStarted   prometheus.Counter
	skips         prometheus.Counter
	restarts      prometheus.Counter
	runsCompleted prometheus.Counter
	navigations   *prometheus.CounterVec

	// 排程器
	scheduled prometheus.Counter
	fired     prometheus.Counter
	ticks     prometheus.Counter
	cancelled prometheus.Counter
	dropped   prometheus.Counter

	// 狀態
	pending prometheus.Gauge
	runID   prometheus.Gauge
}

// NewCollector 創建並註冊到 prometheus.DefaultRegisterer
func NewCollector() *Collector {
	c := &Collector{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sequencer_runs_started_total",
			Help: "Total number of runs started, including restarts",
		}),
		skips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sequencer_skips_total",
			Help: "Total number of skips to the finale",
		}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sequencer_restarts_total",
			Help: "Total number of restarts",
		}),
		runsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sequencer_runs_completed_total",
			Help: "Total number of runs that reached the restart affordance",
		}),
		navigations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sequencer_navigations_total",
			Help: "Total number of menu navigations by target section",
		}, []string{"target"}),
		scheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sequencer_actions_scheduled_total",
			Help: "Total number of delayed actions registered",
		}),
		fired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sequencer_actions_fired_total",
			Help: "Total number of delayed actions executed",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sequencer_ticks_total",
			Help: "Total number of typewriter ticks executed",
		}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sequencer_actions_cancelled_total",
			Help: "Total number of pending actions cancelled",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sequencer_actions_dropped_total",
			Help: "Total number of elapsed timers dropped because their run was cancelled or replaced",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sequencer_pending_actions",
			Help: "Current size of the pending action set",
		}),
		runID: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sequencer_current_run_id",
			Help: "Identifier of the current run",
		}),
	}

	// 註冊所有指標
	prometheus.MustRegister(
		c.runsStarted,
		c.skips,
		c.restarts,
		c.runsCompleted,
		c.navigations,
		c.scheduled,
		c.fired,
		c.ticks,
		c.cancelled,
		c.dropped,
		c.pending,
		c.runID,
	)

	return c
}

// ----------------------------------------------------------------------------
// 生命週期
// ----------------------------------------------------------------------------

// RecordRunStarted 記錄新 run 開始
func (c *Collector) RecordRunStarted(id types.RunID) {
	c.runsStarted.Inc()
	c.runID.Set(float64(id))
}

func (c *Collector) RecordSkip()     { c.skips.Inc() }
func (c *Collector) RecordRestart()  { c.restarts.Inc() }
func (c *Collector) RecordComplete() { c.runsCompleted.Inc() }

// RecordNavigate 記錄選單導航
func (c *Collector) RecordNavigate(target string) {
	c.navigations.WithLabelValues(target).Inc()
}

// ----------------------------------------------------------------------------
// 排程器
// ----------------------------------------------------------------------------

func (c *Collector) RecordScheduled(n int) { c.scheduled.Add(float64(n)) }
func (c *Collector) RecordFired()          { c.fired.Inc() }
func (c *Collector) RecordTick()           { c.ticks.Inc() }
func (c *Collector) RecordCancelled(n int) { c.cancelled.Add(float64(n)) }
func (c *Collector) RecordDropped()        { c.dropped.Inc() }

// SetPending 更新 Pending Action Set 大小
func (c *Collector) SetPending(n int) {
	c.pending.Set(float64(n))
}

// ============================================================================
// HTTP 端點
// ============================================================================

// Handler serves the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// StartServer 啟動 Prometheus metrics HTTP 伺服器，ctx 取消時優雅關閉
//
// 參數：
//   - ctx: 控制伺服器生命週期
//   - port: HTTP 伺服器端口
//
// 返回值：
//   - error: 啟動或關閉失敗的錯誤；正常關閉時為 nil
func StartServer(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown failed: %w", err)
		}
		return nil
	}
}
