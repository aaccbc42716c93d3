package diag

import (
	"github.com/prometheus/client_golang/prometheus"

	"serax/pkg/serax"
)

// Metrics: 私有 registry 上的运行指标，不依赖全局 DefaultRegisterer。
//   - serax_op_total{comp,stage,result}
//   - serax_error_total{comp,code}
//   - serax_op_duration_ms{comp,stage}
//   - serax_records_total{verdict}
//   - serax_hallucinations_total / serax_partial_recoveries_total
//   - serax_quality_score
type Metrics struct {
	reg *prometheus.Registry

	opTotal      *prometheus.CounterVec
	errTotal     *prometheus.CounterVec
	opDuration   *prometheus.HistogramVec
	records      *prometheus.CounterVec
	halluc       prometheus.Counter
	partial      prometheus.Counter
	qualityScore prometheus.Histogram
}

// NewMetrics 创建并注册全部指标。
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		opTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "serax_op_total",
			Help: "Pipeline operations by component, stage and result.",
		}, []string{"comp", "stage", "result"}),
		errTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "serax_error_total",
			Help: "Errors by component and classified code.",
		}, []string{"comp", "code"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "serax_op_duration_ms",
			Help:    "Stage duration in milliseconds.",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		}, []string{"comp", "stage"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "serax_records_total",
			Help: "Decoded records by verdict.",
		}, []string{"verdict"}),
		halluc: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "serax_hallucinations_total",
			Help: "Records flagged as hallucinated.",
		}),
		partial: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "serax_partial_recoveries_total",
			Help: "Records decoded from a truncated line.",
		}),
		qualityScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "serax_quality_score",
			Help:    "Per-record quality score (0..100).",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		}),
	}
	m.reg.MustRegister(m.opTotal, m.errTotal, m.opDuration, m.records, m.halluc, m.partial, m.qualityScore)
	return m
}

// Registry 返回私有 registry（Gatherer）。
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// IncOp 累加操作计数（result=success|error）。
func (m *Metrics) IncOp(comp, stage, result string) {
	m.opTotal.WithLabelValues(comp, stage, result).Inc()
}

// IncError 按分类累加错误计数。
func (m *Metrics) IncError(comp string, code Code) {
	m.errTotal.WithLabelValues(comp, string(code)).Inc()
}

// ObserveDuration 记录阶段耗时（毫秒）。
func (m *Metrics) ObserveDuration(comp, stage string, durMS int64) {
	m.opDuration.WithLabelValues(comp, stage).Observe(float64(durMS))
}

// ObserveRecord 记录单条解码结果的判定与质量。
func (m *Metrics) ObserveRecord(rec serax.Record) {
	verdict := "invalid"
	if rec.Valid {
		verdict = "valid"
	}
	m.records.WithLabelValues(verdict).Inc()
	if rec.HallucinationDetected {
		m.halluc.Inc()
	}
	if rec.PartialRecovery {
		m.partial.Inc()
	}
	m.qualityScore.Observe(rec.QualityScore)
}

// WriteTextfile 以 text exposition 格式原子写出（node_exporter textfile collector 可读）。
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}

// 进程级默认指标。
var std = NewMetrics()

// Default 返回进程级指标。
func Default() *Metrics { return std }

// IncOp 累加进程级操作计数。
func IncOp(comp, stage, result string) { std.IncOp(comp, stage, result) }

// IncError 累加进程级错误计数。
func IncError(comp string, code Code) { std.IncError(comp, code) }

// ObserveDuration 记录进程级阶段耗时。
func ObserveDuration(comp, stage string, durMS int64) { std.ObserveDuration(comp, stage, durMS) }
