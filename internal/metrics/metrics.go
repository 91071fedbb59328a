// Package metrics содержит счётчики Prometheus сервиса синхронизации.
// Все методы безопасны для nil-получателя.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry хранит счётчики обработки файлов, заказов и удалённых вызовов.
type Registry struct {
	reg *prometheus.Registry

	Files         *prometheus.CounterVec
	Orders        *prometheus.CounterVec
	RowsSkipped   prometheus.Counter
	RemoteCalls   *prometheus.CounterVec
	RemoteRetries *prometheus.CounterVec
}

// NewRegistry создаёт реестр и регистрирует счётчики.
func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	files := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordersync_files_total",
		Help: "Processed export files by final status.",
	}, []string{"status"})
	orders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordersync_orders_total",
		Help: "Order groups by outcome.",
	}, []string{"outcome"})
	rowsSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ordersync_rows_skipped_total",
		Help: "Rows skipped by the parser.",
	})
	remoteCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordersync_remote_calls_total",
		Help: "Shopware API calls by operation and outcome.",
	}, []string{"operation", "outcome"})
	remoteRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordersync_remote_retries_total",
		Help: "Retried Shopware API attempts.",
	}, []string{"operation"})

	r.MustRegister(files, orders, rowsSkipped, remoteCalls, remoteRetries)

	return &Registry{
		reg:           r,
		Files:         files,
		Orders:        orders,
		RowsSkipped:   rowsSkipped,
		RemoteCalls:   remoteCalls,
		RemoteRetries: remoteRetries,
	}
}

// Handler возвращает HTTP-обработчик для выдачи метрик.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveFile учитывает обработанный файл.
func (r *Registry) ObserveFile(status string) {
	if r == nil {
		return
	}
	r.Files.WithLabelValues(status).Inc()
}

// ObserveOrder учитывает итог обработки заказа.
func (r *Registry) ObserveOrder(outcome string) {
	if r == nil {
		return
	}
	r.Orders.WithLabelValues(outcome).Inc()
}

// ObserveSkippedRows учитывает пропущенные строки.
func (r *Registry) ObserveSkippedRows(n int) {
	if r == nil {
		return
	}
	r.RowsSkipped.Add(float64(n))
}

// ObserveRemoteCall учитывает вызов API.
func (r *Registry) ObserveRemoteCall(operation, outcome string) {
	if r == nil {
		return
	}
	r.RemoteCalls.WithLabelValues(operation, outcome).Inc()
}

// ObserveRetries учитывает повторы вызова API.
func (r *Registry) ObserveRetries(operation string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.RemoteRetries.WithLabelValues(operation).Add(float64(n))
}
