package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// InvoiceCreateTotal counts invoice creation attempts against the processor.
	InvoiceCreateTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound payment webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// DownloadTotal counts download requests by outcome.
	DownloadTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		InvoiceCreateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_create_total",
			Help:      "Count of invoice creation outcomes.",
		}, []string{"result"})
		PaymentWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"result"})
		DownloadTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_total",
			Help:      "Count of download requests by outcome.",
		}, []string{"result"})

		InvoiceCreateTotal = registerOrExisting(reg, InvoiceCreateTotal).(*prometheus.CounterVec)
		PaymentWebhookTotal = registerOrExisting(reg, PaymentWebhookTotal).(*prometheus.CounterVec)
		DownloadTotal = registerOrExisting(reg, DownloadTotal).(*prometheus.CounterVec)
	})
}
