package sse

import (
	"time"

	"github.com/GTDGit/pricewatch/internal/models"
)

// AlertNotifier is the interface services use to emit monitoring events.
type AlertNotifier interface {
	NotifyAlerts(alerts []models.PriceAlert)
	NotifyJobFinished(job *models.CrawlJob)
}

// HubNotifier implements AlertNotifier using the SSE Hub.
type HubNotifier struct {
	hub *Hub
}

// NewHubNotifier creates a notifier backed by the given Hub.
func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) NotifyAlerts(alerts []models.PriceAlert) {
	if n.hub.ClientCount() == 0 {
		return
	}
	for i := range alerts {
		a := alerts[i]
		n.hub.Broadcast(&Event{Event: EventAlertCreated, Alert: &a, Timestamp: time.Now()})
	}
}

func (n *HubNotifier) NotifyJobFinished(job *models.CrawlJob) {
	if n.hub.ClientCount() == 0 {
		return
	}
	j := *job
	n.hub.Broadcast(&Event{Event: EventJobFinished, Job: &j, Timestamp: time.Now()})
}

// Multi fans events out to several notifiers in order.
type Multi []AlertNotifier

func (m Multi) NotifyAlerts(alerts []models.PriceAlert) {
	for _, n := range m {
		n.NotifyAlerts(alerts)
	}
}

func (m Multi) NotifyJobFinished(job *models.CrawlJob) {
	for _, n := range m {
		n.NotifyJobFinished(job)
	}
}

// NopNotifier is a no-op implementation for when no sink is configured.
type NopNotifier struct{}

func (n *NopNotifier) NotifyAlerts(alerts []models.PriceAlert) {}
func (n *NopNotifier) NotifyJobFinished(job *models.CrawlJob)   {}
