package worker

import (
	"github.com/spec-kit/appointment-service/internal/events"
	"github.com/spec-kit/appointment-service/internal/service"
)

// Subscribers groups the in-process consumers of domain events.
type Subscribers struct {
	Notifications *service.NotificationService
	Reports       *service.ReportService
	Kafka         *events.KafkaPublisher
}

// StartSubscribers registers every configured consumer on the dispatcher. Nil members are skipped.
func StartSubscribers(d events.Dispatcher, subs Subscribers) {
	if d == nil {
		return
	}
	if subs.Notifications != nil {
		subs.Notifications.RegisterHandlers()
	}
	if subs.Reports != nil {
		subs.Reports.RegisterHandlers(d)
	}
	subs.Kafka.Register(d)
}
