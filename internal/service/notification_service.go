package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/appointment-service/internal/events"
)

// NotificationService logs participant-facing notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{dispatcher: dispatcher, logger: logger}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventAppointmentCreated, n.handleAppointmentCreated)
	n.dispatcher.Subscribe(events.EventAppointmentStatusChanged, n.handleStatusChanged)
	n.dispatcher.Subscribe(events.EventAppointmentDeleted, n.handleAppointmentDeleted)
}

func (n *NotificationService) handleAppointmentCreated(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.AppointmentSnapshotPayload)
	if !ok {
		return nil
	}
	fields := []zap.Field{
		zap.Int64("appointment_id", event.AppointmentID),
		zap.String("customer_id", payload.CustomerID),
		zap.String("date", payload.Date),
	}
	if payload.StaffID != nil {
		fields = append(fields, zap.String("notify_staff_id", *payload.StaffID))
	}
	n.logger.Info("AppointmentBooked", fields...)
	return nil
}

func (n *NotificationService) handleStatusChanged(_ context.Context, event events.Event) error {
	n.logger.Info("AppointmentStatusChanged",
		zap.Int64("appointment_id", event.AppointmentID),
		zap.String("actor_id", event.ActorID),
		zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleAppointmentDeleted(_ context.Context, event events.Event) error {
	n.logger.Info("AppointmentDeleted",
		zap.Int64("appointment_id", event.AppointmentID),
		zap.String("actor_id", event.ActorID))
	return nil
}
