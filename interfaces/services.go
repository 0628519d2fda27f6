package interfaces

import (
	"context"
	"time"

	"nakeslink/models"
)

// DispatchGateway is the contract to the PSC 119 public-safety dispatch
// system. Implementations translate internal emergencies to the external
// wire format and back.
type DispatchGateway interface {
	CreateTicket(ctx context.Context, emergency *models.Emergency) (*models.PSC119Ticket, error)
	UpdateTicketStatus(ctx context.Context, ticketID, status string) error
	GetTicketStatus(ctx context.Context, ticketID string) (*DispatchTicketStatus, error)
	CancelTicket(ctx context.Context, ticketID, reason string) error
}

// DispatchTicketStatus is the gateway-side view of a ticket, already
// translated to internal status vocabulary.
type DispatchTicketStatus struct {
	TicketID         string                `json:"ticketId"`
	Status           string                `json:"status"`
	EstimatedArrival *time.Time            `json:"estimatedArrival,omitempty"`
	AssignedUnit     string                `json:"assignedUnit,omitempty"`
	Responder        *models.ResponderInfo `json:"responder,omitempty"`
}

// Notifier delivers one alert to one recipient, best-effort. A failed
// delivery never fails the operation that triggered it.
type Notifier interface {
	Send(ctx context.Context, req models.SendNotificationRequest) error
}

// EmergencyStore is the persistence contract the emergency service works
// against. Save is a compare-and-swap on the document version.
type EmergencyStore interface {
	Create(ctx context.Context, emergency *models.Emergency) error
	GetByID(ctx context.Context, emergencyID string) (*models.Emergency, error)
	Save(ctx context.Context, emergency *models.Emergency) error
	GetUserEmergencies(ctx context.Context, userID string, page, pageSize int, status string) ([]models.EmergencyListItem, int64, error)
	GetActiveEmergencies(ctx context.Context) ([]models.Emergency, error)
	GetActiveNear(ctx context.Context, longitude, latitude, radiusKm float64) ([]models.Emergency, error)
	CountActive(ctx context.Context, userID string) (int64, error)
	GetStats(ctx context.Context, startDate, endDate *time.Time) (*models.EmergencyStats, error)
}

// ProviderDirectory looks up users and the provider pool for fan-out.
type ProviderDirectory interface {
	GetByID(ctx context.Context, userID string) (*models.User, error)
	GetActiveProvidersWithLocation(ctx context.Context) ([]models.User, error)
}
