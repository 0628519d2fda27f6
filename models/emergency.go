package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Emergency is the central aggregate: one reported incident and its full
// response lifecycle, including the nearby-provider bookkeeping, the PSC 119
// dispatch sub-record and the append-only timeline.
type Emergency struct {
	ID     primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID primitive.ObjectID `json:"userId" bson:"userId"`

	Type        string       `json:"type" bson:"type"`
	Severity    string       `json:"severity" bson:"severity"`
	Description string       `json:"description" bson:"description"`
	MedicalInfo *MedicalInfo `json:"medicalInfo,omitempty" bson:"medicalInfo,omitempty"`

	Location         EmergencyLocation `json:"location" bson:"location"`
	ContactNumber    string            `json:"contactNumber" bson:"contactNumber"`
	AlternateContact string            `json:"alternateContact,omitempty" bson:"alternateContact,omitempty"`

	// Priority is derived at creation (1-5), never user-supplied.
	Priority int    `json:"priority" bson:"priority"`
	Status   string `json:"status" bson:"status"`

	// PSC119 is set if and only if escalation occurred.
	PSC119          *PSC119Ticket        `json:"psc119,omitempty" bson:"psc119,omitempty"`
	NearbyProviders []NearbyProvider     `json:"nearbyProviders,omitempty" bson:"nearbyProviders,omitempty"`
	Timeline        []TimelineEntry      `json:"timeline,omitempty" bson:"timeline,omitempty"`
	Resolution      *EmergencyResolution `json:"resolution,omitempty" bson:"resolution,omitempty"`

	CancellationReason string     `json:"cancellationReason,omitempty" bson:"cancellationReason,omitempty"`
	CancelledAt        *time.Time `json:"cancelledAt,omitempty" bson:"cancelledAt,omitempty"`
	ResolvedAt         *time.Time `json:"resolvedAt,omitempty" bson:"resolvedAt,omitempty"`

	IsActive bool `json:"isActive" bson:"isActive"`

	// Version backs the compare-and-swap save; every persisted mutation
	// increments it.
	Version   int64     `json:"version" bson:"version"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// EmergencyLocation is a GeoJSON point. Coordinates are always
// [longitude, latitude], matching the 2dsphere index convention.
type EmergencyLocation struct {
	Type        string    `json:"type" bson:"type"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates"`
	Address     string    `json:"address" bson:"address"`
	Landmark    string    `json:"landmark,omitempty" bson:"landmark,omitempty"`
}

// Longitude returns the first coordinate. Callers must have validated the
// pair length first.
func (l EmergencyLocation) Longitude() float64 { return l.Coordinates[0] }

// Latitude returns the second coordinate.
func (l EmergencyLocation) Latitude() float64 { return l.Coordinates[1] }

// MedicalInfo carries the vitals reported with a medical emergency. The
// boolean pointers distinguish "not reported" from an explicit false.
type MedicalInfo struct {
	Conscious      *bool    `json:"conscious,omitempty" bson:"conscious,omitempty"`
	Breathing      string   `json:"breathing,omitempty" bson:"breathing,omitempty"`
	HasPulse       *bool    `json:"hasPulse,omitempty" bson:"hasPulse,omitempty"`
	Age            int      `json:"age,omitempty" bson:"age,omitempty"`
	Gender         string   `json:"gender,omitempty" bson:"gender,omitempty"`
	Symptoms       []string `json:"symptoms,omitempty" bson:"symptoms,omitempty"`
	Allergies      []string `json:"allergies,omitempty" bson:"allergies,omitempty"`
	Medications    []string `json:"medications,omitempty" bson:"medications,omitempty"`
	MedicalHistory string   `json:"medicalHistory,omitempty" bson:"medicalHistory,omitempty"`
}

// PSC119Ticket is the dispatch sub-record populated when an emergency is
// escalated to the PSC 119 public-safety system.
type PSC119Ticket struct {
	TicketID         string         `json:"ticketId" bson:"ticketId"`
	DispatchedAt     time.Time      `json:"dispatchedAt" bson:"dispatchedAt"`
	EstimatedArrival *time.Time     `json:"estimatedArrival,omitempty" bson:"estimatedArrival,omitempty"`
	ActualArrival    *time.Time     `json:"actualArrival,omitempty" bson:"actualArrival,omitempty"`
	AssignedUnit     string         `json:"assignedUnit,omitempty" bson:"assignedUnit,omitempty"`
	Responder        *ResponderInfo `json:"responder,omitempty" bson:"responder,omitempty"`
}

type ResponderInfo struct {
	Name    string `json:"name,omitempty" bson:"name,omitempty"`
	Contact string `json:"contact,omitempty" bson:"contact,omitempty"`
	Vehicle string `json:"vehicle,omitempty" bson:"vehicle,omitempty"`
}

// NearbyProvider is one entry of the distance-ranked provider list computed
// at creation time and mutated as providers are notified and respond.
type NearbyProvider struct {
	ProviderID       primitive.ObjectID `json:"providerId" bson:"providerId"`
	DistanceKm       float64            `json:"distanceKm" bson:"distanceKm"`
	Notified         bool               `json:"notified" bson:"notified"`
	NotifiedAt       *time.Time         `json:"notifiedAt,omitempty" bson:"notifiedAt,omitempty"`
	Responded        bool               `json:"responded" bson:"responded"`
	RespondedAt      *time.Time         `json:"respondedAt,omitempty" bson:"respondedAt,omitempty"`
	Response         string             `json:"response,omitempty" bson:"response,omitempty"`
	EstimatedArrival *time.Time         `json:"estimatedArrival,omitempty" bson:"estimatedArrival,omitempty"`
}

// TimelineEntry is one line of the append-only audit log. The timeline is
// never rewritten, only appended.
type TimelineEntry struct {
	Timestamp   time.Time          `json:"timestamp" bson:"timestamp"`
	Event       string             `json:"event" bson:"event"`
	Description string             `json:"description" bson:"description"`
	Actor       primitive.ObjectID `json:"actor,omitempty" bson:"actor,omitempty"`
}

type EmergencyResolution struct {
	Outcome          string `json:"outcome,omitempty" bson:"outcome,omitempty"`
	TransportedTo    string `json:"transportedTo,omitempty" bson:"transportedTo,omitempty"`
	Notes            string `json:"notes,omitempty" bson:"notes,omitempty"`
	FollowUpRequired bool   `json:"followUpRequired" bson:"followUpRequired"`
}

// Emergency Type Constants
const (
	EmergencyTypeMedical         = "medical"
	EmergencyTypeAccident        = "accident"
	EmergencyTypeFire            = "fire"
	EmergencyTypeCrime           = "crime"
	EmergencyTypeNaturalDisaster = "natural_disaster"
	EmergencyTypeOther           = "other"
)

// Severity Constants
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Emergency Status Constants. Resolved and cancelled are terminal.
const (
	EmergencyStatusPending    = "pending"
	EmergencyStatusDispatched = "dispatched"
	EmergencyStatusEnRoute    = "en_route"
	EmergencyStatusOnScene    = "on_scene"
	EmergencyStatusResolved   = "resolved"
	EmergencyStatusCancelled  = "cancelled"
)

// Breathing values reported in MedicalInfo
const (
	BreathingNormal     = "normal"
	BreathingDifficulty = "difficulty"
	BreathingNone       = "none"
)

// Provider response values
const (
	ProviderResponseAvailable   = "available"
	ProviderResponseUnavailable = "unavailable"
	ProviderResponseEnRoute     = "en_route"
)

// Timeline event tags
const (
	TimelineEventCreated          = "emergency_created"
	TimelineEventDispatched       = "psc119_dispatched"
	TimelineEventProviderResponse = "provider_responded"
	TimelineEventStatusUpdated    = "status_updated"
)

// ActiveStatuses is the status set an emergency counts as in-flight for.
var ActiveStatuses = []string{
	EmergencyStatusPending,
	EmergencyStatusDispatched,
	EmergencyStatusEnRoute,
	EmergencyStatusOnScene,
}

// IsTerminalStatus reports whether no further transitions are expected.
func IsTerminalStatus(status string) bool {
	return status == EmergencyStatusResolved || status == EmergencyStatusCancelled
}

// IsValidStatus reports whether the value is a known lifecycle status.
func IsValidStatus(status string) bool {
	switch status {
	case EmergencyStatusPending, EmergencyStatusDispatched, EmergencyStatusEnRoute,
		EmergencyStatusOnScene, EmergencyStatusResolved, EmergencyStatusCancelled:
		return true
	}
	return false
}

// =================== REQUEST MODELS ===================

type CreateEmergencyRequest struct {
	Type             string                   `json:"type" validate:"required,emergency_type"`
	Severity         string                   `json:"severity,omitempty" validate:"omitempty,severity"`
	Description      string                   `json:"description" validate:"required,max=2000"`
	Location         EmergencyLocationRequest `json:"location" validate:"required"`
	ContactNumber    string                   `json:"contactNumber" validate:"required,phone"`
	AlternateContact string                   `json:"alternateContact,omitempty" validate:"omitempty,phone"`
	MedicalInfo      *MedicalInfo             `json:"medicalInfo,omitempty"`
}

type EmergencyLocationRequest struct {
	Coordinates []float64 `json:"coordinates" validate:"required"`
	Address     string    `json:"address" validate:"required"`
	Landmark    string    `json:"landmark,omitempty"`
}

type RespondToEmergencyRequest struct {
	Response         string     `json:"response" validate:"required,oneof=available unavailable en_route"`
	EstimatedArrival *time.Time `json:"estimatedArrival,omitempty"`
}

type UpdateEmergencyStatusRequest struct {
	Status     string               `json:"status" validate:"required"`
	Notes      string               `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Resolution *EmergencyResolution `json:"resolution,omitempty"`
}

type ActiveEmergenciesQuery struct {
	Longitude *float64 `form:"longitude"`
	Latitude  *float64 `form:"latitude"`
	RadiusKm  float64  `form:"radiusKm"`
}

type EmergencyStatsRequest struct {
	StartDate *time.Time `form:"startDate" time_format:"2006-01-02"`
	EndDate   *time.Time `form:"endDate" time_format:"2006-01-02"`
}

// =================== RESPONSE MODELS ===================

// CreateEmergencyResult is the creation summary returned to the reporter. It
// communicates what did succeed without guaranteeing dispatch.
type CreateEmergencyResult struct {
	ID                   string            `json:"id"`
	Type                 string            `json:"type"`
	Severity             string            `json:"severity"`
	Status               string            `json:"status"`
	Priority             int               `json:"priority"`
	Location             EmergencyLocation `json:"location"`
	PSC119TicketID       string            `json:"psc119TicketId,omitempty"`
	EstimatedArrival     *time.Time        `json:"estimatedArrival,omitempty"`
	NearbyProvidersCount int               `json:"nearbyProvidersCount"`
}

// EmergencyListItem is the projection used for history listings; the
// timeline and provider bookkeeping are detail-only.
type EmergencyListItem struct {
	ID          primitive.ObjectID `json:"id" bson:"_id"`
	Type        string             `json:"type" bson:"type"`
	Severity    string             `json:"severity" bson:"severity"`
	Description string             `json:"description" bson:"description"`
	Location    EmergencyLocation  `json:"location" bson:"location"`
	Priority    int                `json:"priority" bson:"priority"`
	Status      string             `json:"status" bson:"status"`
	CreatedAt   time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt" bson:"updatedAt"`
	ResolvedAt  *time.Time         `json:"resolvedAt,omitempty" bson:"resolvedAt,omitempty"`
}

// EmergencyStats aggregates response/resolution timing over a date range.
type EmergencyStats struct {
	TotalEmergencies  int64              `json:"totalEmergencies"`
	ActiveEmergencies int64              `json:"activeEmergencies"`
	ResponseTime      map[string]float64 `json:"responseTime"`   // avg, min, max (seconds)
	ResolutionTime    map[string]float64 `json:"resolutionTime"` // avg, min, max (seconds)
	StartDate         *time.Time         `json:"startDate,omitempty"`
	EndDate           *time.Time         `json:"endDate,omitempty"`
}

// SendNotificationRequest is the notification port contract: one recipient,
// one structured alert, best-effort delivery.
type SendNotificationRequest struct {
	RecipientID string            `json:"recipientId"`
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	Data        map[string]string `json:"data,omitempty"`
	Priority    string            `json:"priority"`
}

// Notification type tags
const (
	NotificationEmergencyAlert    = "emergency_alert"
	NotificationEmergencyCreated  = "emergency_created"
	NotificationEmergencyResponse = "emergency_response"
	NotificationEmergencyStatus   = "emergency_status"
)
