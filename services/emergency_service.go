package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"nakeslink/interfaces"
	"nakeslink/models"
	"nakeslink/repositories"
	"nakeslink/utils"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	// Discovery: providers within this radius, capped at this many.
	providerSearchRadiusKm = 10.0
	maxNearbyProviders     = 10

	// Fan-out: nearest slice of the discovered list, delivered by a small
	// worker pool with a per-attempt deadline.
	maxNotifiedProviders = 5
	notifyWorkers        = 3
	notifyTimeout        = 10 * time.Second

	// A reporter with this many in-flight emergencies cannot open another.
	maxActiveEmergenciesPerUser = 3
)

type EmergencyService struct {
	emergencyStore  interfaces.EmergencyStore
	users           interfaces.ProviderDirectory
	dispatchGateway interfaces.DispatchGateway
	notifier        interfaces.Notifier
	validator       *utils.ValidationService
}

func NewEmergencyService(
	emergencyStore interfaces.EmergencyStore,
	users interfaces.ProviderDirectory,
	dispatchGateway interfaces.DispatchGateway,
	notifier interfaces.Notifier,
) *EmergencyService {
	return &EmergencyService{
		emergencyStore:  emergencyStore,
		users:           users,
		dispatchGateway: dispatchGateway,
		notifier:        notifier,
		validator:       utils.NewValidationService(),
	}
}

// CreateEmergency runs the full intake pipeline: validate, score, persist,
// discover nearby providers, escalate to PSC 119 when warranted, fan out
// alerts, and notify the reporter. Escalation and notification failures
// degrade the result but never fail the creation.
func (es *EmergencyService) CreateEmergency(ctx context.Context, userID string, req models.CreateEmergencyRequest) (*models.CreateEmergencyResult, error) {
	if validationErrors := es.validator.ValidateStruct(req); len(validationErrors) > 0 {
		return nil, utils.NewValidationErrorWithDetails("Invalid emergency request", validationErrors[0].Message)
	}

	if !utils.IsValidCoordinatePair(req.Location.Coordinates) {
		return nil, utils.NewValidationError("Location coordinates must be a valid [longitude, latitude] pair")
	}

	reporterID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, utils.NewValidationError("Invalid user ID")
	}

	activeCount, err := es.emergencyStore.CountActive(ctx, userID)
	if err != nil {
		return nil, utils.NewDatabaseError("count active emergencies", err)
	}
	if activeCount >= maxActiveEmergenciesPerUser {
		return nil, utils.NewConflictError("Too many active emergencies for this account, resolve or cancel one first")
	}

	severity := req.Severity
	if severity == "" {
		severity = models.SeverityMedium
	}

	priority := CalculatePriority(req.Type, severity, req.MedicalInfo)

	now := time.Now()
	emergency := &models.Emergency{
		UserID:      reporterID,
		Type:        req.Type,
		Severity:    severity,
		Description: req.Description,
		MedicalInfo: req.MedicalInfo,
		Location: models.EmergencyLocation{
			Type:        "Point",
			Coordinates: req.Location.Coordinates,
			Address:     req.Location.Address,
			Landmark:    req.Location.Landmark,
		},
		ContactNumber:    req.ContactNumber,
		AlternateContact: req.AlternateContact,
		Priority:         priority,
		Status:           models.EmergencyStatusPending,
		IsActive:         true,
		Timeline: []models.TimelineEntry{{
			Timestamp:   now,
			Event:       models.TimelineEventCreated,
			Description: fmt.Sprintf("Emergency reported: %s (%s severity, priority %d)", req.Type, severity, priority),
			Actor:       reporterID,
		}},
	}

	if err := es.emergencyStore.Create(ctx, emergency); err != nil {
		return nil, utils.NewDatabaseError("create emergency", err)
	}

	emergency.NearbyProviders = es.findNearbyProviders(ctx, emergency)

	if priority >= 4 || severity == models.SeverityCritical {
		es.escalateToPSC119(ctx, emergency)
	}

	es.notifyNearbyProviders(ctx, emergency)

	if err := es.emergencyStore.Save(ctx, emergency); err != nil {
		// The record exists; dispatch and notification state may be lost.
		logrus.Errorf("Failed to save emergency %s after pipeline: %v", emergency.ID.Hex(), err)
	}

	es.notifyReporter(ctx, emergency)

	result := &models.CreateEmergencyResult{
		ID:                   emergency.ID.Hex(),
		Type:                 emergency.Type,
		Severity:             emergency.Severity,
		Status:               emergency.Status,
		Priority:             emergency.Priority,
		Location:             emergency.Location,
		NearbyProvidersCount: len(emergency.NearbyProviders),
	}
	if emergency.PSC119 != nil {
		result.PSC119TicketID = emergency.PSC119.TicketID
		result.EstimatedArrival = emergency.PSC119.EstimatedArrival
	}

	return result, nil
}

// CalculatePriority derives the 1-5 priority from type, severity and
// reported vitals. Absent consciousness or breathing forces the maximum;
// breathing difficulty or a missing pulse raises the floor to 4.
func CalculatePriority(emergencyType, severity string, medicalInfo *models.MedicalInfo) int {
	var priority int
	switch severity {
	case models.SeverityCritical:
		priority = 5
	case models.SeverityHigh:
		priority = 4
	case models.SeverityMedium:
		priority = 3
	case models.SeverityLow:
		priority = 2
	default:
		priority = 3
	}

	if emergencyType == models.EmergencyTypeMedical && medicalInfo != nil {
		unconscious := medicalInfo.Conscious != nil && !*medicalInfo.Conscious
		if unconscious || medicalInfo.Breathing == models.BreathingNone {
			priority = 5
		} else if medicalInfo.Breathing == models.BreathingDifficulty ||
			(medicalInfo.HasPulse != nil && !*medicalInfo.HasPulse) {
			if priority < 4 {
				priority = 4
			}
		}
	}

	if priority > 5 {
		priority = 5
	}
	return priority
}

// findNearbyProviders ranks the provider pool by distance from the incident
// and keeps the closest within the search radius. Lookup failures yield an
// empty list; provider discovery never blocks creation.
func (es *EmergencyService) findNearbyProviders(ctx context.Context, emergency *models.Emergency) []models.NearbyProvider {
	providers, err := es.users.GetActiveProvidersWithLocation(ctx)
	if err != nil {
		logrus.Errorf("Failed to discover nearby providers for emergency %s: %v", emergency.ID.Hex(), err)
		return nil
	}

	lat := emergency.Location.Latitude()
	lon := emergency.Location.Longitude()

	var nearby []models.NearbyProvider
	for _, provider := range providers {
		if !provider.HasCoordinates() {
			continue
		}
		distance := utils.DistanceKm(lat, lon,
			provider.Location.Coordinates[1], provider.Location.Coordinates[0])
		if distance > providerSearchRadiusKm {
			continue
		}
		nearby = append(nearby, models.NearbyProvider{
			ProviderID: provider.ID,
			DistanceKm: distance,
		})
	}

	sort.Slice(nearby, func(i, j int) bool {
		return nearby[i].DistanceKm < nearby[j].DistanceKm
	})

	if len(nearby) > maxNearbyProviders {
		nearby = nearby[:maxNearbyProviders]
	}

	return nearby
}

// escalateToPSC119 requests external dispatch. On success the emergency
// moves to dispatched with a ticket and timeline entry; on failure it stays
// pending and the error is logged only.
func (es *EmergencyService) escalateToPSC119(ctx context.Context, emergency *models.Emergency) {
	ticket, err := es.dispatchGateway.CreateTicket(ctx, emergency)
	if err != nil {
		logrus.Errorf("PSC 119 escalation failed for emergency %s: %v", emergency.ID.Hex(), err)
		return
	}

	emergency.PSC119 = ticket
	emergency.Status = models.EmergencyStatusDispatched
	emergency.Timeline = append(emergency.Timeline, models.TimelineEntry{
		Timestamp:   time.Now(),
		Event:       models.TimelineEventDispatched,
		Description: fmt.Sprintf("Escalated to PSC 119, ticket %s", ticket.TicketID),
	})
}

// notifyNearbyProviders alerts the nearest providers through a bounded
// worker pool. Each attempt gets its own deadline; failures are tolerated
// per recipient. All workers join before the caller saves once.
func (es *EmergencyService) notifyNearbyProviders(ctx context.Context, emergency *models.Emergency) {
	count := len(emergency.NearbyProviders)
	if count > maxNotifiedProviders {
		count = maxNotifiedProviders
	}
	if count == 0 {
		return
	}

	jobs := make(chan int, count)
	var wg sync.WaitGroup

	workers := notifyWorkers
	if workers > count {
		workers = count
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				provider := &emergency.NearbyProviders[idx]

				notifyCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
				err := es.notifier.Send(notifyCtx, models.SendNotificationRequest{
					RecipientID: provider.ProviderID.Hex(),
					Type:        models.NotificationEmergencyAlert,
					Title:       "Emergency Nearby",
					Message: fmt.Sprintf("%s emergency %.2f km from your location: %s",
						emergency.Severity, provider.DistanceKm, emergency.Location.Address),
					Data: map[string]string{
						"emergencyId": emergency.ID.Hex(),
						"type":        emergency.Type,
						"severity":    emergency.Severity,
						"distanceKm":  fmt.Sprintf("%.2f", provider.DistanceKm),
					},
					Priority: emergency.Severity,
				})
				cancel()

				if err != nil {
					logrus.Warnf("Failed to notify provider %s about emergency %s: %v",
						provider.ProviderID.Hex(), emergency.ID.Hex(), err)
					continue
				}

				now := time.Now()
				provider.Notified = true
				provider.NotifiedAt = &now
			}
		}()
	}

	for i := 0; i < count; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

// notifyReporter confirms intake to the reporter, best-effort.
func (es *EmergencyService) notifyReporter(ctx context.Context, emergency *models.Emergency) {
	message := "Your emergency report has been received and help is being arranged."
	if emergency.PSC119 != nil {
		message = fmt.Sprintf("Your emergency has been dispatched to PSC 119 (ticket %s).", emergency.PSC119.TicketID)
	}

	err := es.notifier.Send(ctx, models.SendNotificationRequest{
		RecipientID: emergency.UserID.Hex(),
		Type:        models.NotificationEmergencyCreated,
		Title:       "Emergency Received",
		Message:     message,
		Data:        map[string]string{"emergencyId": emergency.ID.Hex()},
		Priority:    emergency.Severity,
	})
	if err != nil {
		logrus.Warnf("Failed to notify reporter %s: %v", emergency.UserID.Hex(), err)
	}
}

// GetEmergency returns the full aggregate. Visible to the reporter, admins,
// and providers that appear in the nearby list.
func (es *EmergencyService) GetEmergency(ctx context.Context, userID, role, emergencyID string) (*models.Emergency, error) {
	emergency, err := es.emergencyStore.GetByID(ctx, emergencyID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, utils.NewEmergencyNotFoundError()
		}
		return nil, utils.NewDatabaseError("get emergency", err)
	}

	if !canAccessEmergency(emergency, userID, role) {
		return nil, utils.NewForbiddenError("You do not have access to this emergency")
	}

	return emergency, nil
}

// canAccessEmergency gates detail reads and status mutations: the reporter,
// admins, and providers on the nearby list.
func canAccessEmergency(emergency *models.Emergency, userID, role string) bool {
	if emergency.UserID.Hex() == userID || role == models.RoleAdmin {
		return true
	}
	if role == models.RoleNakes {
		for i := range emergency.NearbyProviders {
			if emergency.NearbyProviders[i].ProviderID.Hex() == userID {
				return true
			}
		}
	}
	return false
}

// GetUserEmergencies returns one page of the caller's own history.
func (es *EmergencyService) GetUserEmergencies(ctx context.Context, userID string, page, pageSize int, status string) ([]models.EmergencyListItem, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	if status != "" && !models.IsValidStatus(status) {
		return nil, 0, utils.NewValidationError("Invalid status filter")
	}

	items, total, err := es.emergencyStore.GetUserEmergencies(ctx, userID, page, pageSize, status)
	if err != nil {
		return nil, 0, utils.NewDatabaseError("list user emergencies", err)
	}
	return items, total, nil
}

// GetActiveEmergencies lists in-flight emergencies for the provider and
// admin dashboards. With coordinates it becomes a nearest-first geo query;
// without, highest priority first.
func (es *EmergencyService) GetActiveEmergencies(ctx context.Context, query models.ActiveEmergenciesQuery) ([]models.Emergency, error) {
	if query.Longitude != nil && query.Latitude != nil {
		if !utils.IsValidCoordinate(*query.Latitude, *query.Longitude) {
			return nil, utils.NewValidationError("Invalid coordinates")
		}
		radius := query.RadiusKm
		if radius <= 0 {
			radius = providerSearchRadiusKm
		}
		emergencies, err := es.emergencyStore.GetActiveNear(ctx, *query.Longitude, *query.Latitude, radius)
		if err != nil {
			return nil, utils.NewDatabaseError("list nearby active emergencies", err)
		}
		return emergencies, nil
	}

	emergencies, err := es.emergencyStore.GetActiveEmergencies(ctx)
	if err != nil {
		return nil, utils.NewDatabaseError("list active emergencies", err)
	}
	return emergencies, nil
}

// RespondToEmergency records a provider's availability answer. The provider
// must appear in the nearby list; responding twice overwrites the previous
// answer. The reporter is told best-effort.
func (es *EmergencyService) RespondToEmergency(ctx context.Context, providerID, emergencyID string, req models.RespondToEmergencyRequest) (*models.Emergency, error) {
	if validationErrors := es.validator.ValidateStruct(req); len(validationErrors) > 0 {
		return nil, utils.NewValidationErrorWithDetails("Invalid response", validationErrors[0].Message)
	}

	provider, err := es.users.GetByID(ctx, providerID)
	if err != nil {
		return nil, utils.NewUserNotFoundError()
	}
	if !provider.IsProvider() {
		return nil, utils.NewForbiddenError("Only healthcare providers can respond to emergencies")
	}

	emergency, err := es.emergencyStore.GetByID(ctx, emergencyID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, utils.NewEmergencyNotFoundError()
		}
		return nil, utils.NewDatabaseError("get emergency", err)
	}

	if models.IsTerminalStatus(emergency.Status) {
		return nil, utils.NewConflictError("Emergency is no longer active")
	}

	var entry *models.NearbyProvider
	for i := range emergency.NearbyProviders {
		if emergency.NearbyProviders[i].ProviderID.Hex() == providerID {
			entry = &emergency.NearbyProviders[i]
			break
		}
	}
	if entry == nil {
		return nil, utils.NewForbiddenError("You were not alerted for this emergency")
	}

	now := time.Now()
	entry.Responded = true
	entry.RespondedAt = &now
	entry.Response = req.Response
	entry.EstimatedArrival = req.EstimatedArrival

	emergency.Timeline = append(emergency.Timeline, models.TimelineEntry{
		Timestamp:   now,
		Event:       models.TimelineEventProviderResponse,
		Description: fmt.Sprintf("Provider %s responded: %s", provider.FullName, req.Response),
		Actor:       provider.ID,
	})

	if err := es.saveEmergency(ctx, emergency); err != nil {
		return nil, err
	}

	title := "Help Is Coming"
	message := fmt.Sprintf("%s is responding to your emergency (%.2f km away)", provider.FullName, entry.DistanceKm)
	if req.Response == models.ProviderResponseUnavailable {
		title = "Provider Unavailable"
		message = fmt.Sprintf("%s is unable to respond to your emergency", provider.FullName)
	}
	notifyErr := es.notifier.Send(ctx, models.SendNotificationRequest{
		RecipientID: emergency.UserID.Hex(),
		Type:        models.NotificationEmergencyResponse,
		Title:       title,
		Message:     message,
		Data: map[string]string{
			"emergencyId": emergency.ID.Hex(),
			"providerId":  providerID,
			"response":    req.Response,
		},
		Priority: emergency.Severity,
	})
	if notifyErr != nil {
		logrus.Warnf("Failed to notify reporter about provider response: %v", notifyErr)
	}

	return emergency, nil
}

// UpdateEmergencyStatus moves an emergency through its lifecycle. The
// reporter, admins, and listed providers may set any non-terminal status;
// transition adjacency is deliberately not enforced. Terminal statuses are
// final. Exactly one timeline entry is appended, and the PSC 119 ticket is
// updated best-effort.
func (es *EmergencyService) UpdateEmergencyStatus(ctx context.Context, actorID, role, emergencyID string, req models.UpdateEmergencyStatusRequest) (*models.Emergency, error) {
	if !models.IsValidStatus(req.Status) {
		return nil, utils.NewValidationError("Invalid status value")
	}

	emergency, err := es.emergencyStore.GetByID(ctx, emergencyID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, utils.NewEmergencyNotFoundError()
		}
		return nil, utils.NewDatabaseError("get emergency", err)
	}

	if !canAccessEmergency(emergency, actorID, role) {
		return nil, utils.NewForbiddenError("You do not have access to this emergency")
	}
	isOwner := emergency.UserID.Hex() == actorID

	if models.IsTerminalStatus(emergency.Status) {
		return nil, utils.NewConflictError(fmt.Sprintf("Emergency is already %s", emergency.Status))
	}

	actorObjectID, _ := primitive.ObjectIDFromHex(actorID)
	now := time.Now()
	previousStatus := emergency.Status
	emergency.Status = req.Status

	switch req.Status {
	case models.EmergencyStatusResolved:
		emergency.ResolvedAt = &now
		emergency.IsActive = false
		if req.Resolution != nil {
			emergency.Resolution = req.Resolution
		}
	case models.EmergencyStatusCancelled:
		emergency.CancelledAt = &now
		emergency.CancellationReason = req.Notes
		emergency.IsActive = false
	}

	description := fmt.Sprintf("Status changed from %s to %s", previousStatus, req.Status)
	if req.Notes != "" {
		description = fmt.Sprintf("%s: %s", description, req.Notes)
	}
	emergency.Timeline = append(emergency.Timeline, models.TimelineEntry{
		Timestamp:   now,
		Event:       models.TimelineEventStatusUpdated,
		Description: description,
		Actor:       actorObjectID,
	})

	if err := es.saveEmergency(ctx, emergency); err != nil {
		return nil, err
	}

	if emergency.PSC119 != nil {
		es.syncTicketOutbound(ctx, emergency, req.Status, req.Notes)
	}

	if !isOwner {
		notifyErr := es.notifier.Send(ctx, models.SendNotificationRequest{
			RecipientID: emergency.UserID.Hex(),
			Type:        models.NotificationEmergencyStatus,
			Title:       "Emergency Update",
			Message:     fmt.Sprintf("Your emergency status is now: %s", req.Status),
			Data: map[string]string{
				"emergencyId": emergency.ID.Hex(),
				"status":      req.Status,
			},
			Priority: emergency.Severity,
		})
		if notifyErr != nil {
			logrus.Warnf("Failed to notify reporter about status change: %v", notifyErr)
		}
	}

	return emergency, nil
}

func (es *EmergencyService) syncTicketOutbound(ctx context.Context, emergency *models.Emergency, status, notes string) {
	var err error
	if status == models.EmergencyStatusCancelled {
		reason := notes
		if reason == "" {
			reason = "Cancelled by reporter"
		}
		err = es.dispatchGateway.CancelTicket(ctx, emergency.PSC119.TicketID, reason)
	} else {
		err = es.dispatchGateway.UpdateTicketStatus(ctx, emergency.PSC119.TicketID, status)
	}
	if err != nil {
		logrus.Warnf("Failed to sync PSC 119 ticket %s: %v", emergency.PSC119.TicketID, err)
	}
}

// SyncPSC119Status pulls the latest ticket state from PSC 119 and applies
// it to the local record. Access follows the same rule as the detail read.
// Unlike escalation, a gateway failure here is the caller's problem: they
// asked for the sync.
func (es *EmergencyService) SyncPSC119Status(ctx context.Context, userID, role, emergencyID string) (*models.Emergency, error) {
	emergency, err := es.emergencyStore.GetByID(ctx, emergencyID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, utils.NewEmergencyNotFoundError()
		}
		return nil, utils.NewDatabaseError("get emergency", err)
	}

	if !canAccessEmergency(emergency, userID, role) {
		return nil, utils.NewForbiddenError("You do not have access to this emergency")
	}

	if emergency.PSC119 == nil {
		return nil, utils.NewValidationError("Emergency was not escalated to PSC 119")
	}

	ticketStatus, err := es.dispatchGateway.GetTicketStatus(ctx, emergency.PSC119.TicketID)
	if err != nil {
		return nil, err
	}

	changed := false
	if ticketStatus.Status != "" && ticketStatus.Status != emergency.Status && !models.IsTerminalStatus(emergency.Status) {
		previous := emergency.Status
		emergency.Status = ticketStatus.Status
		if ticketStatus.Status == models.EmergencyStatusResolved {
			now := time.Now()
			emergency.ResolvedAt = &now
			emergency.IsActive = false
		}
		emergency.Timeline = append(emergency.Timeline, models.TimelineEntry{
			Timestamp:   time.Now(),
			Event:       models.TimelineEventStatusUpdated,
			Description: fmt.Sprintf("PSC 119 sync: status changed from %s to %s", previous, ticketStatus.Status),
		})
		changed = true
	}
	if ticketStatus.EstimatedArrival != nil {
		emergency.PSC119.EstimatedArrival = ticketStatus.EstimatedArrival
		changed = true
	}
	if ticketStatus.AssignedUnit != "" && ticketStatus.AssignedUnit != emergency.PSC119.AssignedUnit {
		emergency.PSC119.AssignedUnit = ticketStatus.AssignedUnit
		changed = true
	}
	if ticketStatus.Responder != nil {
		emergency.PSC119.Responder = ticketStatus.Responder
		changed = true
	}

	if changed {
		if err := es.saveEmergency(ctx, emergency); err != nil {
			return nil, err
		}
	}

	return emergency, nil
}

// GetEmergencyStats aggregates volume and timing figures for dashboards.
func (es *EmergencyService) GetEmergencyStats(ctx context.Context, req models.EmergencyStatsRequest) (*models.EmergencyStats, error) {
	if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
		return nil, utils.NewValidationError("End date must not precede start date")
	}

	stats, err := es.emergencyStore.GetStats(ctx, req.StartDate, req.EndDate)
	if err != nil {
		return nil, utils.NewDatabaseError("aggregate emergency stats", err)
	}
	return stats, nil
}

// saveEmergency persists through the compare-and-swap store, translating a
// version clash into a conflict the HTTP layer maps to 409.
func (es *EmergencyService) saveEmergency(ctx context.Context, emergency *models.Emergency) error {
	err := es.emergencyStore.Save(ctx, emergency)
	if err == nil {
		return nil
	}
	if errors.Is(err, repositories.ErrStaleDocument) {
		return utils.NewStaleEmergencyError()
	}
	return utils.NewDatabaseError("save emergency", err)
}
