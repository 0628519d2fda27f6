package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"nakeslink/interfaces"
	"nakeslink/models"
	"nakeslink/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Mapping tables between internal vocabulary and the PSC 119 wire format.
// Unmatched values fall through to the documented defaults.

var emergencyTypeToExternal = map[string]string{
	models.EmergencyTypeMedical:         "MEDICAL_EMERGENCY",
	models.EmergencyTypeAccident:        "TRAFFIC_ACCIDENT",
	models.EmergencyTypeFire:            "FIRE_EMERGENCY",
	models.EmergencyTypeCrime:           "SECURITY_INCIDENT",
	models.EmergencyTypeNaturalDisaster: "NATURAL_DISASTER",
	models.EmergencyTypeOther:           "OTHER_EMERGENCY",
}

var severityToExternal = map[string]string{
	models.SeverityLow:      "GREEN",
	models.SeverityMedium:   "YELLOW",
	models.SeverityHigh:     "ORANGE",
	models.SeverityCritical: "RED",
}

var statusToExternal = map[string]string{
	models.EmergencyStatusPending:    "RECEIVED",
	models.EmergencyStatusDispatched: "DISPATCHED",
	models.EmergencyStatusEnRoute:    "ON_THE_WAY",
	models.EmergencyStatusOnScene:    "ON_SCENE",
	models.EmergencyStatusResolved:   "COMPLETED",
	models.EmergencyStatusCancelled:  "CANCELLED",
}

var statusFromExternal = map[string]string{
	"RECEIVED":   models.EmergencyStatusPending,
	"DISPATCHED": models.EmergencyStatusDispatched,
	"ON_THE_WAY": models.EmergencyStatusEnRoute,
	"ON_SCENE":   models.EmergencyStatusOnScene,
	"COMPLETED":  models.EmergencyStatusResolved,
	"CANCELLED":  models.EmergencyStatusCancelled,
}

// MapEmergencyTypeToExternal translates an internal emergency type to the
// PSC 119 category code; unknown types map to OTHER_EMERGENCY.
func MapEmergencyTypeToExternal(emergencyType string) string {
	if external, ok := emergencyTypeToExternal[emergencyType]; ok {
		return external
	}
	return "OTHER_EMERGENCY"
}

// MapSeverityToExternal translates severity to the PSC 119 triage color;
// unknown severities map to YELLOW.
func MapSeverityToExternal(severity string) string {
	if external, ok := severityToExternal[severity]; ok {
		return external
	}
	return "YELLOW"
}

// MapStatusToExternal translates a lifecycle status outbound; unknown
// statuses map to RECEIVED.
func MapStatusToExternal(status string) string {
	if external, ok := statusToExternal[status]; ok {
		return external
	}
	return "RECEIVED"
}

// MapStatusFromExternal translates a PSC 119 status inbound; unknown codes
// map to pending.
func MapStatusFromExternal(external string) string {
	if status, ok := statusFromExternal[external]; ok {
		return status
	}
	return models.EmergencyStatusPending
}

// ===================== HTTP gateway =====================

// psc119CreatePayload is the outbound ticket-creation body.
type psc119CreatePayload struct {
	ReferenceID   string            `json:"referenceId"`
	Category      string            `json:"category"`
	TriageLevel   string            `json:"triageLevel"`
	Description   string            `json:"description"`
	Latitude      float64           `json:"latitude"`
	Longitude     float64           `json:"longitude"`
	Address       string            `json:"address"`
	Landmark      string            `json:"landmark,omitempty"`
	ContactNumber string            `json:"contactNumber"`
	MedicalInfo   map[string]string `json:"medicalInfo,omitempty"`
	ReportedAt    time.Time         `json:"reportedAt"`
}

type psc119TicketResponse struct {
	TicketID         string     `json:"ticketId"`
	Status           string     `json:"status"`
	DispatchedAt     *time.Time `json:"dispatchedAt,omitempty"`
	EstimatedArrival *time.Time `json:"estimatedArrival,omitempty"`
	AssignedUnit     string     `json:"assignedUnit,omitempty"`
	Responder        *struct {
		Name    string `json:"name,omitempty"`
		Contact string `json:"contact,omitempty"`
		Vehicle string `json:"vehicle,omitempty"`
	} `json:"responder,omitempty"`
}

// HTTPDispatchGateway talks to the real PSC 119 REST API with bearer
// authentication. Every failure surfaces as a gateway error so callers can
// decide whether escalation was optional.
type HTTPDispatchGateway struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPDispatchGateway(baseURL, apiKey string) *HTTPDispatchGateway {
	return &HTTPDispatchGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (g *HTTPDispatchGateway) CreateTicket(ctx context.Context, emergency *models.Emergency) (*models.PSC119Ticket, error) {
	payload := psc119CreatePayload{
		ReferenceID:   emergency.ID.Hex(),
		Category:      MapEmergencyTypeToExternal(emergency.Type),
		TriageLevel:   MapSeverityToExternal(emergency.Severity),
		Description:   emergency.Description,
		Latitude:      emergency.Location.Latitude(),
		Longitude:     emergency.Location.Longitude(),
		Address:       emergency.Location.Address,
		Landmark:      emergency.Location.Landmark,
		ContactNumber: emergency.ContactNumber,
		MedicalInfo:   flattenMedicalInfo(emergency.MedicalInfo),
		ReportedAt:    emergency.CreatedAt,
	}

	var ticketResp psc119TicketResponse
	err := g.doJSON(ctx, http.MethodPost, "/emergency/create", payload, &ticketResp)
	if err != nil {
		return nil, err
	}

	ticket := &models.PSC119Ticket{
		TicketID:         ticketResp.TicketID,
		DispatchedAt:     time.Now(),
		EstimatedArrival: ticketResp.EstimatedArrival,
		AssignedUnit:     ticketResp.AssignedUnit,
	}
	if ticketResp.DispatchedAt != nil {
		ticket.DispatchedAt = *ticketResp.DispatchedAt
	}

	return ticket, nil
}

func (g *HTTPDispatchGateway) UpdateTicketStatus(ctx context.Context, ticketID, status string) error {
	payload := map[string]string{
		"status":    MapStatusToExternal(status),
		"updatedAt": time.Now().UTC().Format(time.RFC3339),
	}
	path := fmt.Sprintf("/emergency/%s/status", ticketID)
	return g.doJSON(ctx, http.MethodPut, path, payload, nil)
}

func (g *HTTPDispatchGateway) GetTicketStatus(ctx context.Context, ticketID string) (*interfaces.DispatchTicketStatus, error) {
	var ticketResp psc119TicketResponse
	path := fmt.Sprintf("/emergency/%s/status", ticketID)
	if err := g.doJSON(ctx, http.MethodGet, path, nil, &ticketResp); err != nil {
		return nil, err
	}

	status := &interfaces.DispatchTicketStatus{
		TicketID:         ticketResp.TicketID,
		Status:           MapStatusFromExternal(ticketResp.Status),
		EstimatedArrival: ticketResp.EstimatedArrival,
		AssignedUnit:     ticketResp.AssignedUnit,
	}
	if ticketResp.Responder != nil {
		status.Responder = &models.ResponderInfo{
			Name:    ticketResp.Responder.Name,
			Contact: ticketResp.Responder.Contact,
			Vehicle: ticketResp.Responder.Vehicle,
		}
	}

	return status, nil
}

func (g *HTTPDispatchGateway) CancelTicket(ctx context.Context, ticketID, reason string) error {
	payload := map[string]string{
		"reason":      reason,
		"cancelledAt": time.Now().UTC().Format(time.RFC3339),
	}
	path := fmt.Sprintf("/emergency/%s/cancel", ticketID)
	return g.doJSON(ctx, http.MethodPost, path, payload, nil)
}

// doJSON performs one authenticated round trip. Non-2xx responses and
// transport errors both come back as gateway errors.
func (g *HTTPDispatchGateway) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return utils.NewGatewayError("Failed to encode PSC 119 request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return utils.NewGatewayError("Failed to build PSC 119 request", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return utils.NewGatewayError("PSC 119 request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		logrus.Errorf("PSC 119 returned %d for %s %s: %s", resp.StatusCode, method, path, string(respBody))
		return utils.NewGatewayError(
			fmt.Sprintf("PSC 119 returned status %d", resp.StatusCode), nil)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return utils.NewGatewayError("Failed to decode PSC 119 response", err)
		}
	}

	return nil
}

func flattenMedicalInfo(info *models.MedicalInfo) map[string]string {
	if info == nil {
		return nil
	}

	flat := map[string]string{}
	if info.Conscious != nil {
		flat["conscious"] = fmt.Sprintf("%t", *info.Conscious)
	}
	if info.Breathing != "" {
		flat["breathing"] = info.Breathing
	}
	if info.HasPulse != nil {
		flat["hasPulse"] = fmt.Sprintf("%t", *info.HasPulse)
	}
	if info.Age > 0 {
		flat["age"] = fmt.Sprintf("%d", info.Age)
	}
	if info.Gender != "" {
		flat["gender"] = info.Gender
	}
	return flat
}

// ===================== Mock gateway =====================

// MockDispatchGateway simulates PSC 119 for development and tests. Tickets
// are deterministic aside from the ID suffix.
type MockDispatchGateway struct{}

func NewMockDispatchGateway() *MockDispatchGateway {
	return &MockDispatchGateway{}
}

func (g *MockDispatchGateway) CreateTicket(ctx context.Context, emergency *models.Emergency) (*models.PSC119Ticket, error) {
	now := time.Now()
	eta := now.Add(15 * time.Minute)

	ticket := &models.PSC119Ticket{
		TicketID:         "PSC119-MOCK-" + uuid.New().String()[:8],
		DispatchedAt:     now.Add(2 * time.Minute),
		EstimatedArrival: &eta,
		AssignedUnit:     "AMB-JKT-001",
	}

	logrus.Infof("Mock PSC 119 ticket %s created for emergency %s", ticket.TicketID, emergency.ID.Hex())
	return ticket, nil
}

func (g *MockDispatchGateway) UpdateTicketStatus(ctx context.Context, ticketID, status string) error {
	logrus.Infof("Mock PSC 119 ticket %s status -> %s", ticketID, MapStatusToExternal(status))
	return nil
}

func (g *MockDispatchGateway) GetTicketStatus(ctx context.Context, ticketID string) (*interfaces.DispatchTicketStatus, error) {
	eta := time.Now().Add(10 * time.Minute)
	return &interfaces.DispatchTicketStatus{
		TicketID:         ticketID,
		Status:           models.EmergencyStatusDispatched,
		EstimatedArrival: &eta,
		AssignedUnit:     "AMB-JKT-001",
	}, nil
}

func (g *MockDispatchGateway) CancelTicket(ctx context.Context, ticketID, reason string) error {
	logrus.Infof("Mock PSC 119 ticket %s cancelled: %s", ticketID, reason)
	return nil
}

// ===================== Fallback gateway =====================

// FallbackDispatchGateway tries the primary gateway and falls back to the
// secondary when the primary fails. Used in development so a flaky upstream
// never blocks local flows; production wiring uses the HTTP gateway alone.
type FallbackDispatchGateway struct {
	primary  interfaces.DispatchGateway
	fallback interfaces.DispatchGateway
}

func NewFallbackDispatchGateway(primary, fallback interfaces.DispatchGateway) *FallbackDispatchGateway {
	return &FallbackDispatchGateway{primary: primary, fallback: fallback}
}

func (g *FallbackDispatchGateway) CreateTicket(ctx context.Context, emergency *models.Emergency) (*models.PSC119Ticket, error) {
	ticket, err := g.primary.CreateTicket(ctx, emergency)
	if err == nil {
		return ticket, nil
	}
	logrus.Warnf("Primary dispatch gateway failed, using fallback: %v", err)
	return g.fallback.CreateTicket(ctx, emergency)
}

func (g *FallbackDispatchGateway) UpdateTicketStatus(ctx context.Context, ticketID, status string) error {
	if err := g.primary.UpdateTicketStatus(ctx, ticketID, status); err == nil {
		return nil
	}
	return g.fallback.UpdateTicketStatus(ctx, ticketID, status)
}

func (g *FallbackDispatchGateway) GetTicketStatus(ctx context.Context, ticketID string) (*interfaces.DispatchTicketStatus, error) {
	status, err := g.primary.GetTicketStatus(ctx, ticketID)
	if err == nil {
		return status, nil
	}
	return g.fallback.GetTicketStatus(ctx, ticketID)
}

func (g *FallbackDispatchGateway) CancelTicket(ctx context.Context, ticketID, reason string) error {
	if err := g.primary.CancelTicket(ctx, ticketID, reason); err == nil {
		return nil
	}
	return g.fallback.CancelTicket(ctx, ticketID, reason)
}
