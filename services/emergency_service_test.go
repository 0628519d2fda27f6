package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"nakeslink/interfaces"
	"nakeslink/models"
	"nakeslink/repositories"
	"nakeslink/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ===================== test fakes =====================

type fakeEmergencyStore struct {
	emergencies map[string]*models.Emergency
	createErr   error
	saveErr     error
}

func newFakeEmergencyStore() *fakeEmergencyStore {
	return &fakeEmergencyStore{emergencies: map[string]*models.Emergency{}}
}

func (s *fakeEmergencyStore) Create(ctx context.Context, emergency *models.Emergency) error {
	if s.createErr != nil {
		return s.createErr
	}
	emergency.ID = primitive.NewObjectID()
	emergency.Version = 1
	emergency.CreatedAt = time.Now()
	emergency.UpdatedAt = emergency.CreatedAt
	copied := *emergency
	s.emergencies[emergency.ID.Hex()] = &copied
	return nil
}

func (s *fakeEmergencyStore) GetByID(ctx context.Context, emergencyID string) (*models.Emergency, error) {
	stored, ok := s.emergencies[emergencyID]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	copied := *stored
	return &copied, nil
}

func (s *fakeEmergencyStore) Save(ctx context.Context, emergency *models.Emergency) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	stored, ok := s.emergencies[emergency.ID.Hex()]
	if !ok || stored.Version != emergency.Version {
		return repositories.ErrStaleDocument
	}
	emergency.Version++
	emergency.UpdatedAt = time.Now()
	copied := *emergency
	s.emergencies[emergency.ID.Hex()] = &copied
	return nil
}

func (s *fakeEmergencyStore) GetUserEmergencies(ctx context.Context, userID string, page, pageSize int, status string) ([]models.EmergencyListItem, int64, error) {
	var items []models.EmergencyListItem
	for _, e := range s.emergencies {
		if e.UserID.Hex() != userID {
			continue
		}
		if status != "" && e.Status != status {
			continue
		}
		items = append(items, models.EmergencyListItem{
			ID:       e.ID,
			Type:     e.Type,
			Severity: e.Severity,
			Status:   e.Status,
			Priority: e.Priority,
		})
	}
	return items, int64(len(items)), nil
}

func (s *fakeEmergencyStore) GetActiveEmergencies(ctx context.Context) ([]models.Emergency, error) {
	var out []models.Emergency
	for _, e := range s.emergencies {
		for _, status := range models.ActiveStatuses {
			if e.Status == status {
				out = append(out, *e)
				break
			}
		}
	}
	return out, nil
}

func (s *fakeEmergencyStore) GetActiveNear(ctx context.Context, longitude, latitude, radiusKm float64) ([]models.Emergency, error) {
	return s.GetActiveEmergencies(ctx)
}

func (s *fakeEmergencyStore) CountActive(ctx context.Context, userID string) (int64, error) {
	active, _ := s.GetActiveEmergencies(ctx)
	var count int64
	for _, e := range active {
		if userID == "" || e.UserID.Hex() == userID {
			count++
		}
	}
	return count, nil
}

func (s *fakeEmergencyStore) GetStats(ctx context.Context, startDate, endDate *time.Time) (*models.EmergencyStats, error) {
	active, _ := s.GetActiveEmergencies(ctx)
	return &models.EmergencyStats{
		TotalEmergencies:  int64(len(s.emergencies)),
		ActiveEmergencies: int64(len(active)),
		ResponseTime:      map[string]float64{},
		ResolutionTime:    map[string]float64{},
	}, nil
}

type fakeUserDirectory struct {
	users     map[string]*models.User
	providers []models.User
}

func newFakeUserDirectory() *fakeUserDirectory {
	return &fakeUserDirectory{users: map[string]*models.User{}}
}

func (d *fakeUserDirectory) addUser(user models.User) models.User {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	d.users[user.ID.Hex()] = &user
	if user.Role == models.RoleNakes && user.Location != nil {
		d.providers = append(d.providers, user)
	}
	return user
}

func (d *fakeUserDirectory) GetByID(ctx context.Context, userID string) (*models.User, error) {
	user, ok := d.users[userID]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return user, nil
}

func (d *fakeUserDirectory) GetActiveProvidersWithLocation(ctx context.Context) ([]models.User, error) {
	return d.providers, nil
}

type stubGateway struct {
	createErr    error
	createCalled int
	updateCalls  []string
	cancelCalls  []string
	statusResult *interfaces.DispatchTicketStatus
	statusErr    error
}

func (g *stubGateway) CreateTicket(ctx context.Context, emergency *models.Emergency) (*models.PSC119Ticket, error) {
	g.createCalled++
	if g.createErr != nil {
		return nil, g.createErr
	}
	eta := time.Now().Add(15 * time.Minute)
	return &models.PSC119Ticket{
		TicketID:         "PSC119-TEST-0001",
		DispatchedAt:     time.Now(),
		EstimatedArrival: &eta,
		AssignedUnit:     "AMB-TEST-001",
	}, nil
}

func (g *stubGateway) UpdateTicketStatus(ctx context.Context, ticketID, status string) error {
	g.updateCalls = append(g.updateCalls, status)
	return nil
}

func (g *stubGateway) GetTicketStatus(ctx context.Context, ticketID string) (*interfaces.DispatchTicketStatus, error) {
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	return g.statusResult, nil
}

func (g *stubGateway) CancelTicket(ctx context.Context, ticketID, reason string) error {
	g.cancelCalls = append(g.cancelCalls, reason)
	return nil
}

// ===================== helpers =====================

func boolPtr(b bool) *bool { return &b }

// Monas, central Jakarta
var testCoordinates = []float64{106.8456, -6.2088}

func validCreateRequest() models.CreateEmergencyRequest {
	return models.CreateEmergencyRequest{
		Type:        models.EmergencyTypeMedical,
		Severity:    models.SeverityHigh,
		Description: "Patient collapsed in shopping mall",
		Location: models.EmergencyLocationRequest{
			Coordinates: testCoordinates,
			Address:     "Jl. Medan Merdeka, Jakarta",
		},
		ContactNumber: "+6281234567890",
	}
}

type testEnv struct {
	store     *fakeEmergencyStore
	users     *fakeUserDirectory
	gateway   *stubGateway
	notifier  *MockNotifier
	service   *EmergencyService
	reporter  models.User
	providers []models.User
}

func newTestEnv(t *testing.T, providerCount int) *testEnv {
	t.Helper()

	store := newFakeEmergencyStore()
	users := newFakeUserDirectory()
	gateway := &stubGateway{}
	notifier := NewMockNotifier()

	reporter := users.addUser(models.User{
		Email:    "reporter@example.com",
		FullName: "Test Reporter",
		Role:     models.RoleUser,
		IsActive: true,
	})

	var providers []models.User
	for i := 0; i < providerCount; i++ {
		// Each provider roughly i+1 km north of the incident.
		provider := users.addUser(models.User{
			Email:    fmt.Sprintf("nakes%d@example.com", i),
			FullName: fmt.Sprintf("Nakes %d", i),
			Role:     models.RoleNakes,
			Location: &models.UserLocation{
				Type:        "Point",
				Coordinates: []float64{testCoordinates[0], testCoordinates[1] + float64(i+1)*0.009},
			},
			IsVerified: true,
			IsActive:   true,
		})
		providers = append(providers, provider)
	}

	return &testEnv{
		store:     store,
		users:     users,
		gateway:   gateway,
		notifier:  notifier,
		service:   NewEmergencyService(store, users, gateway, notifier),
		reporter:  reporter,
		providers: providers,
	}
}

// ===================== priority scoring =====================

func TestCalculatePriority(t *testing.T) {
	tests := []struct {
		name        string
		typ         string
		severity    string
		medicalInfo *models.MedicalInfo
		want        int
	}{
		{"critical severity", models.EmergencyTypeFire, models.SeverityCritical, nil, 5},
		{"high severity", models.EmergencyTypeAccident, models.SeverityHigh, nil, 4},
		{"medium severity", models.EmergencyTypeMedical, models.SeverityMedium, nil, 3},
		{"low severity", models.EmergencyTypeOther, models.SeverityLow, nil, 2},
		{"unknown severity defaults to 3", models.EmergencyTypeCrime, "weird", nil, 3},
		{
			"unconscious forces maximum",
			models.EmergencyTypeMedical, models.SeverityLow,
			&models.MedicalInfo{Conscious: boolPtr(false)},
			5,
		},
		{
			"absent breathing forces maximum",
			models.EmergencyTypeMedical, models.SeverityLow,
			&models.MedicalInfo{Breathing: models.BreathingNone},
			5,
		},
		{
			"breathing difficulty raises floor to 4",
			models.EmergencyTypeMedical, models.SeverityLow,
			&models.MedicalInfo{Conscious: boolPtr(true), Breathing: models.BreathingDifficulty},
			4,
		},
		{
			"missing pulse raises floor to 4",
			models.EmergencyTypeMedical, models.SeverityMedium,
			&models.MedicalInfo{Conscious: boolPtr(true), HasPulse: boolPtr(false)},
			4,
		},
		{
			"difficulty does not lower critical",
			models.EmergencyTypeMedical, models.SeverityCritical,
			&models.MedicalInfo{Conscious: boolPtr(true), Breathing: models.BreathingDifficulty},
			5,
		},
		{
			"vitals ignored for non-medical type",
			models.EmergencyTypeAccident, models.SeverityLow,
			&models.MedicalInfo{Conscious: boolPtr(false)},
			2,
		},
		{
			"normal vitals leave severity base",
			models.EmergencyTypeMedical, models.SeverityMedium,
			&models.MedicalInfo{Conscious: boolPtr(true), Breathing: models.BreathingNormal, HasPulse: boolPtr(true)},
			3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculatePriority(tt.typ, tt.severity, tt.medicalInfo)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, 1)
			assert.LessOrEqual(t, got, 5)
		})
	}
}

// ===================== creation pipeline =====================

func TestCreateEmergency_CriticalMedicalEscalates(t *testing.T) {
	env := newTestEnv(t, 3)

	req := validCreateRequest()
	req.Severity = models.SeverityCritical
	req.MedicalInfo = &models.MedicalInfo{Conscious: boolPtr(false)}

	result, err := env.service.CreateEmergency(context.Background(), env.reporter.ID.Hex(), req)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Priority)
	assert.Equal(t, models.EmergencyStatusDispatched, result.Status)
	assert.Equal(t, "PSC119-TEST-0001", result.PSC119TicketID)
	assert.NotNil(t, result.EstimatedArrival)
	assert.Equal(t, 3, result.NearbyProvidersCount)
	assert.Equal(t, 1, env.gateway.createCalled)

	stored, err := env.store.GetByID(context.Background(), result.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PSC119)
	assert.Equal(t, "AMB-TEST-001", stored.PSC119.AssignedUnit)

	// Timeline carries creation then dispatch, in order.
	require.Len(t, stored.Timeline, 2)
	assert.Equal(t, models.TimelineEventCreated, stored.Timeline[0].Event)
	assert.Equal(t, models.TimelineEventDispatched, stored.Timeline[1].Event)

	// All three providers notified plus the reporter confirmation.
	for _, provider := range env.providers {
		assert.Len(t, env.notifier.SentTo(provider.ID.Hex()), 1)
	}
	assert.Len(t, env.notifier.SentTo(env.reporter.ID.Hex()), 1)
}

func TestCreateEmergency_MediumSeverityStaysLocal(t *testing.T) {
	env := newTestEnv(t, 2)

	req := validCreateRequest()
	req.Severity = models.SeverityMedium

	result, err := env.service.CreateEmergency(context.Background(), env.reporter.ID.Hex(), req)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Priority)
	assert.Equal(t, models.EmergencyStatusPending, result.Status)
	assert.Empty(t, result.PSC119TicketID)
	assert.Zero(t, env.gateway.createCalled)
}

func TestCreateEmergency_DefaultsSeverityToMedium(t *testing.T) {
	env := newTestEnv(t, 0)

	req := validCreateRequest()
	req.Severity = ""

	result, err := env.service.CreateEmergency(context.Background(), env.reporter.ID.Hex(), req)
	require.NoError(t, err)

	assert.Equal(t, models.SeverityMedium, result.Severity)
	assert.Equal(t, 3, result.Priority)
}

func TestCreateEmergency_GatewayFailureLeavesPending(t *testing.T) {
	env := newTestEnv(t, 2)
	env.gateway.createErr = utils.NewGatewayError("PSC 119 unreachable", errors.New("connection refused"))

	req := validCreateRequest()
	req.Severity = models.SeverityCritical

	result, err := env.service.CreateEmergency(context.Background(), env.reporter.ID.Hex(), req)
	require.NoError(t, err)

	assert.Equal(t, models.EmergencyStatusPending, result.Status)
	assert.Empty(t, result.PSC119TicketID)
	assert.Equal(t, 1, env.gateway.createCalled)

	// Providers still get alerted even when dispatch fails.
	assert.Equal(t, 2, result.NearbyProvidersCount)
	for _, provider := range env.providers {
		assert.Len(t, env.notifier.SentTo(provider.ID.Hex()), 1)
	}
}

func TestCreateEmergency_ValidationFailures(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	userID := env.reporter.ID.Hex()

	noDescription := validCreateRequest()
	noDescription.Description = ""
	_, err := env.service.CreateEmergency(ctx, userID, noDescription)
	assert.True(t, utils.IsServiceErrorCode(err, utils.ErrCodeValidation))

	badType := validCreateRequest()
	badType.Type = "sinkhole"
	_, err = env.service.CreateEmergency(ctx, userID, badType)
	assert.True(t, utils.IsServiceErrorCode(err, utils.ErrCodeValidation))

	badCoords := validCreateRequest()
	badCoords.Location.Coordinates = []float64{200, 95}
	_, err = env.service.CreateEmergency(ctx, userID, badCoords)
	assert.True(t, utils.IsServiceErrorCode(err, utils.ErrCodeValidation))

	shortCoords := validCreateRequest()
	shortCoords.Location.Coordinates = []float64{106.8}
	_, err = env.service.CreateEmergency(ctx, userID, shortCoords)
	assert.True(t, utils.IsServiceErrorCode(err, utils.ErrCodeValidation))
}

func TestCreateEmergency_ProviderDiscoveryLimits(t *testing.T) {
	// 12 providers at 1..12 km: discovery keeps the 10 in radius, sorted by
	// distance, and fan-out alerts only the nearest 5.
	env := newTestEnv(t, 12)

	result, err := env.service.CreateEmergency(context.Background(), env.reporter.ID.Hex(), validCreateRequest())
	require.NoError(t, err)

	assert.Equal(t, 10, result.NearbyProvidersCount)

	stored, err := env.store.GetByID(context.Background(), result.ID)
	require.NoError(t, err)
	require.Len(t, stored.NearbyProviders, 10)

	for i := 1; i < len(stored.NearbyProviders); i++ {
		assert.LessOrEqual(t, stored.NearbyProviders[i-1].DistanceKm, stored.NearbyProviders[i].DistanceKm)
	}
	for _, p := range stored.NearbyProviders {
		assert.LessOrEqual(t, p.DistanceKm, 10.0)
	}

	notified := 0
	for _, p := range stored.NearbyProviders {
		if p.Notified {
			assert.NotNil(t, p.NotifiedAt)
			notified++
		}
	}
	assert.Equal(t, 5, notified)
}

func TestCreateEmergency_ToleratesPartialNotificationFailure(t *testing.T) {
	env := newTestEnv(t, 4)
	env.notifier.FailFor[env.providers[1].ID.Hex()] = true

	result, err := env.service.CreateEmergency(context.Background(), env.reporter.ID.Hex(), validCreateRequest())
	require.NoError(t, err)

	stored, err := env.store.GetByID(context.Background(), result.ID)
	require.NoError(t, err)

	for _, p := range stored.NearbyProviders {
		if p.ProviderID == env.providers[1].ID {
			assert.False(t, p.Notified)
			assert.Nil(t, p.NotifiedAt)
		} else {
			assert.True(t, p.Notified)
		}
	}
}

// ===================== provider response =====================

func TestCreateEmergency_CapsActivePerReporter(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	reporterID := env.reporter.ID.Hex()

	for i := 0; i < maxActiveEmergenciesPerUser; i++ {
		_, err := env.service.CreateEmergency(ctx, reporterID, validCreateRequest())
		require.NoError(t, err)
	}

	_, err := env.service.CreateEmergency(ctx, reporterID, validCreateRequest())
	assert.True(t, utils.IsConflict(err))

	// Another reporter is unaffected.
	other := env.users.addUser(models.User{
		Email:    "other@example.com",
		FullName: "Other Reporter",
		Role:     models.RoleUser,
		IsActive: true,
	})
	_, err = env.service.CreateEmergency(ctx, other.ID.Hex(), validCreateRequest())
	require.NoError(t, err)
}

func TestRespondToEmergency_Success(t *testing.T) {
	env := newTestEnv(t, 2)

	result, err := env.service.CreateEmergency(context.Background(), env.reporter.ID.Hex(), validCreateRequest())
	require.NoError(t, err)

	eta := time.Now().Add(8 * time.Minute)
	updated, err := env.service.RespondToEmergency(context.Background(), env.providers[0].ID.Hex(), result.ID, models.RespondToEmergencyRequest{
		Response:         models.ProviderResponseEnRoute,
		EstimatedArrival: &eta,
	})
	require.NoError(t, err)

	var entry *models.NearbyProvider
	for i := range updated.NearbyProviders {
		if updated.NearbyProviders[i].ProviderID == env.providers[0].ID {
			entry = &updated.NearbyProviders[i]
		}
	}
	require.NotNil(t, entry)
	assert.True(t, entry.Responded)
	assert.Equal(t, models.ProviderResponseEnRoute, entry.Response)
	assert.NotNil(t, entry.RespondedAt)

	last := updated.Timeline[len(updated.Timeline)-1]
	assert.Equal(t, models.TimelineEventProviderResponse, last.Event)

	// Reporter hears that help is coming.
	reporterMsgs := env.notifier.SentTo(env.reporter.ID.Hex())
	require.NotEmpty(t, reporterMsgs)
	assert.Equal(t, models.NotificationEmergencyResponse, reporterMsgs[len(reporterMsgs)-1].Type)
}

func TestRespondToEmergency_NotifiesUnavailable(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()

	result, err := env.service.CreateEmergency(ctx, env.reporter.ID.Hex(), validCreateRequest())
	require.NoError(t, err)

	before := len(env.notifier.SentTo(env.reporter.ID.Hex()))

	_, err = env.service.RespondToEmergency(ctx, env.providers[0].ID.Hex(), result.ID, models.RespondToEmergencyRequest{
		Response: models.ProviderResponseUnavailable,
	})
	require.NoError(t, err)

	// The reporter hears about declines too.
	reporterMsgs := env.notifier.SentTo(env.reporter.ID.Hex())
	require.Len(t, reporterMsgs, before+1)
	last := reporterMsgs[len(reporterMsgs)-1]
	assert.Equal(t, models.NotificationEmergencyResponse, last.Type)
	assert.Equal(t, models.ProviderResponseUnavailable, last.Data["response"])
}

func TestRespondToEmergency_RejectsOutsiders(t *testing.T) {
	env := newTestEnv(t, 1)

	result, err := env.service.CreateEmergency(context.Background(), env.reporter.ID.Hex(), validCreateRequest())
	require.NoError(t, err)

	// A provider that was never alerted.
	outsider := env.users.addUser(models.User{
		Email:    "far.nakes@example.com",
		FullName: "Far Nakes",
		Role:     models.RoleNakes,
		IsActive: true,
	})

	_, err = env.service.RespondToEmergency(context.Background(), outsider.ID.Hex(), result.ID, models.RespondToEmergencyRequest{
		Response: models.ProviderResponseAvailable,
	})
	assert.True(t, utils.IsServiceErrorCode(err, utils.ErrCodeForbidden))

	// A plain user cannot respond at all.
	_, err = env.service.RespondToEmergency(context.Background(), env.reporter.ID.Hex(), result.ID, models.RespondToEmergencyRequest{
		Response: models.ProviderResponseAvailable,
	})
	assert.True(t, utils.IsServiceErrorCode(err, utils.ErrCodeForbidden))
}

// ===================== status lifecycle =====================

func TestUpdateEmergencyStatus_Authorization(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	reporterID := env.reporter.ID.Hex()

	result, err := env.service.CreateEmergency(ctx, reporterID, validCreateRequest())
	require.NoError(t, err)

	// A stranger cannot touch it; neither can a provider that was never
	// put on the nearby list.
	stranger := primitive.NewObjectID().Hex()
	_, err = env.service.UpdateEmergencyStatus(ctx, stranger, models.RoleUser, result.ID, models.UpdateEmergencyStatusRequest{
		Status: models.EmergencyStatusCancelled,
	})
	assert.True(t, utils.IsServiceErrorCode(err, utils.ErrCodeForbidden))

	unlistedNakes := primitive.NewObjectID().Hex()
	_, err = env.service.UpdateEmergencyStatus(ctx, unlistedNakes, models.RoleNakes, result.ID, models.UpdateEmergencyStatusRequest{
		Status: models.EmergencyStatusOnScene,
	})
	assert.True(t, utils.IsServiceErrorCode(err, utils.ErrCodeForbidden))

	// A listed provider may move the status.
	_, err = env.service.UpdateEmergencyStatus(ctx, env.providers[0].ID.Hex(), models.RoleNakes, result.ID, models.UpdateEmergencyStatusRequest{
		Status: models.EmergencyStatusEnRoute,
	})
	require.NoError(t, err)

	// The reporter cancels with bookkeeping.
	updated, err := env.service.UpdateEmergencyStatus(ctx, reporterID, models.RoleUser, result.ID, models.UpdateEmergencyStatusRequest{
		Status: models.EmergencyStatusCancelled,
		Notes:  "False alarm",
	})
	require.NoError(t, err)

	assert.Equal(t, models.EmergencyStatusCancelled, updated.Status)
	assert.Equal(t, "False alarm", updated.CancellationReason)
	assert.NotNil(t, updated.CancelledAt)
	assert.False(t, updated.IsActive)
}

func TestUpdateEmergencyStatus_StaffResolvesWithTimeline(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()

	result, err := env.service.CreateEmergency(ctx, env.reporter.ID.Hex(), validCreateRequest())
	require.NoError(t, err)

	before, err := env.store.GetByID(ctx, result.ID)
	require.NoError(t, err)
	timelineBefore := len(before.Timeline)

	updated, err := env.service.UpdateEmergencyStatus(ctx, env.providers[0].ID.Hex(), models.RoleNakes, result.ID, models.UpdateEmergencyStatusRequest{
		Status: models.EmergencyStatusResolved,
		Resolution: &models.EmergencyResolution{
			Outcome:       "treated_on_scene",
			TransportedTo: "",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, models.EmergencyStatusResolved, updated.Status)
	assert.NotNil(t, updated.ResolvedAt)
	assert.False(t, updated.IsActive)
	require.NotNil(t, updated.Resolution)
	assert.Equal(t, "treated_on_scene", updated.Resolution.Outcome)

	// Exactly one timeline entry added, earlier entries untouched.
	require.Len(t, updated.Timeline, timelineBefore+1)
	assert.Equal(t, models.TimelineEventStatusUpdated, updated.Timeline[timelineBefore].Event)
	assert.Equal(t, before.Timeline[0].Event, updated.Timeline[0].Event)
}

func TestUpdateEmergencyStatus_TerminalIsFinal(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	reporterID := env.reporter.ID.Hex()

	result, err := env.service.CreateEmergency(ctx, reporterID, validCreateRequest())
	require.NoError(t, err)

	_, err = env.service.UpdateEmergencyStatus(ctx, reporterID, models.RoleUser, result.ID, models.UpdateEmergencyStatusRequest{
		Status: models.EmergencyStatusCancelled,
	})
	require.NoError(t, err)

	_, err = env.service.UpdateEmergencyStatus(ctx, reporterID, models.RoleAdmin, result.ID, models.UpdateEmergencyStatusRequest{
		Status: models.EmergencyStatusDispatched,
	})
	assert.True(t, utils.IsServiceErrorCode(err, utils.ErrCodeConflict))
}

func TestUpdateEmergencyStatus_RejectsUnknownStatus(t *testing.T) {
	env := newTestEnv(t, 0)

	_, err := env.service.UpdateEmergencyStatus(context.Background(), env.reporter.ID.Hex(), models.RoleAdmin, primitive.NewObjectID().Hex(), models.UpdateEmergencyStatusRequest{
		Status: "teleported",
	})
	assert.True(t, utils.IsServiceErrorCode(err, utils.ErrCodeValidation))
}

func TestUpdateEmergencyStatus_StaleVersionConflicts(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	reporterID := env.reporter.ID.Hex()

	result, err := env.service.CreateEmergency(ctx, reporterID, validCreateRequest())
	require.NoError(t, err)

	env.store.saveErr = repositories.ErrStaleDocument
	_, err = env.service.UpdateEmergencyStatus(ctx, reporterID, models.RoleUser, result.ID, models.UpdateEmergencyStatusRequest{
		Status: models.EmergencyStatusEnRoute,
	})
	assert.True(t, utils.IsConflict(err))
}

func TestUpdateEmergencyStatus_CancelSyncsTicket(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	reporterID := env.reporter.ID.Hex()

	req := validCreateRequest()
	req.Severity = models.SeverityCritical
	result, err := env.service.CreateEmergency(ctx, reporterID, req)
	require.NoError(t, err)
	require.NotEmpty(t, result.PSC119TicketID)

	_, err = env.service.UpdateEmergencyStatus(ctx, reporterID, models.RoleUser, result.ID, models.UpdateEmergencyStatusRequest{
		Status: models.EmergencyStatusCancelled,
		Notes:  "Resolved privately",
	})
	require.NoError(t, err)

	require.Len(t, env.gateway.cancelCalls, 1)
	assert.Equal(t, "Resolved privately", env.gateway.cancelCalls[0])
}

// ===================== reads, sync, stats =====================

func TestGetEmergency_AccessRules(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	reporterID := env.reporter.ID.Hex()

	result, err := env.service.CreateEmergency(ctx, reporterID, validCreateRequest())
	require.NoError(t, err)

	_, err = env.service.GetEmergency(ctx, reporterID, models.RoleUser, result.ID)
	assert.NoError(t, err)

	_, err = env.service.GetEmergency(ctx, env.providers[0].ID.Hex(), models.RoleNakes, result.ID)
	assert.NoError(t, err)

	_, err = env.service.GetEmergency(ctx, primitive.NewObjectID().Hex(), models.RoleAdmin, result.ID)
	assert.NoError(t, err)

	stranger := primitive.NewObjectID().Hex()
	_, err = env.service.GetEmergency(ctx, stranger, models.RoleUser, result.ID)
	assert.True(t, utils.IsServiceErrorCode(err, utils.ErrCodeForbidden))

	// A provider that is not on the nearby list has no access either.
	_, err = env.service.GetEmergency(ctx, primitive.NewObjectID().Hex(), models.RoleNakes, result.ID)
	assert.True(t, utils.IsServiceErrorCode(err, utils.ErrCodeForbidden))

	_, err = env.service.GetEmergency(ctx, reporterID, models.RoleUser, primitive.NewObjectID().Hex())
	assert.True(t, utils.IsServiceErrorCode(err, utils.ErrCodeNotFound))
}

func TestSyncPSC119Status_AppliesRemoteState(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	req := validCreateRequest()
	req.Severity = models.SeverityCritical
	result, err := env.service.CreateEmergency(ctx, env.reporter.ID.Hex(), req)
	require.NoError(t, err)

	eta := time.Now().Add(5 * time.Minute)
	env.gateway.statusResult = &interfaces.DispatchTicketStatus{
		TicketID:         result.PSC119TicketID,
		Status:           models.EmergencyStatusEnRoute,
		EstimatedArrival: &eta,
		AssignedUnit:     "AMB-TEST-002",
		Responder:        &models.ResponderInfo{Name: "Tim Medis 3", Vehicle: "Ambulance"},
	}

	updated, err := env.service.SyncPSC119Status(ctx, env.reporter.ID.Hex(), models.RoleUser, result.ID)
	require.NoError(t, err)

	assert.Equal(t, models.EmergencyStatusEnRoute, updated.Status)
	assert.Equal(t, "AMB-TEST-002", updated.PSC119.AssignedUnit)
	require.NotNil(t, updated.PSC119.Responder)
	assert.Equal(t, "Tim Medis 3", updated.PSC119.Responder.Name)

	last := updated.Timeline[len(updated.Timeline)-1]
	assert.Equal(t, models.TimelineEventStatusUpdated, last.Event)
}

func TestSyncPSC119Status_RequiresTicket(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	result, err := env.service.CreateEmergency(ctx, env.reporter.ID.Hex(), validCreateRequest())
	require.NoError(t, err)

	_, err = env.service.SyncPSC119Status(ctx, env.reporter.ID.Hex(), models.RoleUser, result.ID)
	assert.True(t, utils.IsServiceErrorCode(err, utils.ErrCodeValidation))
}

func TestSyncPSC119Status_Authorization(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	req := validCreateRequest()
	req.Severity = models.SeverityCritical
	result, err := env.service.CreateEmergency(ctx, env.reporter.ID.Hex(), req)
	require.NoError(t, err)
	require.NotEmpty(t, result.PSC119TicketID)

	env.gateway.statusResult = &interfaces.DispatchTicketStatus{
		TicketID: result.PSC119TicketID,
		Status:   models.EmergencyStatusEnRoute,
	}

	// A provider that was never alerted gets nothing, same as the detail
	// read.
	unlistedNakes := primitive.NewObjectID().Hex()
	_, err = env.service.SyncPSC119Status(ctx, unlistedNakes, models.RoleNakes, result.ID)
	assert.True(t, utils.IsServiceErrorCode(err, utils.ErrCodeForbidden))

	stranger := primitive.NewObjectID().Hex()
	_, err = env.service.SyncPSC119Status(ctx, stranger, models.RoleUser, result.ID)
	assert.True(t, utils.IsServiceErrorCode(err, utils.ErrCodeForbidden))

	// The reporter and admins may pull remote state.
	_, err = env.service.SyncPSC119Status(ctx, env.reporter.ID.Hex(), models.RoleUser, result.ID)
	require.NoError(t, err)

	_, err = env.service.SyncPSC119Status(ctx, primitive.NewObjectID().Hex(), models.RoleAdmin, result.ID)
	require.NoError(t, err)
}

func TestGetActiveEmergencies_ValidatesCoordinates(t *testing.T) {
	env := newTestEnv(t, 0)

	lon, lat := 200.0, -6.2
	_, err := env.service.GetActiveEmergencies(context.Background(), models.ActiveEmergenciesQuery{
		Longitude: &lon,
		Latitude:  &lat,
	})
	assert.True(t, utils.IsServiceErrorCode(err, utils.ErrCodeValidation))
}

func TestGetUserEmergencies_RejectsBadStatusFilter(t *testing.T) {
	env := newTestEnv(t, 0)

	_, _, err := env.service.GetUserEmergencies(context.Background(), env.reporter.ID.Hex(), 1, 20, "vanished")
	assert.True(t, utils.IsServiceErrorCode(err, utils.ErrCodeValidation))
}

func TestGetEmergencyStats_ValidatesRange(t *testing.T) {
	env := newTestEnv(t, 0)

	start := time.Now()
	end := start.Add(-24 * time.Hour)
	_, err := env.service.GetEmergencyStats(context.Background(), models.EmergencyStatsRequest{
		StartDate: &start,
		EndDate:   &end,
	})
	assert.True(t, utils.IsServiceErrorCode(err, utils.ErrCodeValidation))
}
