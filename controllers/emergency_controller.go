package controllers

import (
	"strconv"

	"nakeslink/models"
	"nakeslink/services"
	"nakeslink/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type EmergencyController struct {
	emergencyService *services.EmergencyService
}

func NewEmergencyController(emergencyService *services.EmergencyService) *EmergencyController {
	return &EmergencyController{
		emergencyService: emergencyService,
	}
}

// CreateEmergency handles POST /emergencies
func (ec *EmergencyController) CreateEmergency(c *gin.Context) {
	userID := c.GetString("userID")

	var req models.CreateEmergencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request format")
		return
	}

	result, err := ec.emergencyService.CreateEmergency(c.Request.Context(), userID, req)
	if err != nil {
		logrus.Errorf("Create emergency failed for user %s: %v", userID, err)
		utils.HandleServiceError(c, err, "Failed to create emergency")
		return
	}

	utils.CreatedResponse(c, "Emergency created successfully", result)
}

// GetEmergency handles GET /emergencies/:id
func (ec *EmergencyController) GetEmergency(c *gin.Context) {
	userID := c.GetString("userID")
	role := c.GetString("userRole")
	emergencyID := c.Param("id")

	emergency, err := ec.emergencyService.GetEmergency(c.Request.Context(), userID, role, emergencyID)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to get emergency")
		return
	}

	utils.SuccessResponse(c, "Emergency retrieved successfully", emergency)
}

// GetEmergencyTimeline handles GET /emergencies/:id/timeline
func (ec *EmergencyController) GetEmergencyTimeline(c *gin.Context) {
	userID := c.GetString("userID")
	role := c.GetString("userRole")
	emergencyID := c.Param("id")

	emergency, err := ec.emergencyService.GetEmergency(c.Request.Context(), userID, role, emergencyID)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to get emergency timeline")
		return
	}

	utils.SuccessResponse(c, "Timeline retrieved successfully", emergency.Timeline)
}

// GetUserEmergencies handles GET /emergencies (the caller's own history)
func (ec *EmergencyController) GetUserEmergencies(c *gin.Context) {
	userID := c.GetString("userID")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	status := c.Query("status")

	items, total, err := ec.emergencyService.GetUserEmergencies(c.Request.Context(), userID, page, pageSize, status)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to get emergencies")
		return
	}

	meta := utils.CreatePaginationMeta(page, pageSize, total)
	utils.SuccessResponseWithMeta(c, "Emergencies retrieved successfully", items, meta)
}

// GetActiveEmergencies handles GET /emergencies/active (provider/admin)
func (ec *EmergencyController) GetActiveEmergencies(c *gin.Context) {
	var query models.ActiveEmergenciesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		utils.BadRequestResponse(c, "Invalid query parameters")
		return
	}

	emergencies, err := ec.emergencyService.GetActiveEmergencies(c.Request.Context(), query)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to get active emergencies")
		return
	}

	utils.SuccessResponse(c, "Active emergencies retrieved successfully", emergencies)
}

// RespondToEmergency handles POST /emergencies/:id/respond (provider)
func (ec *EmergencyController) RespondToEmergency(c *gin.Context) {
	providerID := c.GetString("userID")
	emergencyID := c.Param("id")

	var req models.RespondToEmergencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request format")
		return
	}

	emergency, err := ec.emergencyService.RespondToEmergency(c.Request.Context(), providerID, emergencyID, req)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to record response")
		return
	}

	utils.SuccessResponse(c, "Response recorded successfully", emergency)
}

// UpdateEmergencyStatus handles PATCH /emergencies/:id/status
func (ec *EmergencyController) UpdateEmergencyStatus(c *gin.Context) {
	userID := c.GetString("userID")
	role := c.GetString("userRole")
	emergencyID := c.Param("id")

	var req models.UpdateEmergencyStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request format")
		return
	}

	emergency, err := ec.emergencyService.UpdateEmergencyStatus(c.Request.Context(), userID, role, emergencyID, req)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to update emergency status")
		return
	}

	utils.SuccessResponse(c, "Emergency status updated successfully", emergency)
}

// SyncPSC119Status handles POST /emergencies/:id/psc119/sync
func (ec *EmergencyController) SyncPSC119Status(c *gin.Context) {
	userID := c.GetString("userID")
	role := c.GetString("userRole")
	emergencyID := c.Param("id")

	emergency, err := ec.emergencyService.SyncPSC119Status(c.Request.Context(), userID, role, emergencyID)
	if err != nil {
		logrus.Errorf("PSC 119 sync failed for emergency %s: %v", emergencyID, err)
		utils.HandleServiceError(c, err, "Failed to sync PSC 119 status")
		return
	}

	utils.SuccessResponse(c, "PSC 119 status synced successfully", emergency)
}

// GetEmergencyStats handles GET /emergencies/stats (admin)
func (ec *EmergencyController) GetEmergencyStats(c *gin.Context) {
	var req models.EmergencyStatsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid query parameters")
		return
	}

	stats, err := ec.emergencyService.GetEmergencyStats(c.Request.Context(), req)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to get emergency stats")
		return
	}

	utils.SuccessResponse(c, "Emergency stats retrieved successfully", stats)
}
