package handlers

import (
	"errors"
	"net/http"
	"time"

	"fermenter_controller/internal/models"
	"fermenter_controller/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	statusOK = "ok"

	errGetStatus       = "failed to load status"
	errGetConfig       = "failed to load control config"
	errSaveConfig      = "failed to save control config"
	errInvalidBodyPref = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// ConfigRequest is the body of PUT /api/v1/control/config. Omitted fields keep
// their stored value.
type ConfigRequest struct {
	LowLimit  *float64 `json:"low_limit,omitempty" example:"66"`
	HighLimit *float64 `json:"high_limit,omitempty" example:"68"`
	// Remove both limits; the controller then holds its current outputs.
	ClearLimits    bool    `json:"clear_limits,omitempty"`
	HeatingEnabled *bool   `json:"heating_enabled,omitempty" example:"true"`
	CoolingEnabled *bool   `json:"cooling_enabled,omitempty" example:"true"`
	BoundSensorID  *string `json:"bound_sensor_id,omitempty" example:"RED"`
	// Control interval as a Go duration, e.g. "2m".
	ControlInterval *string `json:"control_interval,omitempty" example:"2m"`
	HeaterAddress   *string `json:"heater_address,omitempty" example:"http://10.0.0.20"`
	CoolerAddress   *string `json:"cooler_address,omitempty" example:"mqtt://ferm_cooler"`
}

// ConfigResponse mirrors models.ControlConfig with a readable interval.
type ConfigResponse struct {
	LowLimit        *float64  `json:"low_limit"`
	HighLimit       *float64  `json:"high_limit"`
	HeatingEnabled  bool      `json:"heating_enabled"`
	CoolingEnabled  bool      `json:"cooling_enabled"`
	BoundSensorID   string    `json:"bound_sensor_id"`
	ControlInterval string    `json:"control_interval"`
	HeaterAddress   string    `json:"heater_address"`
	CoolerAddress   string    `json:"cooler_address"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}

func toConfigResponse(c models.ControlConfig) ConfigResponse {
	return ConfigResponse{
		LowLimit:        c.LowLimit,
		HighLimit:       c.HighLimit,
		HeatingEnabled:  c.HeatingEnabled,
		CoolingEnabled:  c.CoolingEnabled,
		BoundSensorID:   c.BoundSensorID,
		ControlInterval: c.ControlInterval.String(),
		HeaterAddress:   c.HeaterAddress,
		CoolerAddress:   c.CoolerAddress,
		UpdatedAt:       c.UpdatedAt,
	}
}

func (r ConfigRequest) params() (service.ConfigParams, error) {
	p := service.ConfigParams{
		LowLimit:       r.LowLimit,
		HighLimit:      r.HighLimit,
		ClearLimits:    r.ClearLimits,
		HeatingEnabled: r.HeatingEnabled,
		CoolingEnabled: r.CoolingEnabled,
		BoundSensorID:  r.BoundSensorID,
		HeaterAddress:  r.HeaterAddress,
		CoolerAddress:  r.CoolerAddress,
	}
	if r.ControlInterval != nil {
		d, err := time.ParseDuration(*r.ControlInterval)
		if err != nil {
			return service.ConfigParams{}, err
		}
		p.ControlInterval = &d
	}
	return p, nil
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Controller status
// @Description  Control sensor, freshness, safety shutdown flag and per-actuator state.
// @Tags         control
// @Produce      json
// @Success      200  {object}  models.ControlStatus
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/control/status [get]
// @Security     BearerAuth
func (h *Handler) getStatus(c *gin.Context) {
	st, err := h.services.Monitoring.GetStatus(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetStatus, "control_get_status_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Get control config
// @Tags         control
// @Produce      json
// @Success      200  {object}  ConfigResponse
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/control/config [get]
// @Security     BearerAuth
func (h *Handler) getConfig(c *gin.Context) {
	cfg, err := h.services.Settings.Get(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetConfig, "control_get_config_failed", err)
		return
	}
	c.JSON(http.StatusOK, toConfigResponse(cfg))
}

// @Summary      Update control config
// @Description  Partial update. low_limit must not exceed high_limit.
// @Tags         control
// @Accept       json
// @Produce      json
// @Param        body  body      ConfigRequest  true  "Config changes"
// @Success      200   {object}  ConfigResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/control/config [put]
// @Security     BearerAuth
func (h *Handler) updateConfig(c *gin.Context) {
	var req ConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	params, err := req.params()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}

	cfg, err := h.services.Settings.Update(c.Request.Context(), params)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, toConfigResponse(cfg))
	case errors.Is(err, service.ErrInvalidLimits),
		errors.Is(err, service.ErrInvalidInterval),
		errors.Is(err, service.ErrInvalidAddress):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, errSaveConfig, "control_update_config_failed", err)
	}
}
