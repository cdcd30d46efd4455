package handlers

import (
	"errors"
	"net/http"
	"time"

	"fermenter_controller/internal/sensor"

	"github.com/gin-gonic/gin"
)

// ReadingRequest is one hydrometer reading pushed over HTTP.
type ReadingRequest struct {
	SensorID     string     `json:"sensor_id" binding:"required" example:"RED"`
	TemperatureF *float64   `json:"temp_f" binding:"required" example:"67.4"`
	Gravity      *float64   `json:"gravity,omitempty" example:"1.048"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
}

// @Summary      Push a sensor reading
// @Description  Rate-limited per sensor; "accepted" is false when the reading arrived before the sensor's interval elapsed.
// @Tags         ingest
// @Accept       json
// @Produce      json
// @Param        X-Ingest-Token  header  string          true  "Ingest token"
// @Param        body            body    ReadingRequest  true  "Reading"
// @Success      202  {object}  map[string]interface{}  "accepted"
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /ingest/readings [post]
func (h *Handler) ingestReading(c *gin.Context) {
	var req ReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	payload := sensor.Payload{
		SensorID:     req.SensorID,
		TemperatureF: req.TemperatureF,
		Gravity:      req.Gravity,
		Timestamp:    req.Timestamp,
	}
	reading, err := payload.Reading("", time.Now())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, sensor.ErrInvalidPayload) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	accepted, err := h.services.Control.Ingest(c.Request.Context(), reading)
	if err != nil && h.log != nil {
		// The reading still counts for control; only history failed.
		h.log.Warnw("ingest_store_failed", "sensor_id", reading.SensorID, "err", err)
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": accepted})
}
