package server

import (
	"errors"
	"net/http"

	"github.com/franckalain/livestockweight/internal/breeds"
	"github.com/franckalain/livestockweight/internal/models"
	"github.com/franckalain/livestockweight/internal/observation"
	"github.com/franckalain/livestockweight/internal/transport"
	"github.com/gin-gonic/gin"
)

func (s *Server) handleBreeds(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": breeds.All()})
}

func (s *Server) handleListObservations(c *gin.Context) {
	items, err := s.observations.ListBySubject(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

func (s *Server) handleCreateObservation(c *gin.Context) {
	var obs models.Observation
	if err := c.ShouldBindJSON(&obs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid observation: " + err.Error()})
		return
	}
	if obs.SubjectID == "" {
		obs.SubjectID = c.Param("id")
	}
	if obs.SubjectID != c.Param("id") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subject id does not match the path"})
		return
	}
	if obs.EstimatedWeightKg <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "estimated_weight_kg must be positive"})
		return
	}

	created, err := s.observations.Create(c.Request.Context(), obs)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleTrend(c *gin.Context) {
	cmp, err := s.comparator.CompareWithHistory(c.Request.Context(), c.Param("id"), c.Param("observationID"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

func (s *Server) handleDetail(c *gin.Context) {
	view := s.details.Load(c.Request.Context(), c.Param("id"))
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleDashboard(c *gin.Context) {
	stats, err := s.comparator.DashboardStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// respondError maps domain and transport failures to HTTP statuses
func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, observation.ErrNotFound):
		status = http.StatusNotFound
	default:
		switch transport.Classify(err) {
		case transport.ClassBadRequest:
			status = http.StatusBadRequest
		case transport.ClassUnprocessable:
			status = http.StatusUnprocessableEntity
		case transport.ClassNetwork:
			status = http.StatusGatewayTimeout
		}
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
