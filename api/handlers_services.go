package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"studiobook/config"
	"studiobook/db"
	"studiobook/models"
	"studiobook/utils"
)

// ServiceRequest is the body for creating or replacing a service. Numbers are
// pointers so an absent field can be told apart from zero.
type ServiceRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Price       *float64 `json:"price"`
	Duration    *int     `json:"duration"`
	Image       string   `json:"image"`
	Featured    bool     `json:"featured"`
}

func (r ServiceRequest) fields() (models.ServiceFields, error) {
	if r.Price == nil {
		return models.ServiceFields{}, fmt.Errorf("%w: 'price'", models.ErrMissingField)
	}
	if r.Duration == nil {
		return models.ServiceFields{}, fmt.Errorf("%w: 'duration'", models.ErrMissingField)
	}
	return models.ServiceFields{
		Title:       r.Title,
		Description: r.Description,
		Price:       *r.Price,
		Duration:    *r.Duration,
		Image:       r.Image,
		Featured:    r.Featured,
	}, nil
}

// respondStoreError maps validation errors to 400 and everything else to 500.
func respondStoreError(c *gin.Context, action string, err error) {
	if errors.Is(err, models.ErrMissingField) || errors.Is(err, models.ErrInvalidField) || errors.Is(err, models.ErrInvalidStatus) {
		utils.GinBadRequest(c, err.Error())
		return
	}
	utils.GinInternalServerError(c, fmt.Sprintf("Failed to %s: %v", action, err))
}

// ListServicesHandler returns every service, or only featured ones with ?featured=true.
func ListServicesHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	featured := false
	if raw := c.Query("featured"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			utils.GinBadRequest(c, fmt.Sprintf("Invalid 'featured' parameter: %s", raw))
			return
		}
		featured = parsed
	}

	if featured {
		c.JSON(http.StatusOK, database.FeaturedServices())
		return
	}
	c.JSON(http.StatusOK, database.ListServices())
}

// GetServiceHandler returns one service by id.
func GetServiceHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	service, found := database.GetService(c.Param("id"))
	if !found {
		utils.GinNotFound(c, "Service not found")
		return
	}
	c.JSON(http.StatusOK, service)
}

// CreateServiceHandler adds a service.
func CreateServiceHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	var req ServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	fields, err := req.fields()
	if err != nil {
		utils.GinBadRequest(c, err.Error())
		return
	}

	service, err := database.AddService(c.Request.Context(), fields)
	if err != nil {
		respondStoreError(c, "create service", err)
		return
	}
	c.JSON(http.StatusCreated, service)
}

// UpdateServiceHandler replaces a service. An unknown id is answered with 204
// and nothing is written.
func UpdateServiceHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	var req ServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	fields, err := req.fields()
	if err != nil {
		utils.GinBadRequest(c, err.Error())
		return
	}

	service, found, err := database.UpdateService(c.Request.Context(), c.Param("id"), fields)
	if err != nil {
		respondStoreError(c, "update service", err)
		return
	}
	if !found {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, service)
}

// DeleteServiceHandler removes a service. Deleting twice is fine.
func DeleteServiceHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	if err := database.DeleteService(c.Request.Context(), c.Param("id")); err != nil {
		respondStoreError(c, "delete service", err)
		return
	}
	c.Status(http.StatusNoContent)
}
