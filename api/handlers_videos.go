package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"studiobook/config"
	"studiobook/db"
	"studiobook/models"
	"studiobook/utils"
)

func ListVideosHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	c.JSON(http.StatusOK, database.ListVideos())
}

// CreateVideoHandler adds a video. youtubeId may be a full YouTube URL.
func CreateVideoHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	var fields models.VideoFields
	if err := c.ShouldBindJSON(&fields); err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	video, err := database.AddVideo(c.Request.Context(), fields)
	if err != nil {
		respondStoreError(c, "create video", err)
		return
	}
	c.JSON(http.StatusCreated, video)
}

func UpdateVideoHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	var fields models.VideoFields
	if err := c.ShouldBindJSON(&fields); err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	video, found, err := database.UpdateVideo(c.Request.Context(), c.Param("id"), fields)
	if err != nil {
		respondStoreError(c, "update video", err)
		return
	}
	if !found {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, video)
}

func DeleteVideoHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	if err := database.DeleteVideo(c.Request.Context(), c.Param("id")); err != nil {
		respondStoreError(c, "delete video", err)
		return
	}
	c.Status(http.StatusNoContent)
}
