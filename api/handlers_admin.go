package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"studiobook/config"
	"studiobook/db"
	"studiobook/events"
)

// DashboardHandler returns booking counts, estimated revenue and recent bookings.
func DashboardHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	c.JSON(http.StatusOK, database.Dashboard())
}

// EventsHandler upgrades to a websocket that streams collection changes.
func EventsHandler(c *gin.Context, hub *events.Hub) {
	if err := hub.ServeWS(c.Writer, c.Request); err != nil {
		// The upgrader has already written the HTTP error.
		logrus.WithError(err).Debug("Change feed upgrade failed")
	}
}

// HealthHandler reports that the server is up and which store backs it.
func HealthHandler(c *gin.Context, cfg *config.Config) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": cfg.Store.Backend})
}
