package registryd

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mivora/roomcast/internal/config"
	"github.com/mivora/roomcast/internal/domain"
)

type createRequest struct {
	Description string        `json:"description"`
	RoomID      domain.RoomID `json:"roomId" binding:"required"`
}

type roomRequest struct {
	RoomID domain.RoomID `json:"roomId" binding:"required"`
}

type associateRequest struct {
	RoomID domain.RoomID `json:"roomId" binding:"required"`
	FeedID domain.FeedID `json:"feedId" binding:"required"`
}

func SetupRouter(cfg *config.Config, store *Store) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/mountpoints", listMountpoints(store))
	r.POST("/mountpoints", createMountpoint(store))
	r.POST("/mountpoints/associate", associatePublisher(store))
	r.DELETE("/mountpoints", deleteMountpoint(store))

	log.Info().Str("module", "registryd").Str("mode", cfg.Mode).Msg("router setup")
	return r
}

func listMountpoints(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		mps, err := store.List(c.Request.Context())
		if err != nil {
			log.Error().Err(err).Str("module", "registryd").Msg("list failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
			return
		}
		c.JSON(http.StatusOK, mps)
	}
}

func createMountpoint(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid roomId"})
			return
		}
		if req.Description == "" {
			req.Description = "No description"
		}
		mp, err := store.Create(c.Request.Context(), req.RoomID, req.Description)
		if err != nil {
			if errors.Is(err, ErrRoomTaken) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			log.Error().Err(err).Str("module", "registryd").Msg("create failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
			return
		}
		log.Info().Str("module", "registryd").Int64("room", int64(req.RoomID)).Int64("id", mp.ID).Msg("mountpoint created")
		c.JSON(http.StatusOK, mp)
	}
}

func associatePublisher(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req associateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid roomId/feedId"})
			return
		}
		found, err := store.AssociatePublisher(c.Request.Context(), req.RoomID, req.FeedID)
		if err != nil {
			log.Error().Err(err).Str("module", "registryd").Msg("associate failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "no mountpoint for room"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// Delete mirrors the lenient contract the clients rely on: an absent record
// is success=false, not an error status.
func deleteMountpoint(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req roomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false})
			return
		}
		found, err := store.DeleteByRoom(c.Request.Context(), req.RoomID)
		if err != nil {
			log.Error().Err(err).Str("module", "registryd").Msg("delete failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
			return
		}
		log.Info().Str("module", "registryd").Int64("room", int64(req.RoomID)).Bool("found", found).Msg("mountpoint delete")
		c.JSON(http.StatusOK, gin.H{"success": found})
	}
}
