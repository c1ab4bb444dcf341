package relay

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/arlev/tether/internal/config"
	"github.com/arlev/tether/internal/core"
	"github.com/arlev/tether/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// SetupRouter exposes the websocket endpoint clients attach to, plus the
// notification endpoints a backend posts friend-graph events through.
func SetupRouter(cfg *config.Config, r *Relay) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	e := gin.New()
	if cfg.Mode == "debug" {
		e.Use(gin.Logger())
	}
	e.Use(gin.Recovery())

	e.GET("/ws", r.handleWS)

	api := e.Group("/api")
	api.POST("/notify/friend-request", r.handleFriendRequest)
	api.POST("/notify/friend-accepted", r.handleFriendAccepted)

	return e
}

func (r *Relay) handleWS(c *gin.Context) {
	uid, err := domain.ParseUserID(c.Query("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("upgrade failed")
		return
	}
	ws.SetReadLimit(r.readLimit)

	cc := newConn(uid, ws, r.sendBuffer)
	r.register(cc)
	go r.writePump(cc)
	go r.readPump(cc)
}

type friendRequestNotice struct {
	To      domain.UserID        `json:"to"`
	Request domain.FriendRequest `json:"request"`
}

func (r *Relay) handleFriendRequest(c *gin.Context) {
	var body friendRequestNotice
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payload, err := json.Marshal(body.Request)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	r.forward(body.To, core.EventNewFriendRequest, payload)
	c.Status(http.StatusAccepted)
}

type friendAcceptedNotice struct {
	To         domain.UserID `json:"to"`
	FriendName string        `json:"friendName"`
}

func (r *Relay) handleFriendAccepted(c *gin.Context) {
	var body friendAcceptedNotice
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payload, err := json.Marshal(core.FriendRequestAcceptedPayload{FriendName: body.FriendName})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	r.forward(body.To, core.EventFriendRequestAccepted, payload)
	c.Status(http.StatusAccepted)
}
