package handlers

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pion/webrtc/v4"

	"github.com/qrave1/RoomScribe/internal/application/config"
)

const (
	defaultSTUN    = "stun:stun.l.google.com:19302"
	credentialsTTL = time.Hour
)

type IceHandler struct {
	cfg *config.Config
	now func() time.Time
}

func NewIceHandler(cfg *config.Config) *IceHandler {
	return &IceHandler{cfg: cfg, now: time.Now}
}

// Handler для выдачи ICE серверов хосту и гостям
func (h *IceHandler) IceServers(c echo.Context) error {
	servers := []webrtc.ICEServer{{URLs: []string{defaultSTUN}}}

	if !h.cfg.CoturnServer.Enabled() {
		return c.JSON(http.StatusOK, servers)
	}

	turn := webrtc.ICEServer{
		URLs: []string{
			h.cfg.TurnUDPServer.URLs[0],
			h.cfg.TurnTCPServer.URLs[0],
		},
		Username:   h.cfg.CoturnServer.Username,
		Credential: h.cfg.CoturnServer.Password,
	}

	if h.cfg.CoturnServer.Secret != "" {
		// временные креды coturn use-auth-secret: username = unix время истечения
		username := strconv.FormatInt(h.now().Add(credentialsTTL).Unix(), 10)

		mac := hmac.New(sha1.New, []byte(h.cfg.CoturnServer.Secret))
		mac.Write([]byte(username))

		turn.Username = username
		turn.Credential = base64.StdEncoding.EncodeToString(mac.Sum(nil))
	}

	return c.JSON(http.StatusOK, append(servers, turn))
}
