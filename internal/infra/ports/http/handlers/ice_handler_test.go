package handlers

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/RoomScribe/internal/application/config"
)

type iceServerJSON struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username"`
	Credential string   `json:"credential"`
}

func iceServers(t *testing.T, h *IceHandler) []iceServerJSON {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ice", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, h.IceServers(echo.New().NewContext(req, rec)))
	require.Equal(t, http.StatusOK, rec.Code)

	var servers []iceServerJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &servers))

	return servers
}

func TestIceHandler_IceServers(t *testing.T) {
	t.Run("stun only without coturn", func(t *testing.T) {
		servers := iceServers(t, NewIceHandler(&config.Config{}))

		require.Len(t, servers, 1)
		assert.Equal(t, []string{defaultSTUN}, servers[0].URLs)
	})

	turnConfig := func(secret string) *config.Config {
		return &config.Config{
			CoturnServer: config.CoturnConfig{Host: "turn.test:3478", Username: "static", Password: "pw", Secret: secret},
			TurnUDPServer: webrtc.ICEServer{
				URLs: []string{"turn:turn.test:3478?transport=udp"},
			},
			TurnTCPServer: webrtc.ICEServer{
				URLs: []string{"turn:turn.test:3478?transport=tcp"},
			},
		}
	}

	t.Run("static credentials", func(t *testing.T) {
		servers := iceServers(t, NewIceHandler(turnConfig("")))

		require.Len(t, servers, 2)
		assert.Equal(t, "static", servers[1].Username)
		assert.Equal(t, "pw", servers[1].Credential)
		assert.Len(t, servers[1].URLs, 2)
	})

	t.Run("ephemeral credentials", func(t *testing.T) {
		h := NewIceHandler(turnConfig("shared"))
		h.now = func() time.Time { return time.Unix(1000, 0) }

		servers := iceServers(t, h)
		require.Len(t, servers, 2)

		mac := hmac.New(sha1.New, []byte("shared"))
		mac.Write([]byte("4600"))

		assert.Equal(t, "4600", servers[1].Username)
		assert.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), servers[1].Credential)
	})
}
