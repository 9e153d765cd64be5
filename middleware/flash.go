package middleware

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

const flashCookie = "flash"

const contextFlashKey = "flash_pending"

// Flash queues a one-time message for the next rendered page.
func Flash(ctx *gin.Context, message string) {
	pending := append(pendingFlashes(ctx), message)
	ctx.Set(contextFlashKey, pending)
	b, _ := json.Marshal(pending)
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(flashCookie, base64.RawURLEncoding.EncodeToString(b), 0, "/", "", false, true)
}

func pendingFlashes(ctx *gin.Context) []string {
	if v, ok := ctx.Get(contextFlashKey); ok {
		return v.([]string)
	}
	return nil
}

// Flashes returns and clears the messages queued by earlier requests.
func Flashes(ctx *gin.Context) []string {
	raw, err := ctx.Cookie(flashCookie)
	if err != nil || raw == "" {
		return nil
	}
	ctx.SetCookie(flashCookie, "", -1, "/", "", false, true)
	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil
	}
	var msgs []string
	if err := json.Unmarshal(b, &msgs); err != nil {
		return nil
	}
	return msgs
}
