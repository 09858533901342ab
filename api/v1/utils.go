package v1

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// getClientIP resolves the requesting client's address through the common
// reverse-proxy headers, falling back to the connection address. Used for
// request logging on the public API.
func getClientIP(c *fiber.Ctx) string {
	if forwarded := c.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(parts[0]); net.ParseIP(ip) != nil {
			return ip
		}
	}

	for _, header := range []string{
		"X-Real-IP",
		"CF-Connecting-IP",
		"True-Client-IP",
		"X-Client-IP",
	} {
		if value := strings.TrimSpace(c.Get(header)); value != "" && net.ParseIP(value) != nil {
			return value
		}
	}

	if ip := c.IP(); ip != "" {
		return ip
	}
	return "127.0.0.1"
}

// generateETag creates a strong ETag from content using SHA-256
func generateETag(content []byte) string {
	hash := sha256.Sum256(content)
	return `"` + hex.EncodeToString(hash[:16]) + `"`
}
