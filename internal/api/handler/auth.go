package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	jwt "github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "randomchat-service"

var errBadToken = errors.New("invalid token")

// mintToken signs a JWT carrying a fresh anonymous peer id.
func (h *Handler) mintToken(peerID string) (string, error) {
	claims := jwt.MapClaims{
		"peer_id": peerID,
		"exp":     time.Now().Add(h.cfg.TokenTTL).Unix(),
		"iss":     tokenIssuer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.cfg.JWTSecret))
}

// validateToken parses a JWT and returns the peer id inside it.
func (h *Handler) validateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errBadToken
		}
		return []byte(h.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", errBadToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errBadToken
	}
	peerID, ok := claims["peer_id"].(string)
	if !ok || peerID == "" {
		return "", errBadToken
	}
	return peerID, nil
}

// IssueToken creates an anonymous identity and returns its JWT. No
// account, no password; the peer id lives as long as the client keeps
// the token.
func (h *Handler) IssueToken(c *gin.Context) {
	peerID := uuid.NewString()

	token, err := h.mintToken(peerID)
	if err != nil {
		h.log.WithError(err).Error("token mint failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "peer_id": peerID})
}
