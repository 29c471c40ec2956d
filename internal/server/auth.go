package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
)

// tokenTTL bounds how long a registration token stays valid. Agents
// re-register (idempotent upsert) to refresh.
const tokenTTL = 24 * time.Hour

// issueToken mints the HS256 token returned at registration.
func (s *Server) issueToken(agentID string) (string, error) {
	claims := jwt.MapClaims{
		"agent_id": agentID,
		"exp":      time.Now().Add(tokenTTL).Unix(),
		"iat":      time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token for agent %s: %w", agentID, err)
	}
	return signed, nil
}

// parseToken validates a bearer token and returns the agent id it was
// issued to.
func (s *Server) parseToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}
	agentID, _ := claims["agent_id"].(string)
	if agentID == "" {
		return "", fmt.Errorf("token carries no agent id")
	}
	return agentID, nil
}

// authMiddleware requires a valid bearer token and stores the caller's agent
// id in the request context.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")
		agentID, err := s.parseToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(contextKeyAgentID, agentID)
		c.Next()
	}
}

func callerAgentID(c *gin.Context) string {
	return c.GetString(contextKeyAgentID)
}
