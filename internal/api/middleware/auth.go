// Package middleware provides HTTP middleware for the Gin router.
//
// Go Learning Note — Middleware Pattern (Gin):
// In Gin, middleware is any function with the signature `gin.HandlerFunc`, which
// is `func(*gin.Context)`. Middleware functions form a chain: each one runs,
// optionally calls c.Next() to pass control to the next handler, and can call
// c.Abort() to stop the chain. This is the "chain of responsibility" pattern.
//
// Middleware is applied using .Use() on a router or route group. Common uses:
// authentication, logging, CORS headers, rate limiting, and request tracing.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// UserIDKey is the gin context key holding the authenticated user id.
//
// Go Learning Note — Context Values:
// Gin's c.Set/c.Get stores request-scoped values in the *gin.Context. This is
// similar to the standard library's context.WithValue(). Use constants as keys
// to avoid typos and enable refactoring.
const UserIDKey = "user_id"

// maxUserIDLength bounds the identity accepted from the header.
const maxUserIDLength = 128

// BearerIdentity extracts the caller's user id from the Authorization header.
// Format: "Bearer <user-id>".
//
// Identity is asserted by an upstream gateway that has already authenticated
// the user; this middleware does not verify tokens. It only rejects a missing
// or malformed header.
//
// Go Learning Note — c.Abort():
// c.Abort() prevents subsequent handlers in the chain from running. Without it,
// even after writing an error response, the next handler would still execute.
// Always pair error responses with c.Abort() in middleware.
func BearerIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		// strings.SplitN splits into at most 2 parts, handling tokens with spaces.
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}

		userID := strings.TrimSpace(parts[1])
		if userID == "" || len(userID) > maxUserIDLength || strings.ContainsAny(userID, " /") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// OptionalIdentity behaves like BearerIdentity when an Authorization header
// is present and lets anonymous requests through otherwise.
func OptionalIdentity() gin.HandlerFunc {
	required := BearerIdentity()
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		required(c)
	}
}

// GetUserID retrieves the user id set by BearerIdentity, or "" for an
// anonymous request.
//
// Go Learning Note — Type Assertion:
// c.Get() returns (any, bool). The two-value form `val, ok := x.(string)`
// returns ok=false instead of panicking when the value is missing or of
// another type.
func GetUserID(c *gin.Context) string {
	v, _ := c.Get(UserIDKey)
	userID, _ := v.(string)
	return userID
}
