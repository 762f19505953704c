package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/billingcore/pkg/log/ctxlogger"
	"go.uber.org/zap"
)

// Identity headers are set by the authorization gateway in front of the service.
const (
	HeaderCustomerID = "X-Customer-ID"
	HeaderRole       = "X-Role"

	RoleAdmin = "admin"

	contextCallerKey = "caller"
)

type Caller struct {
	CustomerID snowflake.ID
	Role       string
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// Actor is the audit identity recorded on records the caller creates.
func (c Caller) Actor() string {
	if c.IsAdmin() {
		if c.CustomerID != 0 {
			return "admin:" + c.CustomerID.String()
		}
		return "admin"
	}
	return "customer:" + c.CustomerID.String()
}

// CallerRequired resolves the caller from the gateway headers. Requests with
// neither a customer id nor the admin role are rejected.
func CallerRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderRole)))
		caller := Caller{Role: role}

		if raw := strings.TrimSpace(c.GetHeader(HeaderCustomerID)); raw != "" {
			id, err := snowflake.ParseString(raw)
			if err != nil || id == 0 {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			caller.CustomerID = id
		}
		if caller.CustomerID == 0 && !caller.IsAdmin() {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextCallerKey, caller)
		ctx := ctxlogger.ContextWithFields(c.Request.Context(), zap.String("caller", caller.Actor()))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerFrom(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !caller.IsAdmin() {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

func callerFrom(c *gin.Context) (Caller, bool) {
	v, ok := c.Get(contextCallerKey)
	if !ok {
		return Caller{}, false
	}
	caller, ok := v.(Caller)
	return caller, ok
}

// idempotencyScope keeps idempotency keys from different callers apart.
func idempotencyScope(c *gin.Context) string {
	caller, ok := callerFrom(c)
	if !ok {
		return "anonymous"
	}
	return caller.Actor()
}

// authorizeCustomer rejects non-admin callers acting on another customer's data.
func authorizeCustomer(c *gin.Context, customerID snowflake.ID) error {
	caller, ok := callerFrom(c)
	if !ok {
		return ErrUnauthorized
	}
	if caller.IsAdmin() || caller.CustomerID == customerID {
		return nil
	}
	return ErrForbidden
}
