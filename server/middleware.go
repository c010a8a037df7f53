package server

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"curveExchange/failure"
	"curveExchange/metrics"
	"curveExchange/serviceTrade"
)

const (
	transferHeader = "X-Transfer-Amount"
	callerKey      = "caller"
)

// identify trusts the host-set caller header as the caller address.
func (s *server) identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(callerKey, strings.TrimSpace(c.GetHeader(s.opts.CallerHeader)))
		c.Next()
	}
}

func (s *server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.ObserveRequest(route, strconv.Itoa(status))

		s.log.WithFields(logrus.Fields{
			"caller":   c.GetString(callerKey),
			"path":     route,
			"remote":   c.ClientIP(),
			"status":   status,
			"duration": duration.String(),
		}).Info("request")
	}
}

// requestTimeout is the host budget of one request. The exchange turns its
// expiry into Aborted.
func (s *server) requestTimeout() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.RequestTimeout <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.RequestTimeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetString(callerKey)
		if id == "" {
			id = c.ClientIP()
		}

		if !s.limiter.CheckAndUpdate(id, s.opts.RateLimit) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(429, userError{Status: 429, Message: "too many requests"})
			return
		}
		c.Next()
	}
}

// callOf builds the exchange call envelope. Attached value comes from the
// transfer header and defaults to zero.
func callOf(c *gin.Context) (serviceTrade.Call, error) {
	call := serviceTrade.Call{Caller: c.GetString(callerKey)}

	raw := strings.TrimSpace(c.GetHeader(transferHeader))
	if raw == "" {
		return call, nil
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return call, newUserError(failure.ValidationError, "invalid %v header '%v'", transferHeader, raw)
	}
	call.AttachedValue = v
	return call, nil
}
