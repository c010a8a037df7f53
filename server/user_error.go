package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"curveExchange/entity"
	"curveExchange/failure"
)

const (
	refundHeader = "X-Refund-Amount"
	payoutHeader = "X-Payout-Amount"
)

// userError is the body of every failed request.
type userError struct {
	Status     int                `json:"status"`
	Kind       failure.Kind       `json:"kind"`
	Message    string             `json:"message"`
	Settlement *entity.Settlement `json:"settlement,omitempty"`
}

func newUserError(kind failure.Kind, msg string, args ...interface{}) *failure.Error {
	return failure.New(kind, msg, args...)
}

func statusOf(kind failure.Kind) int {
	switch kind {
	case failure.ValidationError:
		return http.StatusBadRequest
	case failure.NotFound:
		return http.StatusNotFound
	case failure.Unauthorized:
		return http.StatusForbidden
	case failure.AlreadyExists:
		return http.StatusConflict
	case failure.InsufficientFunds:
		return http.StatusPaymentRequired
	case failure.ZeroValueOperation:
		return http.StatusUnprocessableEntity
	case failure.Aborted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes the failure envelope and hands any refund to the settler.
func (s *server) abortWithError(c *gin.Context, err error) {
	fe := failure.From(err)
	status := statusOf(fe.Kind)

	msg := fe.Message
	if fe.Kind == failure.Internal {
		s.log.WithField("path", c.FullPath()).Errorf("request failed: %v", err)
		msg = "internal error"
	}

	if fe.Refund != nil {
		c.Header(refundHeader, strconv.FormatInt(fe.Refund.Amount, 10))
		s.settle(c, *fe.Refund)
	}

	c.AbortWithStatusJSON(status, userError{
		Status:     status,
		Kind:       fe.Kind,
		Message:    msg,
		Settlement: fe.Refund,
	})
}
