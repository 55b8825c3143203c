package httpapi

import "github.com/gin-gonic/gin"

// handleStripeWebhook answers POST /webhooks/stripe by delegating signature
// verification and tenant payment-status bookkeeping entirely to
// security.BillingWebhook; this handler only adapts it to gin's request/
// response shape.
func (s *Server) handleStripeWebhook(c *gin.Context) {
	if err := s.billing.Handle(c.Request.Context(), c.Request); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(200)
}
