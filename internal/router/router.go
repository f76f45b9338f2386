// Package router maps the HTTP API onto handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/festival-registration/internal/handler"
	"github.com/iliyamo/festival-registration/internal/middleware"
)

// Handlers groups everything RegisterAll wires.
type Handlers struct {
	Waiver       *handler.WaiverHandler
	Registration *handler.RegistrationHandler
	Draft        *handler.DraftHandler
	Payment      *handler.PaymentHandler
	Webhook      *handler.WebhookHandler
	Admin        *handler.AdminHandler
}

// Middleware carries the optional Redis backed middleware.  Nil values
// are skipped.
type Middleware struct {
	RateLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
}

func chain(mws ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(mws))
	for _, m := range mws {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// RegisterRoutes registers the unauthenticated health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAll registers every route of the API.
func RegisterAll(e *echo.Echo, h Handlers, mw Middleware, jwtSecret string) {
	RegisterRoutes(e)
	RegisterRegistration(e, h.Waiver, h.Registration, h.Draft, mw.RateLimit)
	RegisterPayments(e, h.Payment, h.Webhook, mw.RateLimit, mw.Cache)
	RegisterAdmin(e, h.Admin, jwtSecret, mw.RateLimit)
}

// RegisterRegistration registers the wizard endpoints: waiver rendering,
// final submission and server side drafts.  Writes are rate limited.
func RegisterRegistration(e *echo.Echo, w *handler.WaiverHandler, r *handler.RegistrationHandler, d *handler.DraftHandler, limit echo.MiddlewareFunc) {
	g := e.Group("/v1")
	g.POST("/waiver", w.Generate, chain(limit)...)
	g.POST("/registrations", r.Submit, chain(limit)...)

	if d != nil {
		g.GET("/drafts/:key", d.Get)
		g.PUT("/drafts/:key", d.Put, chain(limit)...)
		g.DELETE("/drafts/:key", d.Delete)
	}
}

// RegisterPayments registers checkout, intents, verification, pricing and
// the processor webhook.  The webhook is neither limited nor cached: the
// processor retries on any non 2xx answer.
func RegisterPayments(e *echo.Echo, p *handler.PaymentHandler, wh *handler.WebhookHandler, limit, cache echo.MiddlewareFunc) {
	g := e.Group("/v1")
	g.GET("/pricing", p.Pricing, chain(cache)...)
	g.POST("/checkout", p.Checkout, chain(limit)...)
	g.POST("/payment-intents", p.Intent, chain(limit)...)
	g.GET("/payments/verify", p.Verify, chain(limit)...)

	e.POST("/v1/webhooks/stripe", wh.Receive)
}

// RegisterAdmin registers organiser login and the protected registration
// views.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	e.POST("/v1/admin/login", a.Login, chain(limit)...)

	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(handler.RoleAdmin),
	)
	g.GET("/registrations", a.List)
	g.GET("/registrations.csv", a.CSV)
}
