package httpserver

import (
	"math"
	"strconv"
	"time"

	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/platform/config"
	apperrors "github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/platform/errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// Idle client buckets are forgotten after this long.
const rateLimiterExpiry = 5 * time.Minute

// apiRateLimiter throttles the document REST API per client IP, at APIRateLimit
// requests per second with bursts of APIBurst. Rejections surface as rate_limited
// errors through ErrorHandlingMiddleware.
func apiRateLimiter(cfg *config.Config) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(cfg.APIRateLimit),
			Burst:     cfg.APIBurst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	retryAfter := strconv.Itoa(retryAfterSeconds(cfg.APIRateLimit))

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, _ error) error {
			c.Response().Header().Set("Retry-After", retryAfter)
			return apperrors.RateLimitedError("too many document requests").
				WithField("client_ip", identifier)
		},
	})
}

// retryAfterSeconds is how long a throttled client waits for one new token.
func retryAfterSeconds(perSecond float64) int {
	if perSecond <= 0 {
		return 60
	}
	return max(1, int(math.Ceil(1/perSecond)))
}
