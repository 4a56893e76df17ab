package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	SignupsTotal               metric.Int64Counter
	LoginsTotal                metric.Int64Counter
	PasswordResetRequestsTotal metric.Int64Counter
	PasswordResetsTotal        metric.Int64Counter
	RateLimitedTotal           metric.Int64Counter
	DbQueryDurationSeconds     metric.Float64Histogram
	DbQueryErrorsTotal         metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// Outcome labels a counter increment with its result.
func Outcome(v string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("outcome", v))
}

// InitAppMetrics creates the instruments once from the global MeterProvider.
// Call it after the provider is installed so the instruments are exported.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("user-accounts")
		m := &AppMetrics{}
		var err error

		counter := func(name, desc, unit string) metric.Int64Counter {
			c, cErr := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
			if cErr != nil {
				err = cErr
			}
			return c
		}

		m.SignupsTotal = counter("signups_total", "Total number of signup attempts", "{request}")
		m.LoginsTotal = counter("logins_total", "Total number of login attempts", "{request}")
		m.PasswordResetRequestsTotal = counter("password_reset_requests_total", "Total number of forgot-password requests", "{request}")
		m.PasswordResetsTotal = counter("password_resets_total", "Total number of reset token consumptions", "{request}")
		m.RateLimitedTotal = counter("rate_limited_total", "Requests rejected by the rate limiter", "{request}")
		m.DbQueryErrorsTotal = counter("db_query_errors_total", "Total number of database query errors", "{error}")

		if err != nil {
			log.Fatalf("Metrics: failed to create counters: %v", err)
		}

		m.DbQueryDurationSeconds, err = meter.Float64Histogram(
			"db_query_duration_seconds",
			metric.WithDescription("Duration of database queries in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: failed to create db_query_duration_seconds: %v", err)
		}

		log.Println("Application metrics instruments initialized.")
		appMetrics = m
	})
}

// Get returns the instruments, creating them against the current global
// provider on first use (a no-op provider in tests).
func Get() *AppMetrics {
	InitAppMetrics()
	return appMetrics
}
