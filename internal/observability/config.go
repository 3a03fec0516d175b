package observability

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/practicebooks/internal/config"
)

const defaultServiceName = "practicebooks"

// Config holds the logging, tracing and metrics settings shared by every
// practicebooks binary. Values come from the app config and may be overridden
// by the standard OTEL_* variables.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel           string
	LogFormat          string
	SlowQueryThreshold time.Duration

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64

	// PrometheusEnabled exposes /metrics and records HTTP request metrics.
	PrometheusEnabled bool
}

func LoadConfig(cfg config.Config) Config {
	env := envReader(os.Getenv)

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	protocol := env.lower("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	protocol = env.lower("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", protocol)

	return Config{
		ServiceName:          serviceName,
		Environment:          env.str("DEPLOYMENT_ENV", cfg.Environment),
		Version:              env.str("SERVICE_VERSION", cfg.AppVersion),
		LogLevel:             env.lower("LOG_LEVEL", "info"),
		LogFormat:            env.lower("LOG_FORMAT", "json"),
		SlowQueryThreshold:   env.millis("DB_SLOW_QUERY_MS", 200*time.Millisecond),
		OtelEnabled:          env.boolean("OTEL_ENABLED", cfg.IsProduction()),
		OtelExporterEndpoint: env.str("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint),
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    env.ratio("OTEL_SAMPLING_RATIO", 0.1),
		PrometheusEnabled:    env.boolean("METRICS_ENABLED", true),
	}
}

// Debug reports whether verbose logging applies: an explicit debug level or a
// non-production environment.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

// envReader resolves overrides; an unset or malformed value yields the default.
type envReader func(string) string

func (r envReader) str(key, def string) string {
	if value := strings.TrimSpace(r(key)); value != "" {
		return value
	}
	return strings.TrimSpace(def)
}

func (r envReader) lower(key, def string) string {
	return strings.ToLower(r.str(key, def))
}

func (r envReader) boolean(key string, def bool) bool {
	switch r.lower(key, "") {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return def
}

func (r envReader) ratio(key string, def float64) float64 {
	parsed, err := strconv.ParseFloat(r.str(key, ""), 64)
	if err != nil || parsed < 0 || parsed > 1 {
		return def
	}
	return parsed
}

func (r envReader) millis(key string, def time.Duration) time.Duration {
	parsed, err := strconv.Atoi(r.str(key, ""))
	if err != nil || parsed < 0 {
		return def
	}
	return time.Duration(parsed) * time.Millisecond
}
