package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// PacerMode selects how the propagation orchestrator spaces provider calls.
type PacerMode string

const (
	PacerFixed       PacerMode = "fixed"
	PacerTokenBucket PacerMode = "token_bucket"
)

// Config captures runtime configuration for the service.
type Config struct {
	DataDir             string
	Port                int
	ProviderAPIBase     string
	ProviderToken       string
	JWTSecret           []byte
	BatchSize           int
	BatchDelay          time.Duration
	PacerMode           PacerMode
	PacerRatePerSecond  float64
	PacerBurst          int
	DiscoveryBatchSize  int
	DiscoveryDelay      time.Duration
	RefreshCron         string
	APIRatePerMinute    int
	APIRateBurst        int
	LoginRatePerMinute  int
	LoginRateBurst      int
	MaxRequestBodyBytes int64
	MaxHeaderBytes      int
	IdleTimeout         time.Duration
}

// Load reads configuration values from environment variables with sensible defaults.
func Load() (*Config, error) {
	dataDir := getEnvDefault("DATA_DIR", "./data")
	if dataDir == "" {
		return nil, fmt.Errorf("DATA_DIR must be provided")
	}

	port, err := getEnvInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	providerBase := getEnvDefault("PROVIDER_API_BASE", "https://api.cloudflare.com/client/v4")
	providerToken := strings.TrimSpace(os.Getenv("PROVIDER_API_TOKEN"))
	if providerToken == "" {
		tokenFile := getEnvDefault("PROVIDER_API_TOKEN_FILE", fmt.Sprintf("%s/provider_token", dataDir))
		raw, err := os.ReadFile(tokenFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read provider token: %w", err)
		}
		providerToken = strings.TrimSpace(string(raw))
	}
	if providerToken == "" {
		return nil, fmt.Errorf("PROVIDER_API_TOKEN must be provided")
	}

	jwtSecret := []byte(strings.TrimSpace(os.Getenv("JWT_SECRET")))
	if len(jwtSecret) == 0 {
		jwtSecretFile := getEnvDefault("JWT_SECRET_FILE", fmt.Sprintf("%s/jwt_secret", dataDir))
		raw, err := os.ReadFile(jwtSecretFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read JWT secret: %w", err)
		}
		jwtSecret = bytesTrim(raw)
	}
	if len(jwtSecret) == 0 {
		return nil, fmt.Errorf("JWT_SECRET must be provided")
	}

	batchSize, err := getEnvInt("PROPAGATION_BATCH_SIZE", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid PROPAGATION_BATCH_SIZE: %w", err)
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("PROPAGATION_BATCH_SIZE must be positive")
	}
	batchDelayMillis, err := getEnvInt("PROPAGATION_BATCH_DELAY_MS", 1000)
	if err != nil {
		return nil, fmt.Errorf("invalid PROPAGATION_BATCH_DELAY_MS: %w", err)
	}

	pacerMode := PacerMode(strings.ToLower(getEnvDefault("PROPAGATION_PACER", string(PacerFixed))))
	switch pacerMode {
	case PacerFixed, PacerTokenBucket:
	default:
		return nil, fmt.Errorf("invalid PROPAGATION_PACER %q", pacerMode)
	}
	pacerRate, err := getEnvFloat("PROPAGATION_PACER_RATE_PER_SEC", 4)
	if err != nil {
		return nil, fmt.Errorf("invalid PROPAGATION_PACER_RATE_PER_SEC: %w", err)
	}
	pacerBurst, err := getEnvInt("PROPAGATION_PACER_BURST", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid PROPAGATION_PACER_BURST: %w", err)
	}

	discoveryBatchSize, err := getEnvInt("DISCOVERY_BATCH_SIZE", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid DISCOVERY_BATCH_SIZE: %w", err)
	}
	discoveryDelayMillis, err := getEnvInt("DISCOVERY_BATCH_DELAY_MS", 500)
	if err != nil {
		return nil, fmt.Errorf("invalid DISCOVERY_BATCH_DELAY_MS: %w", err)
	}

	refreshCron := getEnvDefault("STATE_REFRESH_CRON", "*/15 * * * *")

	apiRatePerMinute, err := getEnvInt("API_RATE_LIMIT_PER_MIN", 300)
	if err != nil {
		return nil, fmt.Errorf("invalid API_RATE_LIMIT_PER_MIN: %w", err)
	}
	apiRateBurst, err := getEnvInt("API_RATE_LIMIT_BURST", 450)
	if err != nil {
		return nil, fmt.Errorf("invalid API_RATE_LIMIT_BURST: %w", err)
	}
	loginRatePerMinute, err := getEnvInt("LOGIN_RATE_LIMIT_PER_MIN", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid LOGIN_RATE_LIMIT_PER_MIN: %w", err)
	}
	loginRateBurst, err := getEnvInt("LOGIN_RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid LOGIN_RATE_LIMIT_BURST: %w", err)
	}
	maxRequestBodyBytes, err := getEnvInt64("API_MAX_BODY_BYTES", 1<<20)
	if err != nil {
		return nil, fmt.Errorf("invalid API_MAX_BODY_BYTES: %w", err)
	}
	maxHeaderBytes, err := getEnvInt("API_MAX_HEADER_BYTES", 16384)
	if err != nil {
		return nil, fmt.Errorf("invalid API_MAX_HEADER_BYTES: %w", err)
	}
	idleTimeoutSeconds, err := getEnvInt("API_IDLE_TIMEOUT_SECONDS", 60)
	if err != nil {
		return nil, fmt.Errorf("invalid API_IDLE_TIMEOUT_SECONDS: %w", err)
	}

	return &Config{
		DataDir:             dataDir,
		Port:                port,
		ProviderAPIBase:     strings.TrimRight(providerBase, "/"),
		ProviderToken:       providerToken,
		JWTSecret:           jwtSecret,
		BatchSize:           batchSize,
		BatchDelay:          time.Duration(batchDelayMillis) * time.Millisecond,
		PacerMode:           pacerMode,
		PacerRatePerSecond:  pacerRate,
		PacerBurst:          pacerBurst,
		DiscoveryBatchSize:  discoveryBatchSize,
		DiscoveryDelay:      time.Duration(discoveryDelayMillis) * time.Millisecond,
		RefreshCron:         refreshCron,
		APIRatePerMinute:    apiRatePerMinute,
		APIRateBurst:        apiRateBurst,
		LoginRatePerMinute:  loginRatePerMinute,
		LoginRateBurst:      loginRateBurst,
		MaxRequestBodyBytes: maxRequestBodyBytes,
		MaxHeaderBytes:      maxHeaderBytes,
		IdleTimeout:         time.Duration(idleTimeoutSeconds) * time.Second,
	}, nil
}

func getEnvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func getEnvInt64(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, err
	}
	return i, nil
}

func getEnvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if f <= 0 {
		return 0, fmt.Errorf("value must be positive")
	}
	return f, nil
}

func bytesTrim(v []byte) []byte {
	for len(v) > 0 {
		switch v[len(v)-1] {
		case '\n', '\r', '\t', ' ':
			v = v[:len(v)-1]
		default:
			return v
		}
	}
	return v
}
