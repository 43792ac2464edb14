package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL        string
	RedisURL           string
	RedisSentinelAddrs []string // comma separated in env
	RedisMasterName    string
	KafkaBrokers       string
	KafkaUsername      string
	KafkaPassword      string
	KafkaCACert        string
	KafkaEventsTopic   string
	ServerPort         string
	GRPCPort           string
	Environment        string
	LogLevel           string
	// Recipes recomputed per page when an ingredient price changes
	CascadeBatchSize   int
	DefaultPeopleCount float64
	RequisitionLockTTL time.Duration
	// Postgres pool; zero keeps the database package defaults
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
}

func Load() *Config {
	// Hosting providers use different variable names for PostgreSQL
	databaseURL := getEnv("DATABASE_URL", "")
	if databaseURL == "" {
		databaseURL = getEnv("POSTGRES_URL", "")
	}
	if databaseURL == "" {
		pgHost := getEnv("PGHOST", "")
		pgPort := getEnv("PGPORT", "5432")
		pgUser := getEnv("PGUSER", "postgres")
		pgPassword := getEnv("PGPASSWORD", "")
		pgDatabase := getEnv("PGDATABASE", "kitchenops")

		if pgHost != "" {
			if pgPassword != "" {
				databaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
					pgUser, pgPassword, pgHost, pgPort, pgDatabase)
			} else {
				databaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=disable",
					pgUser, pgHost, pgPort, pgDatabase)
			}
		}
	}

	redisURL := getEnv("REDIS_URL", "")
	if redisURL == "" {
		redisHost := getEnv("REDISHOST", "")
		if redisHost != "" {
			redisURL = fmt.Sprintf("redis://%s:%s/%s", redisHost, getEnv("REDISPORT", "6379"), getEnv("REDISDB", "0"))
		}
	}

	var sentinelAddrs []string
	if raw := getEnv("REDIS_SENTINEL_ADDRS", ""); raw != "" {
		for _, addr := range strings.Split(raw, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				sentinelAddrs = append(sentinelAddrs, addr)
			}
		}
	}

	return &Config{
		DatabaseURL:        databaseURL,
		RedisURL:           redisURL,
		RedisSentinelAddrs: sentinelAddrs,
		RedisMasterName:    getEnv("REDIS_MASTER_NAME", "mymaster"),
		KafkaBrokers:       getEnv("KAFKA_BROKERS", ""),
		KafkaUsername:      getEnv("KAFKA_USERNAME", ""),
		KafkaPassword:      getEnv("KAFKA_PASSWORD", ""),
		KafkaCACert:        getEnv("KAFKA_CA_CERT", ""),
		KafkaEventsTopic:   getEnv("KAFKA_EVENTS_TOPIC", "kitchen-events"),
		ServerPort:         getEnv("PORT", "8080"),
		GRPCPort:           getEnv("GRPC_PORT", "9090"),
		Environment:        getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CascadeBatchSize:   getEnvInt("CASCADE_BATCH_SIZE", 50),
		DefaultPeopleCount: getEnvFloat("DEFAULT_PEOPLE_COUNT", 100),
		RequisitionLockTTL: time.Duration(getEnvInt("REQUISITION_LOCK_TTL_SECONDS", 30)) * time.Second,
		DBMaxOpenConns:     getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:     getEnvInt("DB_MAX_IDLE_CONNS", 10),
		DBConnMaxLifetime:  time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
