package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Addr              string
	LogLevel          string
	Env               string
	KeepalivePingInt  time.Duration // Keepalive ping interval
	KeepalivePongWait time.Duration // Time to wait for pong
	WriteDeadline     time.Duration // Write operation timeout

	RedisAddr     string   // Redis address backing durable room storage
	SchemaArrays  []string // fixed map-of-maps array names, e.g. "worldApps"
	DispatchQueue int      // per-room actor job channel buffer size
	LockTimeout   time.Duration
}

// Load parses and returns the application configuration
// Priority: command-line flags > environment variables > .env file > defaults
func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	addr := flag.String("addr", getEnv("SERVER_ADDR", ":8080"), "http service address")
	logLevel := flag.String("log-level", getEnv("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	env := flag.String("env", getEnv("ENVIRONMENT", "development"), "environment (development, staging, production)")
	pingInt := flag.String("keepalive-ping", getEnv("KEEPALIVE_PING", "30"), "keepalive ping interval in seconds")
	pongWait := flag.String("keepalive-pong", getEnv("KEEPALIVE_PONG", "10"), "keepalive pong wait time in seconds")
	writeDeadline := flag.String("write-deadline", getEnv("WRITE_DEADLINE", "5"), "write operation timeout in seconds (doubled when applied)")
	redisAddr := flag.String("redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "redis address for durable room storage")
	schemaArrays := flag.String("schema-arrays", getEnv("SCHEMA_ARRAYS", "worldApps"), "comma-separated fixed map-of-maps array names")
	dispatchQueue := flag.String("dispatch-queue", getEnv("DISPATCH_QUEUE", "64"), "per-room actor job channel buffer size")
	lockTimeout := flag.String("lock-timeout", getEnv("LOCK_TIMEOUT", "30"), "lock acquisition notification timeout in seconds")
	flag.Parse()

	pingIntSecs, _ := strconv.ParseInt(*pingInt, 10, 64)
	pongWaitSecs, _ := strconv.ParseInt(*pongWait, 10, 64)
	writeDeadlineSecs, _ := strconv.ParseInt(*writeDeadline, 10, 64)
	dispatchQueueSize, _ := strconv.Atoi(*dispatchQueue)
	if dispatchQueueSize <= 0 {
		dispatchQueueSize = 64
	}
	lockTimeoutSecs, _ := strconv.ParseInt(*lockTimeout, 10, 64)

	var arrays []string
	for _, a := range strings.Split(*schemaArrays, ",") {
		if a = strings.TrimSpace(a); a != "" {
			arrays = append(arrays, a)
		}
	}

	return &Config{
		Addr:              *addr,
		LogLevel:          strings.ToLower(*logLevel),
		Env:               strings.ToLower(*env),
		KeepalivePingInt:  time.Duration(pingIntSecs) * time.Second,
		KeepalivePongWait: time.Duration(pongWaitSecs) * time.Second,
		WriteDeadline:     time.Duration(writeDeadlineSecs) * time.Second * 2, // Doubled to prevent premature timeout
		RedisAddr:         *redisAddr,
		SchemaArrays:      arrays,
		DispatchQueue:     dispatchQueueSize,
		LockTimeout:       time.Duration(lockTimeoutSecs) * time.Second,
	}
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
