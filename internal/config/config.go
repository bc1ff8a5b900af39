package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisURL string

	ServerPort string

	JWTSecret string

	// ServiceName and AdvertiseAddr register this instance in the
	// endpoint registry so peers can forward packets to it. Empty
	// AdvertiseAddr disables advertising.
	ServiceName   string
	AdvertiseAddr string

	FCMProjectID   string
	FCMClientEmail string
	FCMPrivateKey  string

	// PushPriorityThreshold is the priority at or above which a push
	// gets the attention sound and high-priority queueing.
	PushPriorityThreshold int

	WorkerCount    int
	FlushInterval  time.Duration
	ForwardTimeout time.Duration
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables")
	}

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	sslMode := os.Getenv("DB_SSLMODE")
	if sslMode == "" {
		sslMode = "require"
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	serviceName := os.Getenv("SERVICE_NAME")
	if serviceName == "" {
		serviceName = "pulsegate"
	}

	threshold, err := strconv.Atoi(os.Getenv("PUSH_PRIORITY_THRESHOLD"))
	if err != nil || threshold <= 0 {
		threshold = 5
	}

	workerCount, err := strconv.Atoi(os.Getenv("WORKER_COUNT"))
	if err != nil || workerCount <= 0 {
		workerCount = 2
	}

	flushIntervalSec, err := strconv.Atoi(os.Getenv("FLUSH_INTERVAL_SECONDS"))
	if err != nil || flushIntervalSec <= 0 {
		flushIntervalSec = 5
	}

	forwardTimeoutMs, err := strconv.Atoi(os.Getenv("FORWARD_TIMEOUT_MS"))
	if err != nil || forwardTimeoutMs <= 0 {
		forwardTimeoutMs = 5000
	}

	return &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBSSLMode:  sslMode,

		RedisURL: redisURL,

		ServerPort: serverPort,

		JWTSecret: os.Getenv("JWT_SECRET"),

		ServiceName:   serviceName,
		AdvertiseAddr: os.Getenv("ADVERTISE_ADDR"),

		FCMProjectID:   os.Getenv("FCM_PROJECT_ID"),
		FCMClientEmail: os.Getenv("FCM_CLIENT_EMAIL"),
		FCMPrivateKey:  os.Getenv("FCM_PRIVATE_KEY"),

		PushPriorityThreshold: threshold,

		WorkerCount:    workerCount,
		FlushInterval:  time.Duration(flushIntervalSec) * time.Second,
		ForwardTimeout: time.Duration(forwardTimeoutMs) * time.Millisecond,
	}, nil
}
