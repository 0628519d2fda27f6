package config

import (
	"context"
	"os"
	"strconv"

	"nakeslink/interfaces"
	"nakeslink/repositories"
	"nakeslink/services"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

type Config struct {
	Environment string
	Port        string
	Version     string
	DatabaseURL string
	RedisURL    string
	JWTSecret   string

	// PSC 119 dispatch gateway
	PSC119BaseURL string
	PSC119APIKey  string

	// Firebase Config
	FirebaseCredentials string

	// Twilio Config
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string

	// App Settings
	RateLimitRequests int
	RateLimitWindow   int // minutes
}

func Load() *Config {
	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnv("PORT", "8080"),
		Version:     getEnv("APP_VERSION", "1.0.0"),
		DatabaseURL: getEnv("DATABASE_URL", "mongodb://localhost:27017/nakeslink"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
		JWTSecret:   getEnv("JWT_SECRET", "your-super-secret-jwt-key"),

		PSC119BaseURL: getEnv("PSC119_BASE_URL", ""),
		PSC119APIKey:  getEnv("PSC119_API_KEY", ""),

		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),

		TwilioAccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioPhoneNumber: getEnv("TWILIO_PHONE_NUMBER", ""),

		RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getEnvAsInt("RATE_LIMIT_WINDOW_MINUTES", 1),
	}
}

func InitRedis(cfg *Config) *redis.Client {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		opt = &redis.Options{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
		}
	}

	return redis.NewClient(opt)
}

// InitDispatchGateway selects the PSC 119 gateway for the environment.
// Production requires the real endpoint and never falls back to a mock;
// development gets the mock as a fallback, or standalone when no endpoint
// is configured.
func (c *Config) InitDispatchGateway() interfaces.DispatchGateway {
	if c.Environment == "production" {
		if c.PSC119BaseURL == "" {
			logrus.Fatal("PSC119_BASE_URL is required in production")
		}
		return services.NewHTTPDispatchGateway(c.PSC119BaseURL, c.PSC119APIKey)
	}

	if c.PSC119BaseURL == "" {
		logrus.Warn("PSC 119 endpoint not configured, using mock dispatch gateway")
		return services.NewMockDispatchGateway()
	}

	return services.NewFallbackDispatchGateway(
		services.NewHTTPDispatchGateway(c.PSC119BaseURL, c.PSC119APIKey),
		services.NewMockDispatchGateway(),
	)
}

// InitNotifier builds the FCM and Twilio backed notifier when credentials
// are present; otherwise the mock records deliveries locally.
func (c *Config) InitNotifier(userRepo *repositories.UserRepository) interfaces.Notifier {
	if c.FirebaseCredentials == "" && c.TwilioAccountSID == "" {
		logrus.Warn("No notification credentials configured, using mock notifier")
		return services.NewMockNotifier()
	}

	var fcmClient *messaging.Client
	if c.FirebaseCredentials != "" {
		opt := option.WithCredentialsFile(c.FirebaseCredentials)
		app, err := firebase.NewApp(context.Background(), nil, opt)
		if err != nil {
			logrus.Errorf("Failed to initialize Firebase: %v", err)
		} else {
			fcmClient, err = app.Messaging(context.Background())
			if err != nil {
				logrus.Errorf("Failed to initialize FCM client: %v", err)
			}
		}
	}

	if fcmClient == nil && c.TwilioAccountSID == "" {
		logrus.Warn("No usable notification channel, using mock notifier")
		return services.NewMockNotifier()
	}

	return services.NewNotificationService(
		fcmClient,
		c.TwilioAccountSID,
		c.TwilioAuthToken,
		c.TwilioPhoneNumber,
		userRepo,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
