package config

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/linesmerrill/agendajur-api/models"
)

// Config holds the project config values
type Config struct {
	URL          string
	DatabaseName string
	BaseURL      string
	Port         string
	Env          string

	// AdminEmail is the one identity that gets the admin role
	AdminEmail string
	JWTSecret  string

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadPreset string

	SendgridAPIKey string
	MailFrom       string

	// Timezone is used when rendering timestamps in reports and emails
	Timezone string
	// PollInterval drives subscriptions when mongo change streams are unavailable
	PollInterval time.Duration
	// TrustedProxyHops is the number of proxies appending to X-Forwarded-For,
	// 1 on Heroku. Zero means clients connect directly.
	TrustedProxyHops int
}

// New sets up all config related services
func New() *Config {
	env := os.Getenv("APP_ENV")

	//setup zap logger and replace default logger
	logger, err := setLogger(env)
	if err != nil {
		logger = zap.NewExample()
	}
	_ = zap.ReplaceGlobals(logger)

	pollInterval, err := time.ParseDuration(os.Getenv("POLL_INTERVAL"))
	if err != nil || pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	hops, err := strconv.Atoi(os.Getenv("TRUSTED_PROXY_HOPS"))
	if err != nil || hops < 0 {
		hops = 0
	}

	return &Config{
		URL:                    os.Getenv("DB_URI"),
		DatabaseName:           getenv("DB_NAME", "agendajur"),
		BaseURL:                os.Getenv("BASE_URL"),
		Port:                   getenv("PORT", "8080"),
		Env:                    env,
		AdminEmail:             os.Getenv("ADMIN_EMAIL"),
		JWTSecret:              os.Getenv("JWT_SECRET"),
		CloudinaryCloudName:    os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:       os.Getenv("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret:    os.Getenv("CLOUDINARY_API_SECRET"),
		CloudinaryUploadPreset: os.Getenv("CLOUDINARY_UPLOAD_PRESET"),
		SendgridAPIKey:         os.Getenv("SENDGRID_API_KEY"),
		MailFrom:               getenv("MAIL_FROM", "no-reply@agendajur.app"),
		Timezone:               getenv("TIMEZONE", "America/Sao_Paulo"),
		PollInterval:           pollInterval,
		TrustedProxyHops:       hops,
	}
}

// Location resolves the configured timezone, falling back to UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		zap.S().Warnw("unknown timezone, using UTC", "timezone", c.Timezone, "error", err)
		return time.UTC
	}
	return loc
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ErrorStatus is a useful function that will log, write http headers and body for a
// give message, status code and err
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	zap.S().Errorw(message, "status", httpStatusCode, "error", err)
	errText := ""
	if err != nil {
		errText = err.Error()
	}
	b, _ := json.Marshal(models.ErrorMessageResponse{Response: models.MessageError{Message: message, Error: errText}})
	w.WriteHeader(httpStatusCode)
	w.Write(b)
}
