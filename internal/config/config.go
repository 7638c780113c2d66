package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env      string
	HTTPPort string

	FacesDir   string
	LedgerPath string
	Timezone   string
	Tolerance  float64

	Encoder        string
	DlibModelsDir  string
	FaceServiceURL string
	FaceSkip       bool

	RedisAddr    string
	QueueBackend string
	LockTTL      time.Duration

	JWTIssuer       string
	JWTSigningKey   string
	RegistrationKey string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	RateLimitPerMin int

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string
}

// DefaultJWTSigningKey signs device tokens when JWT_SIGNING_KEY is unset.
// It is public, so any deployment keeping it accepts forged tokens.
const DefaultJWTSigningKey = "dev-signing-secret-change"

// Production reports whether APP_ENV names a production deployment.
func (a App) Production() bool {
	return a.Env == "production" || a.Env == "prod"
}

// UsesDefaultSigningKey reports whether tokens are signed with DefaultJWTSigningKey.
func (a App) UsesDefaultSigningKey() bool {
	return a.JWTSigningKey == DefaultJWTSigningKey
}

// Location resolves Timezone, falling back to the host's local zone.
func (a App) Location() *time.Location {
	if a.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		log.Printf("invalid timezone %q: %v, using local", a.Timezone, err)
		return time.Local
	}
	return loc
}

// CloudinaryEnabled reports whether reference images should be mirrored.
func (a App) CloudinaryEnabled() bool {
	return a.CloudinaryCloudName != "" && a.CloudinaryAPIKey != "" && a.CloudinaryAPISecret != ""
}

// Load returns application config populated from environment variables with sensible defaults.
// A .env file in the working directory and the YAML file named by ATTEND_CONFIG_FILE supply
// defaults; real environment variables win over both.
func Load() App {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env: %v", err)
	}
	src := source{}
	if path := os.Getenv("ATTEND_CONFIG_FILE"); path != "" {
		file, err := readFile(path)
		if err != nil {
			log.Printf("config file %s ignored: %v", path, err)
		} else {
			src = file
		}
	}
	return src.load()
}

type source map[string]string

func readFile(path string) (source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	src := make(source, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		src[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return src, nil
}

func (s source) load() App {
	return App{
		Env:      s.getEnv("APP_ENV", "dev"),
		HTTPPort: s.getEnv("HTTP_PORT", "8081"),

		FacesDir:   s.getEnv("FACES_DIR", "faces"),
		LedgerPath: s.getEnv("LEDGER_PATH", "attendance.csv"),
		Timezone:   s.getEnv("ATTEND_TIMEZONE", ""),
		Tolerance:  s.floatEnv("FACE_TOLERANCE", 0.6),

		Encoder:        s.getEnv("FACE_ENCODER", "http"),
		DlibModelsDir:  s.getEnv("DLIB_MODELS_DIR", "models"),
		FaceServiceURL: s.getEnv("FACE_SERVICE_URL", "http://localhost:8000"),
		FaceSkip:       s.boolEnv("FACE_SKIP", false),

		RedisAddr:    s.getEnv("REDIS_ADDR", ""),
		QueueBackend: s.getEnv("QUEUE_BACKEND", "memory"),
		LockTTL:      s.durationEnv("LEDGER_LOCK_TTL", 10*time.Second),

		JWTIssuer:       s.getEnv("JWT_ISSUER", "faceattend"),
		JWTSigningKey:   s.getEnv("JWT_SIGNING_KEY", DefaultJWTSigningKey),
		RegistrationKey: s.getEnv("DEVICE_REGISTRATION_KEY", ""),
		AccessTTL:       s.durationEnv("ACCESS_TTL", 15*time.Minute),
		RefreshTTL:      s.durationEnv("REFRESH_TTL", 24*time.Hour),
		RateLimitPerMin: s.intEnv("RATE_LIMIT_PER_MIN", 120),

		CloudinaryCloudName: s.getEnv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryAPIKey:    s.getEnv("CLOUDINARY_API_KEY", ""),
		CloudinaryAPISecret: s.getEnv("CLOUDINARY_API_SECRET", ""),
		CloudinaryFolder:    s.getEnv("CLOUDINARY_FOLDER", "faces"),
	}
}

func (s source) getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if val, ok := s[key]; ok && val != "" {
		return val
	}
	return fallback
}

func (s source) durationEnv(key string, fallback time.Duration) time.Duration {
	if val := s.getEnv(key, ""); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func (s source) boolEnv(key string, fallback bool) bool {
	if val := s.getEnv(key, ""); val != "" {
		if val == "1" || val == "true" || val == "TRUE" {
			return true
		}
		if val == "0" || val == "false" || val == "FALSE" {
			return false
		}
		log.Printf("invalid bool for %s, using fallback %v", key, fallback)
	}
	return fallback
}

func (s source) intEnv(key string, fallback int) int {
	if val := s.getEnv(key, ""); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}

func (s source) floatEnv(key string, fallback float64) float64 {
	if val := s.getEnv(key, ""); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil && f > 0 {
			return f
		}
		log.Printf("invalid float for %s, using fallback %g", key, fallback)
	}
	return fallback
}
