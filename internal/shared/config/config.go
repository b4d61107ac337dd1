package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration. It is built once at startup and
// passed to constructors; nothing reads it from package state.
type Config struct {
	Port            string
	Env             string
	CORSAllowOrigin []string
	DatabaseURL     string

	CacheStoreType string
	CacheDir       string
	AWSRegion      string
	S3Bucket       string
	S3Prefix       string
	SSEKMSKeyID    string
	SQSQueueURL    string

	RosterStore   string
	RosterCSVPath string
	CompanyName   string

	EditorUser     string
	EditorPassword string

	LLMProvider  string
	LLMModel     string
	OpenAIAPIKey string
	GeminiAPIKey string

	BrowserHeadless bool
	BrowserBin      string

	WorkerConcurrency int
	BatchConcurrency  int
	QueueCapacity     int
	ShutdownTimeout   time.Duration

	MaxAttempts       int
	RetryBackoff      time.Duration
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	SubmitDelayMin    time.Duration
	SubmitDelayMax    time.Duration
	UserDelayMin      time.Duration
	UserDelayMax      time.Duration
	ScoreWait         time.Duration
	QuizCacheTTL      time.Duration
	PassThreshold     int

	LogFile  string
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
// A YAML file named by AUTOSURVEY_CONFIG supplies defaults beneath the env.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")
	if path := strings.TrimSpace(os.Getenv("AUTOSURVEY_CONFIG")); path != "" {
		if err := loadYAMLFile(path); err != nil {
			log.Printf("config file %s ignored: %v", path, err)
		}
	}

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")
	rosterStore := normalizeRosterStore(getEnv("ROSTER_STORE", "csv"))

	if env == "production" && rosterStore == "postgres" && dbURL == "" {
		log.Printf("DATABASE_URL is required when ROSTER_STORE=postgres")
	}

	return Config{
		Port:            getEnv("PORT", "51000"),
		Env:             env,
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		DatabaseURL:     dbURL,

		CacheStoreType: normalizeStoreType(getEnv("CACHE_STORE", "local")),
		CacheDir:       getEnv("CACHE_DIR", "survey_cache"),
		AWSRegion:      getEnv("AWS_REGION", ""),
		S3Bucket:       getEnv("S3_BUCKET", ""),
		S3Prefix:       getEnv("S3_PREFIX", "survey_cache"),
		SSEKMSKeyID:    getEnv("SSE_KMS_KEY_ID", ""),
		SQSQueueURL:    getEnv("AUTOSURVEY_SQS_QUEUE_URL", ""),

		RosterStore:   rosterStore,
		RosterCSVPath: getEnv("CSV_PATH", "data/users.csv"),
		CompanyName:   getEnv("COMPANY_NAME", ""),

		EditorUser:     getEnv("EDITOR_USER", ""),
		EditorPassword: getEnv("EDITOR_PASSWORD", ""),

		LLMProvider:  normalizeProvider(getEnv("LLM_PROVIDER", "openai")),
		LLMModel:     getEnv("LLM_MODEL", "gpt-4o-mini"),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),

		BrowserHeadless: getBool("BROWSER_HEADLESS", true),
		BrowserBin:      getEnv("BROWSER_BIN", ""),

		WorkerConcurrency: getInt("WORKER_CONCURRENCY", 2),
		BatchConcurrency:  getInt("BATCH_CONCURRENCY", 4),
		QueueCapacity:     getInt("QUEUE_CAPACITY", 32),
		ShutdownTimeout:   getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		MaxAttempts:       getInt("MAX_ATTEMPTS", 2),
		RetryBackoff:      getDuration("RETRY_BACKOFF", 5*time.Second),
		NavigationTimeout: getDuration("NAVIGATION_TIMEOUT", 20*time.Second),
		SettleDelay:       getDuration("SETTLE_DELAY", 2500*time.Millisecond),
		SubmitDelayMin:    getDuration("SUBMIT_DELAY_MIN", time.Second),
		SubmitDelayMax:    getDuration("SUBMIT_DELAY_MAX", 15*time.Second),
		UserDelayMin:      getDuration("USER_DELAY_MIN", time.Second),
		UserDelayMax:      getDuration("USER_DELAY_MAX", 4*time.Second),
		ScoreWait:         getDuration("SCORE_WAIT", 10*time.Second),
		QuizCacheTTL:      getDuration("QUIZ_CACHE_TTL", 0),
		PassThreshold:     getInt("PASS_THRESHOLD", 80),

		LogFile:  getEnv("LOG_FILE", "logs/[auto_survey]daily_latest.temp.log"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config env %s invalid int: %v", key, err)
		return def
	}
	return val
}

func getBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("config env %s invalid bool: %v", key, err)
		return def
	}
	return val
}

// getDuration accepts Go durations ("20s") or bare seconds ("20").
func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config env %s invalid duration: %v", key, err)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

func normalizeRosterStore(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "postgres", "pg":
		return "postgres"
	case "memory":
		return "memory"
	default:
		return "csv"
	}
}

func normalizeProvider(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "gemini", "google":
		return "gemini"
	case "none", "placeholder":
		return "none"
	default:
		return "openai"
	}
}
