package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/serisow/craftvid/script_type"
)

type Config struct {
	Environment  string
	Domains      []string
	CertCacheDir string
	HTTPPort     string
	HTTPSPort    string
	DatabaseURL  string

	MediaRoot string
	TempDir   string
	LogDir    string
	LogLevel  string

	FFmpegPath    string
	FFprobePath   string
	FFmpegThreads int
	PresetsFile   string

	DefaultQuality       string
	DefaultFormat        script_type.Format
	DefaultSceneDuration float64
	BackgroundAudioPath  string
	BackgroundVolume     float64
	WatermarkPath        string
	WatermarkPosition    string
	WatermarkOpacity     float64
	WatermarkSizeRatio   float64

	CompileSettle     time.Duration
	WorkerConcurrency int
	RetryAttempts     int
	RetryDelay        time.Duration
	CheckInterval     time.Duration
	RetentionDays     int

	SpeechProvider   string
	ImageProvider    string
	ElevenLabsAPIKey string
	ElevenLabsAPIURL string
	DefaultVoice     script_type.VoiceProfile
	DefaultModel     script_type.ModelProfile
	OpenAIAPIKey     string
	OpenAIImageURL   string
	OpenAIImageModel string
	AWSAccessKeyID   string
	AWSAPISecret     string
	AWSRegion        string
}

var isTest bool

func init() {
	isTest = os.Getenv("GO_ENVIRONMENT") == "test"
	if !isTest {
		err := godotenv.Load()
		if err != nil {
			log.Println("Warning: Error loading .env file:", err)
		}
	}
}

func Load() Config {
	return Config{
		Environment:  getEnv("ENVIRONMENT", "development"),
		Domains:      strings.Split(getEnv("DOMAIN", "example.com"), ","),
		CertCacheDir: getEnv("CERT_CACHE_DIR", "certs"),
		HTTPPort:     getEnv("HTTP_PORT", "8086"),
		HTTPSPort:    getEnv("HTTPS_PORT", "443"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		MediaRoot: getEnv("MEDIA_ROOT", "storage"),
		TempDir:   getEnv("TEMP_DIR", os.TempDir()),
		LogDir:    getEnv("LOG_DIR", "logs"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),

		FFmpegPath:    getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:   getEnv("FFPROBE_PATH", "ffprobe"),
		FFmpegThreads: getEnvAsInt("FFMPEG_THREADS", 0),
		PresetsFile:   getEnv("PRESETS_FILE", ""),

		DefaultQuality:       getEnv("DEFAULT_QUALITY", "medium"),
		DefaultFormat:        script_type.Format(getEnv("DEFAULT_FORMAT", string(script_type.FormatLandscape))),
		DefaultSceneDuration: getEnvAsFloat("DEFAULT_SCENE_DURATION", 5),
		BackgroundAudioPath:  getEnv("BACKGROUND_AUDIO_PATH", ""),
		BackgroundVolume:     getEnvAsFloat("BACKGROUND_VOLUME", 0.1),
		WatermarkPath:        getEnv("WATERMARK_PATH", ""),
		WatermarkPosition:    getEnv("WATERMARK_POSITION", "bottom-right"),
		WatermarkOpacity:     getEnvAsFloat("WATERMARK_OPACITY", 0.7),
		WatermarkSizeRatio:   getEnvAsFloat("WATERMARK_SIZE_RATIO", 0.15),

		CompileSettle:     time.Duration(getEnvAsInt("COMPILE_SETTLE_SECONDS", 10)) * time.Second,
		WorkerConcurrency: getEnvAsInt("WORKER_CONCURRENCY", 4),
		RetryAttempts:     getEnvAsInt("RETRY_ATTEMPTS", 3),
		RetryDelay:        time.Duration(getEnvAsInt("RETRY_DELAY_SECONDS", 5)) * time.Second,
		CheckInterval:     time.Duration(getEnvAsInt("CHECK_INTERVAL", 60)) * time.Second,
		RetentionDays:     getEnvAsInt("RETENTION_DAYS", 7),

		SpeechProvider:   getEnv("SPEECH_PROVIDER", "elevenlabs"),
		ImageProvider:    getEnv("IMAGE_PROVIDER", "openai_image"),
		ElevenLabsAPIKey: getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsAPIURL: getEnv("ELEVENLABS_API_URL", "https://api.elevenlabs.io/v1/text-to-speech"),
		DefaultVoice: script_type.VoiceProfile{
			ID:          getEnv("DEFAULT_VOICE_ID", "nPczCjzI2devNBz1zQrb"),
			DisplayName: getEnv("DEFAULT_VOICE_NAME", "Brian"),
		},
		DefaultModel:     script_type.ModelProfile{ID: getEnv("DEFAULT_MODEL_ID", "eleven_multilingual_v2")},
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIImageURL:   getEnv("OPENAI_IMAGE_URL", "https://api.openai.com/v1/images/generations"),
		OpenAIImageModel: getEnv("OPENAI_IMAGE_MODEL", "dall-e-3"),
		AWSAccessKeyID:   getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSAPISecret:     getEnv("AWS_API_SECRET", ""),
		AWSRegion:        getEnv("AWS_REGION", "us-west-2"),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}
