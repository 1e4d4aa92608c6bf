package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress      string
	CerebrasKey      string
	CerebrasModelID  string
	DeepgramKey      string
	DeepgramTTSVoice string
	SupabaseURL      string
	SupabaseKey      string
	SupabaseBucket   string
	ScoreInterval    time.Duration
	LLMTimeout       time.Duration
	SpeakReplies     bool
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	cerebrasKey := os.Getenv("CEREBRAS_API_KEY")
	if cerebrasKey == "" {
		log.Println("Warning: CEREBRAS_API_KEY not set - chat sessions will be refused")
	}
	cerebrasModel := os.Getenv("CEREBRAS_MODEL_ID")
	if cerebrasModel == "" {
		cerebrasModel = "gpt-oss-120b"
	}

	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	if deepgramKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - audio transcription and speech synthesis will not work")
	}
	ttsVoice := os.Getenv("DEEPGRAM_TTS_VOICE")

	supabaseURL := os.Getenv("SUPABASE_URL")
	supabaseKey := os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	if supabaseURL == "" || supabaseKey == "" {
		log.Println("Warning: SUPABASE_URL / SUPABASE_SERVICE_ROLE_KEY not set - transcripts will not be persisted")
	}
	bucket := getEnv("SUPABASE_BUCKET", "transcripts")

	interval := durationEnv("SCORE_INTERVAL", 5*time.Second)
	llmTimeout := durationEnv("LLM_TIMEOUT", 20*time.Second)

	speak := false
	if v := os.Getenv("SPEAK_REPLIES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Printf("Warning: invalid SPEAK_REPLIES value %q; replies will not be spoken", v)
		} else {
			speak = b
		}
	}

	log.Printf("config: HTTP_ADDRESS=%s score_interval=%s", addr, interval)
	return Config{
		HTTPAddress:      addr,
		CerebrasKey:      cerebrasKey,
		CerebrasModelID:  cerebrasModel,
		DeepgramKey:      deepgramKey,
		DeepgramTTSVoice: ttsVoice,
		SupabaseURL:      supabaseURL,
		SupabaseKey:      supabaseKey,
		SupabaseBucket:   bucket,
		ScoreInterval:    interval,
		LLMTimeout:       llmTimeout,
		SpeakReplies:     speak,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func durationEnv(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("Warning: invalid %s value %q; using %s", key, v, defaultValue)
		return defaultValue
	}
	return d
}
