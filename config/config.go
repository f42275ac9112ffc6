package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
)

// Config holds all configurable server parameters.
type Config struct {
	Port int `json:"port"`

	// MaxNameLength caps participant display names (runes after trimming).
	MaxNameLength int `json:"max_name_length"`

	// MaxImageBytes caps a single player avatar payload (data URI).
	MaxImageBytes int `json:"max_image_bytes"`

	// MaxMessageBytes is the WebSocket read limit. Must leave headroom for
	// a state patch carrying all eight avatar images at once.
	MaxMessageBytes int64 `json:"max_message_bytes"`

	// EmptyMatchTTLSec is how long a match with zero connected
	// participants survives before it is expired. 0 disables expiry.
	EmptyMatchTTLSec int `json:"empty_match_ttl_sec"`

	// PublicBaseURL is the externally reachable base URL used when
	// rendering QR join links. When empty, the request Host is used.
	PublicBaseURL string `json:"public_base_url"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		Port:             3001,
		MaxNameLength:    24,
		MaxImageBytes:    512000,
		MaxMessageBytes:  8 << 20,
		EmptyMatchTTLSec: 600,
		PublicBaseURL:    "",
	}
}

// Load reads configuration from an optional config.json file,
// then applies environment variable overrides. Fields not set
// in either source retain their default values.
func Load() *Config {
	cfg := Defaults()

	if f, err := os.Open("config.json"); err == nil {
		defer f.Close()
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			log.Printf("Warning: failed to parse config.json: %v", err)
		}
	}

	overrideInt(&cfg.Port, "PORT")
	overrideInt(&cfg.MaxNameLength, "MAX_NAME_LENGTH")
	overrideInt(&cfg.MaxImageBytes, "MAX_IMAGE_BYTES")
	overrideInt64(&cfg.MaxMessageBytes, "MAX_MESSAGE_BYTES")
	overrideInt(&cfg.EmptyMatchTTLSec, "EMPTY_MATCH_TTL_SEC")
	overrideString(&cfg.PublicBaseURL, "PUBLIC_BASE_URL")

	return cfg
}

func overrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*field = n
		} else {
			log.Printf("Warning: invalid value for %s: %q", envKey, val)
		}
	}
}

func overrideInt64(field *int64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			*field = n
		} else {
			log.Printf("Warning: invalid value for %s: %q", envKey, val)
		}
	}
}

func overrideString(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}
