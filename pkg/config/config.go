package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/ilingu/ilix-server/pkg/apperr"
)

const (
	// DefaultDictionaryPath is where the key-phrase word list lives.
	DefaultDictionaryPath = "./Assets/english_dictionary_words.txt"
	// DefaultTmpDir is the scratch directory for outbound file downloads.
	DefaultTmpDir = "./tmp"

	// MinHashRounds is the lowest accepted HASH_ROUND value. Anything below
	// makes the stored key-phrase hashes too cheap to brute-force.
	MinHashRounds = 5
)

// Config holds the full server configuration, read once from the environment.
type Config struct {
	Port       uint16
	Production bool // true binds 0.0.0.0, false binds 127.0.0.1
	MongoURI   string

	// Process secrets: changing either invalidates every existing pool.
	HashRounds int
	Salt       string

	DictionaryPath string
	TmpDir         string
}

// Load reads the configuration from the environment. A local .env file is
// loaded first when present (ignored when absent).
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := requiredUint16("PORT")
	if err != nil {
		return nil, err
	}

	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		return nil, apperr.New(apperr.EnvVarNotFound, fmt.Errorf("MONGODB_URI is not set"))
	}

	rounds, err := requiredInt("HASH_ROUND")
	if err != nil {
		return nil, err
	}
	if rounds < MinHashRounds {
		return nil, apperr.New(apperr.HashError, fmt.Errorf("HASH_ROUND=%d is below the minimum of %d", rounds, MinHashRounds))
	}

	salt := os.Getenv("SALT")
	if salt == "" {
		return nil, apperr.New(apperr.EnvVarNotFound, fmt.Errorf("SALT is not set"))
	}

	return &Config{
		Port:           port,
		Production:     isProduction(),
		MongoURI:       uri,
		HashRounds:     rounds,
		Salt:           salt,
		DictionaryPath: DefaultDictionaryPath,
		TmpDir:         DefaultTmpDir,
	}, nil
}

// Addr returns the listen address derived from APP_MODE and PORT.
func (c *Config) Addr() string {
	host := "127.0.0.1"
	if c.Production {
		host = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d", host, c.Port)
}

// isProduction reports the APP_MODE flag, defaulting to true when unset or
// unparsable (matching the historical behavior of the service).
func isProduction() bool {
	mode, err := strconv.ParseBool(os.Getenv("APP_MODE"))
	if err != nil {
		return true
	}
	return mode
}

func requiredInt(name string) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, apperr.New(apperr.EnvVarNotFound, fmt.Errorf("%s is not set", name))
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.New(apperr.ParseError, fmt.Errorf("%s: %w", name, err))
	}
	return v, nil
}

func requiredUint16(name string) (uint16, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, apperr.New(apperr.EnvVarNotFound, fmt.Errorf("%s is not set", name))
	}
	v, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, apperr.New(apperr.ParseError, fmt.Errorf("%s: %w", name, err))
	}
	return uint16(v), nil
}
