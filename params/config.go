package params

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Node struct {
	// DataDir holds the Pebble databases (account ledger, fill history).
	DataDir string
	// LogFile receives structured logs in addition to stdout.
	LogFile string
}

type API struct {
	Listen         string
	AllowedOrigins []string
}

type Config struct {
	Node Node
	API  API
}

func Default() Config {
	return Config{
		Node: Node{
			DataDir: "data",
			LogFile: "data/node.log",
		},
		API: API{
			Listen:         ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.Node.DataDir = dir
	}
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		cfg.Node.LogFile = logFile
	}
	if listen := os.Getenv("API_LISTEN"); listen != "" {
		cfg.API.Listen = listen
	}
	if origins := os.Getenv("API_ALLOWED_ORIGINS"); origins != "" {
		cfg.API.AllowedOrigins = strings.Split(origins, ",")
	}

	return cfg
}
