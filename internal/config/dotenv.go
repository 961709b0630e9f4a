package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// dotEnvFiles lists candidate files, most specific first
func dotEnvFiles(env string) []string {
	files := []string{".env.local"}
	if env = strings.TrimSpace(env); env != "" {
		files = append(files, ".env."+env+".local", ".env."+env)
	}
	return append(files, ".env")
}

// LoadDotEnv loads the dotenv files that exist, in the order
// .env.local > .env.<APP_ENV>.local > .env.<APP_ENV> > .env.
// Variables already in the process environment are never overwritten.
// Returns the files actually loaded.
func LoadDotEnv() []string {
	var loaded []string
	for _, f := range dotEnvFiles(os.Getenv("APP_ENV")) {
		if _, err := os.Stat(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	if len(loaded) > 0 {
		_ = godotenv.Load(loaded...)
	}
	return loaded
}
