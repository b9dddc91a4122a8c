package config

import "github.com/joho/godotenv"

// LoadDotEnv loads the first .env file found among paths into the process environment.
// Variables already set are not overridden. It returns the path loaded, or "".
func LoadDotEnv(paths ...string) string {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err == nil {
			return path
		}
	}
	return ""
}
