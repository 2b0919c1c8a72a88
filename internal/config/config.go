package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                string
	AllowedOrigin       string
	DatabaseURL         string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	AuthSecret          string
	AccessTokenTTLHours int
	GotenbergURL        string
	BusinessName        string
	BusinessAddress     string
	BusinessGSTNumber   string
	BusinessPhone       string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_HOURS", "24"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 24
	}

	cfg := Config{
		Port:                getEnv("PORT", "8080"),
		AllowedOrigin:       getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             redisDB,
		AuthSecret:          strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLHours: tokenTTL,
		GotenbergURL:        strings.TrimSpace(os.Getenv("GOTENBERG_URL")),
		BusinessName:        getEnv("BUSINESS_NAME", "Stock Ledger"),
		BusinessAddress:     os.Getenv("BUSINESS_ADDRESS"),
		BusinessGSTNumber:   os.Getenv("BUSINESS_GST_NUMBER"),
		BusinessPhone:       os.Getenv("BUSINESS_PHONE"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
