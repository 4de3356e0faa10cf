package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ClientID        string
	Tenant          string
	RedirectURI     string
	DatabasePath    string
	Timezone        *time.Location
	ServerPort      string
	HorizonDays     int
	RefreshInterval time.Duration

	// Optional: push sync errors to a Telegram chat.
	TelegramToken  string
	TelegramChatID int64
}

func Load() (*Config, error) {
	clientID := os.Getenv("MS_CLIENT_ID")
	if clientID == "" {
		return nil, fmt.Errorf("MS_CLIENT_ID is required")
	}

	tenant := os.Getenv("MS_TENANT_ID")
	if tenant == "" {
		tenant = "common"
	}

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	redirectURI := os.Getenv("MS_REDIRECT_URI")
	if redirectURI == "" {
		redirectURI = "http://localhost:" + serverPort + "/auth/callback"
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/outlookcal.db"
	}

	tzName := os.Getenv("TIMEZONE")
	if tzName == "" {
		tzName = "UTC"
	}
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	horizonDays := 365
	if h := os.Getenv("SYNC_HORIZON_DAYS"); h != "" {
		horizonDays, err = strconv.Atoi(h)
		if err != nil || horizonDays < 0 {
			return nil, fmt.Errorf("SYNC_HORIZON_DAYS must be a non-negative number")
		}
	}

	refreshInterval := 5 * time.Minute
	if r := os.Getenv("REFRESH_INTERVAL"); r != "" {
		refreshInterval, err = time.ParseDuration(r)
		if err != nil {
			return nil, fmt.Errorf("invalid REFRESH_INTERVAL: %w", err)
		}
	}

	var chatID int64
	if c := os.Getenv("TELEGRAM_CHAT_ID"); c != "" {
		chatID, err = strconv.ParseInt(c, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_CHAT_ID must be a number")
		}
	}

	return &Config{
		ClientID:        clientID,
		Tenant:          tenant,
		RedirectURI:     redirectURI,
		DatabasePath:    dbPath,
		Timezone:        tz,
		ServerPort:      serverPort,
		HorizonDays:     horizonDays,
		RefreshInterval: refreshInterval,
		TelegramToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:  chatID,
	}, nil
}
