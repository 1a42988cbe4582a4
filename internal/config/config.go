package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendXLSX   = "xlsx"
	BackendSheets = "sheets"
)

type Config struct {
	DBPath    string
	OutputDir string

	TableBackend  string
	WorkbookPath  string
	SpreadsheetID string

	GoogleCredentialsFile string
	GoogleClientID        string
	GoogleClientSecret    string
	GoogleRedirectURI     string
	GoogleRefreshToken    string
	SheetsRateLimitRPS    int
	SheetsTimeoutMs       int

	IntakeSheet  string
	LedgerSheet  string
	PartnerSheet string
	FunnelSheet  string

	IntakeStartRow    int
	LedgerStartRow    int
	ReferenceStartRow int
	RegistryStartRow  int
	TriggerCell       string
	DealTimeZone      string

	WatchIntervalSec int
	WatchAutoJoin    bool

	LogLevel  string
	LogFormat string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:    getEnv("DB_PATH", filepath.Join(cwd, "data", "dealdesk.db")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		TableBackend:  strings.ToLower(strings.TrimSpace(getEnv("TABLE_BACKEND", BackendXLSX))),
		WorkbookPath:  getEnv("WORKBOOK_PATH", filepath.Join(cwd, "data", "deals.xlsx")),
		SpreadsheetID: getEnv("SPREADSHEET_ID", ""),

		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		GoogleClientID:        getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:     getEnv("GOOGLE_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GoogleRefreshToken:    getEnv("GOOGLE_REFRESH_TOKEN", ""),
		SheetsRateLimitRPS:    getEnvInt("SHEETS_RATE_LIMIT_RPS", 1),
		SheetsTimeoutMs:       getEnvInt("SHEETS_TIMEOUT_MS", 30000),

		IntakeSheet:  getEnv("INTAKE_SHEET", "Deal Processing"),
		LedgerSheet:  getEnv("LEDGER_SHEET", "Supplier Deals"),
		PartnerSheet: getEnv("PARTNER_SHEET", "Partner List"),
		FunnelSheet:  getEnv("FUNNEL_SHEET", "Funnel List"),

		IntakeStartRow:    getEnvInt("INTAKE_START_ROW", 3),
		LedgerStartRow:    getEnvInt("LEDGER_START_ROW", 2),
		ReferenceStartRow: getEnvInt("REFERENCE_START_ROW", 2),
		RegistryStartRow:  getEnvInt("REGISTRY_START_ROW", 1),
		TriggerCell:       strings.ToUpper(getEnv("TRIGGER_CELL", "J1")),
		DealTimeZone:      getEnv("DEAL_TIMEZONE", "UTC"),

		WatchIntervalSec: getEnvInt("WATCH_INTERVAL_SEC", 10),
		WatchAutoJoin:    getEnvBool("WATCH_AUTO_JOIN", true),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if cfg.IntakeStartRow < 1 || cfg.LedgerStartRow < 1 || cfg.ReferenceStartRow < 1 || cfg.RegistryStartRow < 1 {
		return Config{}, fmt.Errorf("start rows must be >= 1")
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

// Location resolves DEAL_TIMEZONE, the zone deal dates are stamped in.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.DealTimeZone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid DEAL_TIMEZONE %q: %w", name, err)
	}
	return loc, nil
}

// ArchiveDir holds a copy of every imported deal file, named by content hash.
func (c Config) ArchiveDir() string {
	return filepath.Join(c.OutputDir, "imports")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
