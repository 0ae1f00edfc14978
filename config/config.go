package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration. Defaults come from the
// environment (and an optional .env file); a JSON file passed with
// --config overrides individual keys.
type Config struct {
	SourceDriver       string `json:"source_driver"`
	InspectionDSN      string `json:"inspection_dsn"`
	InspectionTable    string `json:"inspection_table"`
	DefectDSN          string `json:"defect_dsn"`
	DefectTable        string `json:"defect_table"`
	ProductMasterTable string `json:"product_master_table"`

	OutputDir         string `json:"output_dir"`
	TemplatePath      string `json:"template_path"`
	LogoText          string `json:"logo_text"`
	RunDateOffsetDays int    `json:"run_date_offset_days"`
	WriteBreakdownCSV bool   `json:"write_breakdown_csv"`

	GeminiAPIKey   string        `json:"-"`
	GeminiModel    string        `json:"gemini_model"`
	CommentDelay   time.Duration `json:"-"`
	CommentTimeout time.Duration `json:"-"`

	SMTPServer     string   `json:"smtp_server"`
	SMTPPort       int      `json:"smtp_port"`
	EmailSender    string   `json:"email_sender"`
	EmailPassword  string   `json:"-"`
	EmailReceivers []string `json:"email_receivers"`

	ExportPDF bool   `json:"export_pdf"`
	ChromeBin string `json:"chrome_bin"`
}

// fileOverrides mirrors the JSON-only representation of durations.
type fileOverrides struct {
	CommentDelaySec   *int `json:"comment_delay_sec"`
	CommentTimeoutSec *int `json:"comment_timeout_sec"`
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		SourceDriver:       getEnv("SOURCE_DRIVER", "postgres"),
		InspectionDSN:      getEnv("INSPECTION_DSN", "host=localhost port=5432 user=quality dbname=appearance sslmode=disable"),
		InspectionTable:    getEnv("INSPECTION_TABLE", "t_外観検査集計"),
		DefectDSN:          getEnv("DEFECT_DSN", "host=localhost port=5432 user=quality dbname=defects sslmode=disable"),
		DefectTable:        getEnv("DEFECT_TABLE", "t_不具合情報"),
		ProductMasterTable: getEnv("PRODUCT_MASTER_TABLE", "t_製品マスタ"),

		OutputDir:         getEnv("OUTPUT_DIR", "."),
		TemplatePath:      getEnv("TEMPLATE_PATH", ""),
		LogoText:          getEnv("LOGO_TEXT", "ARAI"),
		RunDateOffsetDays: getEnvInt("RUN_DATE_OFFSET_DAYS", -1),
		WriteBreakdownCSV: getEnvBool("WRITE_BREAKDOWN_CSV", true),

		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", ""),
		CommentDelay:   time.Duration(getEnvInt("COMMENT_DELAY_SEC", 4)) * time.Second,
		CommentTimeout: time.Duration(getEnvInt("COMMENT_TIMEOUT_SEC", 60)) * time.Second,

		SMTPServer:     getEnv("SMTP_SERVER", "smtp.office365.com"),
		SMTPPort:       getEnvInt("SMTP_PORT", 587),
		EmailSender:    getEnv("EMAIL_SENDER", ""),
		EmailPassword:  getEnv("EMAIL_PASSWORD", ""),
		EmailReceivers: getEnvList("EMAIL_RECEIVERS"),

		ExportPDF: getEnvBool("EXPORT_PDF", false),
		ChromeBin: getEnv("CHROME_BIN", ""),
	}
}

// LoadFile applies the JSON overrides at path on top of cfg. Keys that do
// not correspond to a setting are ignored.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %q: %w", path, err)
	}

	var extra fileOverrides
	if err := json.Unmarshal(data, &extra); err != nil {
		return fmt.Errorf("config: parse %q: %w", path, err)
	}
	if extra.CommentDelaySec != nil {
		c.CommentDelay = time.Duration(*extra.CommentDelaySec) * time.Second
	}
	if extra.CommentTimeoutSec != nil {
		c.CommentTimeout = time.Duration(*extra.CommentTimeoutSec) * time.Second
	}
	return nil
}

// Validate reports settings that make a run impossible.
func (c *Config) Validate() error {
	switch c.SourceDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported source_driver %q (want postgres or sqlite)", c.SourceDriver)
	}
	if c.InspectionTable == "" || c.DefectTable == "" {
		return fmt.Errorf("config: inspection_table and defect_table are required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("config: output_dir is required")
	}
	return nil
}

// MailEnabled reports whether failure notifications can be sent.
func (c *Config) MailEnabled() bool {
	return c.SMTPServer != "" && c.EmailSender != "" && len(c.EmailReceivers) > 0
}

// SMTPAddr returns host:port for the mail server.
func (c *Config) SMTPAddr() string {
	return c.SMTPServer + ":" + strconv.Itoa(c.SMTPPort)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
