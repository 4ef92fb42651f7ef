package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram struct {
		BotToken          string  `yaml:"bot_token"`
		Debug             bool    `yaml:"debug"`
		SendRatePerSecond float64 `yaml:"send_rate_per_second"`
	} `yaml:"telegram"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	// Backup configures local rotating snapshots of the database file.
	Backup BackupConfig `yaml:"backup"`

	// Remote configures the mirror of the database file in object storage.
	Remote RemoteConfig `yaml:"remote"`

	Email EmailConfig `yaml:"email"`

	Redis struct {
		Address           string `yaml:"address"`
		Password          string `yaml:"password"`
		DB                int    `yaml:"db"`
		SessionTTLMinutes int    `yaml:"session_ttl_minutes"`
	} `yaml:"redis"`

	HTTP struct {
		Port                 int    `yaml:"port"`
		APIKey               string `yaml:"api_key"`
		VerifyToken          string `yaml:"verify_token"`
		WebhookRatePerMinute int    `yaml:"webhook_rate_per_minute"`
	} `yaml:"http"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
		GRPCHealthPort    int  `yaml:"grpc_health_port"`
	} `yaml:"monitoring"`

	Booking BookingConfig `yaml:"booking"`

	Office OfficeConfig `yaml:"office"`

	Menu struct {
		Keywords []string `yaml:"keywords"`
	} `yaml:"menu"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

type RemoteConfig struct {
	Provider       string `yaml:"provider"` // dropbox, drive or empty to disable
	Path           string `yaml:"path"`
	RestoreOnStart bool   `yaml:"restore_on_start"`
	AccessToken    string `yaml:"access_token"`
	RefreshToken   string `yaml:"refresh_token"`
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
	TokenURL       string `yaml:"token_url"`
	DriveFolderID  string `yaml:"drive_folder_id"`
}

type EmailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

type BookingConfig struct {
	Timezone           string   `yaml:"timezone"`
	DaysAhead          int      `yaml:"days_ahead"`
	MaxPerPersonPerDay int      `yaml:"max_per_person_per_day"`
	TimeSlots          []string `yaml:"time_slots"`
	ScheduleStart      string   `yaml:"schedule_start"` // "15:00"
	ScheduleEnd        string   `yaml:"schedule_end"`   // "18:00"
	SlotMinutes        int      `yaml:"slot_minutes"`
	Holidays           []string `yaml:"holidays"` // DD-MM-YYYY
}

type OfficeConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Hours   string `yaml:"hours"`
	Phone   string `yaml:"phone"`
}

var defaultKeywords = []string{
	"hola", "menu", "inicio", "buenas", "buen", "buenos", "doctor", "ola", "cita",
	"consultar", "necesito", "programar", "quiero", "solicitar", "solicito", "para",
	"consulta", "una", "hello", "hi", "good", "morning", "evening", "night", "afternoon",
	"medico", "doc", "dr", "señor", "medicina",
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "data/citas.db"
	}
	if c.Telegram.SendRatePerSecond <= 0 {
		c.Telegram.SendRatePerSecond = 25
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "data/backups"
	}
	if c.Backup.IntervalHours <= 0 {
		c.Backup.IntervalHours = 24
	}
	if c.Remote.Path == "" {
		c.Remote.Path = "/citas.db"
	}
	if c.Remote.TokenURL == "" && c.Remote.Provider == "dropbox" {
		c.Remote.TokenURL = "https://api.dropbox.com/oauth2/token"
	}
	if c.Remote.TokenURL == "" && c.Remote.Provider == "drive" {
		c.Remote.TokenURL = "https://oauth2.googleapis.com/token"
	}
	if c.Email.Host == "" {
		c.Email.Host = "smtp.gmail.com"
	}
	if c.Email.Port == 0 {
		c.Email.Port = 587
	}
	if c.Email.From == "" {
		c.Email.From = c.Email.Username
	}
	if c.Email.To == "" {
		c.Email.To = c.Email.Username
	}
	if c.Redis.SessionTTLMinutes <= 0 {
		c.Redis.SessionTTLMinutes = 24 * 60
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 3000
	}
	if c.HTTP.WebhookRatePerMinute <= 0 {
		c.HTTP.WebhookRatePerMinute = 30
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Booking.Timezone == "" {
		c.Booking.Timezone = "America/Bogota"
	}
	if c.Booking.DaysAhead <= 0 {
		c.Booking.DaysAhead = 7
	}
	if c.Booking.MaxPerPersonPerDay <= 0 {
		c.Booking.MaxPerPersonPerDay = 2
	}
	if c.Booking.ScheduleStart == "" {
		c.Booking.ScheduleStart = "15:00"
	}
	if c.Booking.ScheduleEnd == "" {
		c.Booking.ScheduleEnd = "18:00"
	}
	if c.Booking.SlotMinutes <= 0 {
		c.Booking.SlotMinutes = 30
	}
	if c.Office.Name == "" {
		c.Office.Name = "Consultorio doctor Juan Carlos Rosas"
	}
	if c.Office.Address == "" {
		c.Office.Address = "Calle 21 #26-08 Esquina clínica Fatima, San juan de Pasto."
	}
	if c.Office.Hours == "" {
		c.Office.Hours = "Lunes a viernes, 15:00 PM - 18:00 PM."
	}
	if c.Office.Phone == "" {
		c.Office.Phone = "3161044386 - 602 7212171"
	}
	if len(c.Menu.Keywords) == 0 {
		c.Menu.Keywords = append([]string(nil), defaultKeywords...)
	}
}

// Validate checks the fields the bot cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Telegram.BotToken == "" && c.HTTP.VerifyToken == "" {
		errs = append(errs, errors.New("either telegram.bot_token or http.verify_token must be set"))
	}
	switch c.Remote.Provider {
	case "", "dropbox", "drive":
	default:
		errs = append(errs, fmt.Errorf("unknown remote.provider %q", c.Remote.Provider))
	}
	if c.Remote.Provider != "" && c.Remote.RefreshToken == "" && c.Remote.AccessToken == "" {
		errs = append(errs, errors.New("remote.refresh_token or remote.access_token is required"))
	}
	if c.Email.Enabled && (c.Email.Username == "" || c.Email.Password == "") {
		errs = append(errs, errors.New("email.username and email.password are required when email is enabled"))
	}
	if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("booking.timezone: %w", err))
	}
	for _, h := range c.Booking.Holidays {
		if _, err := time.Parse("02-01-2006", h); err != nil {
			errs = append(errs, fmt.Errorf("booking.holidays: invalid date %q", h))
		}
	}
	return errors.Join(errs...)
}

// Location returns the office time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Interval is the time between scheduled backups, one day when unset.
func (b BackupConfig) Interval() time.Duration {
	if b.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(b.IntervalHours) * time.Hour
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Redis.SessionTTLMinutes) * time.Minute
}

// NormalizedKeywords returns the menu keywords lowercased and trimmed.
func (c *Config) NormalizedKeywords() []string {
	out := make([]string, 0, len(c.Menu.Keywords))
	for _, k := range c.Menu.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}
