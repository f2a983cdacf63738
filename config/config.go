package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"
)

type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

type WebConfig struct {
	Host   string `yaml:"host" json:"host"`
	Port   int    `yaml:"port" json:"port"`
	Secret string `yaml:"secret" json:"secret"`
}

type DBConfig struct {
	Type   string `yaml:"type" json:"type"`
	Host   string `yaml:"host" json:"host"`
	Port   int    `yaml:"port" json:"port"`
	Name   string `yaml:"name" json:"name"`
	User   string `yaml:"user" json:"user"`
	Passwd string `yaml:"passwd" json:"passwd"`
	Debug  bool   `yaml:"debug" json:"debug"`
}

// CredentialConfig selects where protocol credential blobs are persisted.
// Backend is "bolt" (file under workdir) or "database" (wa_credential table).
type CredentialConfig struct {
	Backend  string `yaml:"backend" json:"backend"`
	BoltFile string `yaml:"bolt_file" json:"bolt_file"`
}

type WhatsAppConfig struct {
	// CountryCode replaces a leading "0" when normalizing phone addresses.
	CountryCode string `yaml:"country_code" json:"country_code"`
	// DeviceName is shown in the WhatsApp linked-devices list.
	DeviceName string `yaml:"device_name" json:"device_name"`
}

type ReconnectConfig struct {
	MinDelay time.Duration `yaml:"min_delay" json:"min_delay"`
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`
}

type LoggerConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

type AppConfig struct {
	System     SysConfig        `yaml:"system" json:"system"`
	Web        WebConfig        `yaml:"web" json:"web"`
	Database   DBConfig         `yaml:"database" json:"database"`
	Credential CredentialConfig `yaml:"credential" json:"credential"`
	WhatsApp   WhatsAppConfig   `yaml:"whatsapp" json:"whatsapp"`
	Reconnect  ReconnectConfig  `yaml:"reconnect" json:"reconnect"`
	Logger     LoggerConfig     `yaml:"logger" json:"logger"`
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "wagate",
		Location: "Asia/Jakarta",
		Workdir:  "/var/wagate",
		Debug:    true,
	},
	Web: WebConfig{
		Host:   "0.0.0.0",
		Port:   1816,
		Secret: "",
	},
	Database: DBConfig{
		Type:   "sqlite",
		Host:   "127.0.0.1",
		Port:   5432,
		Name:   "wagate",
		User:   "postgres",
		Passwd: "",
		Debug:  false,
	},
	Credential: CredentialConfig{
		Backend:  "bolt",
		BoltFile: "credentials.db",
	},
	WhatsApp: WhatsAppConfig{
		CountryCode: "62",
		DeviceName:  "wagate",
	},
	Reconnect: ReconnectConfig{
		MinDelay: 2 * time.Second,
		MaxDelay: 5 * time.Minute,
	},
	Logger: LoggerConfig{
		Mode:       "development",
		FileEnable: false,
		Filename:   "/var/wagate/wagate.log",
	},
}

func LoadConfig(cfile string) *AppConfig {
	cfg := new(AppConfig)
	*cfg = *DefaultAppConfig
	if cfile != "" {
		if data, err := os.ReadFile(cfile); err == nil {
			_ = yaml.Unmarshal(data, cfg)
		}
	}
	setEnvValues(cfg)
	if cfg.Credential.BoltFile != "" && !filepath.IsAbs(cfg.Credential.BoltFile) {
		cfg.Credential.BoltFile = filepath.Join(cfg.System.Workdir, cfg.Credential.BoltFile)
	}
	return cfg
}

func setEnvValues(cfg *AppConfig) {
	setEnvStrValue("WAGATE_SYSTEM_WORKDIR", &cfg.System.Workdir)
	setEnvStrValue("WAGATE_SYSTEM_LOCATION", &cfg.System.Location)
	setEnvBoolValue("WAGATE_SYSTEM_DEBUG", &cfg.System.Debug)

	setEnvStrValue("WAGATE_WEB_HOST", &cfg.Web.Host)
	setEnvIntValue("WAGATE_WEB_PORT", &cfg.Web.Port)
	setEnvStrValue("WAGATE_WEB_SECRET", &cfg.Web.Secret)

	setEnvStrValue("WAGATE_DB_TYPE", &cfg.Database.Type)
	setEnvStrValue("WAGATE_DB_HOST", &cfg.Database.Host)
	setEnvIntValue("WAGATE_DB_PORT", &cfg.Database.Port)
	setEnvStrValue("WAGATE_DB_NAME", &cfg.Database.Name)
	setEnvStrValue("WAGATE_DB_USER", &cfg.Database.User)
	setEnvStrValue("WAGATE_DB_PASSWD", &cfg.Database.Passwd)
	setEnvBoolValue("WAGATE_DB_DEBUG", &cfg.Database.Debug)

	setEnvStrValue("WAGATE_CREDENTIAL_BACKEND", &cfg.Credential.Backend)
	setEnvStrValue("WAGATE_CREDENTIAL_BOLT_FILE", &cfg.Credential.BoltFile)

	setEnvStrValue("WAGATE_WHATSAPP_COUNTRY_CODE", &cfg.WhatsApp.CountryCode)
	setEnvStrValue("WAGATE_WHATSAPP_DEVICE_NAME", &cfg.WhatsApp.DeviceName)

	setEnvStrValue("WAGATE_LOGGER_MODE", &cfg.Logger.Mode)
	setEnvBoolValue("WAGATE_LOGGER_FILE_ENABLE", &cfg.Logger.FileEnable)
	setEnvStrValue("WAGATE_LOGGER_FILENAME", &cfg.Logger.Filename)
}

func setEnvStrValue(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func setEnvIntValue(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		*dst = cast.ToInt(v)
	}
}

func setEnvBoolValue(name string, dst *bool) {
	if v := os.Getenv(name); v != "" {
		*dst = cast.ToBool(v)
	}
}
