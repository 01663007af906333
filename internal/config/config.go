package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Service names accepted in ENABLED_SERVICES.
const (
	ServiceMedia   = "media"
	ServiceRecords = "records"
)

// Config holds the gateway configuration loaded from environment variables.
type Config struct {
	// MediaPort is where the media fetch proxy listens.
	// Default: 8787
	MediaPort int

	// RecordsPort is where the metadata/payload bridge listens.
	// Default: 8788
	RecordsPort int

	// EnabledServices lists the services started by "mediabridge start".
	// Default: "media,records"
	EnabledServices []string

	// LogLevel controls the verbosity of logging (debug, info, warn, error).
	LogLevel string

	// DataDir is the root for the file payload store.
	DataDir string

	Media   MediaConfig
	Records RecordsConfig
}

// MediaConfig configures the object-storage backend behind the media proxy.
type MediaConfig struct {
	// Backend is "b2" (Backblaze native API) or "s3" (any S3-compatible store).
	Backend string

	B2KeyID          string
	B2ApplicationKey string
	B2APIURL         string
	// LeaseTTL is kept shorter than the real token lifetime (24h on B2).
	LeaseTTL time.Duration

	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	// S3PublicURL is the base used for descriptor URLs. Falls back to S3Endpoint.
	S3PublicURL string
	// IPFSGateway is the host used for the ipfsUrl of objects that carry a
	// cid metadata entry (Filebase pins every object to IPFS).
	IPFSGateway string
}

// RecordsConfig configures the record store and the payload store.
type RecordsConfig struct {
	NotionToken      string
	NotionDatabaseID string
	NotionAPIURL     string
	PageSize         int

	// PayloadBackend is "redis", "s3" or "file".
	PayloadBackend   string
	PayloadKeyPrefix string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PayloadS3Bucket    string
	PayloadS3Endpoint  string
	PayloadS3Region    string
	PayloadS3AccessKey string
	PayloadS3SecretKey string
}

// LoadEnv overlays variables from local .env files onto the process environment.
// It returns the files that were applied.
func LoadEnv(files ...string) ([]string, error) {
	if len(files) == 0 {
		files = []string{".env", ".env.local"}
	}
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			return loaded, fmt.Errorf("failed to load %s: %w", file, err)
		}
		loaded = append(loaded, file)
	}
	return loaded, nil
}

// Load creates a Config instance by reading environment variables.
// Missing or unparsable values are replaced with defaults.
func Load() *Config {
	cfg := &Config{
		MediaPort:       envInt("MEDIA_PORT", 8787),
		RecordsPort:     envInt("RECORDS_PORT", 8788),
		EnabledServices: []string{ServiceMedia, ServiceRecords},
		LogLevel:        envString("LOG_LEVEL", "info"),
		DataDir:         envString("DATA_DIR", "./data"),
		Media: MediaConfig{
			Backend:          strings.ToLower(envString("MEDIA_BACKEND", "b2")),
			B2KeyID:          os.Getenv("B2_KEY_ID"),
			B2ApplicationKey: os.Getenv("B2_APPLICATION_KEY"),
			B2APIURL:         strings.TrimRight(envString("B2_API_URL", "https://api.backblazeb2.com"), "/"),
			LeaseTTL:         envDuration("B2_LEASE_TTL", 23*time.Hour),
			S3Endpoint:       os.Getenv("MEDIA_S3_ENDPOINT"),
			S3Region:         envString("MEDIA_S3_REGION", "us-east-1"),
			S3AccessKey:      os.Getenv("MEDIA_S3_ACCESS_KEY"),
			S3SecretKey:      os.Getenv("MEDIA_S3_SECRET_KEY"),
			S3PublicURL:      os.Getenv("MEDIA_S3_PUBLIC_URL"),
			IPFSGateway:      envString("IPFS_GATEWAY", "ipfs.filebase.io"),
		},
		Records: RecordsConfig{
			NotionToken:        os.Getenv("NOTION_TOKEN"),
			NotionDatabaseID:   os.Getenv("NOTION_DATABASE_ID"),
			NotionAPIURL:       strings.TrimRight(envString("NOTION_API_URL", "https://api.notion.com"), "/"),
			PageSize:           envInt("NOTION_PAGE_SIZE", 100),
			PayloadBackend:     strings.ToLower(envString("PAYLOAD_BACKEND", "redis")),
			PayloadKeyPrefix:   envString("PAYLOAD_KEY_PREFIX", "payload:"),
			RedisAddr:          envString("REDIS_ADDR", "localhost:6379"),
			RedisPassword:      os.Getenv("REDIS_PASSWORD"),
			RedisDB:            envInt("REDIS_DB", 0),
			PayloadS3Bucket:    os.Getenv("PAYLOAD_S3_BUCKET"),
			PayloadS3Endpoint:  os.Getenv("PAYLOAD_S3_ENDPOINT"),
			PayloadS3Region:    envString("PAYLOAD_S3_REGION", "us-east-1"),
			PayloadS3AccessKey: os.Getenv("PAYLOAD_S3_ACCESS_KEY"),
			PayloadS3SecretKey: os.Getenv("PAYLOAD_S3_SECRET_KEY"),
		},
	}

	if servicesStr := os.Getenv("ENABLED_SERVICES"); servicesStr != "" {
		services := strings.Split(servicesStr, ",")
		enabled := make([]string, 0, len(services))
		for _, s := range services {
			s = strings.TrimSpace(s)
			if s != "" {
				enabled = append(enabled, s)
			}
		}
		if len(enabled) > 0 {
			cfg.EnabledServices = enabled
		}
	}

	return cfg
}

// IsServiceEnabled checks if a given service name is in the EnabledServices list.
func (c *Config) IsServiceEnabled(serviceName string) bool {
	for _, s := range c.EnabledServices {
		if s == serviceName {
			return true
		}
	}
	return false
}

// PortFor returns the listener port of a service, or 0 for unknown names.
func (c *Config) PortFor(serviceName string) int {
	switch serviceName {
	case ServiceMedia:
		return c.MediaPort
	case ServiceRecords:
		return c.RecordsPort
	}
	return 0
}

// Validate reports the first invalid setting for the enabled services.
func (c *Config) Validate() error {
	for _, name := range c.EnabledServices {
		if name != ServiceMedia && name != ServiceRecords {
			return fmt.Errorf("unknown service %q in ENABLED_SERVICES", name)
		}
	}
	if c.IsServiceEnabled(ServiceMedia) {
		if err := validPort("MEDIA_PORT", c.MediaPort); err != nil {
			return err
		}
		if err := c.Media.validate(); err != nil {
			return err
		}
	}
	if c.IsServiceEnabled(ServiceRecords) {
		if err := validPort("RECORDS_PORT", c.RecordsPort); err != nil {
			return err
		}
		if err := c.Records.validate(c.DataDir); err != nil {
			return err
		}
	}
	if c.IsServiceEnabled(ServiceMedia) && c.IsServiceEnabled(ServiceRecords) && c.MediaPort == c.RecordsPort {
		return fmt.Errorf("MEDIA_PORT and RECORDS_PORT must differ (both %d)", c.MediaPort)
	}
	return nil
}

func (m MediaConfig) validate() error {
	switch m.Backend {
	case "b2":
		if m.B2KeyID == "" || m.B2ApplicationKey == "" {
			return fmt.Errorf("B2_KEY_ID and B2_APPLICATION_KEY are required for MEDIA_BACKEND=b2")
		}
		if m.LeaseTTL <= 0 {
			return fmt.Errorf("invalid B2_LEASE_TTL: %s", m.LeaseTTL)
		}
	case "s3":
		if m.S3Endpoint == "" {
			return fmt.Errorf("MEDIA_S3_ENDPOINT is required for MEDIA_BACKEND=s3")
		}
	default:
		return fmt.Errorf("invalid MEDIA_BACKEND: %q (must be b2 or s3)", m.Backend)
	}
	return nil
}

func (r RecordsConfig) validate(dataDir string) error {
	if r.NotionToken == "" || r.NotionDatabaseID == "" {
		return fmt.Errorf("NOTION_TOKEN and NOTION_DATABASE_ID are required")
	}
	if r.PageSize <= 0 || r.PageSize > 100 {
		return fmt.Errorf("invalid NOTION_PAGE_SIZE: %d (must be 1-100)", r.PageSize)
	}
	switch r.PayloadBackend {
	case "redis":
		if r.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR cannot be empty")
		}
	case "s3":
		if r.PayloadS3Bucket == "" {
			return fmt.Errorf("PAYLOAD_S3_BUCKET is required for PAYLOAD_BACKEND=s3")
		}
	case "file":
		if dataDir == "" {
			return fmt.Errorf("DATA_DIR cannot be empty")
		}
	default:
		return fmt.Errorf("invalid PAYLOAD_BACKEND: %q (must be redis, s3 or file)", r.PayloadBackend)
	}
	return nil
}

func validPort(name string, port int) error {
	if port <= 0 || port >= 65536 {
		return fmt.Errorf("invalid %s: %d (must be 1-65535)", name, port)
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
