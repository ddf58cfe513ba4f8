// Package config loads the toolkit configuration from a YAML file with
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	patEnv       = "ADOKIT_PAT"
	sharedKeyEnv = "ADOKIT_SHARED_KEY"
	secretEnv    = "ADOKIT_CLIENT_SECRET"
)

type HTTP struct {
	TimeoutSeconds     int     `yaml:"timeoutSeconds" validate:"gte=1,lte=300"`
	RetryAttempts      int     `yaml:"retryAttempts" validate:"gte=1,lte=10"`
	RetryBackoffMillis int     `yaml:"retryBackoffMillis" validate:"gte=0"`
	RequestsPerSecond  float64 `yaml:"requestsPerSecond" validate:"gt=0"`
	PageLimit          int     `yaml:"pageLimit" validate:"gte=1,lte=100"`
	PaginationPolicy   string  `yaml:"paginationPolicy" validate:"oneof=lenient strict"`
}

// AzureAuth configures an AAD service-principal token source as an
// alternative to a personal access token.
type AzureAuth struct {
	TenantId     string `yaml:"tenantId" validate:"required"`
	ClientId     string `yaml:"clientId" validate:"required"`
	ClientSecret string `yaml:"-"`
}

type Report struct {
	// Groups are the built-in group names counted per project, e.g.
	// "Project Administrators".
	Groups       []string `yaml:"groups" validate:"min=1,dive,required"`
	OutputPath   string   `yaml:"outputPath"`
	SnapshotPath string   `yaml:"snapshotPath"`
}

type Telemetry struct {
	WorkspaceId string `yaml:"workspaceId"`
	SharedKey   string `yaml:"-"`
	LogType     string `yaml:"logType"`
}

type Config struct {
	Organization   string     `yaml:"organization" validate:"required"`
	LegacyEndpoint bool       `yaml:"legacyEndpoint"`
	PAT            string     `yaml:"-"`
	Azure          *AzureAuth `yaml:"azureAuth,omitempty"`
	HTTP           HTTP       `yaml:"http"`
	Report         Report     `yaml:"report"`
	Telemetry      Telemetry  `yaml:"telemetry"`
}

func Default() *Config {
	return &Config{
		HTTP: HTTP{
			TimeoutSeconds:     30,
			RetryAttempts:      3,
			RetryBackoffMillis: 2000,
			RequestsPerSecond:  10,
			PageLimit:          10,
			PaginationPolicy:   "lenient",
		},
		Report: Report{
			Groups: []string{"Project Administrators", "Contributors", "Readers"},
		},
		Telemetry: Telemetry{
			LogType: "AdoUsage",
		},
	}
}

// Load reads path (optional) and applies environment overrides. Validation
// happens after the caller merges command-line flags on top.
func Load(path string) (cfg *Config, err error) {
	cfg = Default()
	if len(path) > 0 {
		var data []byte
		if data, err = os.ReadFile(path); err != nil {
			return nil, err
		}
		if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
	}

	cfg.PAT = os.Getenv(patEnv)
	cfg.Telemetry.SharedKey = os.Getenv(sharedKeyEnv)
	if cfg.Azure != nil {
		cfg.Azure.ClientSecret = os.Getenv(secretEnv)
	}
	return
}

func (c *Config) Validate() (err error) {
	if err = validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return
}
