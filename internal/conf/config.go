// Package conf holds the application settings, loaded with viper from a
// yaml config file and overridable from command line flags.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

type Settings struct {
	Debug bool // true to enable debug mode

	Import struct {
		KeepEmptyChannels bool // keep channels whose data key was missing from the export
		RequireSignature  bool // reject files without a recognizable Viking signature line
	}

	Output struct {
		SQLite struct {
			Enabled bool   // true to enable sqlite output
			Path    string // path to sqlite database
		}

		MySQL struct {
			Enabled  bool   // true to enable mysql output
			Username string // username for mysql database
			Password string // password for mysql database
			Database string // database name for mysql database
			Host     string // host for mysql database
			Port     string // port for mysql database
		}
	}

	Log struct {
		Enabled bool   // true to enable log file output
		Path    string // path to log file
	}
}

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	var settings Settings

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	return &settings, nil
}

func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := getDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	err = viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// getDefaultConfigPaths returns a list of default config paths for the current OS
func getDefaultConfigPaths() ([]string, error) {
	var configPaths []string

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user directory: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		configPaths = []string{
			".",
			filepath.Join(homeDir, "AppData", "Local", "vikinglab"),
		}
	default:
		configPaths = []string{
			filepath.Join(homeDir, ".config", "vikinglab"),
			"/etc/vikinglab",
			".",
		}
	}

	return configPaths, nil
}

// createDefaultConfig creates a default config file and writes it to the default config path
func createDefaultConfig() error {
	configPaths, err := getDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")
	defaultConfig := getDefaultConfig()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig returns the default configuration as a string.
func getDefaultConfig() string {
	return `# vikinglab configuration

debug: false            # print debug messages, can help with problem solving

# Viking export import settings
import:
  keepemptychannels: true   # keep channels whose data key was missing from the export
  requiresignature: true    # reject files without a recognizable Viking signature line

# Output settings
output:
  # Only one database is supported at a time
  # if both are enabled, SQLite will be used.
  sqlite:
    enabled: true       # true to enable sqlite output
    path: vikinglab.db  # path to sqlite database
  mysql:
    enabled: false      # true to enable mysql output
    username: vikinglab # mysql database username
    password: secret    # mysql database user password
    database: vikinglab # mysql database name
    host: localhost     # mysql database host
    port: 3306          # mysql database port

# Log file settings
log:
  enabled: false        # true to enable log file output
  path: vikinglab.log   # path to log file
`
}
