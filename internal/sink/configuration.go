package sink

import "strings"

const (
	defaultDorisPortConstant = 9030
	defaultDatabaseConstant  = "dev"
)

// CommandConfiguration captures persistent settings for the sink command.
type CommandConfiguration struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	SourceDirectory string `mapstructure:"source_directory"`
	MappingsPath    string `mapstructure:"mappings_path"`
	BatchSize       int    `mapstructure:"batch_size"`
}

// DefaultCommandConfiguration returns baseline configuration values for the
// sink command.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		Port:      defaultDorisPortConstant,
		Database:  defaultDatabaseConstant,
		BatchSize: defaultBatchSizeConstant,
	}
}

// DefaultConfigurationValues exposes the sink defaults keyed for the
// configuration loader.
func DefaultConfigurationValues(rootKey string) map[string]any {
	defaults := DefaultCommandConfiguration()
	return map[string]any{
		rootKey + ".port":       defaults.Port,
		rootKey + ".database":   defaults.Database,
		rootKey + ".batch_size": defaults.BatchSize,
	}
}

// sanitize trims whitespace and applies defaults to unset configuration values.
func (configuration CommandConfiguration) sanitize() CommandConfiguration {
	sanitized := configuration

	sanitized.Host = strings.TrimSpace(configuration.Host)
	sanitized.User = strings.TrimSpace(configuration.User)
	sanitized.Database = strings.TrimSpace(configuration.Database)
	if len(sanitized.Database) == 0 {
		sanitized.Database = defaultDatabaseConstant
	}
	if sanitized.Port <= 0 {
		sanitized.Port = defaultDorisPortConstant
	}
	sanitized.SourceDirectory = strings.TrimSpace(configuration.SourceDirectory)
	sanitized.MappingsPath = strings.TrimSpace(configuration.MappingsPath)
	if sanitized.BatchSize <= 0 {
		sanitized.BatchSize = defaultBatchSizeConstant
	}

	return sanitized
}
