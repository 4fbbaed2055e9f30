package collect

import "strings"

const (
	defaultOutputDirectoryConstant = "."
	defaultTimezoneConstant        = "Local"
	defaultPerPageConstant         = 100
	defaultRequestTimeoutConstant  = 30
	defaultMaxRetriesConstant      = 3
)

// CommandConfiguration captures persistent settings for the collect command.
type CommandConfiguration struct {
	BaseURL               string   `mapstructure:"base_url"`
	AccessToken           string   `mapstructure:"access_token"`
	OutputDirectory       string   `mapstructure:"output_directory"`
	Timezone              string   `mapstructure:"timezone"`
	WindowStart           string   `mapstructure:"window_start"`
	WindowEnd             string   `mapstructure:"window_end"`
	PerPage               int      `mapstructure:"per_page"`
	Concurrency           int      `mapstructure:"concurrency"`
	RequestTimeoutSeconds int      `mapstructure:"request_timeout_seconds"`
	MaxRetries            int      `mapstructure:"max_retries"`
	MetricsListenAddress  string   `mapstructure:"metrics_listen_address"`
	Categories            []string `mapstructure:"categories"`
}

// DefaultCommandConfiguration returns baseline configuration values for the
// collect command.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		OutputDirectory:       defaultOutputDirectoryConstant,
		Timezone:              defaultTimezoneConstant,
		PerPage:               defaultPerPageConstant,
		Concurrency:           defaultCategoryConcurrencyConstant,
		RequestTimeoutSeconds: defaultRequestTimeoutConstant,
		MaxRetries:            defaultMaxRetriesConstant,
	}
}

// DefaultConfigurationValues exposes the collect defaults keyed for the
// configuration loader.
func DefaultConfigurationValues(rootKey string) map[string]any {
	defaults := DefaultCommandConfiguration()
	return map[string]any{
		rootKey + ".output_directory":        defaults.OutputDirectory,
		rootKey + ".timezone":                defaults.Timezone,
		rootKey + ".per_page":                defaults.PerPage,
		rootKey + ".concurrency":             defaults.Concurrency,
		rootKey + ".request_timeout_seconds": defaults.RequestTimeoutSeconds,
		rootKey + ".max_retries":             defaults.MaxRetries,
	}
}

// sanitize trims whitespace and applies defaults to unset configuration values.
func (configuration CommandConfiguration) sanitize() CommandConfiguration {
	sanitized := configuration

	sanitized.BaseURL = strings.TrimRight(strings.TrimSpace(configuration.BaseURL), "/")
	sanitized.AccessToken = strings.TrimSpace(configuration.AccessToken)
	sanitized.OutputDirectory = strings.TrimSpace(configuration.OutputDirectory)
	if len(sanitized.OutputDirectory) == 0 {
		sanitized.OutputDirectory = defaultOutputDirectoryConstant
	}
	sanitized.Timezone = strings.TrimSpace(configuration.Timezone)
	if len(sanitized.Timezone) == 0 {
		sanitized.Timezone = defaultTimezoneConstant
	}
	sanitized.WindowStart = strings.TrimSpace(configuration.WindowStart)
	sanitized.WindowEnd = strings.TrimSpace(configuration.WindowEnd)
	if sanitized.PerPage <= 0 {
		sanitized.PerPage = defaultPerPageConstant
	}
	if sanitized.Concurrency <= 0 {
		sanitized.Concurrency = defaultCategoryConcurrencyConstant
	}
	if sanitized.RequestTimeoutSeconds <= 0 {
		sanitized.RequestTimeoutSeconds = defaultRequestTimeoutConstant
	}
	if sanitized.MaxRetries < 0 {
		sanitized.MaxRetries = defaultMaxRetriesConstant
	}
	sanitized.MetricsListenAddress = strings.TrimSpace(configuration.MetricsListenAddress)
	sanitized.Categories = sanitizeCategories(configuration.Categories)

	return sanitized
}

func sanitizeCategories(raw []string) []string {
	sanitized := make([]string, 0, len(raw))
	for index := range raw {
		trimmed := strings.TrimSpace(raw[index])
		if len(trimmed) == 0 {
			continue
		}
		sanitized = append(sanitized, trimmed)
	}
	return sanitized
}
