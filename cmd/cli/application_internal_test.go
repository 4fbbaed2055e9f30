package cli

import (
	"bytes"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedDefaultConfigurationUnmarshals(t *testing.T) {
	embeddedContent, embeddedType := EmbeddedDefaultConfiguration()
	require.NotEmpty(t, embeddedContent)

	viperInstance := viper.New()
	viperInstance.SetConfigType(embeddedType)
	require.NoError(t, viperInstance.ReadConfig(bytes.NewReader(embeddedContent)))

	var configuration ApplicationConfiguration
	require.NoError(t, viperInstance.Unmarshal(&configuration))

	require.Equal(t, "info", configuration.Common.LogLevel)
	require.Equal(t, "structured", configuration.Common.LogFormat)
	require.Equal(t, ".", configuration.Tools.Collector.OutputDirectory)
	require.Equal(t, "Local", configuration.Tools.Collector.Timezone)
	require.Equal(t, 100, configuration.Tools.Collector.PerPage)
	require.Equal(t, 4, configuration.Tools.Collector.Concurrency)
	require.Equal(t, 30, configuration.Tools.Collector.RequestTimeoutSeconds)
	require.Equal(t, 3, configuration.Tools.Collector.MaxRetries)
	require.Equal(t, 9030, configuration.Tools.Sink.Port)
	require.Equal(t, "dev", configuration.Tools.Sink.Database)
	require.Equal(t, 100, configuration.Tools.Sink.BatchSize)
}

func TestNewApplicationRegistersToolCommands(t *testing.T) {
	application := NewApplication()

	commandNames := make(map[string]bool)
	for _, command := range application.rootCommand.Commands() {
		commandNames[command.Name()] = true
	}
	require.True(t, commandNames["collect"])
	require.True(t, commandNames["sink"])

	for _, flagName := range []string{configFileFlagNameConstant, logLevelFlagNameConstant, logFormatFlagNameConstant} {
		require.NotNil(t, application.rootCommand.PersistentFlags().Lookup(flagName))
	}
}

func TestInitializeConfigurationAppliesEnvironmentBindings(t *testing.T) {
	t.Setenv("GITLAB_URL", "https://gitlab.example.com")
	t.Setenv("ACCESS_TOKEN", "glpat-test-token")
	t.Setenv("DORIS_HOST", "warehouse.internal")
	t.Setenv("SOURCE_DIR", "/var/snapshots")

	application := NewApplication()
	require.NoError(t, application.initializeConfiguration(application.rootCommand))

	require.Equal(t, "https://gitlab.example.com", application.configuration.Tools.Collector.BaseURL)
	require.Equal(t, "glpat-test-token", application.configuration.Tools.Collector.AccessToken)
	require.Equal(t, "warehouse.internal", application.configuration.Tools.Sink.Host)
	require.Equal(t, "/var/snapshots", application.configuration.Tools.Sink.SourceDirectory)
	require.NotNil(t, application.logger)
}

func TestRootCommandShowsHelpWithoutArguments(t *testing.T) {
	application := NewApplication()
	output := &bytes.Buffer{}
	application.rootCommand.SetOut(output)
	application.rootCommand.SetErr(output)
	application.rootCommand.SetArgs([]string{})

	require.NoError(t, application.Execute())
	require.Contains(t, output.String(), "collect")
	require.Contains(t, output.String(), "sink")
}
