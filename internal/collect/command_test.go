package collect_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/karev/glharvest/internal/collect"
	"github.com/karev/glharvest/internal/report"
)

type frozenClock struct {
	instant time.Time
}

func (clock frozenClock) Now() time.Time {
	return clock.instant
}

func collectConfiguration() collect.CommandConfiguration {
	configuration := collect.DefaultCommandConfiguration()
	configuration.BaseURL = "https://gitlab.example.com"
	configuration.AccessToken = "glpat-test-token"
	configuration.Timezone = "UTC"
	return configuration
}

func newCollectCommandBuilder(sources collect.Sources, fileSystem afero.Fs) *collect.CommandBuilder {
	return &collect.CommandBuilder{
		LoggerProvider:        func() *zap.Logger { return zap.NewNop() },
		ConfigurationProvider: collectConfiguration,
		Sources:               sources,
		Emitter:               report.NewEmitter(fileSystem),
		Clock:                 frozenClock{instant: time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)},
	}
}

func TestCollectCommandWritesSummary(testInstance *testing.T) {
	fileSystem := afero.NewMemMapFs()
	builder := newCollectCommandBuilder(populatedSources(), fileSystem)

	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	output := &bytes.Buffer{}
	command.SetOut(output)
	command.SetArgs([]string{"--category", "dim_users", "--category", "audit_records"})

	require.NoError(testInstance, command.Execute())
	require.Contains(testInstance, output.String(), "Harvest 2024-02-01T00:00:00Z -> 2024-02-29T23:59:59Z")
	require.Contains(testInstance, output.String(), "dim_users.csv")
	require.Contains(testInstance, output.String(), "audit_records.csv")
	require.Contains(testInstance, output.String(), "Artifacts written to")

	exists, existsError := afero.Exists(fileSystem, "Audit_Output_W_20240201-20240229/dim_users.csv")
	require.NoError(testInstance, existsError)
	require.True(testInstance, exists)
}

func TestCollectCommandRejectsUnknownCategory(testInstance *testing.T) {
	builder := newCollectCommandBuilder(populatedSources(), afero.NewMemMapFs())

	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)
	command.SetOut(&bytes.Buffer{})
	command.SetErr(&bytes.Buffer{})
	command.SetArgs([]string{"--category", "deployments"})

	executionError := command.Execute()
	require.Error(testInstance, executionError)
	require.Contains(testInstance, executionError.Error(), `unknown category "deployments"`)
}

func TestCollectCommandRequiresCredentials(testInstance *testing.T) {
	builder := newCollectCommandBuilder(populatedSources(), afero.NewMemMapFs())
	builder.ConfigurationProvider = func() collect.CommandConfiguration {
		configuration := collectConfiguration()
		configuration.AccessToken = ""
		return configuration
	}

	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)
	command.SetOut(&bytes.Buffer{})
	command.SetErr(&bytes.Buffer{})
	command.SetArgs(nil)

	executionError := command.Execute()
	require.Error(testInstance, executionError)
	require.Contains(testInstance, executionError.Error(), "ACCESS_TOKEN is not set")
}

func TestCollectCommandHonorsWindowOverrides(testInstance *testing.T) {
	fileSystem := afero.NewMemMapFs()
	builder := newCollectCommandBuilder(populatedSources(), fileSystem)
	builder.ConfigurationProvider = func() collect.CommandConfiguration {
		configuration := collectConfiguration()
		configuration.WindowStart = "2024-02-05T00:00:00Z"
		configuration.WindowEnd = "2024-02-10T00:00:00Z"
		return configuration
	}

	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)
	command.SetOut(&bytes.Buffer{})
	command.SetArgs([]string{"--category", "dim_users"})

	require.NoError(testInstance, command.Execute())
	exists, existsError := afero.Exists(fileSystem, "Audit_Output_D_20240205-20240210/dim_users.csv")
	require.NoError(testInstance, existsError)
	require.True(testInstance, exists)
}
