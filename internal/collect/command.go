package collect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/karev/glharvest/internal/gitlab"
	"github.com/karev/glharvest/internal/report"
	"github.com/karev/glharvest/internal/utils"
	"github.com/karev/glharvest/internal/window"
)

const (
	commandUseConstant              = "collect"
	commandShortDescriptionConstant = "Harvest audit activity into CSV snapshots"
	commandLongDescriptionConstant  = "collect polls a GitLab instance for user, project, code, review, pipeline, and system activity inside a time window and writes one CSV artifact per category."

	flagOutputName               = "out"
	flagOutputDescription        = "Directory the window labelled output directory is created under"
	flagCategoryName             = "category"
	flagCategoryDescription      = "Restrict the run to the named categories (repeatable)"
	flagConcurrencyName          = "concurrency"
	flagConcurrencyDescription   = "Number of categories collected in parallel"
	flagMetricsListenName        = "metrics-listen"
	flagMetricsListenDescription = "Address for the Prometheus scrape endpoint (disabled when empty)"

	missingBaseURLMessageConstant     = "GITLAB_URL is not set: provide tools.collector.base_url or the GITLAB_URL environment variable"
	missingAccessTokenMessageConstant = "ACCESS_TOKEN is not set: provide tools.collector.access_token or the ACCESS_TOKEN environment variable"
	unknownCategoryTemplateConstant   = "unknown category %q"
	invalidTimezoneTemplateConstant   = "invalid timezone %q: %w"
	collectionFailedTemplateConstant  = "collection failed: %w"

	summaryHeaderTemplateConstant   = "Harvest %s -> %s\n"
	summaryCategoryTemplateConstant = "  %-20s %d records\n"
	summaryFailureTemplateConstant  = "  %-20s FAILED\n"
	summaryOutputTemplateConstant   = "Artifacts written to %s\n"

	metricsEndpointPathConstant    = "/metrics"
	metricsShutdownTimeoutConstant = 2 * time.Second

	apiRootSuffixConstant = "/api/v4"
)

// CommandBuilder assembles the collect cobra command with configurable
// dependencies.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider func() CommandConfiguration
	Sources               Sources
	Emitter               ArtifactEmitter
	Clock                 window.Clock
}

// Build constructs the cobra command for harvest runs.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		RunE:  builder.run,
	}

	command.Flags().String(flagOutputName, "", flagOutputDescription)
	command.Flags().StringSlice(flagCategoryName, nil, flagCategoryDescription)
	command.Flags().Int(flagConcurrencyName, 0, flagConcurrencyDescription)
	command.Flags().String(flagMetricsListenName, "", flagMetricsListenDescription)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, _ []string) error {
	configuration := builder.resolveConfiguration()
	if outputFlag, _ := command.Flags().GetString(flagOutputName); len(strings.TrimSpace(outputFlag)) > 0 {
		configuration.OutputDirectory = strings.TrimSpace(outputFlag)
	}
	if categoriesFlag, _ := command.Flags().GetStringSlice(flagCategoryName); len(categoriesFlag) > 0 {
		configuration.Categories = categoriesFlag
	}
	if concurrencyFlag, _ := command.Flags().GetInt(flagConcurrencyName); concurrencyFlag > 0 {
		configuration.Concurrency = concurrencyFlag
	}
	if metricsFlag, _ := command.Flags().GetString(flagMetricsListenName); len(strings.TrimSpace(metricsFlag)) > 0 {
		configuration.MetricsListenAddress = strings.TrimSpace(metricsFlag)
	}
	configuration = configuration.sanitize()

	if len(configuration.BaseURL) == 0 {
		return errors.New(missingBaseURLMessageConstant)
	}
	if len(configuration.AccessToken) == 0 {
		return errors.New(missingAccessTokenMessageConstant)
	}

	categories, categoriesError := resolveCategories(configuration.Categories)
	if categoriesError != nil {
		return categoriesError
	}

	logger := builder.resolveLogger()

	location := time.Local
	if configuration.Timezone != defaultTimezoneConstant {
		resolvedLocation, locationError := time.LoadLocation(configuration.Timezone)
		if locationError != nil {
			return fmt.Errorf(invalidTimezoneTemplateConstant, configuration.Timezone, locationError)
		}
		location = resolvedLocation
	}

	resolver := window.NewResolver(builder.Clock, location)
	harvestWindow, windowError := resolver.Resolve(configuration.WindowStart, configuration.WindowEnd)
	if windowError != nil {
		return windowError
	}

	service, serviceError := NewService(ServiceOptions{
		Sources:         builder.resolveSources(configuration, logger),
		Emitter:         builder.resolveEmitter(),
		HarvestWindow:   harvestWindow,
		OutputDirectory: configuration.OutputDirectory,
		Categories:      categories,
		Concurrency:     configuration.Concurrency,
		Logger:          logger,
	})
	if serviceError != nil {
		return serviceError
	}

	if len(configuration.MetricsListenAddress) > 0 {
		stopMetrics := startMetricsListener(configuration.MetricsListenAddress, logger)
		defer stopMetrics()
	}

	summary, runError := service.Run(command.Context())
	writeSummary(command, harvestWindow, summary)
	if runError != nil {
		return fmt.Errorf(collectionFailedTemplateConstant, runError)
	}
	return nil
}

func resolveCategories(names []string) ([]Category, error) {
	if len(names) == 0 {
		return nil, nil
	}
	categories := make([]Category, 0, len(names))
	for _, name := range names {
		category, known := ParseCategory(name)
		if !known {
			return nil, fmt.Errorf(unknownCategoryTemplateConstant, name)
		}
		categories = append(categories, category)
	}
	return categories, nil
}

func writeSummary(command *cobra.Command, harvestWindow window.Window, summary RunSummary) {
	writer := utils.NewFlushingWriter(command.OutOrStdout())
	fmt.Fprintf(writer, summaryHeaderTemplateConstant, harvestWindow.StartISO(), harvestWindow.EndISO())
	for _, category := range summary.Succeeded {
		fmt.Fprintf(writer, summaryCategoryTemplateConstant, category.FileName(), summary.RecordCounts[category])
	}
	for _, category := range summary.Failed {
		fmt.Fprintf(writer, summaryFailureTemplateConstant, category.FileName())
	}
	if len(summary.Succeeded) > 0 {
		fmt.Fprintf(writer, summaryOutputTemplateConstant, summary.OutputDirectory)
	}
}

// startMetricsListener exposes the Prometheus registry on the given address
// until the returned stop function runs.
func startMetricsListener(listenAddress string, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle(metricsEndpointPathConstant, promhttp.Handler())
	server := &http.Server{Addr: listenAddress, Handler: mux}

	go func() {
		if serveError := server.ListenAndServe(); serveError != nil && !errors.Is(serveError, http.ErrServerClosed) {
			logger.Warn("metrics listener stopped", zap.Error(serveError))
		}
	}()

	return func() {
		shutdownContext, cancelShutdown := context.WithTimeout(context.Background(), metricsShutdownTimeoutConstant)
		defer cancelShutdown()
		_ = server.Shutdown(shutdownContext)
	}
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return DefaultCommandConfiguration()
	}
	return builder.ConfigurationProvider()
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}
	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func (builder *CommandBuilder) resolveSources(configuration CommandConfiguration, logger *zap.Logger) Sources {
	if builder.Sources != nil {
		return builder.Sources
	}
	// GITLAB_URL names the instance; the client wants the API root.
	apiBaseURL := configuration.BaseURL
	if !strings.HasSuffix(apiBaseURL, apiRootSuffixConstant) {
		apiBaseURL += apiRootSuffixConstant
	}
	return gitlab.NewClient(gitlab.ClientOptions{
		BaseURL:        apiBaseURL,
		Token:          configuration.AccessToken,
		RequestTimeout: time.Duration(configuration.RequestTimeoutSeconds) * time.Second,
		MaxRetries:     configuration.MaxRetries,
		PerPage:        configuration.PerPage,
		Logger:         logger,
	})
}

func (builder *CommandBuilder) resolveEmitter() ArtifactEmitter {
	if builder.Emitter != nil {
		return builder.Emitter
	}
	return report.NewEmitter(nil)
}
