package sink

import (
	"database/sql"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/karev/glharvest/internal/utils"
)

const (
	commandUseConstant              = "sink"
	commandShortDescriptionConstant = "Load harvested CSV snapshots into the warehouse"
	commandLongDescriptionConstant  = "sink reads the CSV artifacts of a harvest run and loads them into Apache Doris tables in batches, following a column mapping document."

	flagSourceName          = "source"
	flagSourceDescription   = "Directory holding the CSV artifacts to load"
	flagMappingsName        = "mappings"
	flagMappingsDescription = "Path to an alternate mapping document (defaults to the embedded one)"

	missingHostMessageConstant   = "DORIS_HOST is not set: provide tools.sink.host or the DORIS_HOST environment variable"
	missingSourceMessageConstant = "source directory is required: pass --source or set tools.sink.source_directory"
	openDatabaseTemplateConstant = "open warehouse connection: %w"
	readMappingsTemplateConstant = "read mapping document %s: %w"
	loadFailedTemplateConstant   = "warehouse load failed: %w"

	summaryRowTemplateConstant = "  %-28s %d rows\n"
)

// LoggerProvider supplies a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// CommandBuilder assembles the sink cobra command with configurable
// dependencies.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider func() CommandConfiguration
	Database              Execer
	FileSystem            afero.Fs
}

// Build constructs the cobra command for warehouse loads.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		RunE:  builder.run,
	}

	command.Flags().String(flagSourceName, "", flagSourceDescription)
	command.Flags().String(flagMappingsName, "", flagMappingsDescription)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, _ []string) error {
	configuration := builder.resolveConfiguration()
	if sourceFlag, _ := command.Flags().GetString(flagSourceName); len(strings.TrimSpace(sourceFlag)) > 0 {
		configuration.SourceDirectory = strings.TrimSpace(sourceFlag)
	}
	if mappingsFlag, _ := command.Flags().GetString(flagMappingsName); len(strings.TrimSpace(mappingsFlag)) > 0 {
		configuration.MappingsPath = strings.TrimSpace(mappingsFlag)
	}
	configuration = configuration.sanitize()

	if len(configuration.SourceDirectory) == 0 {
		return errors.New(missingSourceMessageConstant)
	}

	document, documentError := builder.resolveDocument(configuration)
	if documentError != nil {
		return documentError
	}

	logger := builder.resolveLogger()

	database, closeDatabase, databaseError := builder.resolveDatabase(configuration)
	if databaseError != nil {
		return databaseError
	}
	defer closeDatabase()

	service, serviceError := NewService(database, builder.FileSystem, logger, configuration.BatchSize)
	if serviceError != nil {
		return serviceError
	}

	summary, runError := service.Run(command.Context(), configuration.SourceDirectory, document)
	writeSummary(command, summary)
	if runError != nil {
		return fmt.Errorf(loadFailedTemplateConstant, runError)
	}
	return nil
}

func writeSummary(command *cobra.Command, summary LoadSummary) {
	writer := utils.NewFlushingWriter(command.OutOrStdout())
	tables := make([]string, 0, len(summary.RowsLoaded))
	for table := range summary.RowsLoaded {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		fmt.Fprintf(writer, summaryRowTemplateConstant, table, summary.RowsLoaded[table])
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

func (builder *CommandBuilder) resolveDocument(configuration CommandConfiguration) (Document, error) {
	if len(configuration.MappingsPath) == 0 {
		return DefaultDocument(), nil
	}
	fileSystem := builder.FileSystem
	if fileSystem == nil {
		fileSystem = afero.NewOsFs()
	}
	payload, readError := afero.ReadFile(fileSystem, configuration.MappingsPath)
	if readError != nil {
		return Document{}, fmt.Errorf(readMappingsTemplateConstant, configuration.MappingsPath, readError)
	}
	return ParseDocument(payload)
}

func (builder *CommandBuilder) resolveDatabase(configuration CommandConfiguration) (Execer, func(), error) {
	if builder.Database != nil {
		return builder.Database, func() {}, nil
	}
	if len(configuration.Host) == 0 {
		return nil, nil, errors.New(missingHostMessageConstant)
	}

	dataSourceConfiguration := mysql.NewConfig()
	dataSourceConfiguration.User = configuration.User
	dataSourceConfiguration.Passwd = configuration.Password
	dataSourceConfiguration.Net = "tcp"
	dataSourceConfiguration.Addr = net.JoinHostPort(configuration.Host, strconv.Itoa(configuration.Port))
	dataSourceConfiguration.DBName = configuration.Database
	dataSourceConfiguration.AllowNativePasswords = true

	database, openError := sql.Open("mysql", dataSourceConfiguration.FormatDSN())
	if openError != nil {
		return nil, nil, fmt.Errorf(openDatabaseTemplateConstant, openError)
	}
	closeDatabase := func() {
		_ = database.Close()
	}
	return database, closeDatabase, nil
}
