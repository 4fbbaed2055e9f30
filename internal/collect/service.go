package collect

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/karev/glharvest/internal/gitlab"
	"github.com/karev/glharvest/internal/metrics"
	"github.com/karev/glharvest/internal/report"
	"github.com/karev/glharvest/internal/window"
)

const (
	defaultCategoryConcurrencyConstant = 4

	missingSourcesErrorMessageConstant      = "collection sources are required"
	missingEmitterErrorMessageConstant      = "artifact emitter is required"
	allCategoriesFailedErrorMessageConstant = "all categories failed"
	emitArtifactErrorTemplateConstant       = "emit %s artifact: %w"
)

// ServiceOptions configures a collection Service.
type ServiceOptions struct {
	Sources         Sources
	Emitter         ArtifactEmitter
	HarvestWindow   window.Window
	OutputDirectory string
	Categories      []Category
	Concurrency     int
	Logger          *zap.Logger
}

// Service runs one harvest: it discovers the active projects, extracts every
// selected category concurrently, and emits one CSV artifact per category
// into the window labelled output directory.
type Service struct {
	sources         Sources
	emitter         ArtifactEmitter
	harvestWindow   window.Window
	outputDirectory string
	categories      []Category
	concurrency     int
	logger          *zap.Logger
}

// RunSummary describes the outcome of one harvest.
type RunSummary struct {
	OutputDirectory string
	Succeeded       []Category
	Failed          []Category
	RecordCounts    map[Category]int
}

// NewService validates the options and builds a Service.
func NewService(options ServiceOptions) (*Service, error) {
	if options.Sources == nil {
		return nil, errors.New(missingSourcesErrorMessageConstant)
	}
	if options.Emitter == nil {
		return nil, errors.New(missingEmitterErrorMessageConstant)
	}
	categories := options.Categories
	if len(categories) == 0 {
		categories = AllCategories()
	}
	concurrency := options.Concurrency
	if concurrency <= 0 {
		concurrency = defaultCategoryConcurrencyConstant
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		sources:         options.Sources,
		emitter:         options.Emitter,
		harvestWindow:   options.HarvestWindow,
		outputDirectory: options.OutputDirectory,
		categories:      categories,
		concurrency:     concurrency,
		logger:          logger,
	}, nil
}

type categoryJob struct {
	category Category
	extract  func(executionContext context.Context, projectIdentifiers []int64) ([][]string, error)
}

type categoryOutcome struct {
	category    Category
	recordCount int
	failure     error
}

// Run executes the harvest. Categories fail independently: a failing
// category is logged and counted while the rest still emit. Authentication
// failures abort the whole run. Run returns an error only when the run is
// aborted or no category succeeds.
func (service *Service) Run(executionContext context.Context) (RunSummary, error) {
	summary := RunSummary{
		OutputDirectory: service.harvestWindow.Label(),
		RecordCounts:    make(map[Category]int, len(service.categories)),
	}
	if len(service.outputDirectory) > 0 {
		summary.OutputDirectory = filepath.Join(service.outputDirectory, service.harvestWindow.Label())
	}

	service.logger.Info("starting harvest",
		zap.String("window_start", service.harvestWindow.StartISO()),
		zap.String("window_end", service.harvestWindow.EndISO()),
		zap.String("output_directory", summary.OutputDirectory))

	runContext, cancelRun := context.WithCancel(executionContext)
	defer cancelRun()

	projectIdentifiers := service.discoverProjects(runContext)

	jobs := make(chan categoryJob)
	outcomes := make(chan categoryOutcome, len(service.categories))
	var fatalOnce sync.Once
	var fatalError error

	var workers sync.WaitGroup
	for workerIndex := 0; workerIndex < service.concurrency; workerIndex++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for job := range jobs {
				outcome := service.runCategory(runContext, job, projectIdentifiers, summary.OutputDirectory)
				if outcome.failure != nil && errors.Is(outcome.failure, gitlab.ErrAuthentication) {
					fatalOnce.Do(func() {
						fatalError = outcome.failure
						cancelRun()
					})
				}
				outcomes <- outcome
			}
		}()
	}

	for _, category := range service.categories {
		jobs <- service.jobForCategory(category)
	}
	close(jobs)
	workers.Wait()
	close(outcomes)

	for outcome := range outcomes {
		if outcome.failure != nil {
			summary.Failed = append(summary.Failed, outcome.category)
			continue
		}
		summary.Succeeded = append(summary.Succeeded, outcome.category)
		summary.RecordCounts[outcome.category] = outcome.recordCount
	}
	sortCategories(summary.Succeeded)
	sortCategories(summary.Failed)

	if fatalError != nil {
		return summary, fatalError
	}
	if len(summary.Succeeded) == 0 {
		return summary, errors.New(allCategoriesFailedErrorMessageConstant)
	}
	return summary, nil
}

// discoverProjects lists the projects active inside the harvest window. A
// listing failure degrades to an empty list so the instance level categories
// still run; authentication failures surface when the categories fetch.
func (service *Service) discoverProjects(executionContext context.Context) []int64 {
	projectIdentifiers, listError := service.sources.ProjectIdentifiers(executionContext, service.harvestWindow)
	if listError != nil {
		service.logger.Error("project discovery failed", zap.Error(listError))
		return nil
	}
	service.logger.Info("discovered projects", zap.Int("count", len(projectIdentifiers)))
	return projectIdentifiers
}

func (service *Service) runCategory(executionContext context.Context, job categoryJob, projectIdentifiers []int64, outputDirectory string) categoryOutcome {
	service.logger.Info("collecting category", zap.String("category", string(job.category)))

	rows, extractError := job.extract(executionContext, projectIdentifiers)
	if extractError != nil {
		service.logger.Error("category failed",
			zap.String("category", string(job.category)),
			zap.Error(extractError))
		metrics.CategoryFailuresTotal.WithLabelValues(string(job.category)).Inc()
		return categoryOutcome{category: job.category, failure: extractError}
	}

	artifact := report.Artifact{
		FileName: job.category.FileName(),
		Header:   job.category.Header(),
		Rows:     rows,
	}
	if emitError := service.emitter.Emit(outputDirectory, artifact); emitError != nil {
		service.logger.Error("artifact emission failed",
			zap.String("category", string(job.category)),
			zap.Error(emitError))
		metrics.CategoryFailuresTotal.WithLabelValues(string(job.category)).Inc()
		return categoryOutcome{category: job.category, failure: fmt.Errorf(emitArtifactErrorTemplateConstant, job.category, emitError)}
	}

	metrics.RecordsCollectedTotal.WithLabelValues(string(job.category)).Add(float64(len(rows)))
	service.logger.Info("category complete",
		zap.String("category", string(job.category)),
		zap.Int("records", len(rows)))
	return categoryOutcome{category: job.category, recordCount: len(rows)}
}

func (service *Service) jobForCategory(category Category) categoryJob {
	extractors := map[Category]func(context.Context, []int64) ([][]string, error){
		CategoryCodeChanges:         service.collectCodeChanges,
		CategoryMergeRequestReviews: service.collectMergeRequestReviews,
		CategoryPipelineActivities:  service.collectPipelineActivities,
		CategoryConfigChanges:       service.collectConfigChanges,
		CategoryAuditRecords:        service.collectAuditRecords,
		CategorySystemChanges:       service.collectSystemChanges,
		CategoryUserDimension:       service.collectUserDimension,
		CategoryProjectDimension:    service.collectProjectDimension,
		CategoryGroupDimension:      service.collectGroupDimension,
	}
	return categoryJob{category: category, extract: extractors[category]}
}

// recoverProjectFailure handles a per project fetch failure inside a
// category. Authentication failures propagate; anything else is logged and
// the category continues with the remaining projects.
func (service *Service) recoverProjectFailure(category Category, projectIdentifier int64, failure error) error {
	if errors.Is(failure, gitlab.ErrAuthentication) {
		return failure
	}
	metrics.RecordsDroppedTotal.WithLabelValues(string(category)).Inc()
	service.logger.Warn("project fetch failed",
		zap.String("category", string(category)),
		zap.Int64("project_id", projectIdentifier),
		zap.Error(failure))
	return nil
}

// recoverGroupFailure mirrors recoverProjectFailure for group scoped
// fetches.
func (service *Service) recoverGroupFailure(category Category, groupIdentifier int64, failure error) error {
	if errors.Is(failure, gitlab.ErrAuthentication) {
		return failure
	}
	metrics.RecordsDroppedTotal.WithLabelValues(string(category)).Inc()
	service.logger.Warn("group fetch failed",
		zap.String("category", string(category)),
		zap.Int64("group_id", groupIdentifier),
		zap.Error(failure))
	return nil
}

func sortCategories(categories []Category) {
	sort.Slice(categories, func(first int, second int) bool {
		return categories[first] < categories[second]
	})
}
