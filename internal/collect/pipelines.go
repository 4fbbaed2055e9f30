package collect

import (
	"context"
	"sort"
)

const pipelineSystemTriggerConstant = "system"

// collectPipelineActivities builds the cicd_pipelines snapshot. Each pipeline
// contributes one row per executed job; pipelines without jobs are skipped.
func (service *Service) collectPipelineActivities(executionContext context.Context, projectIdentifiers []int64) ([][]string, error) {
	records := make([]PipelineActivityRecord, 0)
	for _, projectIdentifier := range projectIdentifiers {
		projectRecords, projectError := service.pipelinesForProject(executionContext, projectIdentifier)
		if projectError != nil {
			if recoveryError := service.recoverProjectFailure(CategoryPipelineActivities, projectIdentifier, projectError); recoveryError != nil {
				return nil, recoveryError
			}
			continue
		}
		records = append(records, projectRecords...)
	}
	sort.SliceStable(records, func(first int, second int) bool {
		return records[first].Time < records[second].Time
	})
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, record.CSVRecord())
	}
	return rows, nil
}

func (service *Service) pipelinesForProject(executionContext context.Context, projectIdentifier int64) ([]PipelineActivityRecord, error) {
	pipelines, pipelinesError := service.sources.Pipelines(executionContext, projectIdentifier, service.harvestWindow)
	if pipelinesError != nil {
		return nil, pipelinesError
	}

	records := make([]PipelineActivityRecord, 0)
	for _, pipeline := range pipelines {
		jobs, jobsError := service.sources.PipelineJobs(executionContext, projectIdentifier, pipeline.ID)
		if jobsError != nil {
			if recoveryError := service.recoverProjectFailure(CategoryPipelineActivities, projectIdentifier, jobsError); recoveryError != nil {
				return nil, recoveryError
			}
			continue
		}
		if len(jobs) == 0 {
			continue
		}
		for _, job := range jobs {
			startTime := job.StartedAt
			if len(startTime) == 0 {
				startTime = pipeline.CreatedAt
			}
			endTime := job.FinishedAt
			if len(endTime) == 0 {
				endTime = pipeline.UpdatedAt
			}
			duration := job.Duration
			if duration == 0 {
				duration = pipeline.Duration
			}
			triggeredBy := pipelineSystemTriggerConstant
			if job.User != nil && len(job.User.Username) > 0 {
				triggeredBy = job.User.Username
			}
			environmentName := ""
			if job.Environment != nil {
				environmentName = job.Environment.Name
			}
			records = append(records, PipelineActivityRecord{
				ProjectID:   projectIdentifier,
				Branch:      pipeline.Ref,
				PipelineID:  pipeline.ID,
				Stage:       job.Stage,
				JobName:     job.Name,
				JobStatus:   job.Status,
				Time:        startTime,
				EndTime:     endTime,
				Duration:    duration,
				TriggeredBy: triggeredBy,
				Environment: environmentName,
				CommitSHA:   pipeline.SHA,
			})
		}
	}
	return records, nil
}
