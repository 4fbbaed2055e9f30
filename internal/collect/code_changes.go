package collect

import (
	"context"
	"sort"
	"strconv"
)

const (
	codeChangeOperationCommitConstant       = "commit"
	codeChangeOperationMergeRequestConstant = "merge_request"
	codeChangeOperationPushConstant         = "push"
	pushMessagePrefixConstant               = "commit from:"
)

// collectCodeChanges builds the code_changes snapshot from commits, merge
// requests, and push events across the discovered projects.
func (service *Service) collectCodeChanges(executionContext context.Context, projectIdentifiers []int64) ([][]string, error) {
	records := make([]CodeChangeRecord, 0)
	for _, projectIdentifier := range projectIdentifiers {
		projectRecords, projectError := service.codeChangesForProject(executionContext, projectIdentifier)
		if projectError != nil {
			if recoveryError := service.recoverProjectFailure(CategoryCodeChanges, projectIdentifier, projectError); recoveryError != nil {
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

func (service *Service) codeChangesForProject(executionContext context.Context, projectIdentifier int64) ([]CodeChangeRecord, error) {
	records := make([]CodeChangeRecord, 0)

	commits, commitsError := service.sources.Commits(executionContext, projectIdentifier, service.harvestWindow)
	if commitsError != nil {
		return nil, commitsError
	}
	for _, commit := range commits {
		records = append(records, CodeChangeRecord{
			Operation: codeChangeOperationCommitConstant,
			Time:      commit.CommittedDate,
			Author:    commit.AuthorName,
			Email:     commit.AuthorEmail,
			Message:   commit.Message,
			SHA:       commit.ID,
			ProjectID: projectIdentifier,
		})
	}

	mergeRequests, mergeRequestsError := service.sources.MergeRequests(executionContext, projectIdentifier, service.harvestWindow)
	if mergeRequestsError != nil {
		return nil, mergeRequestsError
	}
	for _, mergeRequest := range mergeRequests {
		authorIdentifier := int64(-1)
		authorName := ""
		if mergeRequest.Author != nil {
			authorIdentifier = mergeRequest.Author.ID
			authorName = mergeRequest.Author.Username
		}
		records = append(records, CodeChangeRecord{
			Operation:         codeChangeOperationMergeRequestConstant,
			Time:              mergeRequest.UpdatedAt,
			AuthorID:          strconv.FormatInt(authorIdentifier, 10),
			Author:            authorName,
			Message:           mergeRequest.Title,
			ProjectID:         projectIdentifier,
			MergeRequestState: mergeRequest.State,
		})
	}

	pushEvents, pushEventsError := service.sources.PushEvents(executionContext, projectIdentifier, service.harvestWindow)
	if pushEventsError != nil {
		return nil, pushEventsError
	}
	for _, pushEvent := range pushEvents {
		authorName := ""
		if pushEvent.Author != nil {
			authorName = pushEvent.Author.Username
		}
		commitFrom := ""
		commitTo := ""
		if pushEvent.PushData != nil {
			commitFrom = pushEvent.PushData.CommitFrom
			commitTo = pushEvent.PushData.CommitTo
		}
		records = append(records, CodeChangeRecord{
			Operation: codeChangeOperationPushConstant,
			Time:      pushEvent.CreatedAt,
			AuthorID:  strconv.FormatInt(pushEvent.AuthorID, 10),
			Author:    authorName,
			Message:   pushMessagePrefixConstant + commitFrom,
			SHA:       commitTo,
			ProjectID: projectIdentifier,
		})
	}

	return records, nil
}
