package collect

import (
	"context"
	"sort"
)

// mergeRequestTransitions pairs a merge request timestamp with the approval
// status it represents. A transition contributes a review row only when its
// timestamp is populated.
var mergeRequestTransitions = []struct {
	timestamp func(timestamps mergeRequestTimestamps) string
	status    string
}{
	{timestamp: func(timestamps mergeRequestTimestamps) string { return timestamps.createdAt }, status: "opened"},
	{timestamp: func(timestamps mergeRequestTimestamps) string { return timestamps.updatedAt }, status: "approved"},
	{timestamp: func(timestamps mergeRequestTimestamps) string { return timestamps.mergedAt }, status: "merged"},
	{timestamp: func(timestamps mergeRequestTimestamps) string { return timestamps.closedAt }, status: "closed"},
}

type mergeRequestTimestamps struct {
	createdAt string
	updatedAt string
	mergedAt  string
	closedAt  string
}

// collectMergeRequestReviews builds the mr_reviews snapshot. Each populated
// lifecycle timestamp of a merge request becomes one row, and the merge
// request discussion notes are attached to its final row.
func (service *Service) collectMergeRequestReviews(executionContext context.Context, projectIdentifiers []int64) ([][]string, error) {
	records := make([]ReviewRecord, 0)
	for _, projectIdentifier := range projectIdentifiers {
		projectRecords, projectError := service.reviewsForProject(executionContext, projectIdentifier)
		if projectError != nil {
			if recoveryError := service.recoverProjectFailure(CategoryMergeRequestReviews, projectIdentifier, projectError); recoveryError != nil {
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

func (service *Service) reviewsForProject(executionContext context.Context, projectIdentifier int64) ([]ReviewRecord, error) {
	mergeRequests, mergeRequestsError := service.sources.MergeRequests(executionContext, projectIdentifier, service.harvestWindow)
	if mergeRequestsError != nil {
		return nil, mergeRequestsError
	}

	records := make([]ReviewRecord, 0)
	for _, mergeRequest := range mergeRequests {
		base := ReviewRecord{
			AuthorID:        -1,
			AssigneeID:      -1,
			Title:           mergeRequest.Title,
			Description:     mergeRequest.Description,
			ProjectID:       projectIdentifier,
			SourceBranch:    mergeRequest.SourceBranch,
			TargetBranch:    mergeRequest.TargetBranch,
			MergeRequestIID: mergeRequest.IID,
		}
		if mergeRequest.Author != nil {
			base.AuthorID = mergeRequest.Author.ID
			base.Author = mergeRequest.Author.Username
		}
		if mergeRequest.Assignee != nil {
			base.AssigneeID = mergeRequest.Assignee.ID
			base.Assignee = mergeRequest.Assignee.Username
		}
		reviewerIdentifiers := make([]int64, 0, len(mergeRequest.Reviewers))
		reviewerNames := ""
		for reviewerIndex, reviewer := range mergeRequest.Reviewers {
			reviewerIdentifiers = append(reviewerIdentifiers, reviewer.ID)
			if reviewerIndex > 0 {
				reviewerNames += ", "
			}
			reviewerNames += reviewer.Username
		}
		base.ReviewerIDs = reviewerIdentifiers
		base.Reviewers = reviewerNames

		timestamps := mergeRequestTimestamps{
			createdAt: mergeRequest.CreatedAt,
			updatedAt: mergeRequest.UpdatedAt,
			mergedAt:  mergeRequest.MergedAt,
			closedAt:  mergeRequest.ClosedAt,
		}
		for _, transition := range mergeRequestTransitions {
			transitionTime := transition.timestamp(timestamps)
			if len(transitionTime) == 0 {
				continue
			}
			record := base
			record.Time = transitionTime
			record.ApprovalStatus = transition.status
			records = append(records, record)
		}

		notes, notesError := service.sources.MergeRequestNotes(executionContext, projectIdentifier, mergeRequest.IID)
		if notesError != nil {
			if recoveryError := service.recoverProjectFailure(CategoryMergeRequestReviews, projectIdentifier, notesError); recoveryError != nil {
				return nil, recoveryError
			}
			continue
		}
		if len(records) == 0 {
			continue
		}
		lastIndex := len(records) - 1
		for _, note := range notes {
			commenter := ""
			if note.Author != nil {
				commenter = note.Author.Username
			}
			records[lastIndex].Comments = append(records[lastIndex].Comments, ReviewComment{
				Commenter: commenter,
				Content:   note.Body,
				Time:      note.CreatedAt,
			})
		}
	}
	return records, nil
}
