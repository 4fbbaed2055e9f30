package collect

import (
	"context"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	pipelineDefinitionPathConstant = ".gitlab-ci.yml"
	changeTypeAddedConstant        = "added"
	changeTypeDeletedConstant      = "deleted"
	changeTypeModifiedConstant     = "modified"
	diffFromLabelConstant          = "old"
	diffToLabelConstant            = "new"
	diffContextLinesConstant       = 3
)

// collectConfigChanges builds the cicd_changes snapshot by walking commit
// diffs and recording every revision of the pipeline definition file.
func (service *Service) collectConfigChanges(executionContext context.Context, projectIdentifiers []int64) ([][]string, error) {
	records := make([]ConfigChangeRecord, 0)
	for _, projectIdentifier := range projectIdentifiers {
		projectRecords, projectError := service.configChangesForProject(executionContext, projectIdentifier)
		if projectError != nil {
			if recoveryError := service.recoverProjectFailure(CategoryConfigChanges, projectIdentifier, projectError); recoveryError != nil {
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

func (service *Service) configChangesForProject(executionContext context.Context, projectIdentifier int64) ([]ConfigChangeRecord, error) {
	commits, commitsError := service.sources.Commits(executionContext, projectIdentifier, service.harvestWindow)
	if commitsError != nil {
		return nil, commitsError
	}

	records := make([]ConfigChangeRecord, 0)
	for _, commit := range commits {
		changes, changesError := service.sources.CommitDiff(executionContext, projectIdentifier, commit.ID)
		if changesError != nil {
			if recoveryError := service.recoverProjectFailure(CategoryConfigChanges, projectIdentifier, changesError); recoveryError != nil {
				return nil, recoveryError
			}
			continue
		}
		for _, change := range changes {
			if change.NewPath != pipelineDefinitionPathConstant {
				continue
			}

			// Missing revisions read as empty content so a file that
			// appears or disappears still classifies cleanly.
			oldContent := ""
			if len(commit.ParentIDs) > 0 {
				parentContent, parentError := service.sources.RawFileContent(executionContext, projectIdentifier, commit.ParentIDs[0], change.OldPath)
				if parentError == nil {
					oldContent = parentContent
				}
			}
			newContent, newContentError := service.sources.RawFileContent(executionContext, projectIdentifier, commit.ID, change.NewPath)
			if newContentError != nil {
				newContent = ""
			}

			changeType, diffText := comparePipelineDefinitions(oldContent, newContent)
			records = append(records, ConfigChangeRecord{
				ChangeType:    changeType,
				ChangeContent: diffText,
				Time:          commit.CommittedDate,
				Author:        commit.AuthorName,
				ProjectID:     projectIdentifier,
				Message:       commit.Message,
				CommitSHA:     commit.ID,
			})
		}
	}
	return records, nil
}

// comparePipelineDefinitions classifies the transition between two revisions
// of the pipeline definition and renders their unified diff.
func comparePipelineDefinitions(oldContent string, newContent string) (string, string) {
	changeType := changeTypeModifiedConstant
	switch {
	case len(oldContent) == 0 && len(newContent) > 0:
		changeType = changeTypeAddedConstant
	case len(oldContent) > 0 && len(newContent) == 0:
		changeType = changeTypeDeletedConstant
	}

	unifiedDiff := difflib.UnifiedDiff{
		A:        splitDiffLines(oldContent),
		B:        splitDiffLines(newContent),
		FromFile: diffFromLabelConstant,
		ToFile:   diffToLabelConstant,
		Context:  diffContextLinesConstant,
	}
	diffText, diffError := difflib.GetUnifiedDiffString(unifiedDiff)
	if diffError != nil {
		diffText = ""
	}
	return changeType, strings.TrimSuffix(diffText, "\n")
}

// splitDiffLines keeps line terminators and renders empty content as zero
// lines instead of one blank line.
func splitDiffLines(content string) []string {
	if len(content) == 0 {
		return []string{}
	}
	return difflib.SplitLines(content)
}
