package collect

import (
	"context"
	"sort"
)

// collectUserDimension builds the dim_users snapshot sorted by account
// identifier.
func (service *Service) collectUserDimension(executionContext context.Context, _ []int64) ([][]string, error) {
	users, usersError := service.sources.Users(executionContext)
	if usersError != nil {
		return nil, usersError
	}

	records := make([]UserDimensionRecord, 0, len(users))
	for _, user := range users {
		records = append(records, UserDimensionRecord{
			ID:             user.ID,
			Username:       user.Username,
			Email:          user.Email,
			State:          user.State,
			IsAdmin:        user.IsAdmin,
			CreatedAt:      user.CreatedAt,
			LastSignInAt:   user.CurrentSignInAt,
			LastActivityOn: user.LastActivityOn,
		})
	}
	sort.SliceStable(records, func(first int, second int) bool {
		return records[first].ID < records[second].ID
	})
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, record.CSVRecord())
	}
	return rows, nil
}

// collectProjectDimension builds the dim_projects snapshot restricted to the
// projects active inside the harvest window. The raw project payload rides
// along in the metadata column.
func (service *Service) collectProjectDimension(executionContext context.Context, projectIdentifiers []int64) ([][]string, error) {
	envelopes, projectsError := service.sources.Projects(executionContext)
	if projectsError != nil {
		return nil, projectsError
	}

	activeProjects := make(map[int64]struct{}, len(projectIdentifiers))
	for _, projectIdentifier := range projectIdentifiers {
		activeProjects[projectIdentifier] = struct{}{}
	}

	records := make([]ProjectDimensionRecord, 0, len(envelopes))
	for _, envelope := range envelopes {
		if _, isActive := activeProjects[envelope.Project.ID]; !isActive {
			continue
		}
		records = append(records, ProjectDimensionRecord{
			ID:          envelope.Project.ID,
			Name:        envelope.Project.Name,
			Description: envelope.Project.Description,
			TagList:     envelope.Project.TagList,
			Metadata:    string(envelope.Raw),
		})
	}
	sort.SliceStable(records, func(first int, second int) bool {
		return records[first].ID < records[second].ID
	})
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, record.CSVRecord())
	}
	return rows, nil
}

// collectGroupDimension builds the dim_groups snapshot. Member lists that
// cannot be fetched leave the group row in place with no members.
func (service *Service) collectGroupDimension(executionContext context.Context, _ []int64) ([][]string, error) {
	groups, groupsError := service.sources.Groups(executionContext)
	if groupsError != nil {
		return nil, groupsError
	}

	records := make([]GroupDimensionRecord, 0, len(groups))
	for _, group := range groups {
		record := GroupDimensionRecord{
			ID:          group.ID,
			Name:        group.Name,
			Description: group.Description,
			Members:     []int64{},
			Visibility:  group.Visibility,
			CreatedAt:   group.CreatedAt,
			Path:        group.Path,
		}
		members, membersError := service.sources.GroupMembers(executionContext, group.ID)
		if membersError != nil {
			if recoveryError := service.recoverGroupFailure(CategoryGroupDimension, group.ID, membersError); recoveryError != nil {
				return nil, recoveryError
			}
		} else {
			for _, member := range members {
				if member.ID != 0 {
					record.Members = append(record.Members, member.ID)
				}
			}
		}
		records = append(records, record)
	}
	sort.SliceStable(records, func(first int, second int) bool {
		return records[first].ID < records[second].ID
	})
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, record.CSVRecord())
	}
	return rows, nil
}
