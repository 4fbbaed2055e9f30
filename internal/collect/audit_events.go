package collect

import (
	"context"
	"sort"
)

const epochTimestampConstant = "1970-01-01T00:00:00Z"

const (
	detailAuthorNameKeyConstant    = "author_name"
	detailTargetIDKeyConstant      = "target_id"
	detailTargetTypeKeyConstant    = "target_type"
	detailTargetDetailsKeyConstant = "target_details"
	detailRoleKeyConstant          = "as"
	detailCustomMessageKeyConstant = "custom_message"
	detailIPAddressKeyConstant     = "ip_address"
	detailChangeKeyConstant        = "change"
	detailChangeFromKeyConstant    = "from"
	detailChangeToKeyConstant      = "to"
)

// collectAuditRecords builds the audit_records snapshot from instance audit
// events, classifying each event into an operation class.
func (service *Service) collectAuditRecords(executionContext context.Context, _ []int64) ([][]string, error) {
	events, eventsError := service.sources.AuditEvents(executionContext, service.harvestWindow)
	if eventsError != nil {
		return nil, eventsError
	}

	records := make([]AuditRecord, 0, len(events))
	for _, event := range events {
		eventTime := event.CreatedAt
		if len(eventTime) == 0 {
			eventTime = epochTimestampConstant
		}

		prePost := ""
		if event.HasDetail(detailChangeKeyConstant) {
			prePost = event.DetailString(detailChangeFromKeyConstant) + ":" + event.DetailString(detailChangeToKeyConstant)
		}

		records = append(records, AuditRecord{
			AuthorID:       event.AuthorID,
			Author:         event.DetailString(detailAuthorNameKeyConstant),
			EntityID:       event.EntityID,
			EntityType:     event.EntityType,
			Time:           eventTime,
			Operation:      classifyAuditOperation(event),
			Event:          event.EventName,
			TargetID:       event.DetailInt64(detailTargetIDKeyConstant, -1),
			TargetType:     event.DetailString(detailTargetTypeKeyConstant),
			TargetName:     event.DetailString(detailTargetDetailsKeyConstant),
			PrePost:        prePost,
			LastRole:       event.DetailString(detailRoleKeyConstant),
			AdditionalInfo: event.DetailString(detailCustomMessageKeyConstant),
			IP:             event.DetailString(detailIPAddressKeyConstant),
		})
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
