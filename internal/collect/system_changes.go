package collect

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	systemEventUpdateConstant      = "update"
	systemEventCreateConstant      = "create"
	systemEventValidUpdateConstant = "valid_update"

	systemEntityApplicationSettingConstant = "ApplicationSetting"
	systemEntitySystemHookConstant         = "SystemHook"
	systemEntityFeatureFlagConstant        = "FeatureFlag"

	hookEventKeySuffixConstant = "_events"
	flagStateActiveConstant    = "active"
)

// collectSystemChanges builds the all_system_changes snapshot from the
// application settings, system hooks, and per project feature flags. These
// endpoints carry no time filter parameters, so records are filtered locally
// against the harvest window.
func (service *Service) collectSystemChanges(executionContext context.Context, projectIdentifiers []int64) ([][]string, error) {
	records := make([]SystemChangeRecord, 0)

	settings, settingsError := service.sources.ApplicationSettings(executionContext)
	if settingsError != nil {
		return nil, settingsError
	}
	records = append(records, service.processSystemRecords([]map[string]any{settings}, systemEventUpdateConstant, systemEntityApplicationSettingConstant)...)

	hooks, hooksError := service.sources.SystemHooks(executionContext)
	if hooksError != nil {
		return nil, hooksError
	}
	records = append(records, service.processSystemRecords(hooks, systemEventCreateConstant, systemEntitySystemHookConstant)...)

	for _, projectIdentifier := range projectIdentifiers {
		flags, flagsError := service.sources.FeatureFlags(executionContext, projectIdentifier)
		if flagsError != nil {
			if recoveryError := service.recoverProjectFailure(CategorySystemChanges, projectIdentifier, flagsError); recoveryError != nil {
				return nil, recoveryError
			}
			continue
		}
		records = append(records, service.processSystemRecords(flags, systemEventValidUpdateConstant, systemEntityFeatureFlagConstant)...)
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

// processSystemRecords flattens raw configuration payloads into snapshot
// records, keeping only those whose modification time falls inside the
// harvest window. Payloads with no timestamp are always kept.
func (service *Service) processSystemRecords(payloads []map[string]any, event string, entityType string) []SystemChangeRecord {
	records := make([]SystemChangeRecord, 0, len(payloads))
	for _, payload := range payloads {
		if payload == nil {
			continue
		}
		if !service.payloadWithinWindow(payload) {
			continue
		}

		// A zero or absent identifier falls back to the first feature
		// flag strategy identifier.
		eventIdentifier := payloadInt64(payload, "id", 0)
		if eventIdentifier == 0 {
			eventIdentifier = firstStrategyIdentifier(payload)
		}

		eventTime := payloadString(payload, "updated_at")
		if len(eventTime) == 0 {
			eventTime = payloadString(payload, "created_at")
		}
		if len(eventTime) == 0 {
			eventTime = epochTimestampConstant
		}

		entityDetails := payloadString(payload, "url")
		if len(entityDetails) == 0 {
			entityDetails = payloadString(payload, "version")
		}

		flagState := ""
		if truthyValue(payload[flagStateActiveConstant]) {
			flagState = flagStateActiveConstant
		}

		records = append(records, SystemChangeRecord{
			EventID:           eventIdentifier,
			Event:             event,
			EntityType:        entityType,
			Time:              eventTime,
			EntityName:        payloadString(payload, "name"),
			EntityDescription: payloadString(payload, "description"),
			EntityDetails:     entityDetails,
			HookEvents:        hookEventNames(payload),
			FlagState:         flagState,
		})
	}
	return records
}

// payloadWithinWindow reports whether the payload's modification time falls
// inside the harvest window. Payloads without a parseable timestamp are kept.
func (service *Service) payloadWithinWindow(payload map[string]any) bool {
	eventTime := payloadString(payload, "updated_at")
	if len(eventTime) == 0 {
		eventTime = payloadString(payload, "created_at")
	}
	if len(eventTime) == 0 {
		return true
	}
	parsedTime, parseError := time.Parse(time.RFC3339, eventTime)
	if parseError != nil {
		return true
	}
	return service.harvestWindow.Contains(parsedTime)
}

// hookEventNames joins the names of every enabled *_events trigger on the
// payload. Names are sorted so repeated runs render identically.
func hookEventNames(payload map[string]any) string {
	names := make([]string, 0)
	for key, value := range payload {
		if strings.HasSuffix(key, hookEventKeySuffixConstant) && truthyValue(value) {
			names = append(names, key)
		}
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// firstStrategyIdentifier pulls the identifier of the first feature flag
// strategy, or -1 when none exists.
func firstStrategyIdentifier(payload map[string]any) int64 {
	strategies, isList := payload["strategies"].([]any)
	if !isList || len(strategies) == 0 {
		return -1
	}
	strategy, isMap := strategies[0].(map[string]any)
	if !isMap {
		return -1
	}
	return payloadInt64(strategy, "id", -1)
}

func payloadString(payload map[string]any, key string) string {
	switch typed := payload[key].(type) {
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	default:
		return ""
	}
}

func payloadInt64(payload map[string]any, key string, fallback int64) int64 {
	switch typed := payload[key].(type) {
	case float64:
		return int64(typed)
	case int64:
		return typed
	case int:
		return int64(typed)
	case string:
		parsed, parseError := strconv.ParseInt(typed, 10, 64)
		if parseError != nil {
			return fallback
		}
		return parsed
	default:
		return fallback
	}
}

func truthyValue(value any) bool {
	switch typed := value.(type) {
	case bool:
		return typed
	case string:
		return len(typed) > 0
	case float64:
		return typed != 0
	case int64:
		return typed != 0
	case int:
		return typed != 0
	case []any:
		return len(typed) > 0
	case map[string]any:
		return len(typed) > 0
	default:
		return false
	}
}
