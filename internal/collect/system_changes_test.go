package collect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/karev/glharvest/internal/window"
)

func newWindowedService(testInstance *testing.T) *Service {
	testInstance.Helper()
	harvestWindow := window.PreviousMonth(time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), time.UTC)
	return &Service{harvestWindow: harvestWindow, logger: zap.NewNop()}
}

func TestProcessSystemRecords(testInstance *testing.T) {
	service := newWindowedService(testInstance)

	testCases := []struct {
		name     string
		payload  map[string]any
		expected SystemChangeRecord
	}{
		{
			name: "hook with enabled event triggers",
			payload: map[string]any{
				"id":                  float64(7),
				"created_at":          "2024-02-10T08:00:00Z",
				"url":                 "https://hooks.internal/notify",
				"push_events":         true,
				"merge_request_events": false,
				"tag_push_events":     true,
			},
			expected: SystemChangeRecord{
				EventID:       7,
				Event:         "create",
				EntityType:    "SystemHook",
				Time:          "2024-02-10T08:00:00Z",
				EntityDetails: "https://hooks.internal/notify",
				HookEvents:    "push_events, tag_push_events",
			},
		},
		{
			name: "feature flag falls back to strategy identifier",
			payload: map[string]any{
				"name":       "dark_mode",
				"active":     true,
				"updated_at": "2024-02-20T10:00:00Z",
				"strategies": []any{map[string]any{"id": float64(31)}},
			},
			expected: SystemChangeRecord{
				EventID:    31,
				Event:      "create",
				EntityType: "SystemHook",
				Time:       "2024-02-20T10:00:00Z",
				EntityName: "dark_mode",
				FlagState:  "active",
			},
		},
		{
			name: "setting without timestamp keeps epoch time",
			payload: map[string]any{
				"id":      float64(1),
				"version": "16.9.0",
			},
			expected: SystemChangeRecord{
				EventID:       1,
				Event:         "create",
				EntityType:    "SystemHook",
				Time:          "1970-01-01T00:00:00Z",
				EntityDetails: "16.9.0",
			},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			records := service.processSystemRecords([]map[string]any{testCase.payload}, "create", "SystemHook")
			require.Len(subTest, records, 1)
			require.Equal(subTest, testCase.expected, records[0])
		})
	}
}

func TestProcessSystemRecordsFiltersByWindow(testInstance *testing.T) {
	service := newWindowedService(testInstance)

	payloads := []map[string]any{
		{"id": float64(1), "updated_at": "2024-02-15T00:00:00Z"},
		{"id": float64(2), "updated_at": "2024-03-15T00:00:00Z"},
		{"id": float64(3), "updated_at": "2024-01-15T00:00:00Z"},
		{"id": float64(4)},
		{"id": float64(5), "updated_at": "not-a-timestamp"},
	}

	records := service.processSystemRecords(payloads, "update", "ApplicationSetting")
	identifiers := make([]int64, 0, len(records))
	for _, record := range records {
		identifiers = append(identifiers, record.EventID)
	}
	// Out-of-window payloads drop; missing or unparseable timestamps stay.
	require.Equal(testInstance, []int64{1, 4, 5}, identifiers)
}

func TestTruthyValue(testInstance *testing.T) {
	require.True(testInstance, truthyValue(true))
	require.True(testInstance, truthyValue("yes"))
	require.True(testInstance, truthyValue(float64(3)))
	require.False(testInstance, truthyValue(false))
	require.False(testInstance, truthyValue(""))
	require.False(testInstance, truthyValue(float64(0)))
	require.False(testInstance, truthyValue(nil))
}
