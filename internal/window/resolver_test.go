package window_test

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/karev/glharvest/internal/window"
)

type fixedClock struct {
	instant time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.instant
}

func TestPreviousMonthWindows(testInstance *testing.T) {
	shanghaiOffset := time.FixedZone("UTC+8", 8*60*60)

	testCases := []struct {
		name          string
		reference     time.Time
		location      *time.Location
		expectedStart string
		expectedEnd   string
	}{
		{
			name:          "mid march in utc+8 yields february converted to utc",
			reference:     time.Date(2024, time.March, 15, 12, 0, 0, 0, shanghaiOffset),
			location:      shanghaiOffset,
			expectedStart: "2024-01-31T16:00:00Z",
			expectedEnd:   "2024-02-29T15:59:59Z",
		},
		{
			name:          "january reference rolls back to december of prior year",
			reference:     time.Date(2024, time.January, 10, 8, 30, 0, 0, time.UTC),
			location:      time.UTC,
			expectedStart: "2023-12-01T00:00:00Z",
			expectedEnd:   "2023-12-31T23:59:59Z",
		},
		{
			name:          "march reference in utc keeps leap february end",
			reference:     time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
			location:      time.UTC,
			expectedStart: "2024-02-01T00:00:00Z",
			expectedEnd:   "2024-02-29T23:59:59Z",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			resolved := window.PreviousMonth(testCase.reference, testCase.location)
			require.Equal(subTest, testCase.expectedStart, resolved.StartISO())
			require.Equal(subTest, testCase.expectedEnd, resolved.EndISO())
		})
	}
}

func TestResolveOverrides(testInstance *testing.T) {
	reference := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)
	resolver := window.NewResolver(fixedClock{instant: reference}, time.UTC)

	testCases := []struct {
		name          string
		startOverride string
		endOverride   string
		expectError   bool
		expectedStart string
		expectedEnd   string
	}{
		{
			name:          "no overrides keep previous month",
			expectedStart: "2024-02-01T00:00:00Z",
			expectedEnd:   "2024-02-29T23:59:59Z",
		},
		{
			name:          "both overrides replace the window",
			startOverride: "2024-03-01T00:00:00Z",
			endOverride:   "2024-03-10T23:59:59Z",
			expectedStart: "2024-03-01T00:00:00Z",
			expectedEnd:   "2024-03-10T23:59:59Z",
		},
		{
			name:          "start override alone keeps computed end",
			startOverride: "2024-02-10T00:00:00Z",
			expectedStart: "2024-02-10T00:00:00Z",
			expectedEnd:   "2024-02-29T23:59:59Z",
		},
		{
			name:          "malformed override is rejected",
			startOverride: "yesterday",
			expectError:   true,
		},
		{
			name:          "inverted overrides are rejected",
			startOverride: "2024-03-10T00:00:00Z",
			endOverride:   "2024-03-01T00:00:00Z",
			expectError:   true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			resolved, resolveError := resolver.Resolve(testCase.startOverride, testCase.endOverride)
			if testCase.expectError {
				require.Error(subTest, resolveError)
				return
			}
			require.NoError(subTest, resolveError)
			require.Equal(subTest, testCase.expectedStart, resolved.StartISO())
			require.Equal(subTest, testCase.expectedEnd, resolved.EndISO())
		})
	}
}

func TestWindowContains(testInstance *testing.T) {
	resolved := window.PreviousMonth(time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), time.UTC)

	require.True(testInstance, resolved.Contains(time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)))
	require.True(testInstance, resolved.Contains(time.Date(2024, time.February, 29, 23, 59, 59, 0, time.UTC)))
	require.True(testInstance, resolved.Contains(time.Date(2024, time.February, 29, 23, 59, 59, 500000000, time.UTC)))
	require.False(testInstance, resolved.Contains(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)))
	require.False(testInstance, resolved.Contains(time.Date(2024, time.January, 31, 23, 59, 59, 0, time.UTC)))
}

func TestWindowLabelPrecision(testInstance *testing.T) {
	testCases := []struct {
		name     string
		start    time.Time
		end      time.Time
		expected string
	}{
		{
			name:     "week or less is daily precision",
			start:    time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
			end:      time.Date(2024, time.March, 7, 23, 59, 59, 0, time.UTC),
			expected: "Audit_Output_D_20240301-20240307",
		},
		{
			name:     "month span is weekly precision",
			start:    time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC),
			end:      time.Date(2024, time.February, 29, 23, 59, 59, 0, time.UTC),
			expected: "Audit_Output_W_20240201-20240229",
		},
		{
			name:     "quarter span is monthly precision",
			start:    time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
			end:      time.Date(2024, time.March, 31, 23, 59, 59, 0, time.UTC),
			expected: "Audit_Output_M_20240101-20240331",
		},
		{
			name:     "beyond a quarter is quarterly precision",
			start:    time.Date(2023, time.June, 1, 0, 0, 0, 0, time.UTC),
			end:      time.Date(2024, time.February, 29, 23, 59, 59, 0, time.UTC),
			expected: "Audit_Output_Q_20230601-20240229",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			resolved := window.Window{Start: testCase.start, End: testCase.end}
			require.Equal(subTest, testCase.expected, resolved.Label())
		})
	}
}

func TestPreviousMonthProperties(testInstance *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("start precedes end and spans under one month", prop.ForAll(
		func(unixSeconds int64) bool {
			reference := time.Unix(unixSeconds, 0).UTC()
			resolved := window.PreviousMonth(reference, time.UTC)
			if !resolved.Start.Before(resolved.End) {
				return false
			}
			span := resolved.End.Sub(resolved.Start)
			return span > 27*24*time.Hour && span < 31*24*time.Hour
		},
		gen.Int64Range(0, 4102444800),
	))

	properties.Property("reference never falls inside its previous month", prop.ForAll(
		func(unixSeconds int64) bool {
			reference := time.Unix(unixSeconds, 0).UTC()
			resolved := window.PreviousMonth(reference, time.UTC)
			return !resolved.Contains(reference)
		},
		gen.Int64Range(0, 4102444800),
	))

	properties.TestingRun(testInstance)
}
