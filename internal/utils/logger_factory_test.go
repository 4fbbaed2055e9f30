package utils_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/karev/glharvest/internal/utils"
)

const (
	testLoggerFactoryCaseSupportedConstant         = "supported_log_level_%s_format_%s"
	testLoggerFactoryCaseUnsupportedLevelConstant  = "unsupported_log_level"
	testLoggerFactoryCaseUnsupportedFormatConstant = "unsupported_log_format"
	testLoggerFactorySubtestTemplateConstant       = "%d_%s"
	testInvalidLogLevelConstant                    = "invalid"
	testInvalidLogFormatConstant                   = "invalid"
)

func TestLoggerFactoryCreateLogger(testInstance *testing.T) {
	testCases := []struct {
		name               string
		requestedLogLevel  utils.LogLevel
		requestedLogFormat utils.LogFormat
		expectError        bool
	}{
		{
			name:               fmt.Sprintf(testLoggerFactoryCaseSupportedConstant, utils.LogLevelDebug, utils.LogFormatStructured),
			requestedLogLevel:  utils.LogLevelDebug,
			requestedLogFormat: utils.LogFormatStructured,
		},
		{
			name:               fmt.Sprintf(testLoggerFactoryCaseSupportedConstant, utils.LogLevelInfo, utils.LogFormatStructured),
			requestedLogLevel:  utils.LogLevelInfo,
			requestedLogFormat: utils.LogFormatStructured,
		},
		{
			name:               fmt.Sprintf(testLoggerFactoryCaseSupportedConstant, utils.LogLevelWarn, utils.LogFormatConsole),
			requestedLogLevel:  utils.LogLevelWarn,
			requestedLogFormat: utils.LogFormatConsole,
		},
		{
			name:               fmt.Sprintf(testLoggerFactoryCaseSupportedConstant, utils.LogLevelError, utils.LogFormatConsole),
			requestedLogLevel:  utils.LogLevelError,
			requestedLogFormat: utils.LogFormatConsole,
		},
		{
			name:               testLoggerFactoryCaseUnsupportedLevelConstant,
			requestedLogLevel:  utils.LogLevel(testInvalidLogLevelConstant),
			requestedLogFormat: utils.LogFormatStructured,
			expectError:        true,
		},
		{
			name:               testLoggerFactoryCaseUnsupportedFormatConstant,
			requestedLogLevel:  utils.LogLevelInfo,
			requestedLogFormat: utils.LogFormat(testInvalidLogFormatConstant),
			expectError:        true,
		},
	}

	loggerFactory := utils.NewLoggerFactory()
	for testCaseIndex, testCase := range testCases {
		subtestName := fmt.Sprintf(testLoggerFactorySubtestTemplateConstant, testCaseIndex, testCase.name)
		testInstance.Run(subtestName, func(subTest *testing.T) {
			createdLogger, creationError := loggerFactory.CreateLogger(testCase.requestedLogLevel, testCase.requestedLogFormat)
			if testCase.expectError {
				require.Error(subTest, creationError)
				require.Nil(subTest, createdLogger)
				return
			}
			require.NoError(subTest, creationError)
			require.NotNil(subTest, createdLogger)
		})
	}
}
