package shared

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogErrorEmitsTaxonomyFields(t *testing.T) {
	hook := logrustest.NewGlobal()
	defer hook.Reset()

	cause := errors.New("disk full")
	NewSinkWriteError("/tmp/out.xlsx", cause).LogError()

	require.NotEmpty(t, hook.Entries)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, ErrorCodeSinkWrite, entry.Data["error_code"])
	assert.Equal(t, ErrorCategoryResource, entry.Data["error_category"])
	assert.Equal(t, "RecordSink", entry.Data["service_name"])
	assert.Equal(t, cause, entry.Data["underlying_error"])
}

func TestHasErrorCodeUnwrapsNestedCauses(t *testing.T) {
	inner := NewCorruptStateError("processed_ipos.json", errors.New("bad json"))

	assert.True(t, HasErrorCode(inner, ErrorCodeCorruptState))
	assert.False(t, HasErrorCode(inner, ErrorCodeSinkWrite))
	assert.False(t, HasErrorCode(errors.New("plain"), ErrorCodeCorruptState))
}
