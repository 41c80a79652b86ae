package version

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfo(t *testing.T) {
	info := Info{Version: "1.2.0", Commit: "abc1234", BuildDate: "2026-05-10T12:00:00Z"}

	assert.Equal(t, "inspection-sync 1.2.0 (commit abc1234, built 2026-05-10T12:00:00Z)", info.String())

	data, err := json.Marshal(info)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"1.2.0","commit":"abc1234","build_date":"2026-05-10T12:00:00Z"}`, string(data))
}
