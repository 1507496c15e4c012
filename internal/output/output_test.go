package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftlabs/forma/internal/models"
)

func newTestUI() (*UI, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &UI{Out: out, ErrOut: errOut}, out, errOut
}

func TestInfo(t *testing.T) {
	u, out, _ := newTestUI()
	u.Info("hello %s", "world")
	assert.Contains(t, out.String(), "hello world")
}

func TestSuccess(t *testing.T) {
	u, out, _ := newTestUI()
	u.Success("done %d", 42)
	assert.Contains(t, out.String(), "done 42")
}

func TestWarning(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Warning("careful %s", "now")
	assert.Contains(t, errOut.String(), "careful now")
}

func TestError(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Error("failed %s", "badly")
	assert.Contains(t, errOut.String(), "failed badly")
}

func TestVerboseLog_Enabled(t *testing.T) {
	u, out, _ := newTestUI()
	u.Verbose = true
	u.VerboseLog("detail %d", 1)
	assert.Contains(t, out.String(), "detail 1")
}

func TestVerboseLog_Disabled(t *testing.T) {
	u, out, _ := newTestUI()
	u.Verbose = false
	u.VerboseLog("detail %d", 1)
	assert.Empty(t, out.String())
}

func TestDryRunMsg_Enabled(t *testing.T) {
	u, _, errOut := newTestUI()
	u.DryRun = true
	u.DryRunMsg("would create %s", "file")
	assert.Contains(t, errOut.String(), "[DRY-RUN]")
	assert.Contains(t, errOut.String(), "would create file")
}

func TestDryRunMsg_Disabled(t *testing.T) {
	u, _, errOut := newTestUI()
	u.DryRun = false
	u.DryRunMsg("would create %s", "file")
	assert.Empty(t, errOut.String())
}

func TestColorHelpers(t *testing.T) {
	// Color helpers should return non-empty strings
	assert.NotEmpty(t, Cyan("test"))
	assert.NotEmpty(t, Green("test"))
	assert.NotEmpty(t, Yellow("test"))
	assert.NotEmpty(t, Red("test"))
}

func TestKindColor(t *testing.T) {
	assert.Contains(t, KindColor(models.KindComplete), "complete")
	assert.Contains(t, KindColor(models.KindError), "error")
	assert.Contains(t, KindColor(models.KindThinking), "thinking")
	assert.Contains(t, KindColor(models.Kind("percolating")), "percolating")
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[          ]   0%", ProgressBar(0, 10))
	assert.Equal(t, "[=====     ]  50%", ProgressBar(50, 10))
	assert.Equal(t, "[==========] 100%", ProgressBar(100, 10))

	// Out-of-range values are clamped.
	assert.Contains(t, ProgressBar(-5, 10), "0%")
	assert.Contains(t, ProgressBar(150, 10), "100%")
}

func TestStatusLine(t *testing.T) {
	u, out, _ := newTestUI()
	u.Status(models.StatusUpdate{Status: models.KindAnalyzing, Message: "Analyzing image", Progress: 40})

	result := out.String()
	assert.Contains(t, result, "analyzing")
	assert.Contains(t, result, "Analyzing image")
	assert.Contains(t, result, "40%")
}

func TestTable(t *testing.T) {
	u, out, _ := newTestUI()
	table := u.Table([]string{"ID", "Category"})
	require.NotNil(t, table)

	table.Append([]string{"01ABC", "skincare"})
	table.Append([]string{"01DEF", "haircare"})
	err := table.Render()
	require.NoError(t, err)

	result := out.String()
	assert.True(t, strings.Contains(result, "skincare"), "table output should contain rows")
	assert.True(t, strings.Contains(result, "haircare"), "table output should contain rows")
}
