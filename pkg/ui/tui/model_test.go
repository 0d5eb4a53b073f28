package tui

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModelDownloadLifecycle(t *testing.T) {
	m := NewModel(4)

	m.AddDownload("d1", "dynamicrafter_512_v1", "model.ckpt", 1000)
	assert.Len(t, m.GetPendingDownloads(), 1)

	m.StartDownload("d1")
	assert.Len(t, m.GetActiveDownloads(), 1)
	assert.Empty(t, m.GetPendingDownloads())

	m.UpdateDownloadProgress("d1", 500, 100.0)
	active := m.GetActiveDownloads()
	assert.Equal(t, int64(500), active[0].Downloaded)
	assert.Equal(t, 100.0, active[0].Speed)

	m.CompleteDownload("d1")
	assert.Empty(t, m.GetActiveDownloads())
	assert.Len(t, m.GetCompletedDownloads(), 1)
	assert.Equal(t, int64(1000), m.totalSize)
}

func TestModelFailDownload(t *testing.T) {
	m := NewModel(4)

	m.AddDownload("d1", "dynamicrafter_256_v1", "model.ckpt", 100)
	m.StartDownload("d1")
	m.FailDownload("d1", errors.New("network down"))

	assert.Empty(t, m.GetActiveDownloads())
	assert.Empty(t, m.GetCompletedDownloads())
	assert.Error(t, m.downloads["d1"].Error)
}

func TestModelLogTruncation(t *testing.T) {
	m := NewModel(1)
	m.maxLogMessages = 3

	for i := 0; i < 10; i++ {
		m.AddLogMessage("INFO", "message")
	}

	assert.Len(t, m.logMessages, 3)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.0 KB", FormatBytes(1024))
	assert.Equal(t, "1.5 MB", FormatBytes(1572864))
	assert.Equal(t, "2.0 GB", FormatBytes(2147483648))
}
