package report

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		warn  float64
		crit  float64
		want  Level
	}{
		{"well below", 42.0, DiskWarnPct, DiskCritPct, LevelOK},
		{"at warn boundary", 85.0, DiskWarnPct, DiskCritPct, LevelOK},
		{"above warn", 86.0, DiskWarnPct, DiskCritPct, LevelWarning},
		{"at crit boundary", 90.0, DiskWarnPct, DiskCritPct, LevelWarning},
		{"above crit", 91.0, DiskWarnPct, DiskCritPct, LevelCritical},
		{"temp warning", 65.0, TempWarnC, TempCritC, LevelWarning},
		{"temp critical", 71.0, TempWarnC, TempCritC, LevelCritical},
		{"mem warning", 90.0, MemWarnPct, MemCritPct, LevelWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, levelFor(tt.value, tt.warn, tt.crit))
		})
	}
}

func TestMemUsedPct(t *testing.T) {
	dir := t.TempDir()

	t.Run("half used", func(t *testing.T) {
		path := writeTestFile(t, dir, "meminfo", "MemTotal:       16000000 kB\nMemFree:         2000000 kB\nMemAvailable:    8000000 kB\nBuffers:          400000 kB\n")
		pct, err := memUsedPct(path)
		require.NoError(t, err)
		assert.InDelta(t, 50.0, pct, 0.001)
	})

	t.Run("missing total", func(t *testing.T) {
		path := writeTestFile(t, dir, "meminfo_bad", "MemFree:         2000000 kB\n")
		_, err := memUsedPct(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := memUsedPct(filepath.Join(dir, "nope"))
		assert.Error(t, err)
	})
}

func TestCPUTempC(t *testing.T) {
	dir := t.TempDir()

	t.Run("millidegrees", func(t *testing.T) {
		path := writeTestFile(t, dir, "temp", "48500\n")
		temp, err := cpuTempC(path)
		require.NoError(t, err)
		assert.InDelta(t, 48.5, temp, 0.001)
	})

	t.Run("malformed", func(t *testing.T) {
		path := writeTestFile(t, dir, "temp_bad", "not-a-number\n")
		_, err := cpuTempC(path)
		assert.Error(t, err)
	})
}

func TestHealthCollector_Collect(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("sources available", func(t *testing.T) {
		c := NewHealthCollector(dir, &mockLogger{})
		c.meminfoPath = writeTestFile(t, dir, "meminfo", "MemTotal:       16000000 kB\nMemAvailable:    1000000 kB\n")
		c.thermalPath = writeTestFile(t, dir, "temp", "72000\n")
		c.loadavgPath = writeTestFile(t, dir, "loadavg", "0.42 0.36 0.25 1/123 4567\n")

		h := c.Collect(ctx)

		require.NotNil(t, h.DiskUsedPct.Value)
		assert.NotEqual(t, LevelUnknown, h.DiskUsedPct.Level)
		require.NotNil(t, h.MemUsedPct.Value)
		assert.InDelta(t, 93.75, *h.MemUsedPct.Value, 0.001)
		assert.Equal(t, LevelWarning, h.MemUsedPct.Level)
		require.NotNil(t, h.CPUTempC.Value)
		assert.InDelta(t, 72.0, *h.CPUTempC.Value, 0.001)
		assert.Equal(t, LevelCritical, h.CPUTempC.Level)
		require.NotNil(t, h.LoadAvg1)
		assert.InDelta(t, 0.42, *h.LoadAvg1, 0.001)
		assert.Equal(t, LevelCritical, h.Worst())
	})

	t.Run("sources missing degrade to unknown", func(t *testing.T) {
		c := NewHealthCollector(dir, &mockLogger{})
		c.meminfoPath = filepath.Join(dir, "missing_meminfo")
		c.thermalPath = filepath.Join(dir, "missing_temp")
		c.loadavgPath = filepath.Join(dir, "missing_loadavg")

		h := c.Collect(ctx)

		assert.Nil(t, h.MemUsedPct.Value)
		assert.Equal(t, LevelUnknown, h.MemUsedPct.Level)
		assert.Nil(t, h.CPUTempC.Value)
		assert.Equal(t, LevelUnknown, h.CPUTempC.Level)
		assert.Nil(t, h.LoadAvg1)
	})
}

func TestHealth_Worst(t *testing.T) {
	v := 50.0
	tests := []struct {
		name   string
		health Health
		want   Level
	}{
		{"all unknown", Health{
			DiskUsedPct: Metric{Level: LevelUnknown},
			MemUsedPct:  Metric{Level: LevelUnknown},
			CPUTempC:    Metric{Level: LevelUnknown},
		}, LevelUnknown},
		{"ok wins over unknown", Health{
			DiskUsedPct: Metric{Value: &v, Level: LevelOK},
			MemUsedPct:  Metric{Level: LevelUnknown},
			CPUTempC:    Metric{Level: LevelUnknown},
		}, LevelOK},
		{"warning dominates", Health{
			DiskUsedPct: Metric{Value: &v, Level: LevelOK},
			MemUsedPct:  Metric{Value: &v, Level: LevelWarning},
			CPUTempC:    Metric{Level: LevelUnknown},
		}, LevelWarning},
		{"critical dominates", Health{
			DiskUsedPct: Metric{Value: &v, Level: LevelCritical},
			MemUsedPct:  Metric{Value: &v, Level: LevelWarning},
			CPUTempC:    Metric{Value: &v, Level: LevelOK},
		}, LevelCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.health.Worst())
		})
	}
}
