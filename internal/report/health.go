package report

import (
	"context"
	"os"
	"strconv"
	"strings"
	"syscall"

	"cryptoGuardBot/internal/ports"
)

// Fixed alerting thresholds, in percent and degrees Celsius.
const (
	DiskWarnPct = 85.0
	DiskCritPct = 90.0
	MemWarnPct  = 85.0
	MemCritPct  = 95.0
	TempWarnC   = 60.0
	TempCritC   = 70.0
)

// Level grades a health metric against its thresholds.
type Level string

const (
	LevelOK       Level = "ok"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
	LevelUnknown  Level = "n/a"
)

// Metric is one health reading. Value is nil when the source is
// unavailable on this host.
type Metric struct {
	Value *float64
	Level Level
}

// Health is the host snapshot attached to reports. Every field degrades
// independently; a missing source never fails the report.
type Health struct {
	DiskUsedPct Metric
	MemUsedPct  Metric
	CPUTempC    Metric
	LoadAvg1    *float64 // 1-minute load average, informational, no grading
}

// Worst returns the most severe level across the known metrics.
func (h *Health) Worst() Level {
	worst := LevelUnknown
	rank := map[Level]int{LevelUnknown: 0, LevelOK: 1, LevelWarning: 2, LevelCritical: 3}
	for _, m := range []Metric{h.DiskUsedPct, h.MemUsedPct, h.CPUTempC} {
		if rank[m.Level] > rank[worst] {
			worst = m.Level
		}
	}
	return worst
}

// HealthCollector reads host metrics from the local filesystem.
type HealthCollector struct {
	logger ports.Logger

	dataPath    string // Filesystem whose usage is measured
	meminfoPath string
	thermalPath string
	loadavgPath string
}

// NewHealthCollector creates a collector measuring the filesystem that
// holds dataPath. Defaults to the standard Linux proc/sysfs locations.
func NewHealthCollector(dataPath string, logger ports.Logger) *HealthCollector {
	if dataPath == "" {
		dataPath = "."
	}
	return &HealthCollector{
		logger:      logger,
		dataPath:    dataPath,
		meminfoPath: "/proc/meminfo",
		thermalPath: "/sys/class/thermal/thermal_zone0/temp",
		loadavgPath: "/proc/loadavg",
	}
}

// Collect gathers every metric it can. Failures are logged at debug
// level and surface as unknown metrics.
func (c *HealthCollector) Collect(ctx context.Context) *Health {
	h := &Health{
		DiskUsedPct: Metric{Level: LevelUnknown},
		MemUsedPct:  Metric{Level: LevelUnknown},
		CPUTempC:    Metric{Level: LevelUnknown},
	}

	if pct, err := diskUsedPct(c.dataPath); err != nil {
		c.logger.Debug(ctx, "Disk usage unavailable", map[string]interface{}{"error": err.Error()})
	} else {
		h.DiskUsedPct = Metric{Value: &pct, Level: levelFor(pct, DiskWarnPct, DiskCritPct)}
	}

	if pct, err := memUsedPct(c.meminfoPath); err != nil {
		c.logger.Debug(ctx, "Memory usage unavailable", map[string]interface{}{"error": err.Error()})
	} else {
		h.MemUsedPct = Metric{Value: &pct, Level: levelFor(pct, MemWarnPct, MemCritPct)}
	}

	if temp, err := cpuTempC(c.thermalPath); err != nil {
		c.logger.Debug(ctx, "CPU temperature unavailable", map[string]interface{}{"error": err.Error()})
	} else {
		h.CPUTempC = Metric{Value: &temp, Level: levelFor(temp, TempWarnC, TempCritC)}
	}

	if load, err := loadAvg1(c.loadavgPath); err != nil {
		c.logger.Debug(ctx, "Load average unavailable", map[string]interface{}{"error": err.Error()})
	} else {
		h.LoadAvg1 = &load
	}
	return h
}

func levelFor(value, warn, crit float64) Level {
	switch {
	case value > crit:
		return LevelCritical
	case value > warn:
		return LevelWarning
	}
	return LevelOK
}

func diskUsedPct(path string) (float64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	if stat.Blocks == 0 {
		return 0, nil
	}
	used := stat.Blocks - stat.Bfree
	return float64(used) / float64(stat.Blocks) * 100, nil
}

func memUsedPct(meminfoPath string) (float64, error) {
	data, err := os.ReadFile(meminfoPath)
	if err != nil {
		return 0, err
	}
	var totalKB, availKB float64
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			totalKB = v
		case "MemAvailable:":
			availKB = v
		}
	}
	if totalKB == 0 {
		return 0, os.ErrInvalid
	}
	return (totalKB - availKB) / totalKB * 100, nil
}

func cpuTempC(thermalPath string) (float64, error) {
	data, err := os.ReadFile(thermalPath)
	if err != nil {
		return 0, err
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, err
	}
	return milli / 1000, nil
}

func loadAvg1(loadavgPath string) (float64, error) {
	data, err := os.ReadFile(loadavgPath)
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, os.ErrInvalid
	}
	return strconv.ParseFloat(fields[0], 64)
}
