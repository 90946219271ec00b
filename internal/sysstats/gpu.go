package sysstats

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/servicedeck/servicedeck/pkg/models"
)

// GPU provider names accepted by SetGPUProvider.
const (
	GPUProviderAuto   = "auto"
	GPUProviderNvidia = "nvidia"
	GPUProviderAMD    = "amd"
	GPUProviderNone   = "none"
)

// gpuReader reads stats for all GPUs a provider can see.
type gpuReader interface {
	name() string
	read(ctx context.Context) ([]models.GPUStats, error)
}

type gpuRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runGPUTool(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// detectGPUProvider resolves "auto" to the first tool found on PATH.
func detectGPUProvider(provider string, run gpuRunner) gpuReader {
	switch provider {
	case GPUProviderNvidia:
		return &nvidiaReader{run: run}
	case GPUProviderAMD:
		return &rocmReader{run: run}
	case GPUProviderNone:
		return nil
	}
	if _, err := exec.LookPath("nvidia-smi"); err == nil {
		return &nvidiaReader{run: run}
	}
	if _, err := exec.LookPath("rocm-smi"); err == nil {
		return &rocmReader{run: run}
	}
	return nil
}

func validGPUProvider(provider string) bool {
	switch provider {
	case GPUProviderAuto, GPUProviderNvidia, GPUProviderAMD, GPUProviderNone:
		return true
	}
	return false
}

// nvidiaReader shells out to nvidia-smi in CSV mode, one line per GPU.
type nvidiaReader struct {
	run gpuRunner
}

func (r *nvidiaReader) name() string { return GPUProviderNvidia }

func (r *nvidiaReader) read(ctx context.Context) ([]models.GPUStats, error) {
	out, err := r.run(ctx, "nvidia-smi",
		"--query-gpu=name,utilization.gpu,memory.used,memory.total,temperature.gpu,power.draw",
		"--format=csv,noheader,nounits")
	if err != nil {
		return nil, fmt.Errorf("nvidia-smi: %w", err)
	}
	return parseNvidiaCSV(string(out)), nil
}

// parseNvidiaCSV parses "name, util, mem.used, mem.total, temp, power" rows.
// Fields nvidia-smi reports as [N/A] or that fail to parse stay nil.
func parseNvidiaCSV(out string) []models.GPUStats {
	var gpus []models.GPUStats
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 6 {
			continue
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}

		gpu := models.GPUStats{Name: fields[0]}
		if v, ok := parseCSVFloat(fields[1]); ok {
			gpu.UsagePercent = &v
		}
		if v, ok := parseCSVFloat(fields[2]); ok {
			used := uint64(v) * 1024 * 1024 // MiB to bytes
			gpu.MemoryUsedBytes = &used
		}
		if v, ok := parseCSVFloat(fields[3]); ok {
			total := uint64(v) * 1024 * 1024
			gpu.MemoryTotal = &total
		}
		if v, ok := parseCSVFloat(fields[4]); ok {
			gpu.TemperatureC = &v
		}
		if v, ok := parseCSVFloat(fields[5]); ok {
			gpu.PowerWatts = &v
		}
		gpus = append(gpus, gpu)
	}
	return gpus
}

func parseCSVFloat(field string) (float64, bool) {
	if field == "" || strings.Contains(field, "N/A") {
		return 0, false
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// rocmReader shells out to rocm-smi. Its concise output only yields
// utilization and temperature reliably across versions, so the other fields
// stay nil.
type rocmReader struct {
	run gpuRunner
}

func (r *rocmReader) name() string { return GPUProviderAMD }

func (r *rocmReader) read(ctx context.Context) ([]models.GPUStats, error) {
	out, err := r.run(ctx, "rocm-smi", "--showuse", "--showtemp", "--csv")
	if err != nil {
		return nil, fmt.Errorf("rocm-smi: %w", err)
	}
	return parseRocmCSV(string(out)), nil
}

// parseRocmCSV parses rocm-smi --csv output: a header row naming the columns
// followed by one row per card ("card0,...").
func parseRocmCSV(out string) []models.GPUStats {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return nil
	}

	header := strings.Split(lines[0], ",")
	useIdx, tempIdx := -1, -1
	for i, col := range header {
		col = strings.ToLower(strings.TrimSpace(col))
		if strings.Contains(col, "use") && useIdx == -1 {
			useIdx = i
		}
		if strings.Contains(col, "temp") && tempIdx == -1 {
			tempIdx = i
		}
	}

	var gpus []models.GPUStats
	for _, line := range lines[1:] {
		fields := strings.Split(line, ",")
		if len(fields) == 0 || !strings.HasPrefix(strings.TrimSpace(fields[0]), "card") {
			continue
		}
		gpu := models.GPUStats{Name: strings.TrimSpace(fields[0])}
		if useIdx >= 0 && useIdx < len(fields) {
			if v, ok := parseCSVFloat(strings.TrimSuffix(strings.TrimSpace(fields[useIdx]), "%")); ok {
				gpu.UsagePercent = &v
			}
		}
		if tempIdx >= 0 && tempIdx < len(fields) {
			if v, ok := parseCSVFloat(strings.TrimSpace(fields[tempIdx])); ok {
				gpu.TemperatureC = &v
			}
		}
		gpus = append(gpus, gpu)
	}
	return gpus
}
