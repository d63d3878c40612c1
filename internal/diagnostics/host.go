package diagnostics

import (
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostFacts describes the machine the collection ran on. Every field is
// best-effort; a probe that fails leaves its fields zero.
type HostFacts struct {
	CollectedAt time.Time `json:"collected_at"`
	Hostname    string    `json:"hostname"`
	OS          string    `json:"os"`
	Arch        string    `json:"arch"`
	Platform    string    `json:"platform,omitempty"`
	PlatformVer string    `json:"platform_version,omitempty"`
	KernelVer   string    `json:"kernel_version,omitempty"`
	GoVersion   string    `json:"go_version"`

	// CPU
	CPUModel   string `json:"cpu_model,omitempty"`
	CPUCores   int    `json:"cpu_cores,omitempty"`
	CPUThreads int    `json:"cpu_threads,omitempty"`

	// Memory (in MB)
	MemTotalMB float64 `json:"mem_total_mb,omitempty"`
	MemUsedMB  float64 `json:"mem_used_mb,omitempty"`
	MemPercent float64 `json:"mem_percent,omitempty"`

	// Disk holding the staging directory (in GB)
	DiskPath    string  `json:"disk_path,omitempty"`
	DiskTotalGB float64 `json:"disk_total_gb,omitempty"`
	DiskFreeGB  float64 `json:"disk_free_gb,omitempty"`
	DiskPercent float64 `json:"disk_percent,omitempty"`

	// Load Average (Unix)
	LoadAvg1  float64 `json:"load_avg_1,omitempty"`
	LoadAvg5  float64 `json:"load_avg_5,omitempty"`
	LoadAvg15 float64 `json:"load_avg_15,omitempty"`
}

// CollectHostFacts probes the local host. diskPath selects the filesystem
// whose usage is reported; empty means the root filesystem.
func CollectHostFacts(diskPath string) HostFacts {
	facts := HostFacts{
		CollectedAt: time.Now().UTC(),
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		GoVersion:   runtime.Version(),
	}
	if name, err := os.Hostname(); err == nil {
		facts.Hostname = name
	}

	collectPlatform(&facts)
	collectCPU(&facts)
	collectMemory(&facts)
	if diskPath == "" {
		diskPath = rootDiskPath()
	}
	collectDisk(&facts, diskPath)
	collectLoadAvg(&facts)

	return facts
}

func collectPlatform(facts *HostFacts) {
	info, err := host.Info()
	if err != nil {
		return
	}
	facts.Platform = info.Platform
	facts.PlatformVer = info.PlatformVersion
	facts.KernelVer = info.KernelVersion
}

func collectCPU(facts *HostFacts) {
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		facts.CPUModel = strings.TrimSpace(infos[0].ModelName)
	}
	if cores, err := cpu.Counts(false); err == nil && cores > 0 {
		facts.CPUCores = cores
	}
	if threads, err := cpu.Counts(true); err == nil && threads > 0 {
		facts.CPUThreads = threads
	}
}

func collectMemory(facts *HostFacts) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return
	}
	facts.MemTotalMB = float64(vm.Total) / 1024 / 1024
	facts.MemUsedMB = float64(vm.Used) / 1024 / 1024
	facts.MemPercent = vm.UsedPercent
}

func collectDisk(facts *HostFacts, path string) {
	usage, err := disk.Usage(path)
	if err != nil {
		return
	}
	facts.DiskPath = path
	facts.DiskTotalGB = float64(usage.Total) / 1024 / 1024 / 1024
	facts.DiskFreeGB = float64(usage.Free) / 1024 / 1024 / 1024
	facts.DiskPercent = usage.UsedPercent
}

func collectLoadAvg(facts *HostFacts) {
	avg, err := load.Avg()
	if err != nil {
		return
	}
	facts.LoadAvg1 = avg.Load1
	facts.LoadAvg5 = avg.Load5
	facts.LoadAvg15 = avg.Load15
}

func rootDiskPath() string {
	if runtime.GOOS == "windows" {
		drive := os.Getenv("SystemDrive")
		if drive == "" {
			drive = "C:"
		}
		return drive + "\\"
	}
	return "/"
}
