package httpapi

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/R3E-Network/agency_layer/internal/app/system"
	"github.com/R3E-Network/agency_layer/internal/httputil"
)

// StatusSource lists the lifecycle services shown on /system/status.
type StatusSource interface {
	Services() []system.Service
}

type statusReporter struct {
	source  StatusSource
	started time.Time
	proc    *process.Process
}

func newStatusReporter(source StatusSource) *statusReporter {
	s := &statusReporter{source: source, started: time.Now()}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = p
	}
	return s
}

type processStatus struct {
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	Threads    int32   `json:"threads"`
}

type systemStatus struct {
	Status        string         `json:"status"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Goroutines    int            `json:"goroutines"`
	GoVersion     string         `json:"go_version"`
	Process       *processStatus `json:"process,omitempty"`
	HostMemUsed   float64        `json:"host_memory_used_percent,omitempty"`
	Services      []string       `json:"services"`
}

func (s *statusReporter) snapshot(r *http.Request) systemStatus {
	out := systemStatus{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		GoVersion:     runtime.Version(),
		Services:      []string{},
	}
	if s.proc != nil {
		ps := &processStatus{}
		if m, err := s.proc.MemoryInfoWithContext(r.Context()); err == nil {
			ps.RSSBytes = m.RSS
		}
		if cpu, err := s.proc.CPUPercentWithContext(r.Context()); err == nil {
			ps.CPUPercent = cpu
		}
		if n, err := s.proc.NumThreadsWithContext(r.Context()); err == nil {
			ps.Threads = n
		}
		out.Process = ps
	}
	if vm, err := mem.VirtualMemoryWithContext(r.Context()); err == nil {
		out.HostMemUsed = vm.UsedPercent
	}
	if s.source != nil {
		for _, svc := range s.source.Services() {
			out.Services = append(out.Services, svc.Name())
		}
	}
	return out
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) systemStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.status.snapshot(r))
}
