package commands

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"crypto-alert-bot/lib/helpers"
	"crypto-alert-bot/lib/translation"
	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	log "github.com/sirupsen/logrus"
)

// diskPath is the filesystem /report measures.
const diskPath = "/"

func (h *Handler) check(ctx context.Context) string {
	if h.checker == nil {
		return h.errorText(translation.Translate("Alert checks are not available."))
	}

	report, err := h.checker.RunOnce(ctx)
	if err != nil {
		log.Errorf("manual alert check failed: %v", err)
		return h.errorText(translation.Translate("Alert check failed: %v", err))
	}
	return "✅ " + h.escape(translation.Translate("Alert check completed: %d alerts, %d tokens, %d triggered, %d failed quotes",
		report.Alerts, len(report.Tokens), len(report.Triggers), len(report.Failed)))
}

func (h *Handler) status(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("📊 " + h.bold(translation.Translate("System information")) + "\n\n")

	h.field(&b, translation.Translate("Uptime"), time.Since(h.cfg.StartedAt).Truncate(time.Second).String())
	h.field(&b, translation.Translate("Started"), helpers.FormatDate(h.cfg.StartedAt))
	h.field(&b, translation.Translate("Go version"), runtime.Version())
	h.field(&b, translation.Translate("Goroutines"), fmt.Sprint(runtime.NumGoroutine()))
	h.field(&b, translation.Translate("Bot memory"), memoryUsage())
	h.hostFields(ctx, &b)
	if usage, ok := cpuUsage(ctx); ok {
		h.field(&b, translation.Translate("CPU"), usage)
	}
	if usage, ok := ramUsage(ctx); ok {
		h.field(&b, translation.Translate("RAM"), usage)
	}
	h.field(&b, translation.Translate("Price source"), h.source.Name())

	if n, err := h.store.CountActiveAlerts(ctx); err == nil {
		h.field(&b, translation.Translate("Active alerts"), fmt.Sprint(n))
	} else {
		log.Warnf("status: could not count alerts: %v", err)
	}
	return strings.TrimRight(b.String(), "\n")
}

// report sends the detailed system report to the alert chat and answers
// with a short confirmation.
func (h *Handler) report(ctx context.Context) string {
	if h.notifier == nil {
		return h.errorText(translation.Translate("Reports are not available."))
	}

	var b strings.Builder
	b.WriteString("🖥 " + h.bold(translation.Translate("Detailed system report")) + "\n\n")
	h.hostFields(ctx, &b)
	if usage, ok := cpuUsage(ctx); ok {
		h.field(&b, translation.Translate("CPU"), usage)
	}
	if usage, ok := ramUsage(ctx); ok {
		h.field(&b, translation.Translate("RAM"), usage)
	}
	if usage, ok := diskUsage(ctx, diskPath); ok {
		h.field(&b, translation.Translate("Disk"), usage)
	}
	if avg, ok := loadAverage(ctx); ok {
		h.field(&b, translation.Translate("Load average"), avg)
	}
	h.field(&b, translation.Translate("Bot uptime"), time.Since(h.cfg.StartedAt).Truncate(time.Second).String())
	h.field(&b, translation.Translate("Bot memory"), memoryUsage())
	if n, err := h.store.CountActiveAlerts(ctx); err == nil {
		h.field(&b, translation.Translate("Active alerts"), fmt.Sprint(n))
	}
	h.field(&b, translation.Translate("Generated"), helpers.FormatDate(time.Now()))

	if _, err := h.notifier.Send(ctx, strings.TrimRight(b.String(), "\n"), h.cfg.ParseMode); err != nil {
		log.Errorf("failed to send system report: %v", err)
		return h.errorText(translation.Translate("Could not send the report: %v", err))
	}
	return "✅ " + h.escape(translation.Translate("Detailed report sent to the configured chat."))
}

// hostFields writes hostname, platform and host uptime, falling back to the
// build target when the host cannot be inspected.
func (h *Handler) hostFields(ctx context.Context, b *strings.Builder) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		log.Debugf("host info unavailable: %v", err)
		h.field(b, translation.Translate("Operating system"), runtime.GOOS+"/"+runtime.GOARCH)
		return
	}
	if info.Hostname != "" {
		h.field(b, translation.Translate("Hostname"), info.Hostname)
	}
	system := strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
	if system == "" {
		system = info.OS
	}
	h.field(b, translation.Translate("Operating system"), system+" ("+info.KernelArch+")")
	if info.Uptime > 0 {
		h.field(b, translation.Translate("Host uptime"), (time.Duration(info.Uptime) * time.Second).String())
	}
}

func memoryUsage() string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return humanize.Bytes(m.Alloc) + " / " + humanize.Bytes(m.Sys)
}

func cpuUsage(ctx context.Context) (string, bool) {
	percent, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil || len(percent) == 0 {
		return "", false
	}
	return fmt.Sprintf("%.1f%% (%d cores)", percent[0], runtime.NumCPU()), true
}

func ramUsage(ctx context.Context) (string, bool) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil || vm.Total == 0 {
		return "", false
	}
	return fmt.Sprintf("%.1f%% (%s / %s)", vm.UsedPercent, humanize.Bytes(vm.Used), humanize.Bytes(vm.Total)), true
}

func diskUsage(ctx context.Context, path string) (string, bool) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil || usage.Total == 0 {
		return "", false
	}
	return fmt.Sprintf("%.1f%% (%s / %s)", usage.UsedPercent, humanize.Bytes(usage.Used), humanize.Bytes(usage.Total)), true
}

func loadAverage(ctx context.Context) (string, bool) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%.2f %.2f %.2f", avg.Load1, avg.Load5, avg.Load15), true
}
