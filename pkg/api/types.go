package api

import (
	"errors"
	"time"

	"github.com/platinummonkey/plugman/pkg/plugins"
)

// PluginInfo describes a loaded plugin
type PluginInfo struct {
	ID           string            `json:"id"`
	Name         string            `json:"name,omitempty"`
	Version      string            `json:"version,omitempty"`
	Description  string            `json:"description,omitempty"`
	Location     string            `json:"location"`
	Dependencies []string          `json:"dependencies,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LoadedAt     time.Time         `json:"loaded_at"`
	Activated    bool              `json:"activated"`
}

// ReportInfo is the JSON form of a load pass report
type ReportInfo struct {
	PassID      string                             `json:"pass_id"`
	StartedAt   time.Time                          `json:"started_at"`
	Duration    string                             `json:"duration"`
	Discovered  int                                `json:"discovered"`
	Order       []string                           `json:"order"`
	Loaded      []string                           `json:"loaded"`
	Skipped     []string                           `json:"skipped,omitempty"`
	States      map[string]plugins.LoadState       `json:"states"`
	Excluded    map[string]plugins.ExclusionReason `json:"excluded,omitempty"`
	Cache       *CacheInfo                         `json:"manifest_cache,omitempty"`
	Error       string                             `json:"error,omitempty"`
	FailedID    string                             `json:"failed_plugin,omitempty"`
	FailedPhase plugins.Phase                      `json:"failed_phase,omitempty"`
}

// CacheInfo reports manifest cache lookups made by one pass
type CacheInfo struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

func newPluginInfo(entry plugins.Entry, report *plugins.LoadReport) PluginInfo {
	info := PluginInfo{
		ID:        entry.ID,
		LoadedAt:  entry.LoadedAt,
		Activated: report.State(entry.ID) == plugins.LoadStateActivated,
	}
	if d := entry.Descriptor; d != nil {
		info.Location = d.Location
		info.Dependencies = d.Dependencies
		if m := d.Manifest; m != nil {
			info.Name = m.Name
			info.Version = m.Version
			info.Description = m.Description
			info.Metadata = m.Metadata
		}
	}
	return info
}

func newReportInfo(report *plugins.LoadReport) ReportInfo {
	info := ReportInfo{
		PassID:     report.PassID,
		StartedAt:  report.StartedAt,
		Duration:   report.Duration.String(),
		Discovered: report.Discovered,
		Order:      report.Order,
		Loaded:     report.Loaded,
		Skipped:    report.Skipped,
		States:     report.States,
		Excluded:   report.Excluded,
	}
	if report.Cache != nil {
		info.Cache = &CacheInfo{Hits: report.Cache.Hits, Misses: report.Cache.Misses}
	}
	if report.Err != nil {
		info.Error = report.Err.Error()
		var loadErr *plugins.LoadError
		if errors.As(report.Err, &loadErr) {
			info.FailedID = loadErr.ID
			info.FailedPhase = loadErr.Phase
		}
	}
	return info
}
