package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/platinummonkey/plugman/pkg/httputil"
	"github.com/platinummonkey/plugman/pkg/plugins"
)

// listPlugins returns loaded plugins in load order. With ?activated=true
// only plugins whose activation hook ran are listed.
func (s *Server) listPlugins(w http.ResponseWriter, r *http.Request) {
	activatedOnly, err := httputil.ParseQueryBool(r, "activated", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	report := s.manager.LastReport()
	entries := s.manager.Registry().Entries()

	infos := make([]PluginInfo, 0, len(entries))
	for _, entry := range entries {
		info := newPluginInfo(entry, report)
		if activatedOnly && !info.Activated {
			continue
		}
		infos = append(infos, info)
	}
	httputil.WriteSuccess(w, infos)
}

func (s *Server) getPlugin(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	entry, err := s.manager.Registry().Get(id)
	if err != nil {
		if errors.Is(err, plugins.ErrNotFound) {
			s.writePluginNotFound(w, id)
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, newPluginInfo(*entry, s.manager.LastReport()))
}

// writePluginNotFound explains, when the last pass saw id, why it was not loaded
func (s *Server) writePluginNotFound(w http.ResponseWriter, id string) {
	err := fmt.Errorf("plugin %s not found", id)

	report := s.manager.LastReport()
	state := report.State(id)
	if state == "" {
		httputil.WriteNotFoundError(w, err.Error())
		return
	}

	details := map[string]string{"state": string(state)}
	if reason, ok := report.Excluded[id]; ok {
		details["reason"] = string(reason)
	}
	var loadErr *plugins.LoadError
	if errors.As(report.Err, &loadErr) && loadErr.ID == id {
		details["phase"] = string(loadErr.Phase)
		if loadErr.Err != nil {
			details["error"] = loadErr.Err.Error()
		}
	}
	httputil.WriteDetailedError(w, http.StatusNotFound, err, details)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	report := s.manager.LastReport()
	if report == nil {
		httputil.WriteNotFoundError(w, "no load pass has completed")
		return
	}
	httputil.WriteSuccess(w, newReportInfo(report))
}

// triggerLoad runs a load pass synchronously. Plugins loaded by earlier
// passes are kept, so this only picks up newly installed bundles.
func (s *Server) triggerLoad(w http.ResponseWriter, r *http.Request) {
	err := s.manager.LoadAllPlugins(r.Context())
	if errors.Is(err, plugins.ErrLoadInProgress) {
		httputil.WriteConflict(w, err.Error())
		return
	}

	report := s.manager.LastReport()
	if report == nil {
		httputil.WriteInternalError(w, fmt.Errorf("load pass produced no report"))
		return
	}

	status := http.StatusOK
	if err != nil {
		status = http.StatusInternalServerError
		s.log.WithError(err).Warn("Load pass triggered over HTTP failed")
	}
	httputil.WriteJSON(w, status, newReportInfo(report))
}
