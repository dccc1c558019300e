package runtime

import (
	"net/http"
	"strings"

	"github.com/drblury/procflow/internal/runtime/engine"
	"github.com/drblury/procflow/internal/runtime/jsoncodec"
)

// InspectPath is where the inspection endpoint is mounted.
const InspectPath = "/api/processors"

// ProcessorInfo describes a registered processor.
type ProcessorInfo struct {
	Name         string            `json:"name"`
	Processor    string            `json:"processor"`
	Signature    string            `json:"signature"`
	ConsumeQueue string            `json:"consume_queue"`
	PublishQueue string            `json:"publish_queue"`
	TagQueues    map[string]string `json:"tag_queues,omitempty"`
	SingleWindow bool              `json:"single_window"`
	SideInputs   []string          `json:"side_inputs,omitempty"`
	Bundles      int               `json:"bundles"`
	Display      []DisplayEntry    `json:"display,omitempty"`
}

// DisplayEntry is the JSON form of an engine.DisplayItem.
type DisplayEntry struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     any    `json:"value"`
}

func displayEntries(provider engine.DisplayDataProvider, namespace string) []DisplayEntry {
	data := engine.NewDisplayData(namespace)
	provider.PopulateDisplayData(data)
	items := data.Items()
	entries := make([]DisplayEntry, len(items))
	for i, item := range items {
		entries[i] = DisplayEntry{Namespace: item.Namespace, Key: item.Key, Value: item.Value}
	}
	return entries
}

// Processors returns a snapshot of the registered processors in
// registration order.
func (s *Service) Processors() []ProcessorInfo {
	s.runnersMu.Lock()
	defer s.runnersMu.Unlock()
	infos := make([]ProcessorInfo, len(s.runners))
	for i, entry := range s.runners {
		infos[i] = entry.info
		infos[i].Bundles = entry.runner.Bundles()
	}
	return infos
}

func (s *Service) startInspectServer() {
	if s.Conf.InspectPort <= 0 {
		return
	}
	s.RegisterHTTPHandler(s.Conf.InspectPort, InspectPath, http.HandlerFunc(s.handleGetProcessors))
}

func (s *Service) handleGetProcessors(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if origin := s.allowedCORSOrigin(r.Header.Get("Origin")); origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet:
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := jsoncodec.Marshal(s.Processors())
	if err != nil {
		s.Logger.Error("Failed to encode processors", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(body)
}

func (s *Service) allowedCORSOrigin(requestOrigin string) string {
	if requestOrigin == "" {
		return ""
	}
	for _, allowed := range s.Conf.InspectCORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
