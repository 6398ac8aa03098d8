package http

import (
	"net/http"
	"strconv"

	"github.com/Sergimayol/sqlite-virtual-url/internal/fetch"
	"github.com/Sergimayol/sqlite-virtual-url/internal/observability"
)

// defaultTopPredicates is the number of columns reported without ?top=.
const defaultTopPredicates = 20

// StatsResponse is the body of GET /v1/stats.
type StatsResponse struct {
	Predicates []observability.ColumnStats `json:"predicates"`
	Scans      []observability.ScanStats   `json:"scans"`
	FetchCache *CacheStats                 `json:"fetch_cache,omitempty"`
	RequestID  string                      `json:"request_id"`
}

// CacheStats summarizes the payload cache.
type CacheStats struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// StatsHandler handles GET /v1/stats requests.
type StatsHandler struct {
	stats *observability.QueryStats
	cache *fetch.PayloadCache
}

// NewStatsHandler creates a stats handler. cache may be nil.
func NewStatsHandler(stats *observability.QueryStats, cache *fetch.PayloadCache) *StatsHandler {
	return &StatsHandler{stats: stats, cache: cache}
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", requestID)
		return
	}

	top := defaultTopPredicates
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "top must be a non-negative integer", "", requestID)
			return
		}
		top = n
	}

	resp := StatsResponse{
		Predicates: h.stats.GetTopPredicates(top),
		Scans:      h.stats.Scans(),
		RequestID:  requestID,
	}
	if h.cache != nil {
		hits, misses := h.cache.Stats()
		resp.FetchCache = &CacheStats{
			Entries: h.cache.Len(),
			Bytes:   h.cache.Size(),
			Hits:    hits,
			Misses:  misses,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
