package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	nats "github.com/nats-io/nats.go"

	"github.com/openarcloud/spatial-discovery/pkg/correlator"
	"github.com/openarcloud/spatial-discovery/pkg/envelope"
	"github.com/openarcloud/spatial-discovery/pkg/registry"
	"github.com/openarcloud/spatial-discovery/pkg/spatial"
)

const handlersLogPrefix = "bridge:handlers"

// maxCatalogResults caps how many announces one flattened catalog query may
// gather across pages.
const maxCatalogResults = 500

// Handler returns the bridge's HTTP routes.
func (b *Bridge) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", b.handleHealth)
	mux.HandleFunc("/v1/localize", b.handleLocalize)
	mux.HandleFunc("/v1/catalog/query", b.handleCatalogQuery)
	mux.HandleFunc("/.well-known/spatialdds/register", b.handleRegister)
	mux.HandleFunc("/.well-known/spatialdds/search", b.handleSearch)
	mux.HandleFunc("/.well-known/spatialdds/list", b.handleList)
	return withCORS(mux)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Status    int    `json:"status"`
	Timestamp string `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to encode response: %v", handlersLogPrefix, err))
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{
		Error:     message,
		Code:      code,
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (b *Bridge) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use GET")
		return
	}
	b.mu.Lock()
	announce := b.announce
	b.mu.Unlock()
	ok := b.nc != nil && b.nc.Status() == nats.CONNECTED
	if ok && b.cfg.HealthCheckTimeout > 0 {
		// A round trip proves the bus is answering, not just connected.
		if err := b.nc.FlushTimeout(b.cfg.HealthCheckTimeout); err != nil {
			slog.Warn(fmt.Sprintf("%s - health flush failed: %v", handlersLogPrefix, err))
			ok = false
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":         ok,
		"dds_domain": b.cfg.Domain,
		"announce":   announce,
	})
}

// localizeRequestBody is the HTTP shape of a localize call. ServiceID is
// optional and addresses one provider; empty means any provider may answer.
type localizeRequestBody struct {
	PriorGeoPose spatial.GeoPose `json:"prior_geopose"`
	ServiceID    string          `json:"service_id,omitempty"`
}

func (b *Bridge) handleLocalize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use POST")
		return
	}

	var body localizeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", fmt.Sprintf("invalid json: %v", err))
		return
	}
	if err := spatial.ValidateGeoPose(&body.PriorGeoPose); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PRIOR", err.Error())
		return
	}

	requestID := uuid.NewString()
	req := &envelope.LocalizeRequest{
		RequestID:      requestID,
		ClientFrameRef: b.frame,
		ServiceID:      body.ServiceID,
		PriorGeoPose:   body.PriorGeoPose,
		Stamp:          spatial.Now(),
	}

	pending, err := b.corr.Issue(requestID, correlator.ExpectedKind(envelope.KindLocalizeRequest), b.cfg.RequestTimeout)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "CORRELATOR", err.Error())
		return
	}
	if err := b.publish(b.subjects.LocalizeRequest(), envelope.KindLocalizeRequest, "vps", requestID, req); err != nil {
		b.corr.Cancel(requestID)
		writeError(w, http.StatusBadGateway, "BUS_PUBLISH", err.Error())
		return
	}

	var resp *envelope.LocalizeResponse
	for env := range pending.Pages() {
		decoded, err := env.Body()
		if err != nil {
			continue
		}
		resp = decoded.(*envelope.LocalizeResponse)
	}
	if err := pending.Err(); err != nil {
		if errors.Is(err, correlator.ErrTimedOut) {
			writeError(w, http.StatusGatewayTimeout, "LOCALIZE_TIMEOUT", "no provider answered in time")
			return
		}
		writeError(w, http.StatusBadGateway, "LOCALIZE_FAILED", err.Error())
		return
	}
	if resp == nil {
		writeError(w, http.StatusBadGateway, "LOCALIZE_FAILED", "response could not be decoded")
		return
	}

	// Provider-reported failure is still a 200; quality.success carries it.
	writeJSON(w, http.StatusOK, resp)
}

// catalogQueryBody is the HTTP shape of a catalog query. The bridge walks
// the result pages itself and returns one flattened list.
type catalogQueryBody struct {
	Volume       spatial.CoverageElement `json:"volume"`
	RType        string                  `json:"rtype,omitempty"`
	Tags         []string                `json:"tags,omitempty"`
	ClassID      string                  `json:"class_id,omitempty"`
	Expr         string                  `json:"expr,omitempty"`
	VersionRange string                  `json:"version_range,omitempty"`
	Limit        int                     `json:"limit,omitempty"`
}

func (b *Bridge) handleCatalogQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use POST")
		return
	}

	var body catalogQueryBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", fmt.Sprintf("invalid json: %v", err))
		return
	}
	if err := spatial.ValidateCoverageElement(&body.Volume); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_VOLUME", err.Error())
		return
	}
	if body.Limit < 0 {
		writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must not be negative")
		return
	}
	limit := body.Limit
	if limit == 0 || limit > maxCatalogResults {
		limit = maxCatalogResults
	}

	queryID := uuid.NewString()
	query := &envelope.ContentQuery{
		QueryID:      queryID,
		RType:        body.RType,
		Volume:       body.Volume,
		Tags:         body.Tags,
		ClassID:      body.ClassID,
		Expr:         body.Expr,
		VersionRange: body.VersionRange,
		Limit:        body.Limit,
		ReplyTopic:   b.subjects.ContentReplies(b.clientID),
		Stamp:        spatial.Now(),
		TTLSec:       int64(b.cfg.RequestTimeout / time.Second),
	}

	pending, err := b.corr.Issue(queryID, correlator.ExpectedKind(envelope.KindContentQuery), b.cfg.RequestTimeout)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "CORRELATOR", err.Error())
		return
	}
	if err := b.publish(b.subjects.ContentQuery(), envelope.KindContentQuery, "catalog", queryID, query); err != nil {
		b.corr.Cancel(queryID)
		writeError(w, http.StatusBadGateway, "BUS_PUBLISH", err.Error())
		return
	}

	// Each page names the token for the next one; re-issuing the query with
	// that token under the same query_id keeps the pending request open until
	// the final page.
	var results []envelope.Announce
	for env := range pending.Pages() {
		decoded, err := env.Body()
		if err != nil {
			continue
		}
		page := decoded.(*envelope.ContentQueryResult)
		results = append(results, page.Results...)
		if page.NextPageToken == "" {
			continue
		}
		if len(results) >= limit {
			b.corr.Cancel(queryID)
			continue
		}
		query.PageToken = page.NextPageToken
		query.Stamp = spatial.Now()
		if err := b.publish(b.subjects.ContentQuery(), envelope.KindContentQuery, "catalog", queryID, query); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to request next page for %s: %v", handlersLogPrefix, queryID, err))
			b.corr.Cancel(queryID)
		}
	}

	err = pending.Err()
	switch {
	case err == nil, errors.Is(err, correlator.ErrCancelled):
	case errors.Is(err, correlator.ErrTimedOut) && len(results) == 0:
		writeError(w, http.StatusGatewayTimeout, "CATALOG_TIMEOUT", "no catalog answered in time")
		return
	case errors.Is(err, correlator.ErrTimedOut):
		// Partial pages arrived before the deadline; return what we have.
	default:
		writeError(w, http.StatusBadGateway, "CATALOG_FAILED", err.Error())
		return
	}

	if len(results) > limit {
		results = results[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"query_id": queryID,
		"results":  results,
		"count":    len(results),
	})
}

func (b *Bridge) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use POST")
		return
	}

	var ann envelope.Announce
	if err := json.NewDecoder(r.Body).Decode(&ann); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", fmt.Sprintf("invalid json: %v", err))
		return
	}

	entry, err := b.reg.Ingest(r.Context(), &ann)
	if err != nil {
		var regErr *registry.RegistryError
		if errors.As(err, &regErr) {
			writeError(w, http.StatusBadRequest, regErr.Code, regErr.Message)
			return
		}
		writeError(w, http.StatusInternalServerError, "REGISTER_FAILED", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "registered",
		"self_uri":   entry.Announce.SelfURI,
		"expires_at": entry.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (b *Bridge) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use POST")
		return
	}

	var input registry.QueryInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", fmt.Sprintf("invalid json: %v", err))
		return
	}

	output, err := b.reg.Query(input)
	if err != nil {
		var regErr *registry.RegistryError
		if errors.As(err, &regErr) {
			writeError(w, http.StatusBadRequest, regErr.Code, regErr.Message)
			return
		}
		writeError(w, http.StatusInternalServerError, "SEARCH_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, output)
}

func (b *Bridge) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use GET")
		return
	}

	entries := b.reg.Entries()
	results := make([]envelope.Announce, 0, len(entries))
	for i := range entries {
		results = append(results, entries[i].Announce)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}

// publish wraps a payload in an envelope and sends it on the bus.
func (b *Bridge) publish(subject string, kind envelope.Kind, topic, requestID string, payload interface{}) error {
	env, err := envelope.New(kind, topic, b.clientID, requestID, payload)
	if err != nil {
		return err
	}
	data, err := env.Encode()
	if err != nil {
		return err
	}
	return b.nc.Publish(subject, data)
}
