// Package server runs the capability bridge behind an HTTP frontend: session, gateway,
// ledger and orchestrator, plus optional history mirroring and event publishing.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/morezero/capability-bridge/internal/config"
	"github.com/morezero/capability-bridge/pkg/capability"
	"github.com/morezero/capability-bridge/pkg/invocation"
	"github.com/morezero/capability-bridge/pkg/ledger"
	"github.com/morezero/capability-bridge/pkg/orchestrator"
	"github.com/morezero/capability-bridge/pkg/session"
)

const logPrefix = "server:server"

const mimeCBOR = "application/cbor"

// backend is the part of Bridge the HTTP handlers use.
type backend interface {
	State() session.State
	Endpoint() string
	Catalog() *capability.Catalog
	Connect(ctx context.Context) error
	Refresh(ctx context.Context) error
	Run(ctx context.Context, instruction string) *orchestrator.Answer
	Invoke(ctx context.Context, name string, args map[string]interface{}) (*invocation.Outcome, error)
	Recent(k int) []*invocation.Outcome
	StoredRecent(ctx context.Context, k int) ([]*invocation.Outcome, error)
	InFlight() map[string]orchestrator.Phase
}

// Server is the bridge's HTTP frontend.
type Server struct {
	cfg        *config.Config
	bridge     backend
	httpServer *http.Server
}

// SetupLogging installs the default text logger at the configured level.
func SetupLogging(cfg *config.Config) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
}

// Run starts the bridge and its HTTP frontend, blocks until a shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	SetupLogging(cfg)

	slog.Info(fmt.Sprintf("%s - Starting capability-bridge", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge, err := NewBridge(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%s - failed to build bridge: %w", logPrefix, err)
	}
	defer bridge.Close()

	// A provider that is not up yet is not fatal; POST /connect retries.
	if err := bridge.Connect(ctx); err != nil {
		slog.Warn(fmt.Sprintf("%s - Initial connect to %s failed: %v", logPrefix, cfg.COMMSURL, err))
	} else {
		slog.Info(fmt.Sprintf("%s - Connected to provider on %s (%d capabilities)", logPrefix, cfg.ProviderSubject, bridge.Catalog().Len()))
	}

	s := &Server{cfg: cfg, bridge: bridge}
	httpAddr := cfg.ListenAddr()
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.routes()}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - Capability-bridge is ready", logPrefix))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.HealthCheckTimeout)
	defer shutdownCancel()
	s.httpServer.Shutdown(shutdownCtx)

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/capability/", s.handleCapabilityDetail())
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/capabilities", s.handleCapabilities)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/run", s.handleRun)
	mux.HandleFunc("/invoke", s.handleInvoke)
	mux.HandleFunc("/connect", s.handleConnect)
	mux.HandleFunc("/refresh", s.handleRefresh)
	return mux
}

// healthOutput is the /health body.
type healthOutput struct {
	Status         string `json:"status"`
	State          string `json:"state"`
	Endpoint       string `json:"endpoint"`
	CatalogVersion uint64 `json:"catalogVersion"`
	Capabilities   int    `json:"capabilities"`
	InFlight       int    `json:"inFlight"`
	Timestamp      string `json:"timestamp"`
}

func (s *Server) health() *healthOutput {
	state := s.bridge.State()
	cat := s.bridge.Catalog()
	h := &healthOutput{
		Status:         "healthy",
		State:          state.String(),
		Endpoint:       s.bridge.Endpoint(),
		CatalogVersion: cat.Version(),
		Capabilities:   cat.Len(),
		InFlight:       len(s.bridge.InFlight()),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
	if state != session.Ready {
		h.Status = "degraded"
	}
	return h
}

// handleHealth reports the process as alive together with the session state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.health())
}

// handleReady answers 503 until the session is Ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	state := s.bridge.State()
	if state != session.Ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "state": state.String()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// catalogOutput is the /capabilities body.
type catalogOutput struct {
	Version      uint64                  `json:"version"`
	FetchedAt    string                  `json:"fetchedAt,omitempty"`
	Capabilities []capability.Descriptor `json:"capabilities"`
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.catalog())
}

func (s *Server) catalog() catalogOutput {
	cat := s.bridge.Catalog()
	out := catalogOutput{Version: cat.Version(), Capabilities: cat.All()}
	if !cat.FetchedAt().IsZero() {
		out.FetchedAt = cat.FetchedAt().UTC().Format(time.RFC3339Nano)
	}
	if out.Capabilities == nil {
		out.Capabilities = []capability.Descriptor{}
	}
	return out
}

// handleHistory lists recent outcomes, newest first. ?k= bounds the count,
// ?source=store reads the history store instead of the in-memory ledger, and
// "Accept: application/cbor" selects a CBOR body.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	k := ledger.DefaultCapacity
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, string(invocation.CodeArgument), "k must be a non-negative integer")
			return
		}
		k = n
	}

	var outcomes []*invocation.Outcome
	if r.URL.Query().Get("source") == "store" {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		stored, err := s.bridge.StoredRecent(ctx, k)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, string(invocation.CodeInternal), err.Error())
			return
		}
		outcomes = stored
	} else {
		outcomes = s.bridge.Recent(k)
	}
	if outcomes == nil {
		outcomes = []*invocation.Outcome{}
	}

	if strings.Contains(r.Header.Get("Accept"), mimeCBOR) {
		writeCBOR(w, http.StatusOK, outcomes)
		return
	}
	writeJSON(w, http.StatusOK, outcomes)
}

type runInput struct {
	Instruction string `json:"instruction"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var in runInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, string(invocation.CodeArgument), "Failed to decode request")
		return
	}
	writeJSON(w, http.StatusOK, s.bridge.Run(r.Context(), in.Instruction))
}

type invokeInput struct {
	Capability string                 `json:"capability"`
	Arguments  map[string]interface{} `json:"arguments"`
}

// handleInvoke calls one capability. A failure outcome is still a 200 with
// status "failure"; only calls that never produced an outcome get an error status.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var in invokeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, string(invocation.CodeArgument), "Failed to decode request")
		return
	}
	if in.Arguments == nil {
		in.Arguments = map[string]interface{}{}
	}
	out, err := s.bridge.Invoke(r.Context(), in.Capability, in.Arguments)
	if out == nil {
		code := invocation.CodeOf(err)
		writeError(w, statusFor(code), string(code), errorMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.bridge.Connect(r.Context()); err != nil {
		code := invocation.CodeOf(err)
		writeError(w, statusFor(code), string(code), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.health())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.bridge.Refresh(r.Context()); err != nil {
		code := invocation.CodeOf(err)
		writeError(w, statusFor(code), string(code), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.catalog())
}

// statusFor maps a failure kind to an HTTP status.
func statusFor(code invocation.Code) int {
	switch code {
	case invocation.CodeArgument:
		return http.StatusBadRequest
	case invocation.CodeUnknownCapability:
		return http.StatusNotFound
	case invocation.CodeConnection, invocation.CodeSessionClosed, invocation.CodeTransportLost:
		return http.StatusServiceUnavailable
	case invocation.CodeTimeout:
		return http.StatusGatewayTimeout
	case invocation.CodeCatalogRefresh, invocation.CodeRemote:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	if err == nil {
		return "no outcome"
	}
	return err.Error()
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

type errorOutput struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorOutput{Code: code, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - json encode: %v", logPrefix, err))
	}
}

var cborMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

func writeCBOR(w http.ResponseWriter, status int, v interface{}) {
	data, err := cborMode.Marshal(v)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - cbor encode: %v", logPrefix, err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", mimeCBOR)
	w.WriteHeader(status)
	w.Write(data)
}

// styleTemplate is shared by the HTML pages.
const styleTemplate = `{{define "style"}}<style>
    body { margin: 0 auto; max-width: 960px; padding: 1.5rem 2rem; font: 15px/1.5 system-ui, sans-serif; color: #111; background: #fff; }
    h1, h2, h3, a { color: #0066cc; }
    h2 { border-bottom: 1px solid #dde3ea; padding-bottom: 0.25rem; }
    table { width: 100%; border-collapse: collapse; }
    th, td { padding: 0.4rem 0.6rem; border: 1px solid #d0d7de; text-align: left; vertical-align: top; }
    th { background: #f3f6f9; }
    pre { padding: 0.75rem; overflow-x: auto; background: #f6f8fa; border: 1px solid #e4e8ec; font-size: 0.85rem; }
    .meta { color: #444; font-size: 0.9rem; }
    .stat, .status-healthy { color: #0066cc; font-weight: 600; }
    .status-degraded, .error { color: #cc0000; font-weight: 600; }
    .btn { display: inline-block; margin: 0.75rem 0; padding: 0.4rem 0.9rem; border-radius: 4px; background: #0066cc; color: #fff; text-decoration: none; }
  </style>{{end}}`

// homePageTemplate is the HTML for the bridge home page.
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Capability Bridge</title>
  {{template "style"}}
</head>
<body>
  <h1>Capability Bridge</h1>
  <p class="meta">Session state, provider catalog and recent invocations.</p>

  <section>
    <h2>Session</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span> ({{.Health.State}})</p>
    <p>Endpoint: {{.Health.Endpoint}}</p>
    <p>Runs in flight: <span class="stat">{{.Health.InFlight}}</span></p>
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  <section>
    <h2>Capabilities</h2>
    {{if not .Capabilities}}
    <p>No capabilities listed.</p>
    {{else}}
    <p>Catalog version <span class="stat">{{.Health.CatalogVersion}}</span>, {{len .Capabilities}} capabilities.</p>
    <table>
      <thead>
        <tr><th>Capability</th><th>Description</th><th>Required</th></tr>
      </thead>
      <tbody>
        {{range .Capabilities}}
        <tr>
          <td><a href="/capability/{{.Name}}">{{.Name}}</a></td>
          <td>{{.Description}}</td>
          <td>{{range .Required}}{{.}} {{end}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>

  <section>
    <h2>Recent invocations</h2>
    {{if not .History}}
    <p>Nothing recorded yet.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Capability</th><th>Status</th><th>Error</th><th>Completed</th></tr>
      </thead>
      <tbody>
        {{range .History}}
        <tr>
          <td>{{.Request.Capability}}</td>
          <td>{{.Status}}</td>
          <td>{{if .ErrorCode}}<span class="error">{{.ErrorCode}}</span>{{end}}</td>
          <td>{{.CompletedAt.Format "2006-01-02 15:04:05"}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

// capabilityDetailPageTemplate is the HTML for a single capability.
const capabilityDetailPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Name}} – Capability Bridge</title>
  {{template "style"}}
</head>
<body>
  <p><a href="/">← Back to bridge</a></p>
  <h1>{{.Name}}</h1>
  {{if .Description}}<p class="meta">{{.Description}}</p>{{end}}
  <a href="/capability/{{.Name}}/docs" class="btn">View API (Swagger)</a>

  <section>
    <h2>Parameters</h2>
    {{if not .Parameters}}
    <p>No parameters.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Name</th><th>Type</th><th>Required</th><th>Default</th><th>Description</th></tr>
      </thead>
      <tbody>
        {{range .Parameters}}
        <tr>
          <td>{{.Name}}</td>
          <td>{{.Type}}</td>
          <td>{{if .Required}}yes{{else}}no{{end}}</td>
          <td>{{if .Default}}{{json .Default}}{{end}}</td>
          <td>{{.Description}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>

  {{if .InputSchema}}
  <section>
    <h2>Input schema</h2>
    <pre>{{json .InputSchema}}</pre>
  </section>
  {{end}}
</body>
</html>
`

// homeData is the data passed to the home page template.
type homeData struct {
	Health       *healthOutput
	Capabilities []capability.Descriptor
	History      []*invocation.Outcome
}

// handleHome returns an HTTP handler for the bridge home page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.Must(template.New("home").Parse(homePageTemplate)).Parse(styleTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		data := homeData{
			Health:       s.health(),
			Capabilities: s.bridge.Catalog().All(),
			History:      s.bridge.Recent(ledger.DefaultCapacity),
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

// openAPI3 types for generating specs from a capability descriptor.
type openAPI3Spec struct {
	OpenAPI string                      `json:"openapi"`
	Info    openAPI3Info                `json:"info"`
	Paths   map[string]openAPI3PathItem `json:"paths"`
}

type openAPI3Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

type openAPI3PathItem struct {
	Post *openAPI3Operation `json:"post,omitempty"`
}

type openAPI3Operation struct {
	Summary     string                      `json:"summary"`
	Description string                      `json:"description,omitempty"`
	OperationID string                      `json:"operationId"`
	RequestBody *openAPI3RequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]openAPI3Response `json:"responses"`
}

type openAPI3RequestBody struct {
	Content map[string]openAPI3MediaType `json:"content"`
}

type openAPI3Response struct {
	Description string                       `json:"description"`
	Content     map[string]openAPI3MediaType `json:"content,omitempty"`
}

type openAPI3MediaType struct {
	Schema map[string]interface{} `json:"schema,omitempty"`
}

// inputSchemaFor returns the descriptor's JSON schema, or one built from its parameters.
func inputSchemaFor(d capability.Descriptor) map[string]interface{} {
	if len(d.InputSchema) > 0 {
		var schema map[string]interface{}
		if err := json.Unmarshal(d.InputSchema, &schema); err == nil {
			return schema
		}
	}
	props := make(map[string]interface{}, len(d.Parameters))
	for _, p := range d.Parameters {
		prop := map[string]interface{}{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[p.Name] = prop
	}
	schema := map[string]interface{}{"type": "object", "properties": props}
	if req := d.Required(); len(req) > 0 {
		schema["required"] = req
	}
	return schema
}

// buildOpenAPISpec builds an OpenAPI 3.0 document for one capability, served
// through POST /invoke.
func buildOpenAPISpec(d capability.Descriptor, catalogVersion uint64) *openAPI3Spec {
	desc := d.Description
	if desc == "" {
		desc = "Capability " + d.Name
	}
	resultSchema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"status":      map[string]interface{}{"type": "string", "enum": []string{string(invocation.StatusSuccess), string(invocation.StatusFailure)}},
			"result":      map[string]interface{}{"type": "object"},
			"errorCode":   map[string]interface{}{"type": "string"},
			"errorDetail": map[string]interface{}{"type": "string"},
		},
	}
	return &openAPI3Spec{
		OpenAPI: "3.0.0",
		Info: openAPI3Info{
			Title:       d.Name,
			Description: desc,
			Version:     fmt.Sprintf("catalog-%d", catalogVersion),
		},
		Paths: map[string]openAPI3PathItem{
			"/" + d.Name: {
				Post: &openAPI3Operation{
					Summary:     d.Name,
					Description: d.Description,
					OperationID: d.Name,
					RequestBody: &openAPI3RequestBody{
						Content: map[string]openAPI3MediaType{
							"application/json": {Schema: inputSchemaFor(d)},
						},
					},
					Responses: map[string]openAPI3Response{
						"200": {
							Description: "Invocation outcome",
							Content: map[string]openAPI3MediaType{
								"application/json": {Schema: resultSchema},
							},
						},
					},
				},
			},
		},
	}
}

// swaggerUIPage is the HTML that embeds Swagger UI from CDN and loads the OpenAPI spec.
const swaggerUIPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>API – {{.Name}}</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.onload = function() {
      SwaggerUIBundle({
        url: "{{.SpecURL}}",
        dom_id: "#swagger-ui",
        presets: [
          SwaggerUIBundle.presets.apis,
          SwaggerUIBundle.SwaggerUIStandalonePreset
        ]
      });
    };
  </script>
</body>
</html>
`

// handleCapabilityDetail serves /capability/{name}, its openapi.json and Swagger docs.
func (s *Server) handleCapabilityDetail() http.HandlerFunc {
	tmpl := template.Must(template.New("capabilityDetail").Funcs(template.FuncMap{
		"json": func(v interface{}) string {
			if raw, ok := v.(json.RawMessage); ok {
				var decoded interface{}
				if err := json.Unmarshal(raw, &decoded); err == nil {
					v = decoded
				}
			}
			b, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return fmt.Sprintf("%v", v)
			}
			return string(b)
		},
	}).Parse(capabilityDetailPageTemplate))
	template.Must(tmpl.Parse(styleTemplate))
	swaggerTmpl := template.Must(template.New("swagger").Parse(swaggerUIPage))
	return func(w http.ResponseWriter, r *http.Request) {
		pathCap := strings.TrimPrefix(r.URL.Path, "/capability/")
		if pathCap == "" {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		name, suffix, _ := strings.Cut(pathCap, "/")
		if unescaped, err := url.PathUnescape(name); err == nil {
			name = unescaped
		}

		cat := s.bridge.Catalog()
		d, err := cat.Lookup(name)
		if err != nil {
			if errors.Is(err, invocation.ErrUnknownCapability) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		switch suffix {
		case "openapi.json":
			w.Header().Set("Cache-Control", "public, max-age=60")
			writeJSON(w, http.StatusOK, buildOpenAPISpec(d, cat.Version()))
			return
		case "docs":
			scheme := "http"
			if r.TLS != nil {
				scheme = "https"
			}
			specURL := scheme + "://" + r.Host + "/capability/" + url.PathEscape(d.Name) + "/openapi.json"
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			swaggerTmpl.Execute(w, map[string]string{"Name": d.Name, "SpecURL": specURL})
			return
		case "":
		default:
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, d); err != nil {
			slog.Error(fmt.Sprintf("%s - capability detail template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
