// Package provider serves capabilities over COMMS using the bridge wire protocol.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/capability-bridge/pkg/commsutil"
	"github.com/morezero/capability-bridge/pkg/semver"
	"github.com/morezero/capability-bridge/pkg/wire"
)

const logPrefix = "provider:provider"

// Params configure a Provider.
type Params struct {
	Name    string
	Version string
	// Subject is the request subject; defaults to commsutil.SubjectProvider.
	Subject string
	// ProtocolRange is the range of client protocol versions accepted; defaults to "^1.0.0".
	ProtocolRange string
	// PageSize bounds capabilities/list pages; defaults to 50.
	PageSize int
	// RequestTimeout bounds one handler call; defaults to 30s.
	RequestTimeout time.Duration
}

// Provider routes wire requests to registered capability handlers.
type Provider struct {
	params Params

	mu    sync.RWMutex
	order []string
	caps  map[string]Capability

	nc     *comms.Conn
	sub    *comms.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Provider with no capabilities.
func New(params Params) *Provider {
	if params.Name == "" {
		params.Name = "sample-provider"
	}
	if params.Version == "" {
		params.Version = "1.0.0"
	}
	if params.Subject == "" {
		params.Subject = commsutil.SubjectProvider
	}
	if params.ProtocolRange == "" {
		params.ProtocolRange = "^1.0.0"
	}
	if params.PageSize <= 0 {
		params.PageSize = 50
	}
	if params.RequestTimeout <= 0 {
		params.RequestTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Provider{
		params: params,
		caps:   map[string]Capability{},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Subject returns the request subject.
func (p *Provider) Subject() string { return p.params.Subject }

// Register adds or replaces capabilities and announces the change when serving.
func (p *Provider) Register(caps ...Capability) error {
	p.mu.Lock()
	for _, c := range caps {
		if c.Spec.Name == "" {
			p.mu.Unlock()
			return fmt.Errorf("%s - capability has no name", logPrefix)
		}
		if c.Handler == nil {
			p.mu.Unlock()
			return fmt.Errorf("%s - capability %s has no handler", logPrefix, c.Spec.Name)
		}
		if _, exists := p.caps[c.Spec.Name]; !exists {
			p.order = append(p.order, c.Spec.Name)
		}
		p.caps[c.Spec.Name] = c
	}
	p.mu.Unlock()

	p.notify(wire.Notification{Type: wire.NotificationListChanged})
	return nil
}

// Unregister removes a capability and announces the change when serving.
func (p *Provider) Unregister(name string) bool {
	p.mu.Lock()
	_, ok := p.caps[name]
	if ok {
		delete(p.caps, name)
		for i, n := range p.order {
			if n == name {
				p.order = append(p.order[:i], p.order[i+1:]...)
				break
			}
		}
	}
	p.mu.Unlock()

	if ok {
		p.notify(wire.Notification{Type: wire.NotificationListChanged})
	}
	return ok
}

// Names returns registered capability names in registration order.
func (p *Provider) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.order...)
}

// Start subscribes to the request subject on nc.
func (p *Provider) Start(nc *comms.Conn) error {
	sub, err := nc.Subscribe(p.params.Subject, func(msg *comms.Msg) {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.serve(msg)
		}()
	})
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, p.params.Subject, err)
	}
	if err := nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("%s - failed to flush subscription: %w", logPrefix, err)
	}

	p.mu.Lock()
	p.nc = nc
	p.sub = sub
	p.mu.Unlock()

	slog.Info(fmt.Sprintf("%s - Serving %d capabilities on %s", logPrefix, len(p.Names()), p.params.Subject))
	return nil
}

// Shutdown announces a disconnect, stops taking requests and cancels running handlers.
func (p *Provider) Shutdown(reason string) {
	p.notify(wire.Notification{Type: wire.NotificationDisconnect, Reason: reason})

	p.mu.Lock()
	sub := p.sub
	p.sub = nil
	p.nc = nil
	p.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn(fmt.Sprintf("%s - Unsubscribe failed: %v", logPrefix, err))
		}
	}
	p.cancel()
	p.wg.Wait()
	slog.Info(fmt.Sprintf("%s - Provider stopped: %s", logPrefix, reason))
}

func (p *Provider) notify(n wire.Notification) {
	p.mu.RLock()
	nc := p.nc
	p.mu.RUnlock()
	if nc == nil {
		return
	}

	data, err := commsutil.EncodePayload(n)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode notification: %v", logPrefix, err))
		return
	}
	if err := nc.Publish(commsutil.EventsSubject(p.params.Subject), data); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish %s: %v", logPrefix, n.Type, err))
		return
	}
	_ = nc.Flush()
}

func (p *Provider) serve(msg *comms.Msg) {
	var req wire.Request
	if err := commsutil.DecodePayload(msg.Data, &req); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to decode request: %v", logPrefix, err))
		_ = commsutil.Reply(msg, wire.ErrorResponse("", wire.CodeInvalidRequest, "Failed to decode request", false))
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.params.RequestTimeout)
	defer cancel()

	if err := commsutil.Reply(msg, p.Dispatch(ctx, &req)); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to respond to %s: %v", logPrefix, req.ID, err))
	}
}

// Dispatch routes a request to the matching method and returns the response.
func (p *Provider) Dispatch(ctx context.Context, req *wire.Request) *wire.Response {
	slog.Debug(fmt.Sprintf("%s - method=%s id=%s", logPrefix, req.Method, req.ID))

	switch req.Method {
	case wire.MethodInitialize:
		return p.handleInitialize(req)
	case wire.MethodListCapabilities:
		return p.handleList(req)
	case wire.MethodCall:
		return p.handleCall(ctx, req)
	default:
		return wire.ErrorResponse(req.ID, wire.CodeMethodNotFound, fmt.Sprintf("Unknown method: %s", req.Method), false)
	}
}

func (p *Provider) handleInitialize(req *wire.Request) *wire.Response {
	var input wire.InitializeParams
	if err := decodeParams(req, &input); err != nil {
		return wire.ErrorResponse(req.ID, wire.CodeInvalidArgument, "Failed to parse initialize params", false)
	}

	offered := input.SupportedVersions
	if len(offered) == 0 && input.ProtocolVersion != "" {
		offered = []string{input.ProtocolVersion}
	}
	version := semver.Negotiate(offered, p.params.ProtocolRange)
	if version == "" {
		return wire.ErrorResponse(req.ID, wire.CodeInvalidRequest,
			fmt.Sprintf("No supported protocol version in %v (want %s)", offered, p.params.ProtocolRange), false)
	}

	slog.Info(fmt.Sprintf("%s - Client %s %s initialized with protocol %s", logPrefix, input.ClientInfo.Name, input.ClientInfo.Version, version))
	return wire.OkResponse(req.ID, wire.InitializeResult{
		ProtocolVersion: version,
		ServerInfo:      wire.ClientInfo{Name: p.params.Name, Version: p.params.Version},
	})
}

func (p *Provider) handleList(req *wire.Request) *wire.Response {
	var input wire.ListParams
	if err := decodeParams(req, &input); err != nil {
		return wire.ErrorResponse(req.ID, wire.CodeInvalidArgument, "Failed to parse list params", false)
	}

	start := 0
	if input.Cursor != "" {
		n, err := strconv.Atoi(input.Cursor)
		if err != nil || n < 0 {
			return wire.ErrorResponse(req.ID, wire.CodeInvalidArgument, fmt.Sprintf("Invalid cursor: %s", input.Cursor), false)
		}
		start = n
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	end := start + p.params.PageSize
	if end > len(p.order) {
		end = len(p.order)
	}
	result := wire.ListResult{Capabilities: []wire.CapabilitySpec{}}
	for i := start; i < end; i++ {
		result.Capabilities = append(result.Capabilities, p.caps[p.order[i]].Spec)
	}
	if end < len(p.order) {
		result.NextCursor = strconv.Itoa(end)
	}
	return wire.OkResponse(req.ID, result)
}

func (p *Provider) handleCall(ctx context.Context, req *wire.Request) *wire.Response {
	var input wire.CallParams
	if err := decodeParams(req, &input); err != nil {
		return wire.ErrorResponse(req.ID, wire.CodeInvalidArgument, "Failed to parse call params", false)
	}

	p.mu.RLock()
	c, ok := p.caps[input.Name]
	p.mu.RUnlock()
	if !ok {
		return wire.ErrorResponse(req.ID, wire.CodeCapabilityNotFound, fmt.Sprintf("Capability not found: %s", input.Name), false)
	}

	if missing := missingRequired(c.Spec, input.Arguments); len(missing) > 0 {
		sort.Strings(missing)
		return wire.ErrorResponse(req.ID, wire.CodeInvalidArgument, fmt.Sprintf("Missing required arguments: %v", missing), false)
	}

	result, err := c.Handler(ctx, input.Arguments)
	if err != nil {
		return handlerErrorToResponse(req.ID, err)
	}
	return wire.OkResponse(req.ID, result)
}

// --- helpers ---

func decodeParams(req *wire.Request, v interface{}) error {
	if len(req.Params) == 0 {
		return nil
	}
	return json.Unmarshal(req.Params, v)
}

func missingRequired(spec wire.CapabilitySpec, args map[string]interface{}) []string {
	var missing []string
	for _, param := range spec.Parameters {
		if !param.Required {
			continue
		}
		v, ok := args[param.Name]
		if !ok || v == nil || v == "" {
			missing = append(missing, param.Name)
		}
	}
	return missing
}

func handlerErrorToResponse(id string, err error) *wire.Response {
	var hErr *HandlerError
	if errors.As(err, &hErr) {
		return wire.ErrorResponse(id, hErr.Code, hErr.Message, hErr.Retryable)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return wire.ErrorResponse(id, wire.CodeCapabilityFailed, err.Error(), true)
	}
	return wire.ErrorResponse(id, wire.CodeInternal, err.Error(), true)
}
