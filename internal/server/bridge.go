package server

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/capability-bridge/internal/config"
	"github.com/morezero/capability-bridge/internal/llm"
	"github.com/morezero/capability-bridge/pkg/capability"
	"github.com/morezero/capability-bridge/pkg/commsutil"
	"github.com/morezero/capability-bridge/pkg/db"
	"github.com/morezero/capability-bridge/pkg/events"
	"github.com/morezero/capability-bridge/pkg/gateway"
	"github.com/morezero/capability-bridge/pkg/invocation"
	"github.com/morezero/capability-bridge/pkg/ledger"
	"github.com/morezero/capability-bridge/pkg/orchestrator"
	"github.com/morezero/capability-bridge/pkg/session"
)

const bridgeLogPrefix = "server:bridge"

// ClientVersion is announced to providers during the handshake.
const ClientVersion = "0.3.0"

// Bridge wires the session, gateway, ledger and orchestrator for one provider.
type Bridge struct {
	cfg          *config.Config
	session      *session.Session
	gateway      *gateway.Gateway
	ledger       *ledger.Ledger
	orchestrator *orchestrator.Orchestrator

	store   db.HistoryStore
	mirrors []*ledger.Mirror
	eventNC *comms.Conn
	kafka   *events.KafkaPublisher
}

// NewBridge builds a Bridge from cfg. It does not connect; call Connect.
// Optional history mirroring and event publishing are set up here and fail the
// build when configured but unreachable.
func NewBridge(ctx context.Context, cfg *config.Config) (*Bridge, error) {
	b := &Bridge{cfg: cfg}

	b.session = session.New(&session.NATSDialer{
		ClientName:    cfg.COMMSName,
		ClientVersion: ClientVersion,
		Subject:       cfg.ProviderSubject,
		ProtocolRange: cfg.ProtocolRange,
		Timeout:       cfg.ConnectTimeout,
	}, session.Options{
		ConnectTimeout: cfg.ConnectTimeout,
		RequestTimeout: cfg.RequestTimeout,
		InvokeTimeout:  cfg.InvokeTimeout,
	})
	// The session bounds each invocation; the gateway waits a little longer so the
	// session's own timeout outcome is the one callers see.
	b.gateway = gateway.New(b.session, gateway.WithDefaultTimeout(cfg.InvokeTimeout+cfg.RequestTimeout))

	sinks, err := b.buildSinks(ctx)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.ledger = ledger.New(cfg.HistoryCapacity, sinks...)

	var planner orchestrator.Planner = orchestrator.KeywordPlanner{}
	var composer orchestrator.Composer = orchestrator.TemplateComposer{}
	if cfg.UseLLM() {
		client := llm.NewClient(cfg.LLMAPIKey, cfg.LLMAPIBase, cfg.LLMModel, cfg.LLMTimeout)
		planner = &llm.Planner{LLM: client}
		composer = &llm.Composer{LLM: client, Words: cfg.LLMAnswerWords}
		slog.Info(fmt.Sprintf("%s - Planning with %s", bridgeLogPrefix, client.Model()))
	} else {
		slog.Info(fmt.Sprintf("%s - OPENAI_API_KEY not set, planning with keyword rules", bridgeLogPrefix))
	}

	b.orchestrator = orchestrator.New(orchestrator.Params{
		Planner:  planner,
		Composer: composer,
		Gateway:  b.gateway,
		Catalog:  b.session,
		Ledger:   b.ledger,
		OnPhase: func(runID string, p orchestrator.Phase) {
			slog.Debug(fmt.Sprintf("%s - run %s phase %s", bridgeLogPrefix, runID, p))
		},
	})
	return b, nil
}

func (b *Bridge) buildSinks(ctx context.Context) ([]ledger.Sink, error) {
	var sinks []ledger.Sink

	if b.cfg.HistorySinkURL != "" {
		store, err := db.OpenHistoryStore(ctx, b.cfg.HistorySinkURL)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to open history store: %w", bridgeLogPrefix, err)
		}
		b.store = store
		if pg, ok := store.(*db.PostgresStore); ok && b.cfg.RunMigrations {
			migrations, err := db.LoadMigrations(b.cfg.MigrationPath)
			if err != nil {
				return nil, fmt.Errorf("%s - failed to load migrations: %w", bridgeLogPrefix, err)
			}
			if err := db.RunMigrations(ctx, pg.Pool(), migrations); err != nil {
				return nil, fmt.Errorf("%s - failed to run migrations: %w", bridgeLogPrefix, err)
			}
		}
		m := ledger.NewMirror(store, b.cfg.MirrorBuffer, b.cfg.RequestTimeout)
		b.mirrors = append(b.mirrors, m)
		sinks = append(sinks, m)
	}

	if b.cfg.PublishEvents {
		var pubs events.MultiPublisher
		if b.cfg.COMMSURL != "" {
			nc, err := commsutil.Connect(b.cfg.COMMSURL, b.cfg.COMMSName+"-events")
			if err != nil {
				return nil, fmt.Errorf("%s - failed to connect event publisher: %w", bridgeLogPrefix, err)
			}
			b.eventNC = nc
			pubs = append(pubs, events.NewCommsPublisher(nc, &events.CommsPublisherOpts{Subject: b.cfg.RecordedEventSubject}))
		}
		if b.cfg.KafkaBrokers != "" {
			kp, err := events.NewKafkaPublisher(b.cfg.KafkaBrokers, b.cfg.KafkaTopic, b.cfg.RequestTimeout)
			if err != nil {
				return nil, err
			}
			b.kafka = kp
			pubs = append(pubs, kp)
		}
		m := ledger.NewMirror(&events.OutcomeStore{Publisher: pubs, Source: b.cfg.COMMSName}, b.cfg.MirrorBuffer, b.cfg.RequestTimeout)
		b.mirrors = append(b.mirrors, m)
		sinks = append(sinks, m)
	}
	return sinks, nil
}

// Connect opens the session to the configured broker.
func (b *Bridge) Connect(ctx context.Context) error {
	return b.session.Connect(ctx, b.cfg.COMMSURL)
}

// Refresh re-reads the provider's catalog.
func (b *Bridge) Refresh(ctx context.Context) error {
	return b.session.RefreshCatalog(ctx)
}

// State returns the session state.
func (b *Bridge) State() session.State { return b.session.State() }

// Catalog returns the current catalog snapshot.
func (b *Bridge) Catalog() *capability.Catalog { return b.session.Catalog() }

// Run handles one instruction.
func (b *Bridge) Run(ctx context.Context, instruction string) *orchestrator.Answer {
	return b.orchestrator.Run(ctx, instruction)
}

// Invoke calls a capability directly. Outcomes are recorded the same way a run records them.
func (b *Bridge) Invoke(ctx context.Context, name string, args map[string]interface{}) (*invocation.Outcome, error) {
	out, err := b.gateway.Invoke(ctx, name, args)
	if out != nil {
		b.ledger.Append(out)
	}
	return out, err
}

// Recent returns up to k outcomes from the in-memory ledger, newest first.
func (b *Bridge) Recent(k int) []*invocation.Outcome { return b.ledger.Recent(k) }

// StoredRecent reads up to k outcomes from the history store, if one is configured.
func (b *Bridge) StoredRecent(ctx context.Context, k int) ([]*invocation.Outcome, error) {
	if b.store == nil {
		return nil, fmt.Errorf("%s - no history store configured (set BRIDGE_HISTORY_SINK_URL)", bridgeLogPrefix)
	}
	return b.store.RecentOutcomes(ctx, k)
}

// InFlight returns the phase of every run in progress.
func (b *Bridge) InFlight() map[string]orchestrator.Phase { return b.orchestrator.Phases() }

// Endpoint is the broker URL the bridge connects to.
func (b *Bridge) Endpoint() string {
	if ep := b.session.Endpoint(); ep != "" {
		return ep
	}
	return b.cfg.COMMSURL
}

// Close closes the session, flushes mirrors and releases publishers and stores.
func (b *Bridge) Close() {
	if b.session != nil {
		b.session.Close()
	}
	for _, m := range b.mirrors {
		m.Close()
	}
	if b.kafka != nil {
		if err := b.kafka.Close(); err != nil {
			slog.Warn(fmt.Sprintf("%s - kafka close: %v", bridgeLogPrefix, err))
		}
	}
	if b.eventNC != nil {
		b.eventNC.Drain()
	}
	if b.store != nil {
		b.store.Close()
	}
}
