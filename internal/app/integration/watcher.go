package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/R3E-Network/agency_layer/internal/app/domain/calendar"
	"github.com/R3E-Network/agency_layer/internal/app/domain/client"
	"github.com/R3E-Network/agency_layer/internal/app/domain/finance"
	"github.com/R3E-Network/agency_layer/internal/app/domain/project"
	"github.com/R3E-Network/agency_layer/pkg/logger"
	supabase "github.com/R3E-Network/agency_layer/supabase/client"
)

// Watched tables, as named by the SQL schema.
const (
	TableClients      = "clients"
	TableProjects     = "projects"
	TableEvents       = "calendar_events"
	TableTransactions = "transactions"
)

// RealtimeSource is the subset of the Supabase realtime client the watcher
// uses.
type RealtimeSource interface {
	Connect(ctx context.Context) error
	Disconnect() error
	SubscribeToPostgresChanges(ctx context.Context, cfg supabase.PostgresChangesConfig, handler supabase.EventHandler) (*supabase.Channel, error)
}

// Watcher feeds row changes made directly against the backend (bypassing
// this service) into the syncer. Deletes need REPLICA IDENTITY FULL on the
// watched tables so the old row carries agency_id.
type Watcher struct {
	source RealtimeSource
	syncer *Syncer
	log    *logger.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	channels []*supabase.Channel
}

func NewWatcher(source RealtimeSource, syncer *Syncer, log *logger.Logger) *Watcher {
	if log == nil {
		log = logger.NewDefault("sync-watcher")
	}
	return &Watcher{source: source, syncer: syncer, log: log}
}

func (w *Watcher) Name() string { return "sync-watcher" }

// Start connects and subscribes to every watched table.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return nil
	}
	if err := w.source.Connect(ctx); err != nil {
		return fmt.Errorf("connect realtime: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	var channels []*supabase.Channel
	for _, table := range []string{TableClients, TableProjects, TableEvents, TableTransactions} {
		table := table
		ch, err := w.source.SubscribeToPostgresChanges(ctx, supabase.PostgresChangesConfig{Table: table}, func(e *supabase.RealtimeEvent) {
			if err := w.Handle(runCtx, table, e.Payload); err != nil {
				w.log.WithError(err).WithField("table", table).Warn("realtime change not applied")
			}
		})
		if err != nil {
			cancel()
			_ = w.source.Disconnect()
			return fmt.Errorf("subscribe %s: %w", table, err)
		}
		if ch != nil {
			channels = append(channels, ch)
		}
	}
	w.cancel = cancel
	w.channels = channels
	w.log.Info("sync watcher started")
	return nil
}

// Stop leaves every subscribed channel and disconnects.
func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	w.cancel = nil

	var errs []error
	for _, ch := range w.channels {
		if err := ch.Unsubscribe(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	w.channels = nil
	errs = append(errs, w.source.Disconnect())
	w.log.Info("sync watcher stopped")
	return errors.Join(errs...)
}

// Handle applies one postgres change payload. Both the nested (data.*) and
// the flat payload layouts are accepted.
func (w *Watcher) Handle(ctx context.Context, table string, payload []byte) error {
	change := strings.ToUpper(payloadField(payload, "type").String())
	record := payloadField(payload, "record")
	old := payloadField(payload, "old_record")

	switch table {
	case TableClients:
		switch change {
		case "UPDATE":
			after := decodeClient(record)
			return w.syncer.ClientChanged(ctx, decodeClient(old), after)
		case "DELETE":
			c := decodeClient(old)
			if c.AgencyID == "" {
				return errMissingAgency(table, c.ID)
			}
			return w.syncer.ClientDeleted(ctx, c)
		}
	case TableProjects:
		switch change {
		case "INSERT":
			return w.syncer.ProjectCreated(ctx, decodeProject(record))
		case "UPDATE":
			return w.syncer.ProjectChanged(ctx, decodeProject(old), decodeProject(record))
		case "DELETE":
			p := decodeProject(old)
			if p.AgencyID == "" {
				return errMissingAgency(table, p.ID)
			}
			return w.syncer.ProjectDeleted(ctx, p)
		}
	case TableEvents:
		before, after := decodeEvent(old), decodeEvent(record)
		switch change {
		case "INSERT":
			return w.syncer.EventChanged(ctx, nil, after)
		case "UPDATE":
			return w.syncer.EventChanged(ctx, before, after)
		case "DELETE":
			if before == nil || before.AgencyID == "" {
				return errMissingAgency(table, old.Get("id").String())
			}
			return w.syncer.EventChanged(ctx, before, nil)
		}
	case TableTransactions:
		before, after := decodeTransaction(old), decodeTransaction(record)
		switch change {
		case "INSERT":
			return w.syncer.TransactionChanged(ctx, nil, after)
		case "UPDATE":
			return w.syncer.TransactionChanged(ctx, before, after)
		case "DELETE":
			if before == nil || before.AgencyID == "" {
				return errMissingAgency(table, old.Get("id").String())
			}
			return w.syncer.TransactionChanged(ctx, before, nil)
		}
	default:
		return fmt.Errorf("unwatched table %q", table)
	}
	return nil
}

var errNoAgency = errors.New("change carries no agency_id")

func errMissingAgency(table, id string) error {
	return fmt.Errorf("%s %s: %w", table, id, errNoAgency)
}

func payloadField(payload []byte, path string) gjson.Result {
	if r := gjson.GetBytes(payload, "data."+path); r.Exists() {
		return r
	}
	return gjson.GetBytes(payload, path)
}

func decodeClient(r gjson.Result) client.Client {
	return client.Client{
		ID:       r.Get("id").String(),
		AgencyID: r.Get("agency_id").String(),
		Name:     r.Get("name").String(),
	}
}

func decodeProject(r gjson.Result) project.Project {
	return project.Project{
		ID:          r.Get("id").String(),
		AgencyID:    r.Get("agency_id").String(),
		ClientID:    r.Get("client_id").String(),
		ClientName:  r.Get("client_name").String(),
		Name:        r.Get("name").String(),
		Status:      project.Status(r.Get("status").String()),
		BudgetCents: r.Get("budget_cents").Int(),
	}
}

func decodeEvent(r gjson.Result) *calendar.Event {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	return &calendar.Event{
		ID:        r.Get("id").String(),
		AgencyID:  r.Get("agency_id").String(),
		Status:    calendar.Status(r.Get("status").String()),
		ClientID:  r.Get("client_id").String(),
		ProjectID: r.Get("project_id").String(),
	}
}

func decodeTransaction(r gjson.Result) *finance.Transaction {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	return &finance.Transaction{
		ID:          r.Get("id").String(),
		AgencyID:    r.Get("agency_id").String(),
		Kind:        finance.Kind(r.Get("kind").String()),
		Status:      finance.Status(r.Get("status").String()),
		AmountCents: r.Get("amount_cents").Int(),
		ClientID:    r.Get("client_id").String(),
		ProjectID:   r.Get("project_id").String(),
	}
}
