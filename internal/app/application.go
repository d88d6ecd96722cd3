package app

import (
	"context"
	"fmt"
	"time"

	"github.com/R3E-Network/agency_layer/internal/app/httpapi"
	"github.com/R3E-Network/agency_layer/internal/app/integration"
	"github.com/R3E-Network/agency_layer/internal/app/jobs"
	"github.com/R3E-Network/agency_layer/internal/app/services/agencies"
	calendarsvc "github.com/R3E-Network/agency_layer/internal/app/services/calendar"
	chatsvc "github.com/R3E-Network/agency_layer/internal/app/services/chat"
	"github.com/R3E-Network/agency_layer/internal/app/services/clients"
	"github.com/R3E-Network/agency_layer/internal/app/services/dashboard"
	financesvc "github.com/R3E-Network/agency_layer/internal/app/services/finance"
	"github.com/R3E-Network/agency_layer/internal/app/services/members"
	"github.com/R3E-Network/agency_layer/internal/app/services/notifications"
	onboardingsvc "github.com/R3E-Network/agency_layer/internal/app/services/onboarding"
	"github.com/R3E-Network/agency_layer/internal/app/services/portal"
	portfoliosvc "github.com/R3E-Network/agency_layer/internal/app/services/portfolio"
	"github.com/R3E-Network/agency_layer/internal/app/services/projects"
	"github.com/R3E-Network/agency_layer/internal/app/storage"
	"github.com/R3E-Network/agency_layer/internal/app/storage/memory"
	"github.com/R3E-Network/agency_layer/internal/app/system"
	"github.com/R3E-Network/agency_layer/internal/cache"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Agencies      storage.AgencyStore
	Members       storage.MemberStore
	Invites       storage.InviteStore
	Clients       storage.ClientStore
	Projects      storage.ProjectStore
	Events        storage.EventStore
	Transactions  storage.TransactionStore
	Portfolio     storage.PortfolioStore
	Notifications storage.NotificationStore
	Messages      storage.MessageStore
	Onboarding    storage.OnboardingStore
}

// StoresFrom uses one backend for every collection.
func StoresFrom(s storage.Store) Stores {
	return Stores{
		Agencies:      s,
		Members:       s,
		Invites:       s,
		Clients:       s,
		Projects:      s,
		Events:        s,
		Transactions:  s,
		Portfolio:     s,
		Notifications: s,
		Messages:      s,
		Onboarding:    s,
	}
}

func (s *Stores) fill(mem *memory.Store) {
	if s.Agencies == nil {
		s.Agencies = mem
	}
	if s.Members == nil {
		s.Members = mem
	}
	if s.Invites == nil {
		s.Invites = mem
	}
	if s.Clients == nil {
		s.Clients = mem
	}
	if s.Projects == nil {
		s.Projects = mem
	}
	if s.Events == nil {
		s.Events = mem
	}
	if s.Transactions == nil {
		s.Transactions = mem
	}
	if s.Portfolio == nil {
		s.Portfolio = mem
	}
	if s.Notifications == nil {
		s.Notifications = mem
	}
	if s.Messages == nil {
		s.Messages = mem
	}
	if s.Onboarding == nil {
		s.Onboarding = mem
	}
}

// Options select the optional infrastructure around the services.
type Options struct {
	// Media keeps portfolio images; nil uses an in-process store.
	Media portfoliosvc.MediaStore
	// Cache backs dashboard summaries; nil uses an in-process cache.
	Cache        cache.Cache
	DashboardTTL time.Duration
	// Realtime enables the sync watcher for out-of-band row changes.
	Realtime integration.RealtimeSource
	// Jobs enables the maintenance scheduler.
	Jobs *jobs.Config
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Syncer        *integration.Syncer
	Agencies      *agencies.Service
	Members       *members.Service
	Clients       *clients.Service
	Projects      *projects.Service
	Calendar      *calendarsvc.Service
	Finance       *financesvc.Service
	Portfolio     *portfoliosvc.Service
	Notifications *notifications.Service
	Chat          *chatsvc.Service
	Onboarding    *onboardingsvc.Service
	Dashboard     *dashboard.Service
	Portal        *portal.Service
	Jobs          *jobs.Scheduler
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	stores.fill(memory.New())
	if opts.Media == nil {
		opts.Media = portfoliosvc.NewMemoryMedia("/media")
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemory()
	}

	manager := system.NewManager()

	syncer := integration.New(integration.Stores{
		Clients:      stores.Clients,
		Projects:     stores.Projects,
		Events:       stores.Events,
		Transactions: stores.Transactions,
		Portfolio:    stores.Portfolio,
		Members:      stores.Members,
	}, log.Named("sync"))

	notifySvc := notifications.New(stores.Notifications, log.Named("notifications"))
	onboardSvc := onboardingsvc.New(stores.Onboarding, log.Named("onboarding"))

	agencySvc := agencies.New(stores.Agencies, stores.Members, log.Named("agencies"))
	memberSvc := members.New(stores.Members, stores.Invites, stores.Clients, log.Named("members"))
	memberSvc.AttachDependencies(notifySvc, onboardSvc)

	clientSvc := clients.New(stores.Clients, syncer, log.Named("clients"))
	clientSvc.AttachDependencies(notifySvc, onboardSvc)
	projectSvc := projects.New(stores.Projects, syncer, log.Named("projects"))
	projectSvc.AttachDependencies(notifySvc, onboardSvc)
	calendarSvc := calendarsvc.New(stores.Events, syncer, log.Named("calendar"))
	calendarSvc.AttachDependencies(notifySvc, onboardSvc)
	financeSvc := financesvc.New(stores.Transactions, syncer, log.Named("finance"))
	financeSvc.AttachDependencies(notifySvc, onboardSvc)
	portfolioSvc := portfoliosvc.New(stores.Portfolio, opts.Media, syncer, log.Named("portfolio"))
	portfolioSvc.AttachDependencies(onboardSvc)

	chatSvc := chatsvc.New(stores.Messages, stores.Clients, stores.Members, log.Named("chat"))
	chatSvc.AttachDependencies(notifySvc)

	dashboardSvc := dashboard.New(dashboard.Stores{
		Clients:      stores.Clients,
		Projects:     stores.Projects,
		Events:       stores.Events,
		Transactions: stores.Transactions,
	}, opts.Cache, opts.DashboardTTL, log.Named("dashboard"))
	syncer.OnChange(dashboardSvc.Invalidate)

	portalSvc := portal.New(portal.Stores{
		Clients:      stores.Clients,
		Projects:     stores.Projects,
		Events:       stores.Events,
		Transactions: stores.Transactions,
		Portfolio:    stores.Portfolio,
	}, calendarSvc, log.Named("portal"))

	for _, name := range []string{"agencies", "members", "clients", "projects", "calendar", "finance", "portfolio", "notifications", "chat", "onboarding", "dashboard", "portal"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	var lifecycle []system.Service
	if opts.Realtime != nil {
		lifecycle = append(lifecycle, integration.NewWatcher(opts.Realtime, syncer, log.Named("sync-watcher")))
	} else {
		log.Info("realtime source not configured; out-of-band changes are repaired by reconcile only")
	}

	var scheduler *jobs.Scheduler
	if opts.Jobs != nil {
		scheduler = jobs.New(*opts.Jobs, agencySvc, syncer, calendarSvc, financeSvc, log.Named("jobs"))
		lifecycle = append(lifecycle, scheduler)
	}

	for _, svc := range lifecycle {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:       manager,
		log:           log,
		Syncer:        syncer,
		Agencies:      agencySvc,
		Members:       memberSvc,
		Clients:       clientSvc,
		Projects:      projectSvc,
		Calendar:      calendarSvc,
		Finance:       financeSvc,
		Portfolio:     portfolioSvc,
		Notifications: notifySvc,
		Chat:          chatSvc,
		Onboarding:    onboardSvc,
		Dashboard:     dashboardSvc,
		Portal:        portalSvc,
		Jobs:          scheduler,
	}, nil
}

// HTTPServices exposes the services to the API layer.
func (a *Application) HTTPServices() httpapi.Services {
	return httpapi.Services{
		Agencies:      a.Agencies,
		Members:       a.Members,
		Clients:       a.Clients,
		Projects:      a.Projects,
		Calendar:      a.Calendar,
		Finance:       a.Finance,
		Portfolio:     a.Portfolio,
		Notifications: a.Notifications,
		Chat:          a.Chat,
		Onboarding:    a.Onboarding,
		Dashboard:     a.Dashboard,
		Portal:        a.Portal,
		Syncer:        a.Syncer,
	}
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Services lists the registered lifecycle services in start order.
func (a *Application) Services() []system.Service {
	return a.manager.Services()
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
