// Package di wires every package's concrete constructor into the
// running process: six named sqlite databases, the event bus, the
// feed/resolver/price/classifier/sentiment/LLM pipeline, the alert
// builder and dispatcher, the cycle orchestrator, the heartbeat
// accumulator and nightly report, the control surface, the reliability
// backup/maintenance jobs, and the cron scheduler that drives the
// periodic ones. cmd/server/main.go calls Build once at startup and
// Container.Close on shutdown.
package di

import (
	"context"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/amenzel91/catalyst-bot/internal/alert"
	"github.com/amenzel91/catalyst-bot/internal/classifier"
	"github.com/amenzel91/catalyst-bot/internal/clients/alphavantage"
	"github.com/amenzel91/catalyst-bot/internal/clients/openfigi"
	"github.com/amenzel91/catalyst-bot/internal/config"
	"github.com/amenzel91/catalyst-bot/internal/control"
	"github.com/amenzel91/catalyst-bot/internal/cycle"
	"github.com/amenzel91/catalyst-bot/internal/database"
	"github.com/amenzel91/catalyst-bot/internal/dedup"
	"github.com/amenzel91/catalyst-bot/internal/events"
	"github.com/amenzel91/catalyst-bot/internal/feeds"
	"github.com/amenzel91/catalyst-bot/internal/heartbeat"
	"github.com/amenzel91/catalyst-bot/internal/httpcache"
	"github.com/amenzel91/catalyst-bot/internal/llm"
	"github.com/amenzel91/catalyst-bot/internal/marketphase"
	"github.com/amenzel91/catalyst-bot/internal/outcomes"
	"github.com/amenzel91/catalyst-bot/internal/paramstore"
	"github.com/amenzel91/catalyst-bot/internal/price"
	"github.com/amenzel91/catalyst-bot/internal/reliability"
	"github.com/amenzel91/catalyst-bot/internal/scheduler"
	"github.com/amenzel91/catalyst-bot/internal/sentiment"
	"github.com/amenzel91/catalyst-bot/internal/ticker"
	"github.com/amenzel91/catalyst-bot/internal/utils"
)

// databaseNames is catalyst-bot's six named sqlite databases (spec.md
// §4.A-§4.K collectively). httpcache.Cache, paramstore.Store,
// outcomes.Store, etc. each own their schema via database.DB.Migrate.
var databaseNames = []string{"dedup", "paramstore", "outcomes", "pricecache", "llmcache", "httpcache"}

// Container holds every wired component cmd/server/main.go needs to
// start and stop the process.
type Container struct {
	Config *config.Config
	Bus    *events.Bus

	databases map[string]*database.DB

	ParamStore *paramstore.Store
	Control    *control.Server

	Orchestrator *cycle.Orchestrator
	Heartbeat    *heartbeat.Accumulator
	Nightly      *heartbeat.NightlyReport

	Feeds *feeds.Manager

	Scheduler *scheduler.Scheduler

	Backups     *reliability.BackupService
	HealthChecks map[string]*reliability.DatabaseHealthService
	R2          *reliability.R2BackupService

	realtimeFeed *feeds.RealtimeNewsFeed

	log zerolog.Logger
}

// Build opens every database, constructs every domain package, and
// wires them into a Container. It does not start any goroutines or
// listeners; call Container.Start for that.
func Build(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	c := &Container{Config: cfg, log: log}

	if err := c.openDatabases(cfg); err != nil {
		return nil, err
	}

	c.Bus = events.NewBus()

	store, err := paramstore.New(c.databases["paramstore"].Conn(), paramstore.DefaultSchema, c.Bus, log)
	if err != nil {
		return nil, err
	}
	c.ParamStore = store

	dedupStore := dedup.New(c.databases["dedup"].Conn(), 10*time.Minute, log)
	outcomeStore := outcomes.New(c.databases["outcomes"].Conn())
	cache := httpcache.New(c.databases["httpcache"].Conn())

	httpClient := &http.Client{Timeout: 15 * time.Second}

	avClient := alphavantage.NewClient(cfg.AlphaVantageAPIKey, log)
	priceSvc := price.New(
		c.databases["pricecache"].Conn(),
		[]price.Provider{price.NewAlphaVantageProvider(avClient)},
		60*time.Second,
		log,
	)

	figiClient := openfigi.NewClient(cfg.OpenFIGIAPIKey, cache, log)
	listings := ticker.NewStaticListings(nil)
	resolver := ticker.New(figiClient, listings, 1)

	classify := classifier.New(mergedCatalog(cfg.KeywordCatalogOverrides), nil, false)
	sentimentSources := sentiment.New(0, 0)

	llmProvider := llm.NewProvider(cfg.LLMProvider, cfg.LLMAPIKey)
	llmCache := llm.NewSQLiteCache(c.databases["llmcache"])
	llmBudget := llm.NewSQLiteBudget(c.databases["llmcache"], llm.DefaultBudgetLimits(), c.Bus)
	router := llm.New(llmProvider, llmCache, llmBudget, c.Bus, llm.DefaultConfig(), log)

	builder := alert.NewBuilder(nil, nil)
	dispatcher := alert.NewDispatcher(cfg.WebhookURL, httpClient, dedupStore, 10, log)

	calendar := marketphase.NewStaticCalendar(nil)
	phases, err := marketphase.New(calendar)
	if err != nil {
		return nil, err
	}

	c.Feeds, c.realtimeFeed = c.buildFeeds(cfg, cache, httpClient, log)

	accumulator := heartbeat.New(heartbeat.DefaultWindow, heartbeat.GopsutilStats, c.Bus, log)
	c.Heartbeat = accumulator
	c.Orchestrator = cycle.New(cycle.Deps{
		Feeds:      c.Feeds,
		Resolver:   resolver,
		Prices:     priceSvc,
		Classifier: classify,
		Sentiment:  sentimentSources,
		LLMRouter:  router,
		Dedup:      dedupStore,
		Builder:    builder,
		Dispatcher: dispatcher,
		Outcomes:   outcomeStore,
		Heartbeat:  accumulator,
		Config:     store,
		Phases:     phases,
		Bus:        c.Bus,
	}, log)

	poster := heartbeat.NewPoster(cfg.WebhookURL, httpClient)
	c.Nightly = heartbeat.NewNightlyReport(outcomeStore, priceSvc, poster, c.Bus, heartbeat.DefaultWinThresholdPct, log)

	if err := c.buildControl(cfg, store, log); err != nil {
		return nil, err
	}

	c.buildReliability(cfg, log)
	c.buildScheduler(log)

	return c, nil
}

// mergedCatalog layers csv's "tag:weight" overrides on top of
// classifier.DefaultCatalog (file-overrides-catalog for overlapping
// keys, union otherwise, per spec.md §4.F). Malformed entries are
// skipped rather than rejected outright.
func mergedCatalog(csv string) map[string]float64 {
	catalog := make(map[string]float64, len(classifier.DefaultCatalog))
	for tag, weight := range classifier.DefaultCatalog {
		catalog[tag] = weight
	}
	for _, entry := range utils.ParseCSV(csv) {
		tag, weightStr, ok := strings.Cut(entry, ":")
		if !ok {
			continue
		}
		weight, err := strconv.ParseFloat(strings.TrimSpace(weightStr), 64)
		if err != nil {
			continue
		}
		catalog[strings.TrimSpace(tag)] = weight
	}
	return catalog
}

func (c *Container) openDatabases(cfg *config.Config) error {
	c.databases = make(map[string]*database.DB, len(databaseNames))
	for _, name := range databaseNames {
		profile := database.ProfileStandard
		if name == "outcomes" {
			profile = database.ProfileLedger
		} else if name == "pricecache" || name == "llmcache" || name == "httpcache" {
			profile = database.ProfileCache
		}

		db, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, name+".db"),
			Profile: profile,
			Name:    name,
		})
		if err != nil {
			return err
		}
		if err := db.Migrate(); err != nil {
			return err
		}
		c.databases[name] = db
	}
	return nil
}

// buildFeeds wires the default ingestor set. feeds.NewPriceVolumeScanner is
// intentionally not included here: it is an optional supplemental signal,
// not a news source, and has no default polling target to scan against.
func (c *Container) buildFeeds(cfg *config.Config, cache *httpcache.Cache, httpClient *http.Client, log zerolog.Logger) (*feeds.Manager, *feeds.RealtimeNewsFeed) {
	ingestors := []feeds.Ingestor{
		feeds.NewPressReleaseWire("press_releases", "https://www.globenewswire.com/en/search/organization", 60*time.Second, httpClient, cache, log),
		feeds.NewFilingIndex("sec_filings", "https://www.sec.gov/cgi-bin/browse-edgar", 0, httpClient, cache, log),
	}

	realtime := feeds.NewRealtimeNewsFeed("realtime_wire", cfg.RealtimeFeedURL, log)
	ingestors = append(ingestors, realtime.Ingestor())

	return feeds.NewManager(ingestors, c.Bus, log), realtime
}

func (c *Container) buildControl(cfg *config.Config, store *paramstore.Store, log zerolog.Logger) error {
	if cfg.InteractionsKey == "" {
		c.Control = nil
		return nil
	}
	verifier, err := control.NewVerifier(cfg.InteractionsKey)
	if err != nil {
		return err
	}
	c.Control = control.New(control.Config{
		ParamStore: &control.StoreAdapter{Store: store},
		Verifier:   verifier,
		Bus:        c.Bus,
		Log:        log,
		Port:       cfg.Port,
	})
	return nil
}

func (c *Container) buildReliability(cfg *config.Config, log zerolog.Logger) {
	backupDir := filepath.Join(cfg.DataDir, "backups")
	c.Backups = reliability.NewBackupService(c.databases, backupDir, log)

	c.HealthChecks = make(map[string]*reliability.DatabaseHealthService, len(c.databases))
	for name, db := range c.databases {
		c.HealthChecks[name] = reliability.NewDatabaseHealthService(db, name, db.Path(), c.Backups, log)
	}

	if cfg.R2AccountID == "" || cfg.R2BucketName == "" {
		c.R2 = nil
		return
	}
	r2Client, err := reliability.NewR2Client(reliability.R2Config{
		AccountID:       cfg.R2AccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		SecretAccessKey: cfg.R2SecretAccessKey,
		BucketName:      cfg.R2BucketName,
		Endpoint:        cfg.R2Endpoint,
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("r2 client init failed, remote backups disabled")
		return
	}
	c.R2 = reliability.NewR2BackupService(r2Client, c.Backups, cfg.DataDir, log)
}

func (c *Container) buildScheduler(log zerolog.Logger) {
	c.Scheduler = scheduler.New(log)

	_ = c.Scheduler.AddJob("0 0 * * * *", reliability.NewHourlyBackupJob(c.Backups))
	_ = c.Scheduler.AddJob("0 15 2 * * *", reliability.NewDailyBackupJob(c.Backups))
	_ = c.Scheduler.AddJob("0 30 3 * * 0", reliability.NewWeeklyBackupJob(c.Backups))
	_ = c.Scheduler.AddJob("0 45 4 1 * *", reliability.NewMonthlyBackupJob(c.Backups))

	_ = c.Scheduler.AddJob("0 0 3 * * *", reliability.NewDailyMaintenanceJob(c.databases, c.HealthChecks, filepath.Join(c.Config.DataDir, "backups"), log))
	_ = c.Scheduler.AddJob("0 0 4 * * 0", reliability.NewWeeklyMaintenanceJob(c.databases, log))
	_ = c.Scheduler.AddJob("0 0 5 1 * *", reliability.NewMonthlyMaintenanceJob(c.databases, c.HealthChecks, filepath.Join(c.Config.DataDir, "backups"), log))

	_ = c.Scheduler.AddJob("0 0 6 * * *", c.Nightly)

	if c.R2 != nil {
		_ = c.Scheduler.AddJob("0 30 5 * * 0", reliability.NewR2BackupJob(context.Background(), c.R2))
	}
}

// Start begins the background goroutines: the realtime feed's websocket
// loop, the cycle orchestrator's run loop, and the cron scheduler. It
// returns once every goroutine has launched. ctx cancellation stops the
// realtime feed and the orchestrator; the scheduler runs until Close,
// which also releases the databases.
func (c *Container) Start(ctx context.Context) error {
	if c.Config.RealtimeFeedURL != "" {
		if err := c.realtimeFeed.Start(ctx); err != nil {
			c.log.Warn().Err(err).Msg("realtime feed failed to start, continuing without it")
		}
	}
	go c.Orchestrator.Run(ctx)
	c.Scheduler.Start()
	return nil
}

// Close stops the cron scheduler, the realtime feed, and closes every
// database connection. Safe to call once after Start.
func (c *Container) Close() error {
	c.Scheduler.Stop()
	_ = c.realtimeFeed.Stop()
	var firstErr error
	for _, db := range c.databases {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
