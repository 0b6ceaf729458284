// Command hangarctl drives the allocation engine from the terminal: classify
// and allocate single domains, run provisioning batches, inspect the site
// registry and poll domains to a terminal state.
//
// Commands build the same service stack as the server from the same
// configuration. With --dry-run, or when no hosting platform is configured,
// the stack runs over an in-memory fake seeded from the site topology so
// every command works offline.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hangar/internal/allocator"
	"hangar/internal/engine"
	"hangar/internal/events"
	"hangar/internal/hosting"
	"hangar/internal/platform/config"
	"hangar/internal/platform/logger"
	redisplatform "hangar/internal/platform/redis"
	"hangar/internal/poller"
	"hangar/internal/quota"
	"hangar/internal/registrar"
	"hangar/internal/registry"
	"hangar/internal/scheduler"
	"hangar/pkg/domain"
	"hangar/pkg/platform/retry"
	pkgstrings "hangar/pkg/platform/strings"
)

var rootCmd = &cobra.Command{
	Use:   "hangarctl",
	Short: "Domain allocation and batch provisioning toolbox",
	Long: `hangarctl allocates domains onto hosting sites and runs provisioning batches.

Domains are classified by an ordered rule table, placed on the site with the
most available capacity in their category pool, and submitted to the hosting
platform under a project quota. Point it at real collaborators with a config
file or HANGAR_* environment variables, or run it offline with --dry-run.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("HANGARCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("config", "", "path to a hangar.yaml config file")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("dry-run", false, "run against an in-memory platform, never touch real collaborators")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log service activity to stderr")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("dry-run", rootCmd.PersistentFlags().Lookup("dry-run"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(allocateCmd())
	rootCmd.AddCommand(batchCmd())
	rootCmd.AddCommand(registryCmd())
	rootCmd.AddCommand(pollCmd())
	rootCmd.AddCommand(sitesCmd())
}

// --- classify ---

type classification struct {
	Domain   string `json:"domain"`
	Category string `json:"category"`
	Rule     string `json:"rule"`
	Pattern  string `json:"pattern,omitempty"`
}

func classifyCmd() *cobra.Command {
	var showRules bool
	cmd := &cobra.Command{
		Use:   "classify [domain]",
		Short: "Resolve the hosting category for a domain name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if showRules {
				return printRules()
			}
			if len(args) != 1 {
				return fmt.Errorf("domain name required (or --rules)")
			}
			name, err := domain.ParseDomainName(args[0])
			if err != nil {
				return err
			}
			out := classification{
				Domain:   name.String(),
				Category: allocator.Classify(name).String(),
				Rule:     "default",
			}
			if rule, ok := allocator.Explain(name); ok {
				out.Rule = rule.Name
				out.Pattern = rule.Pattern
			}
			return printJSONOrTable(out)
		},
	}
	cmd.Flags().BoolVar(&showRules, "rules", false, "print the ordered rule table")
	return cmd
}

func printRules() error {
	rules := allocator.Rules()
	if viper.GetBool("json") {
		return printJSON(rules)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "Rule", "Pattern", "Category"})
	for i, r := range rules {
		tw.AppendRow(table.Row{i + 1, r.Name, r.Pattern, r.Category})
	}
	tw.AppendRow(table.Row{len(rules) + 1, "default", "anything else", domain.CategoryDefault})
	tw.Render()
	return nil
}

// --- allocate ---

type allocationView struct {
	Domain       string `json:"domain"`
	Category     string `json:"category"`
	SiteID       string `json:"siteId"`
	Available    int    `json:"available"`
	FallbackUsed bool   `json:"fallbackUsed,omitempty"`
	ProjectScan  bool   `json:"projectScan,omitempty"`
}

func allocateCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "allocate <domain>",
		Short: "Pick the hosting site for a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, eng *engine.Engine) error {
				a, err := eng.Allocate(ctx, args[0], category)
				if err != nil {
					return err
				}
				return printJSONOrTable(allocationView{
					Domain:       a.Domain.String(),
					Category:     a.Category.String(),
					SiteID:       a.SiteID.String(),
					Available:    a.Available,
					FallbackUsed: a.FallbackUsed,
					ProjectScan:  a.ProjectScan,
				})
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "category override, skips classification")
	return cmd
}

// --- batch ---

func batchCmd() *cobra.Command {
	batch := &cobra.Command{Use: "batch", Short: "Run and inspect provisioning batches"}
	batch.AddCommand(batchRunCmd())
	batch.AddCommand(batchShowCmd())
	batch.AddCommand(batchListCmd())
	return batch
}

func batchRunCmd() *cobra.Command {
	var file, scope string
	var wait bool
	cmd := &cobra.Command{
		Use:   "run [domain...]",
		Short: "Submit a batch of domains and report the per-domain results",
		RunE: func(cmd *cobra.Command, args []string) error {
			domains := args
			if file != "" {
				fromFile, err := readDomains(file)
				if err != nil {
					return err
				}
				domains = append(domains, fromFile...)
			}
			domains = pkgstrings.DedupeAndTrimLower(domains)
			if len(domains) == 0 {
				return fmt.Errorf("no domains given (arguments or --file)")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, eng *engine.Engine) error {
				run, err := eng.RunBatch(ctx, engine.BatchParams{
					Scope:   scope,
					Domains: domains,
					Wait:    wait,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(run)
				}
				renderRun(*run)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "file with one domain per line, # comments allowed")
	cmd.Flags().StringVar(&scope, "scope", "", `quota scope: "platform" (default) or "category:<name>"`)
	cmd.Flags().BoolVar(&wait, "wait", false, "poll each submitted domain to a terminal state")
	return cmd
}

func batchShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a stored batch run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, eng *engine.Engine) error {
				run, err := eng.Run(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(run)
				}
				renderRun(run)
				return nil
			})
		},
	}
	return cmd
}

func batchListCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent batch runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, eng *engine.Engine) error {
				runs, err := eng.Runs(ctx, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(runs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Scope", "State", "Requested", "OK", "Failed", "Skipped", "Started"})
				for _, r := range runs {
					tw.AppendRow(table.Row{
						r.ID, r.Scope, r.State,
						len(r.Requested), len(r.Successful), len(r.Failed), len(r.Skipped),
						r.StartedAt.Format(time.RFC3339),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "limit", "n", 20, "number of runs")
	return cmd
}

func readDomains(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var domains []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		domains = append(domains, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return domains, nil
}

func renderRun(run scheduler.BatchRun) {
	fmt.Printf("Run %s  scope=%s  state=%s\n", run.ID, run.Scope, run.State)
	fmt.Printf("Quota: %d occupied of %d, %d remaining", run.Quota.Occupied, run.Quota.ProjectQuota, run.Quota.Remaining)
	if run.Quota.DailyLimit > 0 {
		fmt.Printf(" (daily %d of %d)", run.Quota.IssuedToday, run.Quota.DailyLimit)
	}
	fmt.Println()
	fmt.Printf("Requested %d, admitted %d, deferred %d\n", len(run.Requested), len(run.Admitted), len(run.Deferred))

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Result", "Domain", "Category", "Site", "Status", "Attempts", "Reason"})
	appendResults(tw, "ok", run.Successful)
	appendResults(tw, "failed", run.Failed)
	appendResults(tw, "skipped", run.Skipped)
	tw.Render()
}

func appendResults(tw table.Writer, bucket string, results []scheduler.DomainResult) {
	for _, r := range results {
		tw.AppendRow(table.Row{bucket, r.Domain, r.Category, r.SiteID, r.Status, r.Attempts, r.Reason})
	}
}

// --- registry ---

func registryCmd() *cobra.Command {
	reg := &cobra.Command{Use: "registry", Short: "Inspect the site registry"}
	reg.AddCommand(registryCountsCmd())
	return reg
}

func registryCountsCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "counts",
		Short: "Show per-site occupancy counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, eng *engine.Engine) error {
				var snap registry.Snapshot
				var err error
				if refresh {
					snap, err = eng.RefreshRegistry(ctx)
				} else {
					snap, err = eng.Counts(ctx, true)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snap)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Site", "Default Domain", "Type", "Count"})
				for _, site := range snap.Sites {
					count := "unknown"
					if c, ok := snap.Count(site.ID); ok {
						count = fmt.Sprintf("%d", c)
					}
					tw.AppendRow(table.Row{site.ID, site.DefaultDomain, site.Type, count})
				}
				tw.Render()
				fmt.Printf("Fetched %s\n", snap.FetchedAt.Format(time.RFC3339))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the cache and refetch from the platform")
	return cmd
}

// --- poll ---

type outcomeView struct {
	Domain      string `json:"domain"`
	SiteID      string `json:"siteId"`
	State       string `json:"state"`
	Polls       int    `json:"polls"`
	FailedPolls int    `json:"failedPolls,omitempty"`
	Elapsed     string `json:"elapsed"`
	Status      string `json:"status,omitempty"`
	CertStatus  string `json:"certStatus,omitempty"`
}

func pollCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "poll <site-id> <domain>",
		Short: "Poll a domain until it reaches a terminal state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, eng *engine.Engine) error {
				outcome, err := eng.WaitActive(ctx, args[0], args[1], timeout)
				if err != nil {
					return err
				}
				return printJSONOrTable(outcomeView{
					Domain:      args[1],
					SiteID:      args[0],
					State:       string(outcome.State),
					Polls:       outcome.Polls,
					FailedPolls: outcome.FailedPolls,
					Elapsed:     outcome.Elapsed.String(),
					Status:      outcome.LastStatus.Status,
					CertStatus:  outcome.LastStatus.CertStatus,
				})
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "polling budget, zero uses the configured deadline")
	return cmd
}

// --- sites ---

func sitesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sites",
		Short: "Show the category pools from the site topology",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("config"))
			if err != nil {
				return err
			}
			topology, err := loadTopology(cfg)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				out := make(map[string][]allocator.Site, len(topology.Categories()))
				for _, category := range topology.Categories() {
					out[category.String()] = topology.Pool(category)
				}
				return printJSON(out)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Category", "Site", "Capacity", "Reserved"})
			for _, category := range topology.Categories() {
				for _, site := range topology.Pool(category) {
					tw.AppendRow(table.Row{category, site.ID, site.Capacity, site.Reserved})
				}
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

// --- wiring ---

func loadTopology(cfg *config.Config) (allocator.Topology, error) {
	siteMap := config.DefaultSiteMap()
	if cfg.SiteMapPath != "" {
		loaded, err := config.LoadSiteMap(cfg.SiteMapPath)
		if err != nil {
			return allocator.Topology{}, fmt.Errorf("load site map %s: %w", cfg.SiteMapPath, err)
		}
		siteMap = loaded
	}
	return allocator.TopologyFromSiteMap(siteMap)
}

// withEngine builds the service stack from the configuration and hands the
// facade to fn. Without a configured hosting platform, or with --dry-run,
// collaborators are in-memory fakes and the polling knobs shrink so a batch
// finishes in seconds instead of simulating production pacing.
func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return err
	}

	logCfg := config.LogConfig{Level: "error", Format: "text"}
	if viper.GetBool("verbose") {
		logCfg = config.LogConfig{Level: "debug", Format: "text"}
	}
	log := logger.New(logCfg)

	topology, err := loadTopology(cfg)
	if err != nil {
		return err
	}

	dryRun := viper.GetBool("dry-run")
	simulated := dryRun || cfg.Hosting.BaseURL == ""

	var platform hosting.Client
	if simulated {
		var seeds []hosting.FakeSite
		seen := make(map[domain.SiteID]bool)
		for _, category := range topology.Categories() {
			for _, site := range topology.Pool(category) {
				if seen[site.ID] {
					continue
				}
				seen[site.ID] = true
				seeds = append(seeds, hosting.FakeSite{ID: site.ID})
			}
		}
		platform = hosting.NewFake(seeds...)
	} else {
		tokens, err := hosting.NewCachingTokenSource(hosting.Static(cfg.Hosting.Token))
		if err != nil {
			return fmt.Errorf("hosting token source: %w", err)
		}
		client, err := hosting.NewHTTPClient(cfg.Hosting.BaseURL, cfg.Hosting.Project, tokens, hosting.WithLogger(log))
		if err != nil {
			return fmt.Errorf("hosting client: %w", err)
		}
		platform = client
	}

	var dns registrar.Client = registrar.NewFake()
	if !dryRun && cfg.Registrar.BaseURL != "" {
		client, err := registrar.NewHTTPClient(cfg.Registrar.BaseURL, cfg.Registrar.APIKey, cfg.Registrar.APISecret,
			registrar.WithShopperID(cfg.Registrar.ShopperID),
			registrar.WithLogger(log),
		)
		if err != nil {
			return fmt.Errorf("registrar client: %w", err)
		}
		dns = client
	}

	registryStore := registry.Store(registry.NewMemoryStore())
	issuedStore := quota.Store(quota.NewMemoryStore())
	if !dryRun && cfg.Redis.URL != "" {
		redisClient, err := redisplatform.New(cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisClient.Close()
		registryStore = registry.NewRedisStore(redisClient.Client)
		issuedStore = quota.NewRedisStore(redisClient.Client)
	}

	runStore := scheduler.RunStore(scheduler.NewMemoryRunStore())
	if !dryRun && cfg.Postgres.DSN != "" {
		store, closeDB, err := openRunStore(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer closeDB()
		runStore = store
	}

	publisher := events.Publisher(events.Nop{})
	if !dryRun && len(cfg.Kafka.Brokers) > 0 {
		kafka, err := events.NewKafka(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, events.WithLogger(log))
		if err != nil {
			return fmt.Errorf("kafka publisher: %w", err)
		}
		publisher = kafka
	}
	defer publisher.Close()

	pollInterval, pollDeadline := cfg.Poller.Interval, cfg.Poller.Deadline
	submitDelay := cfg.Scheduler.SubmitDelay
	if simulated {
		pollInterval = 200 * time.Millisecond
		pollDeadline = 30 * time.Second
		submitDelay = 0
	}

	retryPolicy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff:     retry.Exponential(cfg.Retry.BackoffBase, cfg.Retry.BackoffCap),
	}

	cache, err := registry.New(platform, registryStore,
		registry.WithTTL(cfg.Registry.CacheTTL),
		registry.WithFetchBatch(cfg.Registry.FetchBatchSize, cfg.Registry.FetchBatchDelay),
		registry.WithRetryPolicy(retryPolicy),
		registry.WithLogger(log),
	)
	if err != nil {
		return err
	}
	alloc, err := allocator.New(topology, cache,
		allocator.WithLogger(log),
		allocator.WithEvents(publisher),
	)
	if err != nil {
		return err
	}
	watcher, err := poller.New(platform,
		poller.WithInterval(pollInterval),
		poller.WithDeadline(pollDeadline),
		poller.WithLogger(log),
	)
	if err != nil {
		return err
	}
	batches, err := scheduler.New(alloc, cache, platform, dns, watcher,
		scheduler.WithRunStore(runStore),
		scheduler.WithQuotaStore(issuedStore),
		scheduler.WithQuotaConfig(cfg.Quota),
		scheduler.WithWorkers(cfg.Scheduler.Workers),
		scheduler.WithSubmitDelay(submitDelay),
		scheduler.WithMaxPerBatch(cfg.Scheduler.MaxPerBatch),
		scheduler.WithRetryPolicy(retryPolicy),
		scheduler.WithEvents(publisher),
		scheduler.WithLogger(log),
	)
	if err != nil {
		return err
	}
	eng, err := engine.New(alloc, batches, watcher, cache, engine.WithLogger(log))
	if err != nil {
		return err
	}
	return fn(ctx, eng)
}

func openRunStore(ctx context.Context, dsn string) (scheduler.RunStore, func(), error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	store := scheduler.NewPostgresRunStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("batch run schema: %w", err)
	}
	return store, func() { db.Close() }, nil
}

// --- output helpers ---

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
