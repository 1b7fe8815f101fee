package cron

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/pkg/errors"
	cronv3 "github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/dto"
	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/interfaces"
	cron_config "github.com/customeros/mailsync/internal/cron/config"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

const (
	// GroupSync serializes the jobs that touch account sync state
	GroupSync = "sync"

	// LeaseDuration is how long a lease lasts before needing renewal
	LeaseDuration = 15 * time.Second
	// RenewDeadline is how long a leader has to renew its lease
	RenewDeadline = 10 * time.Second
	// RetryPeriod is how long to wait between leadership attempts
	RetryPeriod = 2 * time.Second

	appSourceCron = "mailsync-cron"
)

var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupSync: new(sync.Mutex),
	},
}

type CronManager struct {
	cfg      *config.Config
	log      logger.Logger
	cron     *cronv3.Cron
	k8s      kubernetes.Interface
	stopCh   chan struct{}
	stopOnce sync.Once
	jobIDs   map[string]cronv3.EntryID
	accounts interfaces.AccountRepository
	sync     interfaces.SyncService
}

func NewCronManager(cfg *config.Config, log logger.Logger, k8s kubernetes.Interface, accounts interfaces.AccountRepository, syncService interfaces.SyncService) *CronManager {
	return &CronManager{
		cfg:      cfg,
		log:      log,
		k8s:      k8s,
		stopCh:   make(chan struct{}),
		jobIDs:   make(map[string]cronv3.EntryID),
		accounts: accounts,
		sync:     syncService,
	}
}

// Start initializes and starts the cron manager with leader election
// If k8s is nil, it will start in local mode without leader election
func (cm *CronManager) Start(podName, namespace string) error {
	if cm.k8s == nil || os.Getenv("LOCAL_DEV") == "true" {
		cm.log.Info("Starting cron manager in local mode")
		cm.StartCron()
		return nil
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      cm.cronConfig().LeaseName,
			Namespace: namespace,
		},
		Client: cm.k8s.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: podName,
		},
	}

	errCh := make(chan error, 1)

	go func() {
		le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
			Lock:            lock,
			ReleaseOnCancel: true,
			LeaseDuration:   LeaseDuration,
			RenewDeadline:   RenewDeadline,
			RetryPeriod:     RetryPeriod,
			Callbacks: leaderelection.LeaderCallbacks{
				OnStartedLeading: func(ctx context.Context) {
					cm.StartCron()
				},
				OnStoppedLeading: func() {
					cm.log.Info("Leader lost - stopping crons")
					cm.Stop()
				},
				OnNewLeader: func(identity string) {
					cm.log.Infof("New leader elected: %s", identity)
				},
			},
		})
		if err != nil {
			errCh <- err
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			<-cm.stopCh
			cancel()
		}()
		le.Run(ctx)
	}()

	// Wait briefly to see if leader election fails immediately
	select {
	case err := <-errCh:
		cm.log.Warnf("Leader election failed, falling back to local mode: %v", err)
		cm.StartCron()
	case <-time.After(5 * time.Second):
	}

	return nil
}

// Stop gracefully stops the cron manager
func (cm *CronManager) Stop() {
	if cm.cron != nil {
		cm.log.Info("Stopping cron manager")
		ctx := cm.cron.Stop()
		// Wait for jobs to finish
		<-ctx.Done()
	}
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}

func (cm *CronManager) cronConfig() cron_config.Config {
	if cm.cfg != nil && cm.cfg.CronConfig != nil {
		return *cm.cfg.CronConfig
	}
	var cronConfig cron_config.Config
	if err := env.Parse(&cronConfig); err != nil {
		cm.log.Fatalf("Failed to parse cron config from environment: %v", err)
	}
	return cronConfig
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron) error {
	cronConfig := cm.cronConfig()

	if cronConfig.CronScheduleStaleSyncSweep != "" {
		id, err := c.AddFunc(cronConfig.CronScheduleStaleSyncSweep, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.releaseStaleSyncs()
		})
		if err != nil {
			return errors.Wrap(err, "could not add stale sync sweep job")
		}
		cm.jobIDs["stale_sync_sweep"] = id
		cm.log.Infof("Registered stale sync sweep job with schedule: %s", cronConfig.CronScheduleStaleSyncSweep)
	}

	if cronConfig.CronScheduleSyncAccounts != "" {
		concurrency := cronConfig.CronSyncConcurrency
		id, err := c.AddFunc(cronConfig.CronScheduleSyncAccounts, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			jobLocks.locks[GroupSync].Lock()
			defer jobLocks.locks[GroupSync].Unlock()
			cm.syncAccounts(concurrency)
		})
		if err != nil {
			return errors.Wrap(err, "could not add account sync job")
		}
		cm.jobIDs["sync_accounts"] = id
		cm.log.Infof("Registered account sync job with schedule: %s", cronConfig.CronScheduleSyncAccounts)
	}

	return nil
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() {
	cm.log.Info("Starting cron manager")
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	}
	c := cronv3.New(cronOptions...)
	if err := cm.registerJobs(c); err != nil {
		cm.log.Fatalf("Failed to register cron jobs: %v", err)
	}
	c.Start()
	cm.cron = c
}

func (cm *CronManager) jobContext() context.Context {
	return utils.WithCustomContext(context.Background(), &utils.CustomContext{AppSource: appSourceCron})
}

func (cm *CronManager) staleAfter() time.Duration {
	if cm.cfg != nil && cm.cfg.SyncConfig != nil && cm.cfg.SyncConfig.StaleAfter > 0 {
		return cm.cfg.SyncConfig.StaleAfter
	}
	return 30 * time.Minute
}

// releaseStaleSyncs moves accounts whose sync stopped heartbeating back to
// error so they can be picked up again.
func (cm *CronManager) releaseStaleSyncs() {
	span, ctx := tracing.StartTracerSpan(cm.jobContext(), "CronManager.releaseStaleSyncs")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	released, err := cm.accounts.ReleaseStaleSyncs(ctx, cm.staleAfter())
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to release stale syncs: %v", err)
		return
	}
	if released > 0 {
		cm.log.Warnf("Released %d stale syncs", released)
	}
}

// syncAccounts runs an incremental sync for every syncable account, at most
// concurrency at a time. One account failing does not stop the others.
func (cm *CronManager) syncAccounts(concurrency int) {
	span, ctx := tracing.StartTracerSpan(cm.jobContext(), "CronManager.syncAccounts")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	accounts, err := cm.accounts.ListSyncable(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to list syncable accounts: %v", err)
		return
	}
	span.LogKV("accounts", len(accounts))

	if concurrency <= 0 {
		concurrency = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var mu sync.Mutex
	failed := 0
	for _, account := range accounts {
		g.Go(func() error {
			accountCtx := utils.SetAccountIdInContext(gctx, account.ID)
			_, err := cm.sync.SyncAccount(accountCtx, account.ID, dto.SyncOptions{Mode: enum.SyncModeIncremental})
			if err != nil && !errors.Is(err, mailsync_errors.ErrSyncInProgress) {
				cm.log.Warnf("Scheduled sync of account %s failed: %v", account.ID, err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	cm.log.Infof("Scheduled sync finished: %d accounts, %d failed", len(accounts), failed)
}
