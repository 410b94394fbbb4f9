package cron

import (
	"context"
	"os"
	"sync"
	"time"

	cronv3 "github.com/robfig/cron/v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/aware88/fresh-ai-crm-sub016/config"
	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
	"github.com/aware88/fresh-ai-crm-sub016/internal/logger"
	"github.com/aware88/fresh-ai-crm-sub016/internal/tracing"
	mailsync "github.com/aware88/fresh-ai-crm-sub016/services/sync"
)

// CONSTANTS
const (
	// GroupMailsync is the group for mail sync related jobs
	GroupMailsync = "mailsync"

	// PushChannelRenewalWindow is how far ahead expiring channels get renewed
	PushChannelRenewalWindow = 2 * time.Hour

	// LeaseDuration is how long a lease lasts before needing renewal
	LeaseDuration = 15 * time.Second
	// RenewDeadline is how long a leader has to renew its lease
	RenewDeadline = 10 * time.Second
	// RetryPeriod is how long to wait between leadership attempts
	RetryPeriod = 2 * time.Second
)

// LOCK MANAGEMENT
var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupMailsync: new(sync.Mutex),
	},
}

type CronManager struct {
	cfg           *config.Config
	log           logger.Logger
	cron          *cronv3.Cron
	k8s           kubernetes.Interface
	stopCh        chan struct{}
	jobIDs        map[string]cronv3.EntryID
	orchestrator  *mailsync.Orchestrator
	analysisCache interfaces.AnalysisCache
}

func NewCronManager(cfg *config.Config, log logger.Logger, k8s kubernetes.Interface, orchestrator *mailsync.Orchestrator, analysisCache interfaces.AnalysisCache) *CronManager {
	return &CronManager{
		cfg:           cfg,
		log:           log,
		k8s:           k8s,
		stopCh:        make(chan struct{}),
		jobIDs:        make(map[string]cronv3.EntryID),
		orchestrator:  orchestrator,
		analysisCache: analysisCache,
	}
}

// Start initializes and starts the cron manager with leader election
// If k8s is nil, it will start in local mode without leader election
func (cm *CronManager) Start(podName, namespace string) error {
	// If k8s client is nil or we're in local development, start in local mode
	if cm.k8s == nil || os.Getenv("LOCAL_DEV") == "true" {
		cm.log.Info("Starting cron manager in local mode")
		cm.StartCron()
		return nil
	}

	// Create the leader election lock
	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      "mailsync-cron-leader",
			Namespace: namespace,
		},
		Client: cm.k8s.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: podName,
		},
	}

	// Channel to track leader election errors
	errCh := make(chan error, 1)

	// Start leader election
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

		ctx := context.Background()
		le.Run(ctx)
	}()

	// Wait briefly to see if leader election fails immediately
	select {
	case err := <-errCh:
		cm.log.Warnf("Leader election failed, falling back to local mode: %v", err)
		cm.StartCron()
	case <-time.After(5 * time.Second):
		// Leader election seems to be working, continue normally
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
	close(cm.stopCh)
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron) {
	cronConfig := cm.cfg.CronConfig

	// Register resync heartbeat job
	if cronConfig.CronScheduleResyncHeartbeat != "" {
		id, err := c.AddFunc(cronConfig.CronScheduleResyncHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.resyncHeartbeat()
		})
		if err != nil {
			cm.log.Fatalf("Could not add resync heartbeat cron job: %v", err)
		}
		cm.jobIDs["resync_heartbeat"] = id
		cm.log.Infof("Registered resync heartbeat job with schedule: %s", cronConfig.CronScheduleResyncHeartbeat)
	}

	// Register analysis cache sweep job
	if cronConfig.CronScheduleCacheSweep != "" {
		id, err := c.AddFunc(cronConfig.CronScheduleCacheSweep, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			jobLocks.locks[GroupMailsync].Lock()
			defer jobLocks.locks[GroupMailsync].Unlock()
			cm.sweepAnalysisCache()
		})
		if err != nil {
			cm.log.Fatalf("Could not add cache sweep cron job: %v", err)
		}
		cm.jobIDs["cache_sweep"] = id
		cm.log.Infof("Registered cache sweep job with schedule: %s", cronConfig.CronScheduleCacheSweep)
	}

	// Register push channel renewal job
	if cronConfig.CronSchedulePushChannelRenewal != "" {
		id, err := c.AddFunc(cronConfig.CronSchedulePushChannelRenewal, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			jobLocks.locks[GroupMailsync].Lock()
			defer jobLocks.locks[GroupMailsync].Unlock()
			cm.renewPushChannels()
		})
		if err != nil {
			cm.log.Fatalf("Could not add push channel renewal cron job: %v", err)
		}
		cm.jobIDs["push_channel_renewal"] = id
		cm.log.Infof("Registered push channel renewal job with schedule: %s", cronConfig.CronSchedulePushChannelRenewal)
	}
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() {
	cm.log.Info("Starting cron manager")
	// Create a new cron with seconds field enabled and panic recovery
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger), // Skip if still running
			cronv3.Recover(cronv3.DefaultLogger),            // Default recovery as backup
		),
	}
	c := cronv3.New(cronOptions...)
	cm.registerJobs(c)
	c.Start()
	cm.cron = c
}

// resyncHeartbeat fires a coalesced pass on every live session so mailboxes
// that missed push notifications still converge.
func (cm *CronManager) resyncHeartbeat() {
	ctx := context.Background()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.resyncHeartbeat")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	triggered := cm.orchestrator.TriggerAll()
	cm.log.Infof("Resync heartbeat triggered %d sessions", triggered)
}

func (cm *CronManager) sweepAnalysisCache() {
	cm.log.Info("Running analysis cache sweep")

	ctx := context.Background()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.sweepAnalysisCache")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	removed, err := cm.analysisCache.SweepExpired(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to sweep analysis cache: %v", err)
		return
	}

	cm.log.Infof("Analysis cache sweep removed %d entries", removed)
}

func (cm *CronManager) renewPushChannels() {
	cm.log.Info("Running push channel renewal")

	ctx := context.Background()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.renewPushChannels")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	if err := cm.orchestrator.RenewPushChannels(ctx, PushChannelRenewalWindow); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to renew push channels: %v", err)
		return
	}

	cm.log.Info("Successfully completed push channel renewal")
}
