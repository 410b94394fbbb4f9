package cron

import (
	"testing"

	cronv3 "github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"k8s.io/client-go/kubernetes"

	"github.com/aware88/fresh-ai-crm-sub016/config"
	"github.com/aware88/fresh-ai-crm-sub016/internal/logger"
)

type mockKubernetesInterface struct {
	kubernetes.Interface
	mock.Mock
}

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func testConfig() *config.Config {
	return &config.Config{
		AppConfig: &config.AppConfig{},
		Logger: &logger.Config{
			LogLevel: "info",
		},
		CronConfig: &config.CronConfig{
			CronScheduleResyncHeartbeat:    "0 */10 * * * *",
			CronScheduleCacheSweep:         "0 0 * * * *",
			CronSchedulePushChannelRenewal: "0 */30 * * * *",
		},
	}
}

func TestNewCronManager(t *testing.T) {
	// Arrange
	cfg := testConfig()
	log := getLogger()
	k8s := &mockKubernetesInterface{}

	// Act
	cm := NewCronManager(cfg, log, k8s, nil, nil)

	// Assert
	assert.NotNil(t, cm)
	assert.Equal(t, cfg, cm.cfg)
	assert.Equal(t, log, cm.log)
	assert.Equal(t, k8s, cm.k8s)
	assert.NotNil(t, cm.jobIDs)
}

func TestCronManager_RegisterJobs(t *testing.T) {
	// Arrange
	cm := NewCronManager(testConfig(), getLogger(), &mockKubernetesInterface{}, nil, nil)
	mockCron := cronv3.New(cronv3.WithSeconds())

	// Act - register jobs manually with the configured schedules
	heartbeatId, err := mockCron.AddFunc(cm.cfg.CronConfig.CronScheduleResyncHeartbeat, func() {})
	assert.NoError(t, err)
	cm.jobIDs["resync_heartbeat"] = heartbeatId

	sweepId, err := mockCron.AddFunc(cm.cfg.CronConfig.CronScheduleCacheSweep, func() {})
	assert.NoError(t, err)
	cm.jobIDs["cache_sweep"] = sweepId

	renewalId, err := mockCron.AddFunc(cm.cfg.CronConfig.CronSchedulePushChannelRenewal, func() {})
	assert.NoError(t, err)
	cm.jobIDs["push_channel_renewal"] = renewalId

	cm.cron = mockCron

	// Assert
	assert.NotNil(t, cm.cron)
	assert.Equal(t, 3, len(cm.jobIDs))
}

func TestCronManager_Stop(t *testing.T) {
	// Arrange
	cm := NewCronManager(testConfig(), getLogger(), &mockKubernetesInterface{}, nil, nil)
	mockCron := cronv3.New()
	mockCron.Start()
	cm.cron = mockCron

	// Act
	cm.Stop()

	// Assert
	select {
	case <-cm.stopCh:
		// Channel is closed as expected
	default:
		t.Error("Stop channel was not closed")
	}
}
