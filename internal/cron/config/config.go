package cron_config

type Config struct {
	// Incremental sync of every idle account, every 5 minutes
	CronScheduleSyncAccounts string `env:"CRON_SCHEDULE_SYNC_ACCOUNTS" envDefault:"0 */5 * * * *"`
	// Release accounts stuck in syncing, every minute
	CronScheduleStaleSyncSweep string `env:"CRON_SCHEDULE_STALE_SYNC_SWEEP" envDefault:"30 * * * * *"`
	// Max accounts synced in parallel by the scheduled job
	CronSyncConcurrency int `env:"CRON_SYNC_CONCURRENCY" envDefault:"4"`
	// Lease name for leader election
	LeaseName string `env:"CRON_LEASE_NAME" envDefault:"mailsync-cron-leader"`
}
