package scheduler

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"cartscout/repository"
)

// Janitor owns the recurring maintenance work: purging expired cache
// entries, pruning old comparison history and resetting API key usage
// counters
type Janitor struct {
	cron        *cron.Cron
	cacheRepo   *repository.CacheRepository
	historyRepo *repository.HistoryRepository
	apiKeyRepo  *repository.APIKeyRepository
	retention   time.Duration
}

func NewJanitor(historyRetention time.Duration) *Janitor {
	return &Janitor{
		cron:        cron.New(cron.WithSeconds()),
		cacheRepo:   repository.NewCacheRepository(),
		historyRepo: repository.NewHistoryRepository(),
		apiKeyRepo:  repository.NewAPIKeyRepository(),
		retention:   historyRetention,
	}
}

// Start schedules the maintenance jobs
func (j *Janitor) Start() {
	// Expired cache entries, hourly
	if _, err := j.cron.AddFunc("0 0 * * * *", j.purgeCache); err != nil {
		log.Printf("Failed to schedule cache purge: %v", err)
		return
	}

	// Old comparison history, nightly at 03:30
	if _, err := j.cron.AddFunc("0 30 3 * * *", j.pruneHistory); err != nil {
		log.Printf("Failed to schedule history prune: %v", err)
		return
	}

	// Daily API usage counters, midnight
	if _, err := j.cron.AddFunc("0 0 0 * * *", j.resetDailyUsage); err != nil {
		log.Printf("Failed to schedule daily usage reset: %v", err)
		return
	}

	// Monthly API usage counters, first of the month
	if _, err := j.cron.AddFunc("0 0 0 1 * *", j.resetMonthlyUsage); err != nil {
		log.Printf("Failed to schedule monthly usage reset: %v", err)
		return
	}

	// Also run the purge immediately on startup
	go j.purgeCache()

	j.cron.Start()
	log.Println("Janitor scheduled: cache purge hourly, history prune nightly")
}

// Stop stops the scheduled jobs
func (j *Janitor) Stop() {
	if j.cron != nil {
		j.cron.Stop()
	}
}

func (j *Janitor) purgeCache() {
	removed, err := j.cacheRepo.PurgeExpired()
	if err != nil {
		log.Printf("Failed to purge expired cache entries: %v", err)
		return
	}
	if removed > 0 {
		log.Printf("🧹 Purged %d expired cache entries", removed)
	}
}

func (j *Janitor) pruneHistory() {
	removed, err := j.historyRepo.PruneOlderThan(j.retention)
	if err != nil {
		log.Printf("Failed to prune comparison history: %v", err)
		return
	}
	if removed > 0 {
		log.Printf("🧹 Pruned %d old comparison records", removed)
	}
}

func (j *Janitor) resetDailyUsage() {
	if err := j.apiKeyRepo.ResetDailyUsage(); err != nil {
		log.Printf("Failed to reset daily API usage: %v", err)
		return
	}
	log.Println("🧹 Daily API usage counters reset")
}

func (j *Janitor) resetMonthlyUsage() {
	if err := j.apiKeyRepo.ResetMonthlyUsage(); err != nil {
		log.Printf("Failed to reset monthly API usage: %v", err)
		return
	}
	log.Println("🧹 Monthly API usage counters reset")
}
