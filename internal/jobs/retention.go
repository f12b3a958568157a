package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hireloop/chat-relay/internal/repository"
)

// RetentionJob purges closed conversations past the retention window.
// Messages go with them through the ON DELETE CASCADE on conversation_id.
type RetentionJob struct {
	convRepo  repository.ConversationRepository
	retention time.Duration
	interval  time.Duration
	done      chan struct{}
}

func NewRetentionJob(convRepo repository.ConversationRepository, retention, interval time.Duration) *RetentionJob {
	return &RetentionJob{
		convRepo:  convRepo,
		retention: retention,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

func (j *RetentionJob) Start() {
	go j.run()
	log.Info().
		Dur("interval", j.interval).
		Dur("retention", j.retention).
		Msg("retention job started")
}

func (j *RetentionJob) Stop() {
	close(j.done)
	log.Info().Msg("retention job stopped")
}

func (j *RetentionJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.purge()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.purge()
		}
	}
}

func (j *RetentionJob) purge() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-j.retention)

	count, err := j.convRepo.DeleteClosedBefore(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("failed to purge closed conversations")
		return
	}
	if count > 0 {
		log.Info().
			Int64("count", count).
			Time("cutoff", cutoff).
			Msg("purged closed conversations")
	}
}
