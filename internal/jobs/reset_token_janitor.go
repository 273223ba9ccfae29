// reset_token_janitor.go implements the ResetTokenJanitor background job, which
// periodically purges expired and already-redeemed password reset tokens. The
// tokens stop working the moment they expire regardless of this job; the
// janitor only keeps the table from growing unbounded.
package jobs

import (
	"context"
	"log"
	"time"

	"github.com/chatdeck/chatdeck/internal/db/repositories"
)

// ResetTokenJanitor periodically deletes stale password reset tokens.
type ResetTokenJanitor struct {
	tokenRepo *repositories.ResetTokenRepository
	interval  time.Duration
	stopChan  chan struct{}
}

// NewResetTokenJanitor creates a new ResetTokenJanitor.
// intervalHours controls how often the purge runs (default 6h).
func NewResetTokenJanitor(tokenRepo *repositories.ResetTokenRepository, intervalHours int) *ResetTokenJanitor {
	if intervalHours <= 0 {
		intervalHours = 6
	}
	return &ResetTokenJanitor{
		tokenRepo: tokenRepo,
		interval:  time.Duration(intervalHours) * time.Hour,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the background purge loop.
// It runs an initial purge immediately, then repeats on the configured interval.
// The loop exits when ctx is cancelled or Stop() is called.
func (j *ResetTokenJanitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	log.Printf("reset token janitor started (purge interval: %v)", j.interval)

	// Run once immediately on startup
	j.runPurge(ctx)

	for {
		select {
		case <-ticker.C:
			j.runPurge(ctx)
		case <-j.stopChan:
			log.Println("reset token janitor stopped")
			return
		case <-ctx.Done():
			log.Println("reset token janitor context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (j *ResetTokenJanitor) Stop() {
	close(j.stopChan)
}

func (j *ResetTokenJanitor) runPurge(ctx context.Context) {
	removed, err := j.tokenRepo.DeleteExpired(ctx, time.Now())
	if err != nil {
		log.Printf("reset token janitor: purge failed: %v", err)
		return
	}
	if removed > 0 {
		log.Printf("reset token janitor: removed %d stale token(s)", removed)
	}
}
