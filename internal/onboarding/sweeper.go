package onboarding

import (
	"context"
	"log"
	"time"

	"onboard-backend/internal/schema"
	"onboard-backend/internal/store"
	"onboard-backend/internal/token"
	"onboard-backend/internal/writer"
)

// InviteSweeper expires stale pending invites on a background interval so
// that ops lists stay accurate without a manual cleanup job.
type InviteSweeper struct {
	store    *store.Store
	registry *schema.Registry
	writer   *writer.Writer
	ticker   *time.Ticker
	done     chan struct{}
}

func NewInviteSweeper(s *store.Store, reg *schema.Registry, w *writer.Writer) *InviteSweeper {
	return &InviteSweeper{store: s, registry: reg, writer: w}
}

// Start begins the background ticker.
func (sw *InviteSweeper) Start() {
	sw.ticker = time.NewTicker(10 * time.Minute)
	sw.done = make(chan struct{})
	go sw.run()
	log.Println("Invite sweeper started (10m interval)")
}

// Stop halts the background ticker.
func (sw *InviteSweeper) Stop() {
	if sw.ticker != nil {
		sw.ticker.Stop()
	}
	if sw.done != nil {
		close(sw.done)
	}
}

func (sw *InviteSweeper) run() {
	for {
		select {
		case <-sw.done:
			return
		case <-sw.ticker.C:
			sw.sweep()
		}
	}
}

func (sw *InviteSweeper) sweep() {
	ctx := context.Background()

	rows, err := store.QueryRows(ctx, sw.store.Pool,
		`SELECT id FROM prospects
		 WHERE stage = 'invited' AND inviteexpiry < NOW()
		 ORDER BY inviteexpiry ASC
		 LIMIT 100`)
	if err != nil {
		log.Printf("ERROR: invite sweeper query failed: %v", err)
		return
	}

	prospects := sw.registry.Get("prospects")
	for _, row := range rows {
		id := asInt64(row["id"])
		// System writes carry the anonymous payload; updatedby stays 0.
		_, err := sw.writer.Update(ctx, prospects,
			map[string]any{"id": id, "stage": "expired"}, token.Anonymous())
		if err != nil {
			log.Printf("ERROR: invite sweeper update for %d: %v", id, err)
			continue
		}
		log.Printf("Invite expired: prospect=%d", id)
	}
}
