package main

import (
	"database/sql"
	"log"
	"strconv"
	"sync"
	"time"
)

// Event types for analytics tracking
const (
	EvtJoin     = "join"
	EvtLeave    = "leave"
	EvtKill     = "kill"
	EvtDeath    = "death"
	EvtCrash    = "crash"
	EvtSurvival = "survival"
	EvtRespawn  = "respawn"
	EvtReset    = "reset"
)

const (
	analyticsQueueSize  = 1024
	analyticsBatchSize  = 50
	analyticsFlushEvery = 5 * time.Second
)

// AnalyticsEvent represents a single trackable event
type AnalyticsEvent struct {
	Type      string
	Pilot     string
	Data      string
	Timestamp time.Time
}

// Analytics persists game events with batched background writes.
// A nil *Analytics accepts and discards everything.
type Analytics struct {
	db     *DB
	events chan AnalyticsEvent
	stop   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewAnalytics creates and starts the analytics background writer
func NewAnalytics(db *DB) *Analytics {
	a := &Analytics{
		db:     db,
		events: make(chan AnalyticsEvent, analyticsQueueSize),
		stop:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writer()
	return a
}

// Track enqueues an event for async persistence (non-blocking)
func (a *Analytics) Track(evtType, pilot, data string) {
	if a == nil {
		return
	}
	select {
	case a.events <- AnalyticsEvent{
		Type:      evtType,
		Pilot:     pilot,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}:
	default:
		// Channel full, drop the event
	}
}

// TrackPlaytime records a leave event carrying the session length in seconds
func (a *Analytics) TrackPlaytime(pilot string, d time.Duration) {
	a.Track(EvtLeave, pilot, strconv.FormatFloat(d.Seconds(), 'f', 3, 64))
}

// Stop drains pending events, flushes them, and shuts the writer down
func (a *Analytics) Stop() {
	if a == nil {
		return
	}
	a.once.Do(func() { close(a.stop) })
	a.wg.Wait()
}

// writer is the background goroutine that batches and writes events to DB
func (a *Analytics) writer() {
	defer a.wg.Done()

	batch := make([]AnalyticsEvent, 0, 64)
	ticker := time.NewTicker(analyticsFlushEvery)
	defer ticker.Stop()

	for {
		select {
		case evt := <-a.events:
			batch = append(batch, evt)
			// Flush immediately if batch is large
			if len(batch) >= analyticsBatchSize {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-a.stop:
			// Drain whatever is already queued; producers may still be running
		drain:
			for {
				select {
				case evt := <-a.events:
					batch = append(batch, evt)
				default:
					break drain
				}
			}
			if len(batch) > 0 {
				a.flush(batch)
			}
			return
		}
	}
}

// aggregate folds a batch into per-pilot stat deltas
func aggregate(events []AnalyticsEvent) map[string]*statDelta {
	deltas := make(map[string]*statDelta)
	get := func(pilot string) *statDelta {
		d, ok := deltas[pilot]
		if !ok {
			d = &statDelta{}
			deltas[pilot] = d
		}
		return d
	}
	for _, evt := range events {
		if evt.Pilot == "" {
			continue
		}
		switch evt.Type {
		case EvtKill:
			get(evt.Pilot).Kills++
		case EvtDeath:
			get(evt.Pilot).Deaths++
		case EvtCrash:
			d := get(evt.Pilot)
			d.Crashes++
			d.Deaths++
		case EvtSurvival:
			get(evt.Pilot).Survival++
		case EvtLeave:
			if secs, err := strconv.ParseFloat(evt.Data, 64); err == nil {
				get(evt.Pilot).Playtime += secs
			}
		}
	}
	return deltas
}

// flush writes a batch of events and the derived stats in one transaction
func (a *Analytics) flush(events []AnalyticsEvent) {
	if a.db == nil || len(events) == 0 {
		return
	}
	tx, err := a.db.conn.Begin()
	if err != nil {
		log.Printf("analytics: begin tx error: %v", err)
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO analytics_events (event_type, pilot, data, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		log.Printf("analytics: prepare error: %v", err)
		return
	}
	defer stmt.Close()

	for _, evt := range events {
		pilot := sql.NullString{String: evt.Pilot, Valid: evt.Pilot != ""}
		data := sql.NullString{String: evt.Data, Valid: evt.Data != ""}
		if _, err := stmt.Exec(evt.Type, pilot, data, evt.Timestamp.Format(time.RFC3339)); err != nil {
			log.Printf("analytics: insert error: %v", err)
		}
	}

	if err := applyStats(tx, aggregate(events)); err != nil {
		log.Printf("analytics: %v", err)
		return
	}
	if err := tx.Commit(); err != nil {
		log.Printf("analytics: commit error: %v", err)
	}
}
