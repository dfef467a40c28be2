// Package presence keeps a profile's online flag and lastSeen timestamp
// fresh while the owning session is running. Other members read the flags
// straight from the synchronized profile list.
package presence

import (
	"context"
	"sync"
	"time"

	"fambudget/internal/core"
	"fambudget/internal/docstore"
	applog "fambudget/internal/log"
)

// DefaultInterval matches the heartbeat period other members expect when
// judging staleness.
const DefaultInterval = 30 * time.Second

// writeTimeout bounds the final offline write during Stop, which runs
// without a caller-supplied context.
const writeTimeout = 5 * time.Second

// Tracker periodically stamps one profile document as online. Start and
// Stop bracket a session; Stop marks the profile offline.
type Tracker struct {
	store      docstore.Store
	collection string
	profileID  string
	userID     string
	interval   time.Duration
	log        *applog.Logger

	mu         sync.Mutex
	deviceType string
	cancel     context.CancelFunc
	done       chan struct{}
}

// New builds a tracker for the given profile document. An interval of zero
// selects DefaultInterval.
func New(store docstore.Store, budgetID, profileID, userID, deviceType string, interval time.Duration, logger *applog.Logger) *Tracker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Tracker{
		store:      store,
		collection: "budgets/" + budgetID + "/profiles",
		profileID:  profileID,
		userID:     userID,
		deviceType: deviceType,
		interval:   interval,
		log:        logger.WithComponent(applog.ComponentPresence),
	}
}

// Start marks the profile online and launches the heartbeat. Calling Start
// on a running tracker restarts the heartbeat.
func (t *Tracker) Start(ctx context.Context) {
	t.stopHeartbeat()

	t.write(ctx, true)

	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.mu.Lock()
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				t.write(hbCtx, true)
			}
		}
	}()
}

// Stop halts the heartbeat and marks the profile offline. Safe to call on
// a tracker that was never started.
func (t *Tracker) Stop() {
	t.stopHeartbeat()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	t.write(ctx, false)
}

// SetDeviceType records a device change and refreshes lastSeen.
func (t *Tracker) SetDeviceType(ctx context.Context, deviceType string) {
	t.mu.Lock()
	t.deviceType = deviceType
	t.mu.Unlock()
	t.write(ctx, true)
}

func (t *Tracker) stopHeartbeat() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (t *Tracker) write(ctx context.Context, online bool) {
	t.mu.Lock()
	deviceType := t.deviceType
	t.mu.Unlock()

	fields := map[string]any{
		"online":     online,
		"deviceType": deviceType,
		"lastSeen":   time.Now().UTC().Format(time.RFC3339Nano),
		"userId":     t.userID,
	}
	if err := t.store.Update(ctx, t.collection, t.profileID, fields); err != nil {
		t.log.Warn("presence update", "profile_id", t.profileID, "online", online, "error", err)
	}
}

// Status is the presence view of one profile as other members see it.
type Status struct {
	Online     bool
	DeviceType string
	LastSeen   *time.Time
}

// StatusOf reads the presence fields of a profile, defaulting the device
// type when the profile never reported one.
func StatusOf(p core.Profile) Status {
	deviceType := p.DeviceType
	if deviceType == "" {
		deviceType = "desktop"
	}
	return Status{Online: p.Online, DeviceType: deviceType, LastSeen: p.LastSeen}
}
