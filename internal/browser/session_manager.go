// Package browser owns the detached Chrome instance: session lifecycle,
// viewport emulation, and the per-page overlay attachment.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"agent-overlay-server/internal/config"
	"agent-overlay-server/internal/overlay"
	"agent-overlay-server/internal/recorder"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
)

// Session describes the public metadata for a tracked browser context.
type Session struct {
	ID         string    `json:"id"`
	TargetID   string    `json:"target_id,omitempty"`
	URL        string    `json:"url,omitempty"`
	Status     string    `json:"status,omitempty"`
	Overlay    bool      `json:"overlay"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// overlayWidget is the page-side surface the session manager drives.
// Implemented by *overlay.Widget; tests substitute fakes.
type overlayWidget interface {
	Inject(ctx context.Context, pos overlay.Position) (overlay.InjectResult, error)
	RenderBadge(ctx context.Context, s overlay.RunState) error
	ApplyPosition(ctx context.Context, pos overlay.Position) error
	DrainQueue(ctx context.Context) ([]overlay.QueueEntry, error)
}

type sessionRecord struct {
	meta   Session
	page   *rod.Page
	widget overlayWidget
	drag   *overlay.DragController
	store  overlay.PositionStore
	relay  *overlay.Relay
	navs   chan *proto.PageFrameNavigated
	stop   context.CancelFunc
}

// SessionManager owns the detached Chrome instance and tracks active sessions.
type SessionManager struct {
	cfg        config.BrowserConfig
	overlayCfg config.OverlayConfig
	sink       overlay.IntentSink
	rec        *recorder.Recorder

	mu         sync.RWMutex
	browser    *rod.Browser
	sessions   map[string]*sessionRecord
	controlURL string // WebSocket URL for DevTools
}

// NewSessionManager wires the manager; sink receives side panel toggles from
// every session's overlay, rec (optional) captures overlay traces.
func NewSessionManager(cfg config.BrowserConfig, overlayCfg config.OverlayConfig, sink overlay.IntentSink, rec *recorder.Recorder) *SessionManager {
	return &SessionManager{
		cfg:        cfg,
		overlayCfg: overlayCfg,
		sink:       sink,
		rec:        rec,
		sessions:   make(map[string]*sessionRecord),
	}
}

// Start connects to an existing Chrome or launches a new one using Rod's launcher.
func (m *SessionManager) Start(ctx context.Context) error {
	if m.browser != nil {
		// Probe connection health before reusing it.
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		log.Printf("Stale browser connection detected, reconnecting...")
		_ = m.browser.Close()
		m.browser = nil
		m.controlURL = ""
		m.mu.Lock()
		m.sessions = make(map[string]*sessionRecord)
		m.mu.Unlock()
	}

	if err := m.loadSessions(); err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	controlURL := m.cfg.DebuggerURL
	if controlURL == "" && len(m.cfg.Launch) > 0 {
		bin := m.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(m.cfg.IsHeadless())
		if len(m.cfg.Launch) > 1 {
			for _, rawFlag := range m.cfg.Launch[1:] {
				flagStr := strings.TrimLeft(rawFlag, "-")
				name, val, hasVal := strings.Cut(flagStr, "=")
				if hasVal {
					launch = launch.Set(flags.Flag(name), val)
				} else {
					launch = launch.Set(flags.Flag(name))
				}
			}
		}
		url, err := launch.Launch()
		if err != nil {
			// Fallback: let Rod pick the port and defaults.
			fallback := launcher.New().Bin(bin).Headless(m.cfg.IsHeadless())
			if alt, altErr := fallback.Launch(); altErr == nil {
				controlURL = alt
			} else {
				return fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
			}
		} else {
			controlURL = url
		}
	}

	if controlURL == "" {
		return errors.New("no debugger_url or launch command provided")
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = browser
	m.controlURL = controlURL
	log.Printf("Browser connected at %s", controlURL)
	return nil
}

// ControlURL returns the WebSocket debugger URL for the connected browser.
func (m *SessionManager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

// IsConnected returns whether the browser is currently connected.
func (m *SessionManager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// Shutdown closes tracked pages and the underlying browser.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, record := range m.sessions {
		if record.stop != nil {
			record.stop()
		}
		if record.page != nil {
			_ = record.page.Close()
		}
		delete(m.sessions, id)
	}

	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	m.controlURL = ""
	log.Printf("Browser shutdown complete")
	return err
}

// List returns lightweight metadata for all known sessions.
func (m *SessionManager) List() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Session, 0, len(m.sessions))
	for _, record := range m.sessions {
		results = append(results, record.meta)
	}
	return results
}

// CreateSession opens a new page (incognito context by default), tracks it,
// and attaches the overlay.
func (m *SessionManager) CreateSession(ctx context.Context, url string) (*Session, error) {
	if m.browser == nil {
		return nil, errors.New("browser not connected")
	}

	incognito, err := m.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.GetViewportWidth(),
		Height:            m.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		log.Printf("warning: failed to set viewport: %v", err)
	}

	// Best-effort load; the overlay attaches once the document exists.
	_ = page.Timeout(m.cfg.NavigationTimeout()).Navigate(url)

	meta := Session{
		ID:         uuid.NewString(),
		TargetID:   string(page.TargetID),
		URL:        url,
		Status:     "active",
		CreatedAt:  time.Now(),
		LastActive: time.Now(),
	}

	rec := &sessionRecord{meta: meta, page: page}

	m.mu.Lock()
	m.sessions[meta.ID] = rec
	m.mu.Unlock()

	m.startOverlay(ctx, rec)
	_ = m.persistSessions()

	meta.Overlay = rec.meta.Overlay
	return &meta, nil
}

// Attach attempts to bind to an existing target by TargetID.
func (m *SessionManager) Attach(ctx context.Context, targetID string) (*Session, error) {
	if m.browser == nil {
		return nil, errors.New("browser not connected")
	}

	page, err := m.browser.PageFromTarget(proto.TargetTargetID(targetID))
	if err != nil {
		return nil, fmt.Errorf("attach to target %s: %w", targetID, err)
	}

	info, err := page.Info()
	url := ""
	if err == nil {
		url = info.URL
	}

	meta := Session{
		ID:         uuid.NewString(),
		TargetID:   targetID,
		URL:        url,
		Status:     "attached",
		CreatedAt:  time.Now(),
		LastActive: time.Now(),
	}

	rec := &sessionRecord{meta: meta, page: page}

	m.mu.Lock()
	m.sessions[meta.ID] = rec
	m.mu.Unlock()

	m.startOverlay(ctx, rec)
	_ = m.persistSessions()

	meta.Overlay = rec.meta.Overlay
	return &meta, nil
}

// Page returns the underlying Rod page for a session when present.
func (m *SessionManager) Page(sessionID string) (*rod.Page, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return rec.page, true
}

// GetSession returns the current session metadata when available.
func (m *SessionManager) GetSession(sessionID string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return rec.meta, true
}

// UpdateMetadata allows callers to refresh metadata (e.g., URL after navigation).
func (m *SessionManager) UpdateMetadata(sessionID string, updater func(Session) Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	rec.meta = updater(rec.meta)
}

// Deliver routes one raw agent broadcast to a session's overlay relay.
// Messages that fail the relay's source or shape checks are dropped there.
func (m *SessionManager) Deliver(ctx context.Context, sessionID string, raw json.RawMessage) error {
	m.mu.RLock()
	rec, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown session: %s", sessionID)
	}
	if rec.relay == nil {
		return fmt.Errorf("session %s has no overlay attached", sessionID)
	}

	if m.rec != nil {
		m.rec.Log(recorder.EventBroadcast, sessionID, json.RawMessage(raw))
	}
	rec.relay.HandleMessage(ctx, raw)
	return nil
}

// DeliverAll routes one raw agent broadcast to every session with an overlay.
func (m *SessionManager) DeliverAll(ctx context.Context, raw json.RawMessage) int {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id, rec := range m.sessions {
		if rec.relay != nil {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.Deliver(ctx, id, raw)
	}
	return len(ids)
}

// OverlayState reports the mirrored run state and widget position for a session.
func (m *SessionManager) OverlayState(sessionID string) (overlay.RunState, overlay.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok || rec.relay == nil || rec.drag == nil {
		return overlay.RunState{}, overlay.Position{}, false
	}
	return rec.relay.State(), rec.drag.Origin(), true
}

// bounds derives the clamping box from the configured viewport and widget.
func (m *SessionManager) bounds() overlay.Bounds {
	return overlay.Bounds{
		ViewportWidth:  float64(m.cfg.GetViewportWidth()),
		ViewportHeight: float64(m.cfg.GetViewportHeight()),
		WidgetSize:     float64(m.overlayCfg.GetWidgetSize()),
		Margin:         float64(m.overlayCfg.GetMargin()),
	}
}

// startOverlay attaches the widget to a session's page and starts the event
// pump. Overlay failures are never fatal: a page we cannot inject into keeps
// working without the widget.
func (m *SessionManager) startOverlay(ctx context.Context, rec *sessionRecord) {
	if rec.page == nil {
		return
	}
	if overlay.BlockedURL(rec.meta.URL) {
		log.Printf("[session:%s] overlay skipped on blocked URL %s", rec.meta.ID, rec.meta.URL)
		return
	}

	bounds := m.bounds()
	widget := overlay.NewWidget(rec.page, overlay.DefaultMarkerID, bounds.WidgetSize, bounds.Margin)
	store := overlay.NewPageStore(rec.page, m.overlayCfg.StorageKey)

	pos := restorePosition(store, bounds)
	result, err := widget.Inject(ctx, pos)
	if err != nil || result == overlay.NoDocumentBody {
		log.Printf("[session:%s] overlay injection abandoned: result=%s err=%v", rec.meta.ID, result, err)
		return
	}

	sink := m.relaySink(rec.meta.ID)

	pumpCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	rec.widget = widget
	rec.store = store
	rec.drag = overlay.NewDragController(pos, bounds)
	rec.relay = overlay.NewRelay(rec.meta.ID, widget, sink)
	rec.navs = make(chan *proto.PageFrameNavigated, 8)
	rec.stop = cancel
	rec.meta.Overlay = true
	m.mu.Unlock()

	if m.rec != nil {
		m.rec.Log(recorder.EventInject, rec.meta.ID, map[string]interface{}{
			"url": rec.meta.URL, "result": string(result), "x": pos.X, "y": pos.Y,
		})
	}

	m.watchNavigation(pumpCtx, rec)
	go m.pump(pumpCtx, rec.meta.ID, rec)
}

// relaySink composes the configured intent sink with trace recording.
func (m *SessionManager) relaySink(sessionID string) overlay.IntentSink {
	sinks := make([]overlay.IntentSink, 0, 2)
	if m.sink != nil {
		sinks = append(sinks, m.sink)
	}
	if m.rec != nil {
		sinks = append(sinks, traceSink{rec: m.rec})
	}
	return overlay.MultiSink(sinks...)
}

type traceSink struct {
	rec *recorder.Recorder
}

func (t traceSink) ToggleSidePanel(sessionID string) {
	t.rec.Log(recorder.EventIntent, sessionID, map[string]string{"type": overlay.TypeToggleSidePanel})
}

// watchNavigation forwards main-frame navigation events into the session's
// pump goroutine. The rod event callback does no overlay work itself: all
// state transitions stay on the pump goroutine.
func (m *SessionManager) watchNavigation(ctx context.Context, rec *sessionRecord) {
	wait := rec.page.Context(ctx).EachEvent(func(ev *proto.PageFrameNavigated) {
		if ev.Frame.ParentID != "" {
			return
		}
		select {
		case rec.navs <- ev:
		default:
			// Pump is behind; the next event carries the newer URL anyway.
		}
	})
	go wait()
}

// handleNavigation re-injects the overlay after a main-frame navigation.
// Runs on the pump goroutine. Run state is reset only when a fresh document
// was actually injected: a same-document event (SPA route change, duplicate
// notification) leaves the live state and badge alone.
func (m *SessionManager) handleNavigation(ctx context.Context, sessionID string, rec *sessionRecord, ev *proto.PageFrameNavigated) {
	if ev.Frame.ParentID != "" {
		return
	}

	now := time.Now()
	m.UpdateMetadata(sessionID, func(s Session) Session {
		s.URL = ev.Frame.URL
		s.LastActive = now
		return s
	})

	if m.rec != nil {
		m.rec.Log(recorder.EventNavigation, sessionID, map[string]string{"url": ev.Frame.URL})
	}

	if overlay.BlockedURL(ev.Frame.URL) {
		return
	}

	bounds := m.bounds()
	pos := restorePosition(rec.store, bounds)
	result, err := rec.widget.Inject(ctx, pos)
	if err != nil || result == overlay.NoDocumentBody {
		log.Printf("[session:%s] overlay re-injection abandoned after navigation: %v", sessionID, err)
		return
	}
	if result != overlay.Injected {
		return
	}

	// Fresh document, fresh per-page state.
	rec.relay.Reset()
	m.mu.Lock()
	rec.drag = overlay.NewDragController(pos, bounds)
	m.mu.Unlock()
	_ = rec.widget.RenderBadge(ctx, rec.relay.State())
}

// pump drains the page-side event queue on a fixed interval, feeding pointer
// samples to the drag controller and channel messages to the relay, and
// processes navigation events. All overlay state transitions for a session
// happen on this single goroutine, so a render always reflects the latest
// mutation.
func (m *SessionManager) pump(ctx context.Context, sessionID string, rec *sessionRecord) {
	ticker := time.NewTicker(m.overlayCfg.GetPumpInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-rec.navs:
			m.handleNavigation(ctx, sessionID, rec, ev)
		case <-ticker.C:
			entries, err := rec.widget.DrainQueue(ctx)
			if err != nil {
				// Page likely navigating or closed; keep trying until the
				// context ends.
				continue
			}
			for _, entry := range entries {
				switch entry.T {
				case "pointer":
					update, ok := rec.drag.Handle(entry.Pointer())
					if !ok {
						continue
					}
					_ = rec.widget.ApplyPosition(ctx, update.Position)
					if update.Commit {
						rec.store.Save(update.Position)
						if m.rec != nil {
							m.rec.Log(recorder.EventDragCommit, sessionID, update.Position)
						}
					}
				case "message":
					if len(entry.M) == 0 {
						continue
					}
					rec.relay.HandleMessage(ctx, entry.M)
				}
			}
		}
	}
}

// restorePosition loads the saved position and clamps it to the current
// viewport; anything unusable falls back to the bottom-right default.
func restorePosition(store overlay.PositionStore, b overlay.Bounds) overlay.Position {
	if saved, ok := store.Load(); ok {
		return overlay.Clamp(saved, b)
	}
	return overlay.DefaultPosition(b)
}

// persistSessions writes session metadata to disk for continuity across restarts.
func (m *SessionManager) persistSessions() error {
	if m.cfg.SessionStore == "" {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]Session, 0, len(m.sessions))
	for _, rec := range m.sessions {
		sessions = append(sessions, rec.meta)
	}

	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(m.cfg.SessionStore), 0o755); err != nil {
		return err
	}
	return os.WriteFile(m.cfg.SessionStore, data, 0o644)
}

// loadSessions loads persisted metadata (does not auto-attach to pages).
func (m *SessionManager) loadSessions() error {
	if m.cfg.SessionStore == "" {
		return nil
	}

	data, err := os.ReadFile(m.cfg.SessionStore)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var sessions []Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range sessions {
		// Mark as detached; a caller can use attach-session to bind to a live target.
		s.Status = "detached"
		s.Overlay = false
		m.sessions[s.ID] = &sessionRecord{meta: s, page: nil}
	}
	return nil
}
