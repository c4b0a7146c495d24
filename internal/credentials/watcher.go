package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/loopwire/relay/internal/config"
	"github.com/loopwire/relay/internal/logx"
)

// collaboratorFile is the on-disk shape this proxy understands from an
// external collaborator tool's own credential file. Field names follow the
// common access_token/refresh_token/expires_at convention several CLI
// coding tools already use for their own OAuth caches.
type collaboratorFile struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresAt    json.Number `json:"expires_at"`
	ProjectID    string      `json:"project_id"`
}

// Watcher watches the collaborator_file paths named in the provider config
// and imports whatever a collaborator tool writes there into Manager,
// without ever writing back to that file itself.
type Watcher struct {
	mgr   *Manager
	fsw   *fsnotify.Watcher
	byDir map[string][]watchedEntry
}

type watchedEntry struct {
	path        string
	providerKey string
	identity    string
}

// NewWatcher builds a Watcher for every provider with both oauth and
// oauth.collaborator_file configured. It returns (nil, nil) if no provider
// names a collaborator file, so callers can skip Run entirely.
func NewWatcher(mgr *Manager, providers map[string]config.ProviderConfig) (*Watcher, error) {
	byDir := map[string][]watchedEntry{}
	for key, pc := range providers {
		if pc.OAuth == nil || pc.OAuth.CollaboratorFile == "" {
			continue
		}
		abs, err := filepath.Abs(pc.OAuth.CollaboratorFile)
		if err != nil {
			return nil, fmt.Errorf("credentials: resolving collaborator_file for %s: %w", key, err)
		}
		dir := filepath.Dir(abs)
		byDir[dir] = append(byDir[dir], watchedEntry{path: abs, providerKey: key, identity: pc.OAuth.Identity})
	}
	if len(byDir) == 0 {
		return nil, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("credentials: starting file watcher: %w", err)
	}
	for dir := range byDir {
		// Watch the containing directory, not the file itself: tools that
		// write credentials via rename-into-place don't retarget an
		// existing file's watch and would otherwise go unnoticed.
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("credentials: watching %s: %w", dir, err)
		}
	}
	return &Watcher{mgr: mgr, fsw: fsw, byDir: byDir}, nil
}

// Run imports each watched file's current contents once at startup, then
// blocks reacting to write/create events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	for _, entries := range w.byDir {
		for _, e := range entries {
			w.importFile(e)
		}
	}
	for {
		select {
		case <-ctx.Done():
			_ = w.fsw.Close()
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.handleChange(ev.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logx.Event(logx.LevelWarn, "credential file watcher error", map[string]any{"error": err.Error()})
		}
	}
}

func (w *Watcher) handleChange(changed string) {
	dir := filepath.Dir(changed)
	for _, e := range w.byDir[dir] {
		if e.path == changed {
			w.importFile(e)
		}
	}
}

func (w *Watcher) importFile(e watchedEntry) {
	// #nosec G304 -- path comes from trusted config, matched against a watch event.
	raw, err := os.ReadFile(e.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logx.Event(logx.LevelWarn, "reading collaborator credential file", map[string]any{"provider": e.providerKey, "path": e.path, "error": err.Error()})
		}
		return
	}
	var cf collaboratorFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		logx.Event(logx.LevelWarn, "parsing collaborator credential file", map[string]any{"provider": e.providerKey, "path": e.path, "error": err.Error()})
		return
	}
	if cf.AccessToken == "" {
		return
	}
	entry := Entry{
		AccessToken:  cf.AccessToken,
		RefreshToken: cf.RefreshToken,
		ExpiresAt:    parseExpiresAt(cf.ExpiresAt),
		ProjectID:    cf.ProjectID,
	}
	key := e.providerKey + ":" + e.identity
	if err := w.mgr.ImportCollaboratorEntry(key, entry, "collaborator_file:"+e.path); err != nil {
		logx.Event(logx.LevelWarn, "importing collaborator credential", map[string]any{"provider": e.providerKey, "error": err.Error()})
		return
	}
	logx.Event(logx.LevelInfo, "imported credential from collaborator file", map[string]any{"provider": e.providerKey, "path": e.path})
}

func parseExpiresAt(n json.Number) time.Time {
	if n == "" {
		return time.Now().Add(time.Hour)
	}
	if secs, err := n.Int64(); err == nil {
		// Collaborator tools vary between unix seconds and milliseconds;
		// treat anything larger than a plausible seconds value as millis.
		if secs > 1_000_000_000_000 {
			return time.UnixMilli(secs)
		}
		return time.Unix(secs, 0)
	}
	if f, err := n.Float64(); err == nil {
		return time.Unix(int64(f), 0)
	}
	return time.Now().Add(time.Hour)
}
