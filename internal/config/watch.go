package config

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/gopkg/lang/fastrand"
	"github.com/fsnotify/fsnotify"

	"github.com/tgifai/claun/internal/pkg/logs"
)

const (
	watchDebounce      = 250 * time.Millisecond
	restartBackoffBase = 250 * time.Millisecond
	restartBackoffMax  = 5 * time.Second
)

var errWatcherClosed = errors.New("watcher closed")

// ChangeFunc receives the snapshot before and after a reload.
type ChangeFunc func(prev, next *Config)

// Watch reloads the config file whenever it changes on disk and calls
// onChange with the previous and new snapshot. Invalid edits are logged and
// ignored. The watcher recreates itself with jittered backoff when fsnotify
// breaks. Watch blocks until ctx is done.
func (ins *InstanceManager) Watch(ctx context.Context, onChange ChangeFunc) error {
	path := ins.Path()
	dir := filepath.Dir(path)
	file := filepath.Base(path)

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		prev, err := ins.Get()
		if err != nil {
			logs.CtxWarn(ctx, "[config] reload skipped: %v", err)
			return
		}
		next, changed, err := ins.Reload()
		if err != nil {
			logs.CtxWarn(ctx, "[config] reload of %s rejected: %v", path, err)
			return
		}
		if !changed {
			logs.CtxDebug(ctx, "[config] %s unchanged", path)
			return
		}
		logs.CtxInfo(ctx, "[config] reloaded %s", path)
		if onChange != nil {
			onChange(prev, next)
		}
	}
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, reload)
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	backoff := restartBackoffBase
	wait := func(reason string, err error) bool {
		d := backoff + time.Duration(fastrand.Int63n(int64(backoff/2)+1))
		logs.CtxWarn(ctx, "[config] %s: %v, retrying in %s", reason, err, d)
		backoff = min(backoff*2, restartBackoffMax)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
			return true
		}
	}

	for ctx.Err() == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			if !wait("watcher init failed", err) {
				return nil
			}
			continue
		}
		// the directory is watched so editors that replace the file by
		// rename keep being tracked
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			if !wait("watch "+dir+" failed", err) {
				return nil
			}
			continue
		}

		backoff = restartBackoffBase
		logs.CtxDebug(ctx, "[config] watching %s", path)

		err = watchLoop(ctx, w, file, debounce)
		_ = w.Close()
		if ctx.Err() != nil {
			return nil
		}
		if !wait("watcher stopped", err) {
			return nil
		}
	}
	return nil
}

// watchLoop returns when ctx is done or the watcher breaks.
func watchLoop(ctx context.Context, w *fsnotify.Watcher, file string, onEvent func()) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return errWatcherClosed
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				onEvent()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errWatcherClosed
			}
			if err == fsnotify.ErrEventOverflow {
				logs.CtxWarn(ctx, "[config] watch overflow, forcing reload")
				onEvent()
				continue
			}
			if err != nil {
				return err
			}
		}
	}
}
