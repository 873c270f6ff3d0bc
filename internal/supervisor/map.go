// Package supervisor implements the map/dispatch layer and main loop glue:
// reload-safe merging of the map file into live scan
// tasks, per-map recent-logs, and the 100ms tick that drives the scan and
// copy schedulers.
package supervisor

import (
	"fmt"
	"sort"
	"time"

	"github.com/tsdfx/tsdfx/internal/copydispatch"
	"github.com/tsdfx/tsdfx/internal/mapfile"
	"github.com/tsdfx/tsdfx/internal/recentlog"
	"github.com/tsdfx/tsdfx/internal/scan"
	"github.com/tsdfx/tsdfx/internal/task"
)

// mapEntry is one live (NAME, SRCPATH, DSTPATH) triple: a scan task and its
// owning recent-log.
type mapEntry struct {
	name string
	src  string
	dst  string

	scanTask *task.Task
	log      *recentlog.Log
}

// Config is everything the supervisor needs to create a scan task for one
// map entry.
type Config struct {
	ScannerPath  string
	ScanInterval time.Duration
	LogRetention time.Duration
}

// Supervisor owns the live set of maps and the scan/copy scheduling that
// drives them.
type Supervisor struct {
	cfg Config

	maps    map[string]*mapEntry
	scanSet *task.Set
	scanSch *scan.Scheduler

	dispatch *copydispatch.Dispatcher

	onWarn  func(msg string)
	onError func(msg string)
}

// New builds an empty supervisor ready for its first reload.
func New(cfg Config, dispatch *copydispatch.Dispatcher, onWarn, onError func(string)) *Supervisor {
	set := task.NewSet()
	return &Supervisor{
		cfg:      cfg,
		maps:     make(map[string]*mapEntry),
		scanSet:  set,
		scanSch:  scan.NewScheduler(set, 0),
		dispatch: dispatch,
		onWarn:   onWarn,
		onError:  onError,
	}
}

// Reload implements the SIGHUP-triggered merge: entries whose name
// is unchanged keep their live scan task (rushed to run again soon);
// entries only in the old map are destroyed; entries only in the new map
// are created. A failure creating any new entry aborts the whole reload,
// leaving the old map intact.
func (s *Supervisor) Reload(mapPath string) error {
	newEntries, err := mapfile.ParseFile(mapPath)
	if err != nil {
		return fmt.Errorf("supervisor: reload: %w", err)
	}
	sort.Slice(newEntries, func(i, j int) bool { return newEntries[i].Name < newEntries[j].Name })

	oldNames := make([]string, 0, len(s.maps))
	for name := range s.maps {
		oldNames = append(oldNames, name)
	}
	sort.Strings(oldNames)

	newByName := make(map[string]mapfile.Entry, len(newEntries))
	for _, e := range newEntries {
		newByName[e.Name] = e
	}

	var created []*mapEntry

	// Only-in-new: create.
	for _, e := range newEntries {
		if _, exists := s.maps[e.Name]; exists {
			continue
		}
		entry, err := s.createEntry(e)
		if err != nil {
			for _, c := range created {
				s.destroyEntry(c)
			}
			return fmt.Errorf("supervisor: reload: create map %q: %w", e.Name, err)
		}
		created = append(created, entry)
	}

	// Only-in-old: destroy. Equal names: rush.
	for _, name := range oldNames {
		entry := s.maps[name]
		if _, stillPresent := newByName[name]; !stillPresent {
			s.destroyEntry(entry)
			delete(s.maps, name)
			continue
		}
		scan.Rush(entry.scanTask)
	}

	for _, entry := range created {
		s.maps[entry.name] = entry
	}

	return nil
}

func (s *Supervisor) createEntry(e mapfile.Entry) (*mapEntry, error) {
	owner, err := dirOwner(e.Src)
	if err != nil {
		return nil, err
	}

	log, err := recentlog.Open(e.Dst, s.cfg.LogRetention)
	if err != nil {
		return nil, fmt.Errorf("open recent-log: %w", err)
	}

	onEntry := func(relpath string, isDir bool) {
		if err := s.dispatch.CopyWrap(e.Src, e.Dst, relpath, isDir); err != nil {
			s.logError(log, fmt.Sprintf("copy_wrap %s: %v", relpath, err))
		}
	}
	onError := func(line string) {
		s.logError(log, line)
	}

	t, err := scan.New(e.Name, s.cfg.ScannerPath, e.Src, owner, s.cfg.ScanInterval, onEntry, onError)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("create scan task: %w", err)
	}
	if err := s.scanSet.Insert(t); err != nil {
		log.Close()
		return nil, err
	}

	return &mapEntry{name: e.Name, src: e.Src, dst: e.Dst, scanTask: t, log: log}, nil
}

func (s *Supervisor) destroyEntry(e *mapEntry) {
	if e.scanTask.State().IsRunning() {
		_ = e.scanTask.Stop()
	}
	s.scanSet.Remove(e.scanTask.Name())
	e.log.Close()
}

func (s *Supervisor) logError(log *recentlog.Log, msg string) {
	if err := log.Log(msg); err != nil && s.onError != nil {
		s.onError(fmt.Sprintf("recentlog: %v", err))
	}
}

// Tick drives one pass of the scan scheduler and the copy dispatcher.
func (s *Supervisor) Tick(now time.Time) {
	s.scanSch.Tick(now)
	s.dispatch.Schedule()
}

// Idle reports whether both the scan set and the copy dispatcher's task
// set are empty of running/pending work, the one-shot mode exit condition
//.
func (s *Supervisor) Idle() bool {
	return s.scanSet.NRunning() == 0 && s.dispatch.Set.Len() == 0
}

// MapNames returns the currently loaded map names, sorted, for status
// reporting.
func (s *Supervisor) MapNames() []string {
	names := make([]string, 0, len(s.maps))
	for name := range s.maps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MapEntry exposes a loaded map's (src, dst, scan task, recent-log) for
// status reporting.
func (s *Supervisor) MapEntry(name string) (src, dst string, scanTask *task.Task, log *recentlog.Log, ok bool) {
	e, ok := s.maps[name]
	if !ok {
		return "", "", nil, nil, false
	}
	return e.src, e.dst, e.scanTask, e.log, true
}
