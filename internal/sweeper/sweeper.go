// Package sweeper periodically drops bookkeeping for nodes that left the
// tree.
package sweeper

import (
	"log/slog"
	"time"

	"golang.org/x/net/html"

	"feedguard/internal/cache"
	"feedguard/internal/dom"
	"feedguard/internal/loop"
	"feedguard/internal/sponsored"
)

// Report summarizes one sweep.
type Report struct {
	ReleasedIDs int
	PrunedKeys  int
	PrunedLogs  int
}

// Recorder receives sweep results.
type Recorder interface {
	Swept(r Report)
}

// Sweeper owns the maintenance timer.
type Sweeper struct {
	Tree      *dom.Tree
	Sched     loop.Scheduler
	Arena     *cache.Arena
	Sponsored *sponsored.Classifier
	PreCheck  *sponsored.PreChecker
	Interval  time.Duration
	Logger    *slog.Logger
	Recorder  Recorder
	// AfterSweep runs at the end of every periodic sweep.
	AfterSweep func()

	timer loop.Timer
}

// Start schedules Sweep every Interval (default 45s).
func (s *Sweeper) Start() {
	s.Stop()
	if s.Interval <= 0 {
		s.Interval = 45 * time.Second
	}
	s.timer = s.Sched.Every(s.Interval, func() {
		s.Sweep()
		if s.AfterSweep != nil {
			s.AfterSweep()
		}
	})
}

// Stop cancels the timer.
func (s *Sweeper) Stop() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Sweep releases arena ids for detached nodes (their lifetime cache entries
// go with them), prunes the pre-check key index and trims the diagnostic
// logs.
func (s *Sweeper) Sweep() Report {
	var r Report
	r.ReleasedIDs = len(s.Arena.Sweep(s.Tree.Contains))

	if s.PreCheck != nil {
		keys := presentKeys(s.Tree.Document())
		r.PrunedKeys = s.PreCheck.PruneKeyed(func(k string) bool {
			_, ok := keys[k]
			return ok
		})
	}
	if s.Sponsored != nil {
		r.PrunedLogs = s.Sponsored.PruneLogs(func(id cache.NodeID) bool {
			_, ok := s.Arena.Node(id)
			return ok
		})
	}
	if s.Logger != nil {
		s.Logger.Debug("sweeper: done", "released", r.ReleasedIDs, "keys", r.PrunedKeys, "logs", r.PrunedLogs)
	}
	if s.Recorder != nil {
		s.Recorder.Swept(r)
	}
	return r
}

// presentKeys collects every id and data-testid value in the document.
func presentKeys(doc *html.Node) map[string]struct{} {
	keys := make(map[string]struct{})
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if k := sponsored.Key(n); k != "" {
				keys[k] = struct{}{}
			}
			if v, ok := dom.Attr(n, "data-testid"); ok && v != "" {
				keys[v] = struct{}{}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return keys
}
