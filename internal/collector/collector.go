// Package collector mirrors a directory into a list model.
//
// A Collector is the workload of a job: it scans the directory once, then follows
// filesystem events. Every entry becomes an item keyed by its base name whose value
// is an Entry. Removals go through the list model's acknowledgement handshake, so
// the collector blocks while controllers let go of a vanished entry.
package collector

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/grovetools/modelcore/errors"
	"github.com/grovetools/modelcore/logging"
	"github.com/grovetools/modelcore/pkg/model"
	"github.com/juju/clock"
	"github.com/moby/patternmatcher"
	"github.com/sirupsen/logrus"
)

// Entry is the value of a mirrored item.
type Entry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
	IsDir   bool      `json:"isDir"`
}

// Options configures a Collector.
type Options struct {
	// Dir is the directory to mirror.
	Dir string
	// Ignore lists patterns in .dockerignore syntax, relative to Dir.
	Ignore []string
	// Debounce is how often the collector checks whether it should keep running.
	Debounce time.Duration
	// Clock drives the debounce ticks. Defaults to the wall clock.
	Clock clock.Clock
	// Logger defaults to the "collector" component logger.
	Logger *logrus.Entry
}

// Collector mirrors Options.Dir into a list model.
type Collector struct {
	list    *model.ListModel
	opts    Options
	matcher *patternmatcher.PatternMatcher
	logger  *logrus.Entry
}

// New creates a Collector feeding list.
func New(list *model.ListModel, opts Options) (*Collector, error) {
	matcher, err := patternmatcher.New(opts.Ignore)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid ignore pattern")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 100 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger("collector")
	}
	return &Collector{
		list:    list,
		opts:    opts,
		matcher: matcher,
		logger:  logger.WithField("dir", opts.Dir),
	}, nil
}

// Workload runs until the job is stopped or loses its last controller, returning
// errors.Interrupted in either case.
func (c *Collector) Workload(j *model.Job) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(c.opts.Dir); err != nil {
		return errors.Wrap(err, errors.ErrCodeWorkloadFailed, "cannot watch directory").
			WithDetail("dir", c.opts.Dir)
	}

	if err := c.Scan(); err != nil {
		return err
	}

	tick := c.opts.Clock.After(c.opts.Debounce)
	for {
		select {
		case <-tick:
			if !j.ShouldContinue() {
				c.logger.Debug("Collector told to stop")
				return errors.Interrupted(j.Name())
			}
			tick = c.opts.Clock.After(c.opts.Debounce)

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New(errors.ErrCodeWorkloadFailed, "watcher closed")
			}
			c.handle(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New(errors.ErrCodeWorkloadFailed, "watcher closed")
			}
			c.logger.WithError(err).Warn("Watcher error")
		}
	}
}

// Scan brings the list model in line with the directory contents.
func (c *Collector) Scan() error {
	entries, err := os.ReadDir(c.opts.Dir)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeWorkloadFailed, "cannot read directory").
			WithDetail("dir", c.opts.Dir)
	}

	present := make(map[string]struct{}, len(entries))
	for _, de := range entries {
		if c.ignored(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		present[de.Name()] = struct{}{}
		c.upsert(entryOf(info))
	}

	for _, item := range c.list.Items() {
		if _, ok := present[item.Key()]; !ok {
			c.remove(item.Key())
		}
	}
	return nil
}

func (c *Collector) handle(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if filepath.Dir(event.Name) != filepath.Clean(c.opts.Dir) || c.ignored(name) {
		return
	}
	c.logger.WithField("event", event.Op.String()).WithField("entry", name).Trace("Filesystem event")

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		c.remove(name)
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write), event.Has(fsnotify.Chmod):
		info, err := os.Lstat(event.Name)
		if err != nil {
			c.remove(name)
			return
		}
		c.upsert(entryOf(info))
	}
}

func (c *Collector) upsert(e Entry) {
	if item, ok := c.list.FindItemByKey(e.Name); ok {
		if old, ok := item.Value().(Entry); ok && old == e {
			return
		}
		if err := c.list.UpdateItem(e.Name, e); err != nil {
			c.logger.WithError(err).Warn("Cannot update entry")
		}
		return
	}
	if err := c.list.AddItem(model.NewItem(e.Name, e)); err != nil {
		c.logger.WithError(err).Warn("Cannot add entry")
	}
}

func (c *Collector) remove(name string) {
	if _, ok := c.list.FindItemByKey(name); !ok {
		return
	}
	if err := c.list.RemoveItem(name); err != nil {
		c.logger.WithError(err).Warn("Cannot remove entry")
	}
}

func (c *Collector) ignored(name string) bool {
	matched, err := c.matcher.MatchesOrParentMatches(name)
	if err != nil {
		c.logger.WithError(err).WithField("entry", name).Warn("Cannot match ignore patterns")
		return false
	}
	return matched
}

func entryOf(info os.FileInfo) Entry {
	return Entry{
		Name:    info.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}
}
