package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/grovetools/modelcore/cli"
	"github.com/grovetools/modelcore/config"
	"github.com/grovetools/modelcore/internal/collector"
	"github.com/grovetools/modelcore/internal/engine"
	"github.com/grovetools/modelcore/internal/pidfile"
	"github.com/grovetools/modelcore/internal/remote"
	"github.com/grovetools/modelcore/logging"
	"github.com/grovetools/modelcore/pkg/model"
	"github.com/grovetools/modelcore/pkg/paths"
	"github.com/grovetools/modelcore/tui"
	"github.com/grovetools/modelcore/tui/viewer"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type watchOptions struct {
	dir    string
	once   bool
	tui    bool
	serve  string
	noLock bool
}

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	opts := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Mirror a directory into a list model and follow its changes",
		Long: `Runs a collector job that mirrors a directory into a list model.
Every change is printed, shown in a terminal view, or streamed to websocket viewers.
Removed entries are only dropped once every viewer has acknowledged them.`,
		Example: `# Follow the current directory
modelcore watch

# Scan once and print the entries as JSON
modelcore watch ./inbox --once --json

# Serve websocket viewers on port 8080 next to the terminal view
modelcore watch ./inbox --tui --serve :8080`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.dir = args[0]
			}
			return runWatch(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.once, "once", false, "Scan the directory once and exit")
	cmd.Flags().BoolVar(&opts.tui, "tui", false, "Show an interactive terminal view")
	cmd.Flags().StringVar(&opts.serve, "serve", "", "Serve websocket viewers on this address")
	cmd.Flags().BoolVar(&opts.noLock, "no-lock", false, "Allow several watchers of the same directory")
	return cmd
}

// watchSession holds what one watch run builds and tears down.
type watchSession struct {
	cfg    *config.Config
	logger *logrus.Entry
	eng    *engine.Engine
	list   *model.ListModel
	job    *model.Job
}

func runWatch(cmd *cobra.Command, opts *watchOptions) error {
	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return err
	}
	if opts.dir != "" {
		cfg.Watch.Dir = opts.dir
	}
	logger := cli.GetLogger(cmd, "watch").WithField("dir", cfg.Watch.Dir)

	if !opts.once && !opts.noLock {
		pidPath := paths.WatchPidFile(cfg.Watch.Dir)
		if err := pidfile.Acquire(pidPath); err != nil {
			return err
		}
		defer pidfile.Release(pidPath)
	}

	s, err := newWatchSession(cfg, logger, opts.once)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var handler *remote.Handler
	if opts.serve != "" {
		handler = remote.NewHandler(s.list, logger.WithField("component", "remote"))
		shutdown, err := serve(opts.serve, handler, logger)
		if err != nil {
			s.close()
			return err
		}
		defer shutdown()
	}

	var res model.JobResult
	if opts.tui {
		res, err = s.runTUI(ctx, cmd)
	} else {
		res, err = s.runPrinter(ctx, cmd, cli.GetOptions(cmd).JSONOutput)
	}

	// Websocket viewers must be gone before the list can be destroyed.
	if handler != nil {
		handler.Close()
	}
	s.close()

	if err != nil {
		return err
	}
	if jobErr := s.job.Err(); jobErr != nil {
		return jobErr
	}
	logger.WithField("completed", res.Completed).Debug("Watch finished")
	return nil
}

func newWatchSession(cfg *config.Config, logger *logrus.Entry, once bool) (*watchSession, error) {
	modelOpts := []model.Option{
		model.WithPollInterval(cfg.ParsedPollInterval()),
		model.WithLogger(logger),
	}

	list := model.NewListModel("dir:"+cfg.Watch.Dir, modelOpts...)
	c, err := collector.New(list, collector.Options{
		Dir:      cfg.Watch.Dir,
		Ignore:   cfg.Watch.Ignore,
		Debounce: cfg.ParsedDebounce(),
		Logger:   logger.WithField("component", "collector"),
	})
	if err != nil {
		list.Destroy()
		return nil, err
	}

	workload := c.Workload
	if once {
		workload = func(*model.Job) error { return c.Scan() }
	}

	eng := engine.New(engine.Options{
		SyncReclaim: cfg.SyncReclaim(),
		JobOptions:  modelOpts,
	}, logger.WithField("component", "engine"))

	job, err := eng.NewJob("collect:"+cfg.Watch.Dir, workload)
	if err != nil {
		eng.Close()
		list.Destroy()
		return nil, err
	}

	return &watchSession{cfg: cfg, logger: logger, eng: eng, list: list, job: job}, nil
}

// runPrinter prints notifications until the job is done. Cancelling ctx stops the job.
func (s *watchSession) runPrinter(ctx context.Context, cmd *cobra.Command, jsonOutput bool) (model.JobResult, error) {
	p := newPrinter(s.list, cmd.OutOrStdout(), jsonOutput)
	defer p.close()

	if err := s.attach(p.Basic); err != nil {
		return model.JobResult{}, err
	}

	stopped := s.stopOnCancel(ctx)
	defer close(stopped)

	s.eng.Start()
	res, err := p.run(context.Background())
	s.eng.Wait()
	return res, err
}

// runTUI shows the list in a bubbletea program fed through a ProgramTarget.
func (s *watchSession) runTUI(ctx context.Context, cmd *cobra.Command) (model.JobResult, error) {
	tui.InitializeTUI()

	var programOpts []tea.ProgramOption
	programOpts = append(programOpts, tea.WithContext(ctx), tea.WithOutput(cmd.OutOrStdout()))
	if f, ok := cmd.OutOrStdout().(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		programOpts = append(programOpts, tea.WithAltScreen())
		// Log lines written to stderr would tear the alt screen.
		release := logging.HoldOutput()
		defer release()
	}

	// The program needs the controller for acknowledgements and the controller
	// needs the program as its target, so the target gets the program afterwards.
	sender := &lateSender{}
	target := model.NewProgramTarget("tui", sender)
	ctrl := model.NewController("tui", target)

	program := tea.NewProgram(viewer.New(s.list, ctrl, viewer.Options{
		Title:     s.cfg.Watch.Dir,
		Formatter: formatEntry,
	}), programOpts...)
	sender.set(program)

	if err := s.attach(ctrl); err != nil {
		ctrl.DetachAll()
		_ = target.Kill()
		return model.JobResult{}, err
	}

	stopped := s.stopOnCancel(ctx)
	defer close(stopped)

	s.eng.Start()
	_, runErr := program.Run()

	// The program is gone; nobody acknowledges removals any more.
	ctrl.DetachAll()
	_ = target.Kill()
	s.eng.Stop()
	s.eng.Wait()

	if runErr != nil && ctx.Err() == nil {
		return model.JobResult{}, runErr
	}
	return model.JobResult{Completed: s.job.State() == model.StateCompleted}, nil
}

func (s *watchSession) attach(c interface{ Attach(model.Attachable) error }) error {
	if err := c.Attach(s.list); err != nil {
		return err
	}
	return c.Attach(s.job)
}

// stopOnCancel stops the job when ctx ends before the returned channel is closed.
func (s *watchSession) stopOnCancel(ctx context.Context) chan struct{} {
	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping watch")
			s.eng.Stop()
		case <-stopped:
		}
	}()
	return stopped
}

// close releases the engine's reference on the job and destroys the list. Every
// controller must have detached before.
func (s *watchSession) close() {
	if err := s.eng.Close(); err != nil {
		s.logger.WithError(err).Warn("Engine did not close cleanly")
	}
	s.list.Destroy()
}

// serve starts an HTTP server for handler on addr and returns its shutdown func.
func serve(addr string, handler http.Handler, logger *logrus.Entry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/ws", handler)
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Viewer server failed")
		}
	}()
	logger.WithField("addr", ln.Addr().String()).Info("Serving websocket viewers on /ws")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}, nil
}

func formatEntry(it *model.Item) string {
	entry, ok := it.Value().(collector.Entry)
	if !ok {
		return fmt.Sprint(it.Value())
	}
	if entry.IsDir {
		return "dir"
	}
	return fmt.Sprintf("%d bytes  %s", entry.Size, entry.ModTime.Format("2006-01-02 15:04"))
}
