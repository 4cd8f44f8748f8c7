// Command scenectl loads, inspects, archives and serves scenes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scenegraph/internal/api"
	"scenegraph/internal/blob"
	"scenegraph/internal/core"
	"scenegraph/internal/metrics"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configPath   string
	in           string
	out          string
	list         bool
	archive      string
	load         string
	listArchives bool
	export       string
	importBundle string
	serve        bool
	trace        bool
	verbose      bool
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("scenectl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	fs.StringVar(&opts.configPath, "config", "", "path to a TOML or YAML config file")
	fs.StringVar(&opts.in, "in", "", "import a serialized scene file")
	fs.StringVar(&opts.out, "out", "", "write the scene to this file")
	fs.BoolVar(&opts.list, "list", false, "print the scene's nodes")
	fs.StringVar(&opts.archive, "archive", "", "save the scene into the archive under this name")
	fs.StringVar(&opts.load, "load", "", "replace the scene with the archived scene of this name")
	fs.BoolVar(&opts.listArchives, "archives", false, "list archived scenes")
	fs.StringVar(&opts.export, "export", "", "write the scene as a bundle under this key")
	fs.StringVar(&opts.importBundle, "import-bundle", "", "import the bundle stored under this key")
	fs.BoolVar(&opts.serve, "serve", false, "serve the HTTP API")
	fs.BoolVar(&opts.trace, "trace", false, "write operation spans as JSON lines to stderr")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, opts, stdout, stderr, logger); err != nil {
		logger.Error("scenectl failed", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, opts options, stdout, stderr io.Writer, logger *slog.Logger) error {
	cfg, err := core.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	svcOpts := []core.ServiceOption{
		core.WithLogger(logger),
		core.WithMetricsRecorder(metrics.NewRecorder(reg)),
	}
	if opts.trace {
		svcOpts = append(svcOpts, core.WithTracer(core.NewJSONTracer(stderr, 0)))
	}
	if opts.archive != "" || opts.load != "" || opts.listArchives || opts.serve {
		archive, err := core.OpenSceneArchive(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer func() { _ = archive.Close() }()
		svcOpts = append(svcOpts, core.WithArchive(archive))
	}
	if opts.export != "" || opts.importBundle != "" || opts.serve {
		store, err := blob.Open(ctx, cfg.Blob)
		if err != nil {
			return fmt.Errorf("open blob store: %w", err)
		}
		svcOpts = append(svcOpts, core.WithBlobStore(store))
	}

	scene := core.NewScene(append(cfg.SceneOptions(), core.WithSceneLogger(logger))...)
	svc := core.NewService(scene, svcOpts...)

	if opts.load != "" {
		rec, err := svc.LoadArchive(ctx, opts.load)
		if err != nil {
			return err
		}
		logger.Info("loaded archived scene", "name", rec.Name, "revision", rec.Revision, "nodes", rec.NodeCount)
	}
	if opts.in != "" {
		if err := importFile(ctx, svc, opts.in); err != nil {
			return err
		}
	}
	if opts.importBundle != "" {
		views, err := svc.ImportBundle(ctx, opts.importBundle)
		if err != nil {
			return err
		}
		logger.Info("imported bundle", "key", opts.importBundle, "nodes", len(views))
	}
	if opts.list {
		if err := listNodes(ctx, svc, stdout); err != nil {
			return err
		}
	}
	if opts.out != "" {
		if err := writeFile(ctx, svc, opts.out); err != nil {
			return err
		}
	}
	if opts.archive != "" {
		rec, err := svc.SaveArchive(ctx, opts.archive)
		if err != nil {
			return err
		}
		logger.Info("archived scene", "name", rec.Name, "revision", rec.Revision, "nodes", rec.NodeCount)
	}
	if opts.listArchives {
		if err := listArchives(ctx, svc, stdout); err != nil {
			return err
		}
	}
	if opts.export != "" {
		info, err := svc.ExportBundle(ctx, opts.export)
		if err != nil {
			return err
		}
		logger.Info("exported bundle", "key", info.Key, "bytes", info.Size)
	}
	if opts.serve {
		metricsHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
		return serve(ctx, cfg.APIAddr, api.New(svc, metricsHandler).Router(), logger)
	}
	return nil
}

func importFile(ctx context.Context, svc *core.Service, path string) error {
	f, err := os.Open(path) // #nosec G304: path supplied by the operator
	if err != nil {
		return fmt.Errorf("open scene: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := svc.Import(ctx, f); err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}
	return nil
}

func writeFile(ctx context.Context, svc *core.Service, path string) (err error) {
	f, err := os.Create(path) // #nosec G304: path supplied by the operator
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return svc.Export(ctx, f)
}

func listNodes(ctx context.Context, svc *core.Service, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tCLASS\tNAME\tPARENT")
	err := svc.View(ctx, func(sc *core.Scene) error {
		for _, n := range sc.Nodes() {
			v := core.Describe(n)
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.ID, v.Class, v.Name, v.ParentID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return tw.Flush()
}

func listArchives(ctx context.Context, svc *core.Service, w io.Writer) error {
	recs, err := svc.ListArchives(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tREVISION\tNODES\tSAVED")
	for _, rec := range recs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", rec.Name, rec.Revision, rec.NodeCount, rec.SavedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving scene API", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
