// Package builder turns resolved project targets into patched binaries.
package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/fripack/internal/config"
	"github.com/samcharles93/fripack/internal/logger"
	"github.com/samcharles93/fripack/internal/prebuilt"
	"github.com/samcharles93/fripack/pkg/inject"
)

var (
	ErrMissingField    = errors.New("missing required field")
	ErrUnsupportedType = errors.New("unsupported target type")
	ErrNotImplemented  = errors.New("not implemented")
)

// Fetcher supplies the prebuilt injector library for a platform and frida version.
type Fetcher interface {
	Fetch(ctx context.Context, platform, fridaVersion string) ([]byte, error)
}

// Options controls a build run.
type Options struct {
	// OutDir receives the outputs. Empty means each target's project directory.
	OutDir string
	// Jobs bounds how many targets BuildAll builds at once. Values below 1 mean 1.
	Jobs int
	// KeepGoing builds every target even after a failure.
	KeepGoing bool
	// DataOnlySection and StrictVersion are passed through to inject.Patch.
	DataOnlySection bool
	StrictVersion   bool
}

// Builder builds targets.
type Builder struct {
	fetcher Fetcher
	log     logger.Logger
	opts    Options
}

// New returns a Builder. fetcher may be nil if every target names an
// overridePrebuildFile.
func New(fetcher Fetcher, log logger.Logger, opts Options) *Builder {
	if log == nil {
		log = logger.Discard()
	}
	return &Builder{fetcher: fetcher, log: log, opts: opts}
}

// Report describes the outcome of one target.
type Report struct {
	Target     string
	Output     string
	Size       int
	Payload    int
	Compressed bool
	Duration   time.Duration
	Err        error
}

// BuildTarget builds a single target and writes its output file.
func (b *Builder) BuildTarget(ctx context.Context, t config.Resolved) (Report, error) {
	start := time.Now()
	rep := Report{Target: t.Name}
	var err error
	switch t.Type {
	case config.TypeAndroidSO:
		err = b.buildAndroidSO(ctx, t, &rep)
	case config.TypeXposed:
		err = b.buildXposed(t)
	case "":
		err = fmt.Errorf("%w: type", ErrMissingField)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedType, t.Type)
	}
	rep.Duration = time.Since(start)
	if err != nil {
		rep.Err = fmt.Errorf("target %s: %w", t.Name, err)
		return rep, rep.Err
	}
	return rep, nil
}

// BuildAll builds every concrete target in targets in name order. Abstract
// targets (no type) are skipped. Without KeepGoing the first failure cancels
// the run; with it every failure is collected into the returned error.
func (b *Builder) BuildAll(ctx context.Context, targets map[string]config.Resolved) ([]Report, error) {
	names := lo.Keys(targets)
	slices.Sort(names)
	runnable := lo.Filter(names, func(name string, _ int) bool {
		if targets[name].Abstract() {
			b.log.Debug("skipping abstract target", "target", name)
			return false
		}
		return true
	})

	log := b.log.With("run", uuid.NewString())
	log.Info("building targets", "count", len(runnable), "jobs", max(b.opts.Jobs, 1))

	reports := make([]Report, len(runnable))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(b.opts.Jobs, 1))

	var mu sync.Mutex
	var failures []error
	for i, name := range runnable {
		g.Go(func() error {
			if !b.opts.KeepGoing {
				if err := gctx.Err(); err != nil {
					reports[i] = Report{Target: name, Err: err}
					return err
				}
			}
			rep, err := b.withLog(log).BuildTarget(gctx, targets[name])
			reports[i] = rep
			if err == nil {
				return nil
			}
			log.Error("build failed", "target", name, "err", err)
			if b.opts.KeepGoing {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return reports, err
	}
	if err := errors.Join(failures...); err != nil {
		return reports, err
	}
	log.Info("all builds completed", "count", len(runnable))
	return reports, nil
}

func (b *Builder) withLog(log logger.Logger) *Builder {
	c := *b
	c.log = log
	return &c
}

func (b *Builder) buildAndroidSO(ctx context.Context, t config.Resolved, rep *Report) error {
	if err := requireFields(t, "platform", "fridaVersion", "entry"); err != nil {
		return err
	}
	log := b.log.With("target", t.Name, "platform", t.Platform)
	log.Info("building android-so target")

	base, err := b.loadPrebuilt(ctx, t, log)
	if err != nil {
		return err
	}

	entryPath := t.Path(t.Entry)
	log.Debug("reading entry", "path", entryPath)
	script, err := os.ReadFile(entryPath)
	if err != nil {
		return fmt.Errorf("read entry: %w", err)
	}

	rec := inject.NewEmbedJS(t.Entry, strings.ToValidUTF8(string(script), "\uFFFD"))
	res, err := inject.Patch(base, rec, inject.Options{
		Compress:        t.XZ,
		DataOnlySection: b.opts.DataOnlySection,
		StrictVersion:   b.opts.StrictVersion,
	})
	if err != nil {
		return err
	}

	outDir := b.opts.OutDir
	if outDir == "" {
		outDir = t.Dir
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	out := filepath.Join(outDir, OutputName(t))
	if err := os.WriteFile(out, res.Data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	rep.Output = out
	rep.Size = len(res.Data)
	rep.Payload = len(res.Payload)
	rep.Compressed = res.Sentinel.Compressed
	log.Info("built", "out", out, "size", rep.Size, "payload", rep.Payload, "xz", rep.Compressed)
	return nil
}

func (b *Builder) loadPrebuilt(ctx context.Context, t config.Resolved, log logger.Logger) ([]byte, error) {
	if t.OverridePrebuildFile != "" {
		path := t.Path(t.OverridePrebuildFile)
		log.Info("using override prebuilt", "path", path)
		data, err := prebuilt.ReadBinary(path)
		if err != nil {
			return nil, fmt.Errorf("read override prebuilt: %w", err)
		}
		return data, nil
	}
	if b.fetcher == nil {
		return nil, fmt.Errorf("no prebuilt source for platform %s: set overridePrebuildFile", t.Platform)
	}
	data, err := b.fetcher.Fetch(ctx, t.Platform, t.FridaVersion)
	if err != nil {
		return nil, fmt.Errorf("fetch prebuilt: %w", err)
	}
	return data, nil
}

func (b *Builder) buildXposed(t config.Resolved) error {
	if err := requireFields(t, "platform", "packageName", "keystore", "name"); err != nil {
		return err
	}
	b.log.Warn("xposed module building is not implemented",
		"target", t.Name, "platform", t.Platform, "package", t.PackageName)
	return fmt.Errorf("xposed target: %w", ErrNotImplemented)
}

// OutputName is the file name a target's output is written to.
func OutputName(t config.Resolved) string {
	return t.Name + "-" + t.Platform + ".so"
}

func requireFields(t config.Resolved, fields ...string) error {
	values := map[string]string{
		"platform":     t.Platform,
		"fridaVersion": t.FridaVersion,
		"entry":        t.Entry,
		"packageName":  t.PackageName,
		"keystore":     t.Keystore,
		"name":         t.DisplayName,
	}
	for _, f := range fields {
		if values[f] == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, f)
		}
	}
	return nil
}
