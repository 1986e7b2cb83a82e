// Package build drives the transformation stage over real files: it
// discovers sources, runs transforms concurrently, consults the result cache
// and writes outputs to their destination paths.
package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cmod/asset"
	"cmod/cache"
	"cmod/modules"
	"cmod/plugin"
	"cmod/state"
	"cmod/transform"
)

const sourceExt = ".css"

func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("build")

	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return errors.New("no input source has been specified")
	}
	if src, err = filepath.Abs(src); err != nil {
		return err
	}

	dst := cmd.Args().Get(1)
	if len(dst) == 0 {
		if dst, err = os.Getwd(); err != nil {
			return fmt.Errorf("unable to get working directory: %w", err)
		}
	}
	if dst, err = filepath.Abs(dst); err != nil {
		return err
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}

	env.NoDirs, env.Overwrite = cmd.Bool("nodirs"), cmd.Bool("overwrite")

	if path := env.Cfg.Transform.CachePath; len(path) > 0 {
		if env.Cache, err = cache.Open(path, log); err != nil {
			return fmt.Errorf("unable to open transform cache: %w", err)
		}
		defer func() {
			if er := env.Cache.Close(); er != nil {
				err = multierr.Append(err, fmt.Errorf("unable to close transform cache: %w", er))
			}
		}()
	}

	tcfg, err := env.Cfg.Transform.Hydrate(plugin.Env{
		FS:       asset.OSFileSystem{},
		Resolver: asset.RelativeResolver{},
		Log:      log,
	})
	if err != nil {
		return err
	}

	log.Info("Processing starting", zap.String("source", src), zap.String("destination", dst))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return process(ctx, src, dst, tcfg, env, log)
}

// process handles the core logic independently of CLI framework. It
// determines the input type (directory or single file) and processes
// accordingly.
func process(ctx context.Context, src, dst string, tcfg *transform.Config, env *state.LocalEnv, log *zap.Logger) error {
	fi, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("input source was not found (%s): %w", src, err)
	}

	if fi.Mode().IsRegular() {
		if !strings.EqualFold(filepath.Ext(src), sourceExt) {
			return fmt.Errorf("input was not recognized as a stylesheet (%s)", src)
		}
		return processFile(ctx, src, filepath.Dir(src), dst, tcfg, env, log)
	}
	if !fi.Mode().IsDir() {
		return fmt.Errorf("unexpected path mode for (%s)", src)
	}
	return processDir(ctx, src, dst, tcfg, env, log)
}

// processDir walks directory tree finding stylesheets and processes them
// concurrently, collecting all failures.
func processDir(ctx context.Context, dir, dst string, tcfg *transform.Config, env *state.LocalEnv, log *zap.Logger) error {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), sourceExt) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("unable to scan source directory (%s): %w", dir, err)
	}
	if len(files) == 0 {
		log.Warn("No stylesheets found", zap.String("directory", dir))
		return nil
	}
	log.Debug("Scanned source directory", zap.String("directory", dir), zap.Int("files", len(files)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	errs := make([]error, len(files))
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := processFile(gctx, file, dir, dst, tcfg, env, log); err != nil {
				log.Error("Unable to process file", zap.String("file", file), zap.Error(err))
				errs[i] = fmt.Errorf("%s: %w", file, err)
			}
			// per-file failures do not stop the batch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return multierr.Combine(errs...)
}

// processFile transforms a single stylesheet, reusing a cached result when
// content has not changed, and writes the produced outputs.
func processFile(ctx context.Context, src, srcRoot, dst string, tcfg *transform.Config, env *state.LocalEnv, log *zap.Logger) error {
	a := asset.New(src, asset.OSFileSystem{})
	code, err := a.Code(ctx)
	if err != nil {
		return err
	}
	hash := modules.ContentHash(code)

	outPath := buildOutputPath(src, srcRoot, dst, env)
	if !env.Overwrite {
		if _, err := os.Stat(outPath); err == nil {
			return fmt.Errorf("destination already exists (%s), use --overwrite to replace it", outPath)
		}
	}

	if env.Cache != nil {
		if e, ok, err := env.Cache.Get(ctx, src, hash); err != nil {
			log.Warn("Transform cache lookup failed", zap.String("file", src), zap.Error(err))
		} else if ok {
			log.Debug("Reusing cached transform", zap.String("file", src), zap.String("hash", hash))
			return writePair(outPath, e.CSS, e.Companion)
		}
	}

	tr := transform.New(asset.OSFileSystem{}, asset.RelativeResolver{}, log)
	outputs, err := tr.Transform(ctx, a, tcfg)
	if err != nil {
		return err
	}
	for _, d := range a.Dependencies() {
		log.Debug("Dependency discovered", zap.String("file", src), zap.String("specifier", d.ModuleSpecifier),
			zap.Int("line", d.Loc.Start.Line), zap.Int("column", d.Loc.Start.Column))
	}
	for _, inc := range a.IncludedFiles() {
		log.Debug("File included", zap.String("file", src), zap.String("included", inc))
	}

	var cssOut, jsOut []byte
	for _, out := range outputs {
		switch out.Kind {
		case "css":
			cssOut = out.Content
		case "js":
			jsOut = out.Content
		default:
			return fmt.Errorf("unexpected output kind %q for %s", out.Kind, src)
		}
	}
	if err := writePair(outPath, cssOut, jsOut); err != nil {
		return err
	}
	log.Info("Transformed", zap.String("source", src), zap.String("destination", outPath),
		zap.Bool("companion", jsOut != nil))

	if env.Cache != nil {
		entry := cache.Entry{
			FilePath:    src,
			ContentHash: hash,
			Version:     asset.ASTVersion,
			Tokens:      transform.ExportTokens(a),
			CSS:         cssOut,
			Companion:   jsOut,
		}
		if err := env.Cache.Put(ctx, entry); err != nil {
			log.Warn("Unable to store transform result in cache", zap.String("file", src), zap.Error(err))
		}
	}
	return nil
}

// writePair writes the stylesheet and, when present, its companion script
// next to it.
func writePair(outPath string, css, companion []byte) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}
	if err := os.WriteFile(outPath, css, 0644); err != nil {
		return fmt.Errorf("unable to write output (%s): %w", outPath, err)
	}
	if companion != nil {
		name := outPath + transform.CompanionSuffix
		if err := os.WriteFile(name, companion, 0644); err != nil {
			return fmt.Errorf("unable to write companion output (%s): %w", name, err)
		}
	}
	return nil
}
