package zoomify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SourceExtensions lists the file extensions Scan considers to be images.
var SourceExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

func isSource(file string) bool {
	return contains(SourceExtensions, strings.ToLower(filepath.Ext(file)))
}

func (z *Zoomify) findImages(ctx context.Context, base string) (<-chan string, <-chan error, error) {
	out := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		errc <- filepath.Walk(base, func(file string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}

			// Ignore any hidden files or directories, otherwise we end up fighting with things like Spotlight, etc.
			if info.Name()[0] == '.' && file != base {
				if info.Mode().IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			// Never descend into a pyramid
			if info.Mode().IsDir() {
				if strings.HasSuffix(info.Name(), "_zdata") {
					return filepath.SkipDir
				}
				return nil
			}

			if !info.Mode().IsRegular() || !isSource(file) {
				return nil
			}

			select {
			case out <- file:
			case <-ctx.Done():
				return errors.New("walk cancelled")
			}

			return nil
		})
	}()
	return out, errc, nil
}

// sequential returns a Zoomify with the same backend that encodes the tiles
// of a row one at a time.
func (z *Zoomify) sequential() (*Zoomify, error) {
	opts := z.opts
	opts.Backend = z.backend.Name()
	opts.Workers = 1
	return newZoomify(opts, z.runner, z.logger)
}

func (z *Zoomify) imageWorker(ctx context.Context, in <-chan string) (<-chan error, error) {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		for file := range in {
			ok, err := z.Process(ctx, file, "")
			if err != nil {
				errc <- err
				return
			}
			if !ok {
				z.logger.Printf("Skipped \"%s\"\n", file)
			}
		}
	}()
	return errc, nil
}

func waitForPipeline(errs ...<-chan error) error {
	errc := mergeErrors(errs...)
	for err := range errc {
		if err != nil {
			return err
		}
	}
	return nil
}

func mergeErrors(cs ...<-chan error) <-chan error {
	var wg sync.WaitGroup
	out := make(chan error, len(cs))
	wg.Add(len(cs))
	for _, c := range cs {
		go func(c <-chan error) {
			for n := range c {
				out <- n
			}
			wg.Done()
		}(c)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// Scan tiles every image found under path into its default destination.
// Images whose destination already exists are skipped. Hidden entries and
// existing pyramids are ignored. Up to Workers images are tiled at once,
// each encoding one tile at a time.
func (z *Zoomify) Scan(ctx context.Context, path string) error {
	dir, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	var errcList []<-chan error

	files, errc, err := z.findImages(ctx, dir)
	if err != nil {
		return err
	}
	errcList = append(errcList, errc)

	worker, err := z.sequential()
	if err != nil {
		return err
	}

	for i := 0; i < z.opts.Workers; i++ {
		errc, err := worker.imageWorker(ctx, files)
		if err != nil {
			return err
		}
		errcList = append(errcList, errc)
	}

	return waitForPipeline(errcList...)
}
