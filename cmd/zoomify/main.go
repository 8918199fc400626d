package main

import (
	"context"
	"io"
	"io/ioutil"
	"log"
	"os"
	"os/signal"

	"github.com/bodgit/zoomify"
	"github.com/natefinch/lumberjack"
	"github.com/urfave/cli/v2"
)

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}
}

func newLogger(c *cli.Context) *log.Logger {
	var writers []io.Writer
	if c.Bool("verbose") {
		writers = append(writers, os.Stderr)
	}
	if file := c.Path("log-file"); file != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:  file,
			MaxSize:   c.Int("log-max-size"),
			MaxAge:    c.Int("log-max-age"),
			LocalTime: true,
		})
	}

	switch len(writers) {
	case 0:
		return log.New(ioutil.Discard, "", 0)
	case 1:
		return log.New(writers[0], "", log.LstdFlags)
	default:
		return log.New(io.MultiWriter(writers...), "", log.LstdFlags)
	}
}

func options(c *cli.Context) (zoomify.Options, error) {
	opts := zoomify.DefaultOptions()
	if file := c.Path("config"); file != "" {
		var err error
		if opts, err = zoomify.LoadOptions(file); err != nil {
			return opts, err
		}
	}

	if c.IsSet("tile-size") {
		opts.TileSize = c.Int("tile-size")
	}
	if c.IsSet("overlap") {
		opts.TileOverlap = c.Int("overlap")
	}
	if c.IsSet("format") {
		opts.TileFormat = c.String("format")
	}
	if c.IsSet("quality") {
		opts.TileQuality = c.Int("quality")
	}
	if c.IsSet("remove") {
		opts.DestinationRemove = c.Bool("remove")
	}
	if c.IsSet("backend") {
		opts.Backend = c.String("backend")
	}
	if c.IsSet("interpolation") {
		opts.Interpolation = c.String("interpolation")
	}
	if c.IsSet("resampler") {
		opts.Resampler = c.String("resampler")
	}
	if c.IsSet("workers") {
		opts.Workers = c.Int("workers")
	}
	if c.IsSet("convert") {
		opts.ConvertPath = c.Path("convert")
	}
	if c.IsSet("vips") {
		opts.VipsPath = c.Path("vips")
	}

	return opts, nil
}

func newZoomify(c *cli.Context) (*zoomify.Zoomify, error) {
	opts, err := options(c)
	if err != nil {
		return nil, err
	}
	return zoomify.New(opts, newLogger(c))
}

func main() {
	app := cli.NewApp()

	app.Name = "zoomify"
	app.Usage = "Zoomify tile pyramid generator"
	app.Version = "1.0.0"

	defaults := zoomify.DefaultOptions()

	app.Flags = []cli.Flag{
		&cli.PathFlag{
			Name:    "config",
			Aliases: []string{"c"},
			EnvVars: []string{"ZOOMIFY_CONFIG"},
			Usage:   "read options from TOML `FILE`",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "increase verbosity",
		},
		&cli.PathFlag{
			Name:    "log-file",
			EnvVars: []string{"ZOOMIFY_LOG_FILE"},
			Usage:   "also log to `FILE`, rotating it as it grows",
		},
		&cli.IntFlag{
			Name:  "log-max-size",
			Value: 100,
			Usage: "rotate the log file after this many megabytes",
		},
		&cli.IntFlag{
			Name:  "log-max-age",
			Value: 28,
			Usage: "remove rotated log files after this many days",
		},
		&cli.IntFlag{
			Name:    "tile-size",
			Aliases: []string{"s"},
			EnvVars: []string{"ZOOMIFY_TILE_SIZE"},
			Value:   defaults.TileSize,
			Usage:   "tile width and height in pixels",
		},
		&cli.IntFlag{
			Name:    "overlap",
			EnvVars: []string{"ZOOMIFY_TILE_OVERLAP"},
			Value:   defaults.TileOverlap,
			Usage:   "tile overlap in pixels",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			EnvVars: []string{"ZOOMIFY_TILE_FORMAT"},
			Value:   defaults.TileFormat,
			Usage:   "tile format (jpg, png, gif, bmp, tif)",
		},
		&cli.IntFlag{
			Name:    "quality",
			Aliases: []string{"q"},
			EnvVars: []string{"ZOOMIFY_TILE_QUALITY"},
			Value:   defaults.TileQuality,
			Usage:   "tile quality (1-100)",
		},
		&cli.BoolFlag{
			Name:    "remove",
			EnvVars: []string{"ZOOMIFY_DESTINATION_REMOVE"},
			Usage:   "remove an existing destination instead of skipping the image",
		},
		&cli.StringFlag{
			Name:    "backend",
			Aliases: []string{"b"},
			EnvVars: []string{"ZOOMIFY_BACKEND"},
			Usage:   "imaging backend (go, magick, vips), detected if unset",
		},
		&cli.StringFlag{
			Name:    "interpolation",
			EnvVars: []string{"ZOOMIFY_INTERPOLATION"},
			Value:   defaults.Interpolation,
			Usage:   "interpolation (nearest, bilinear, bicubic, mitchell, lanczos2, lanczos3)",
		},
		&cli.StringFlag{
			Name:    "resampler",
			EnvVars: []string{"ZOOMIFY_RESAMPLER"},
			Value:   defaults.Resampler,
			Usage:   "scaling library of the go backend (nfnt, gift, xdraw)",
		},
		&cli.IntFlag{
			Name:    "workers",
			Aliases: []string{"j"},
			EnvVars: []string{"ZOOMIFY_WORKERS"},
			Value:   defaults.Workers,
			Usage:   "number of concurrent workers",
		},
		&cli.PathFlag{
			Name:    "convert",
			EnvVars: []string{"ZOOMIFY_CONVERT_PATH"},
			Usage:   "path to the ImageMagick magick or convert command",
		},
		&cli.PathFlag{
			Name:    "vips",
			EnvVars: []string{"ZOOMIFY_VIPS_PATH"},
			Usage:   "path to the vips command",
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app.Commands = []*cli.Command{
		{
			Name:        "tile",
			Usage:       "Generate a tile pyramid from an image",
			Description: "The pyramid is written to DESTINATION, or FILE's name with a _zdata suffix.",
			ArgsUsage:   "FILE [DESTINATION]",
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				z, err := newZoomify(c)
				if err != nil {
					return cli.NewExitError(err, 1)
				}

				ok, err := z.Process(ctx, c.Args().First(), c.Args().Get(1))
				if err != nil {
					return cli.NewExitError(err, 1)
				}
				if !ok {
					return cli.NewExitError("destination already exists", 2)
				}

				return nil
			},
		},
		{
			Name:        "scan",
			Usage:       "Scan filesystem and generate tile pyramids",
			Description: "",
			ArgsUsage:   "DIRECTORY",
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				z, err := newZoomify(c)
				if err != nil {
					return cli.NewExitError(err, 1)
				}

				if err := z.Scan(ctx, c.Args().First()); err != nil {
					return cli.NewExitError(err, 1)
				}

				return nil
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
