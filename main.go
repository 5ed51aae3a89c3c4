// Command colmaptools runs COLMAP reconstructions and triangulates points picked on their images.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"colmaptools/colmap"
	"colmaptools/imports"
)

const (
	flagDebug         = "debug"
	flagBaseDir       = "base-dir"
	flagModelDir      = "model-dir"
	flagConfig        = "config"
	flagMatchType     = "match-type"
	flagColmapBinary  = "colmap-binary"
	flagSkipDense     = "skip-dense"
	flagPick          = "pick"
	flagPicks         = "picks"
	flagDisplayedSize = "displayed-size"
	flagJSON          = "json"
	flagImage         = "image"
	flagPoint         = "point"
	flagInput         = "input"
	flagOutput        = "output"
	flagOutputType    = "output-type"
	flagMaxSize       = "max-size"

	metadataLogger = "logger"
)

// newLoggerConfig is a console config with stacktraces disabled, logging to stderr
// so that stdout only carries command output.
func newLoggerConfig(debug bool) zap.Config {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}
	return zap.Config{
		Level:    zap.NewAtomicLevelAt(level),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}

func loggerFrom(c *cli.Context) *zap.SugaredLogger {
	if logger, ok := c.App.Metadata[metadataLogger].(*zap.SugaredLogger); ok {
		return logger
	}
	return zap.NewNop().Sugar()
}

func baseDirFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    flagBaseDir,
		Value:   "./data",
		Usage:   "project directory holding images/, database.db, sparse/ and dense/",
		EnvVars: []string{"COLMAPTOOLS_BASE_DIR"},
	}
}

func modelDirFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    flagModelDir,
		Usage:   "COLMAP model directory (default: <base-dir>/dense/sparse)",
		EnvVars: []string{"COLMAPTOOLS_MODEL_DIR"},
	}
}

func newCLIApp() *cli.App {
	return &cli.App{
		Name:  "colmaptools",
		Usage: "run COLMAP reconstructions and measure points on their images",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Usage:   "enable debug logging",
				EnvVars: []string{"COLMAPTOOLS_DEBUG"},
			},
		},
		Before: func(c *cli.Context) error {
			if _, ok := c.App.Metadata[metadataLogger]; ok {
				return nil
			}
			logger, err := newLoggerConfig(c.Bool(flagDebug)).Build()
			if err != nil {
				return err
			}
			if c.App.Metadata == nil {
				c.App.Metadata = map[string]interface{}{}
			}
			c.App.Metadata[metadataLogger] = logger.Sugar()
			return nil
		},
		After: func(c *cli.Context) error {
			// Sync on a terminal stderr returns EINVAL.
			_ = loggerFrom(c).Sync()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "pipeline",
				Usage: "run feature extraction, matching, mapping, dense reconstruction and meshing",
				Flags: []cli.Flag{
					baseDirFlag(),
					&cli.StringFlag{
						Name:    flagConfig,
						Usage:   "JSON pipeline options file",
						EnvVars: []string{"COLMAPTOOLS_CONFIG"},
					},
					&cli.StringFlag{
						Name:    flagMatchType,
						Usage:   fmt.Sprintf("feature matcher, one of %v", colmap.MATCH_TYPES),
						EnvVars: []string{"COLMAPTOOLS_MATCH_TYPE"},
					},
					&cli.StringFlag{
						Name:    flagColmapBinary,
						Usage:   "path to the colmap executable",
						EnvVars: []string{"COLMAPTOOLS_COLMAP_BINARY"},
					},
					&cli.BoolFlag{
						Name:  flagSkipDense,
						Usage: "stop after the sparse reconstruction",
					},
				},
				Action: PipelineAction,
			},
			{
				Name:   "inspect",
				Usage:  "print the tables and cameras of the database and a summary of the model",
				Flags:  []cli.Flag{baseDirFlag(), modelDirFlag()},
				Action: InspectAction,
			},
			{
				Name:  "triangulate",
				Usage: "compute the world point of two pixels picked on two images",
				Flags: []cli.Flag{
					baseDirFlag(),
					modelDirFlag(),
					&cli.GenericFlag{
						Name:  flagPick,
						Value: &pickList{},
						Usage: "picked pixel as NAME:X,Y, given twice",
					},
					&cli.StringFlag{
						Name:  flagPicks,
						Usage: "JSON file with a list of {image, x, y} picks",
					},
					&cli.StringFlag{
						Name:  flagDisplayedSize,
						Usage: "size WxH of the displayed images (default: size of display/NAME, or images/NAME)",
					},
					&cli.BoolFlag{
						Name:  flagJSON,
						Usage: "print the result as JSON",
					},
				},
				Action: TriangulateAction,
			},
			{
				Name:  "reproject",
				Usage: "project a world point into an image",
				Flags: []cli.Flag{
					baseDirFlag(),
					modelDirFlag(),
					&cli.StringFlag{
						Name:     flagImage,
						Usage:    "image name as stored in the model",
						Required: true,
					},
					&cli.StringFlag{
						Name:     flagPoint,
						Usage:    "world point as X,Y,Z",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  flagJSON,
						Usage: "print the result as JSON",
					},
				},
				Action: ReprojectAction,
			},
			{
				Name:  "convert",
				Usage: "convert a COLMAP model between the binary and text formats",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagInput, Usage: "input model directory", Required: true},
					&cli.StringFlag{Name: flagOutput, Usage: "output model directory", Required: true},
					&cli.StringFlag{
						Name:  flagOutputType,
						Value: "txt",
						Usage: "output format, bin or txt",
					},
				},
				Action: ConvertAction,
			},
			{
				Name:  "display",
				Usage: "create downscaled copies of the images for picking",
				Flags: []cli.Flag{
					baseDirFlag(),
					&cli.IntFlag{
						Name:  flagMaxSize,
						Value: imports.DISPLAY_SIZE,
						Usage: "longest side of the display images",
					},
				},
				Action: DisplayAction,
			},
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCLIApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
