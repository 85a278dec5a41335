// Package main is the agimus command line: it serves the planning services over HTTP, inspects
// point clouds, samples configured paths and describes its configuration file.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/agimus-project/agimus/logging"
)

const (
	// Flags.
	flagConfig     = "config"
	flagDebug      = "debug"
	flagWatch      = "watch"
	flagPCD        = "pcd"
	flagOut        = "out"
	flagResolution = "resolution"
	flagPath       = "path"
	flagDT         = "dt"
)

func newApp(out io.Writer) *cli.App {
	configFlag := &cli.StringFlag{
		Name:     flagConfig,
		Aliases:  []string{"c"},
		Usage:    "load configuration from `FILE`",
		Required: true,
	}
	return &cli.App{
		Name:            "agimus",
		Usage:           "replay planned paths and build obstacles for a robot controller",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       out,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "serve the planning services over HTTP",
				Flags: []cli.Flag{
					configFlag,
					&cli.BoolFlag{
						Name:  flagWatch,
						Usage: "reload the feature groups when the configuration file changes",
					},
				},
				Action: ServeAction,
			},
			{
				Name:  "octree",
				Usage: "build an octree from a point cloud file and print its statistics",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagPCD,
						Usage:    "read the point cloud from `FILE` (.pcd or .las)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  flagOut,
						Usage: "write the points kept by the octree to `FILE` (.pcd or .las)",
					},
					&cli.Float64Flag{
						Name:  flagResolution,
						Usage: "smallest voxel side, in millimeters",
						Value: 10,
					},
				},
				Action: OctreeAction,
			},
			{
				Name:  "sample",
				Usage: "print the messages of a configured path as JSON lines",
				Flags: []cli.Flag{
					configFlag,
					&cli.IntFlag{
						Name:  flagPath,
						Usage: "index of the path to sample",
					},
					&cli.Float64Flag{
						Name:  flagDT,
						Usage: "sampling period in seconds",
						Value: 0.01,
					},
				},
				Action: SampleAction,
			},
			{
				Name:   "schema",
				Usage:  "print the JSON schema of the configuration file",
				Action: SchemaAction,
			},
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		logging.NewLogger("agimus").Fatal(err)
	}
}
