package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	_ "time/tzdata"
)

const version = "1.0.0"

func main() {
	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	app := &cli.App{
		Name:    "mbtatracker",
		Usage:   "Records MBTA bus departures from the realtime vehicle stream",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "optional YAML configuration file",
				EnvVars: []string{"CONFIG_FILE"},
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			eventsCommand(),
			stopsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "mbtatracker:", err)
		os.Exit(1)
	}
}
