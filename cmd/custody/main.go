package main

import (
	"fmt"
	"log"
	"os"

	"github.com/nspcc-dev/custody-contract/common"
	"github.com/nspcc-dev/custody-contract/config"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "custody"
	app.Usage = "Custody program tooling"
	app.Version = common.VersionString()
	app.HideVersion = true
	app.Commands = []cli.Command{
		deriveCommand(),
		simulateCommand(),
		{
			Name:  "version",
			Usage: "Print program version",
			Action: func(*cli.Context) error {
				fmt.Println(common.VersionString())
				return nil
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var configFlag = cli.StringFlag{
	Name:  "config, c",
	Usage: "Path to the YAML configuration, defaults are used if not set",
}

func loadConfig(c *cli.Context) (config.Config, error) {
	path := c.String("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
