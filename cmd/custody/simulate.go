package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/nspcc-dev/custody-contract/sim"
	"github.com/urfave/cli"
	"gopkg.in/yaml.v3"
)

func simulateCommand() cli.Command {
	return cli.Command{
		Name:      "simulate",
		Usage:     "Run the YAML scenario against an in-memory ledger and print the report",
		ArgsUsage: "<scenario.yml>",
		Flags: []cli.Flag{
			configFlag,
			cli.StringFlag{Name: "restore", Usage: "Load ledger accounts from the CSV dump before running"},
			cli.StringFlag{Name: "dump", Usage: "Write resulting ledger accounts as CSV to the file"},
		},
		Action: simulate,
	}
}

func simulate(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("exactly one scenario file expected")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	programs, err := cfg.ProgramIDs()
	if err != nil {
		return err
	}

	log, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	f, err := os.Open(c.Args().First())
	if err != nil {
		return fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()

	sc, err := sim.LoadScenario(f)
	if err != nil {
		return err
	}

	env, err := sim.New(sim.Prm{
		Programs: programs,
		Rent:     cfg.LedgerRent(),
		Logger:   log,
	})
	if err != nil {
		return err
	}

	if path := c.String("restore"); path != "" {
		if err := restoreLedger(env, path); err != nil {
			return err
		}
	}

	rep, runErr := env.Run(sc)

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	if path := c.String("dump"); path != "" {
		if err := dumpLedger(env, path); err != nil {
			return err
		}
	}

	return runErr
}

func dumpLedger(env *sim.Env, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dump file: %w", err)
	}
	defer f.Close()

	if err := env.Ledger.Dump(f); err != nil {
		return fmt.Errorf("dump ledger: %w", err)
	}

	return nil
}

func restoreLedger(env *sim.Env, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open dump file: %w", err)
	}
	defer f.Close()

	if err := env.Ledger.Restore(f); err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}

	return nil
}
