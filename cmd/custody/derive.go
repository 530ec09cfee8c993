package main

import (
	"errors"
	"fmt"

	"github.com/nspcc-dev/custody-contract/common"
	rpccustody "github.com/nspcc-dev/custody-contract/rpc/custody"
	"github.com/nspcc-dev/custody-contract/services/delegation"
	"github.com/urfave/cli"
)

func deriveCommand() cli.Command {
	return cli.Command{
		Name:  "derive",
		Usage: "Print addresses of the records of the owner×asset pair",
		Flags: []cli.Flag{
			configFlag,
			cli.StringFlag{Name: "owner", Usage: "Base58 balance record owner"},
			cli.StringFlag{Name: "asset", Usage: "Base58 asset mint"},
		},
		Action: derive,
	}
}

func derive(c *cli.Context) error {
	switch {
	case c.String("owner") == "":
		return errors.New("missing owner")
	case c.String("asset") == "":
		return errors.New("missing asset")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	programs, err := cfg.ProgramIDs()
	if err != nil {
		return err
	}

	owner, err := common.DecodeAddress(c.String("owner"))
	if err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	asset, err := common.DecodeAddress(c.String("asset"))
	if err != nil {
		return fmt.Errorf("asset: %w", err)
	}

	b := rpccustody.NewBuilder(programs)

	rec, recBump, err := b.BalanceRecordAddress(owner, asset)
	if err != nil {
		return err
	}
	vault, vaultBump, err := b.VaultRecordAddress(asset)
	if err != nil {
		return err
	}
	perm, err := b.PermissionAddress(owner, asset)
	if err != nil {
		return err
	}
	delegationRecord, _, err := delegation.RecordAddress(programs.Delegation, rec)
	if err != nil {
		return err
	}

	fmt.Printf("balance record:    %s (bump %d)\n", common.EncodeAddress(rec), recBump)
	fmt.Printf("vault record:      %s (bump %d)\n", common.EncodeAddress(vault), vaultBump)
	fmt.Printf("permission record: %s\n", common.EncodeAddress(perm))
	fmt.Printf("delegation record: %s\n", common.EncodeAddress(delegationRecord))

	return nil
}
