package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okt-galaktionov/confd/internal/backupop"
	"github.com/okt-galaktionov/confd/internal/backupxml"
	"github.com/okt-galaktionov/confd/internal/bus"
	"github.com/okt-galaktionov/confd/internal/filterdoc"
	"github.com/okt-galaktionov/confd/internal/oid"
	"github.com/okt-galaktionov/confd/internal/restore"
	"github.com/okt-galaktionov/confd/internal/schema"
	"github.com/okt-galaktionov/confd/internal/synctarget"
)

var (
	subtreeFlags   []string
	filterFileFlag string
)

func addSubtreeFlag(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&subtreeFlags, "subtree", nil, "restrict the operation to this OID subtree (repeatable; default: whole tree)")
	cmd.Flags().StringVar(&filterFileFlag, "filter-file", "", "read subtree restrictions from a <filters> document (combined with --subtree)")
}

// resolveSubtrees merges --subtree values with the subtrees listed in
// --filter-file, if one was given.
func resolveSubtrees() ([]string, error) {
	out := append([]string(nil), subtreeFlags...)
	if filterFileFlag == "" {
		return out, nil
	}
	f, err := os.Open(filterFileFlag)
	if err != nil {
		return nil, fmt.Errorf("confd: open %s: %w", filterFileFlag, err)
	}
	defer f.Close()

	oids, err := filterdoc.Parse(f)
	if err != nil {
		return nil, err
	}
	for _, o := range oids {
		out = append(out, string(o))
	}
	return out, nil
}

var verifyCmd = &cobra.Command{
	Use:   "verify <backup-file>",
	Short: "Check the live state against a backup file without changing anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBackupOp(bus.OpVerify, args[0])
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <backup-file>",
	Short: "Reconcile the live state to match a backup file (RESTORE_NOHISTORY)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBackupOp(bus.OpRestoreNoHistory, args[0])
	},
}

var createCmd = &cobra.Command{
	Use:   "create <backup-file>",
	Short: "Write the live state out as a backup document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBackupOp(bus.OpCreate, args[0])
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <backup-file>",
	Short: "Verify; on mismatch, restore and re-verify (VERIFY_AND_RESTORE)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBackupOp(bus.OpVerifyAndRestore, args[0])
	},
}

func init() {
	for _, cmd := range []*cobra.Command{verifyCmd, restoreCmd, createCmd, reconcileCmd} {
		addSubtreeFlag(cmd)
	}
}

// runBackupOp builds the reconciliation Engine and dispatches a single
// backup operation. create needs no schema bootstrap (it only reads
// what's already registered); every other op bootstraps a fresh registry
// straight from filename's own <object> entries.
func runBackupOp(op bus.BackupOp, filename string) error {
	reg := newRegistry()

	if op != bus.OpCreate {
		if err := bootstrapFromFile(reg, filename); err != nil {
			return err
		}
	}

	store := openStoreOrExit(rootCtx, reg)
	if closer, ok := store.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	engine := &backupop.Engine{
		Registry: reg,
		Store:    store,
		Sync:     synctarget.Noop{},
		Logger:   logger,
		Metrics:  rec,
		RestoreOpts: restore.Options{
			MaxOuterIterations: cfg.RestoreMaxOuterIterations(),
		},
		AgentSubtrees: toOIDs(cfg.AgentSubtrees()),
	}

	subtrees, err := resolveSubtrees()
	if err != nil {
		return err
	}

	dispatcher := &bus.Dispatcher{Registry: reg, Store: store, Backup: engine}
	req := &bus.Backup{Op: op, Filename: filename, Subtrees: subtrees}
	opErr := dispatcher.Process(rootCtx, req)

	if jsonOutput {
		printJSONResult(req, opErr)
	} else {
		printTextResult(filename, req, opErr)
	}

	if opErr != nil && !errors.Is(opErr, backupop.ErrDiverged) {
		return opErr
	}
	if opErr != nil {
		os.Exit(1)
	}
	return nil
}

func bootstrapFromFile(reg *schema.Registry, filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("confd: open %s: %w", filename, err)
	}
	defer f.Close()

	doc, err := backupxml.Read(f)
	if err != nil {
		return err
	}
	return backupop.RegisterObjects(reg, doc.Objects)
}

func toOIDs(ss []string) []oid.OID {
	if len(ss) == 0 {
		return nil
	}
	out := make([]oid.OID, len(ss))
	for i, s := range ss {
		out[i] = oid.OID(s)
	}
	return out
}

func printJSONResult(req *bus.Backup, opErr error) {
	result := map[string]any{
		"op":     req.Op,
		"file":   req.Filename,
		"status": req.Status.String(),
	}
	if opErr != nil {
		result["error"] = opErr.Error()
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
}

func printTextResult(filename string, req *bus.Backup, opErr error) {
	if opErr == nil {
		fmt.Printf("%s: OK (%s)\n", filename, req.Status)
		return
	}
	if errors.Is(opErr, backupop.ErrDiverged) {
		fmt.Printf("%s: DIVERGED: %v\n", filename, opErr)
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", filename, opErr)
}
