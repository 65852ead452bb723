// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"path/filepath"

	"github.com/btcsuite/btcutil"
	flags "github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

const (
	defaultCheckpointFile = "reindex.checkpoint.json"
	defaultReportFile     = "reindex.report.json"
)

var (
	tenebriumdHomeDir = btcutil.AppDataDir("tenebriumd", false)
	activeConfig      *ConfigFlags
)

// ConfigFlags defines the configuration options for utxoreindex.
//
// See loadConfig for details on the configuration load process.
type ConfigFlags struct {
	Source      string `short:"s" long:"source" description:"Location of the v1-keyed source UTXO database (opened read-only)"`
	Destination string `short:"o" long:"destination" description:"Location of the v2-keyed destination UTXO database"`
	Archive     string `short:"a" long:"archive" description:"JSONL transaction archive used to resolve v1 txids"`
	Checkpoint  string `long:"checkpoint" description:"Path of the resume checkpoint file"`
	Report      string `short:"r" long:"report" description:"Path of the JSON report to write"`
	Interval    uint64 `long:"interval" description:"Number of source entries per checkpoint commit"`
	Sample      int    `long:"sample" description:"Number of entries re-derived end-to-end during verification"`
	DryRun      bool   `short:"n" long:"dry-run" description:"Perform the full pass without writing to the destination"`
	Verify      bool   `long:"verify" description:"Verify a completed migration instead of running one"`
}

// loadConfig initializes and parses the config using command line options.
func loadConfig() (*ConfigFlags, error) {
	activeConfig = &ConfigFlags{
		Checkpoint: filepath.Join(tenebriumdHomeDir, defaultCheckpointFile),
		Report:     filepath.Join(tenebriumdHomeDir, defaultReportFile),
	}
	parser := flags.NewParser(activeConfig, flags.Default)
	_, err := parser.Parse()
	if err != nil {
		return nil, err
	}

	if activeConfig.Source == "" {
		return nil, errors.New("the --source database location is required")
	}
	if activeConfig.Archive == "" {
		return nil, errors.New("the --archive location is required")
	}
	if activeConfig.Destination == "" && !activeConfig.DryRun {
		return nil, errors.New("the --destination database location is required " +
			"unless --dry-run is given")
	}
	return activeConfig, nil
}
