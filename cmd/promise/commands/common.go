// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package commands promise cli commands
package commands

import (
	"github.com/33cn/puzzlepromise/store"
	"github.com/33cn/puzzlepromise/types"
	"github.com/spf13/cobra"
)

func loadConfig(cmd *cobra.Command) (*types.Config, error) {
	path, _ := cmd.Flags().GetString("conf")
	if path == "" {
		return types.DefaultConfig(), nil
	}
	return types.InitCfg(path)
}

func openStore(cmd *cobra.Command) (*store.SessionStore, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return store.New(cfg.Store)
}
