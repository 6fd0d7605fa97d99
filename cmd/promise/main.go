// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/33cn/puzzlepromise/cmd/promise/commands"
	"github.com/33cn/puzzlepromise/common/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "promise",
	Short: "puzzle promise tools",
}

func init() {
	rootCmd.PersistentFlags().String("conf", "", "config file, defaults are used when empty")

	rootCmd.AddCommand(
		commands.KeygenCmd(),
		commands.SimulateCmd(),
		commands.SessionsCmd(),
	)
}

func main() {
	log.SetLogLevel("error")
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
