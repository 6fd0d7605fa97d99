// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/33cn/puzzlepromise/promise"
	"github.com/33cn/puzzlepromise/store"
	"github.com/33cn/puzzlepromise/types"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// SessionsCmd inspect the session store
func SessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "list, show or delete stored sessions",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.AddCommand(
		listSessionsCmd(),
		showSessionCmd(),
		deleteSessionCmd(),
	)
	return cmd
}

func listSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list stored sessions",
		Run: withStore(func(s *store.SessionStore, args []string) error {
			return listSessions(s, os.Stdout)
		}),
	}
}

func showSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "print the snapshot of a session",
		Args:  cobra.ExactArgs(1),
		Run: withStore(func(s *store.SessionStore, args []string) error {
			return showSession(s, args[0], os.Stdout)
		}),
	}
}

func deleteSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "delete a session",
		Args:  cobra.ExactArgs(1),
		Run: withStore(func(s *store.SessionStore, args []string) error {
			return deleteSession(s, args[0])
		}),
	}
}

func withStore(run func(s *store.SessionStore, args []string) error) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		s, err := openStore(cmd)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}
		defer s.Close()
		if err := run(s, args); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

func listSessions(s *store.SessionStore, out io.Writer) error {
	entries, err := s.List()
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%-10s %s %s\n", e.Kind, e.ID, e.State)
	}
	return nil
}

// findSession looks the id up as a requester, then as a signer
func findSession(s *store.SessionStore, id string) (string, []byte, error) {
	for _, kind := range []string{store.KindRequester, store.KindSigner} {
		data, err := s.Get(kind, id)
		if err == nil {
			return kind, data, nil
		}
		if errors.Cause(err) != types.ErrNotFound {
			return "", nil, err
		}
	}
	return "", nil, errors.Wrapf(types.ErrNotFound, "session %s", id)
}

type sessionView struct {
	ID      string          `json:"id"`
	Version int             `json:"version"`
	Kind    string          `json:"kind"`
	State   string          `json:"state"`
	Session json.RawMessage `json:"session"`
}

func showSession(s *store.SessionStore, id string, out io.Writer) error {
	_, data, err := findSession(s, id)
	if err != nil {
		return err
	}
	info, err := promise.ParseSnapshotInfo(data)
	if err != nil {
		return err
	}
	view := &sessionView{
		ID:      id,
		Version: info.Version,
		Kind:    info.Kind,
		State:   info.State,
		Session: json.RawMessage(info.Body),
	}
	text, err := json.MarshalIndent(view, "", "    ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(text))
	return nil
}

func deleteSession(s *store.SessionStore, id string) error {
	kind, _, err := findSession(s, id)
	if err != nil {
		return err
	}
	return s.Delete(kind, id)
}
