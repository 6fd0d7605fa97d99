// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics protocol outcome counters
package metrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/33cn/puzzlepromise/common/log"
	"github.com/33cn/puzzlepromise/types"
	log15 "github.com/inconshreveable/log15"
	go_metrics "github.com/rcrowley/go-metrics"
)

var (
	mlog = log.New("module", "promise metrics")

	// Registry every promise counter lives here
	Registry = go_metrics.NewRegistry()

	// SequencingErrors operations invoked in the wrong session state
	SequencingErrors = go_metrics.NewRegisteredCounter("promise.sequencing.errors", Registry)
	// ValidationErrors malformed messages: counts, ranges, encodings
	ValidationErrors = go_metrics.NewRegisteredCounter("promise.validation.errors", Registry)
	// ProofErrors the counterparty failed a cryptographic check
	ProofErrors = go_metrics.NewRegisteredCounter("promise.proof.errors", Registry)
	// CandidatesSkipped real candidates that did not yield a signed transaction
	CandidatesSkipped = go_metrics.NewRegisteredCounter("promise.candidates.skipped", Registry)
	// SessionsCompleted sessions that reached their final state
	SessionsCompleted = go_metrics.NewRegisteredCounter("promise.sessions.completed", Registry)
	// TransactionsSigned fully signed cashout transactions produced
	TransactionsSigned = go_metrics.NewRegisteredCounter("promise.transactions.signed", Registry)
)

type logPrinter struct {
	l log15.Logger
}

func (p logPrinter) Printf(format string, v ...interface{}) {
	p.l.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

//StartMetrics 根据配置文件相关参数启动
func StartMetrics(cfg *types.Metrics) {
	if cfg == nil || !cfg.EnableMetrics {
		mlog.Info("Metrics data is not enabled to emit")
		return
	}
	interval := time.Duration(cfg.Interval) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	mlog.Info("StartMetrics", "interval", interval)
	go go_metrics.Log(Registry, interval, logPrinter{mlog})
}

// Snapshot current value of every counter
func Snapshot() map[string]int64 {
	values := make(map[string]int64)
	Registry.Each(func(name string, m interface{}) {
		if c, ok := m.(go_metrics.Counter); ok {
			values[name] = c.Count()
		}
	})
	return values
}
