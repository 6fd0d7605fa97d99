// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package log 日志相关接口以及函数
package log

import (
	"io"
	"os"
	"strings"

	"github.com/33cn/puzzlepromise/types"
	log15 "github.com/inconshreveable/log15"
	"gopkg.in/natefinch/lumberjack.v2"
)

// moduleKey context key every package logger is created with
const moduleKey = "module"

//SetLogLevel 设置控制台日志输出级别
func SetLogLevel(logLevel string) {
	log15.Root().SetHandler(consoleHandler(getLevel(logLevel), nil))
}

//SetFileLog 设置文件日志和控制台日志信息，log.module 按模块覆盖级别
func SetFileLog(cfg *types.Log) {
	if cfg == nil {
		cfg = &types.Log{LogFile: "logs/puzzlepromise.log"}
	}
	fillDefaultValue(cfg)
	modules := moduleLevels(cfg.Module)
	console := consoleHandler(getLevel(cfg.LogConsoleLevel), modules)
	if cfg.LogFile == "" {
		log15.Root().SetHandler(console)
		return
	}
	log15.Root().SetHandler(log15.MultiHandler(console, fileHandler(cfg, modules)))
}

// 默认error级别
func fillDefaultValue(cfg *types.Log) {
	if cfg.Loglevel == "" {
		cfg.Loglevel = log15.LvlError.String()
	}
	if cfg.LogConsoleLevel == "" {
		cfg.LogConsoleLevel = log15.LvlError.String()
	}
}

func moduleLevels(conf map[string]string) map[string]log15.Lvl {
	if len(conf) == 0 {
		return nil
	}
	levels := make(map[string]log15.Lvl, len(conf))
	for name, lvl := range conf {
		levels[name] = getLevel(lvl)
	}
	return levels
}

// levelOf "db" covers "db.goleveldb", the longest configured prefix wins
func levelOf(module string, def log15.Lvl, modules map[string]log15.Lvl) log15.Lvl {
	for name := module; name != ""; {
		if lvl, ok := modules[name]; ok {
			return lvl
		}
		i := strings.LastIndexAny(name, ". ")
		if i < 0 {
			break
		}
		name = name[:i]
	}
	return def
}

func recordModule(r *log15.Record) string {
	for i := 0; i+1 < len(r.Ctx); i += 2 {
		if k, ok := r.Ctx[i].(string); ok && k == moduleKey {
			if v, ok := r.Ctx[i+1].(string); ok {
				return v
			}
		}
	}
	return ""
}

// filterHandler 按记录所属模块的级别过滤
func filterHandler(def log15.Lvl, modules map[string]log15.Lvl, h log15.Handler) log15.Handler {
	if len(modules) == 0 {
		return log15.LvlFilterHandler(def, h)
	}
	return log15.FilterHandler(func(r *log15.Record) bool {
		return r.Lvl <= levelOf(recordModule(r), def, modules)
	}, h)
}

func consoleHandler(lvl log15.Lvl, modules map[string]log15.Lvl) log15.Handler {
	return filterHandler(lvl, modules, streamHandler(os.Stdout, log15.TerminalFormat()))
}

// windows 控制台不支持颜色
func streamHandler(w io.Writer, format log15.Format) log15.Handler {
	if os.PathSeparator == '\\' {
		format = log15.LogfmtFormat()
	}
	return log15.StreamHandler(w, format)
}

func fileHandler(cfg *types.Log, modules map[string]log15.Lvl) log15.Handler {
	rotate := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    int(cfg.MaxFileSize),
		MaxBackups: int(cfg.MaxBackups),
		MaxAge:     int(cfg.MaxAge),
		LocalTime:  cfg.LocalTime,
		Compress:   cfg.Compress,
	}
	h := filterHandler(getLevel(cfg.Loglevel), modules, log15.StreamHandler(rotate, log15.LogfmtFormat()))
	if cfg.CallerFile {
		h = log15.CallerFileHandler(h)
	}
	if cfg.CallerFunction {
		h = log15.CallerFuncHandler(h)
	}
	return h
}

// getLevel 配置错误时为error级别
func getLevel(lvlString string) log15.Lvl {
	lvl, err := log15.LvlFromString(lvlString)
	if err != nil {
		return log15.LvlError
	}
	return lvl
}

//New new
func New(ctx ...interface{}) log15.Logger {
	return log15.Root().New(ctx...)
}
