// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package eolog

import (
	"fmt"
	"io"
	"os"
	stdlog "log"
)

// Provides a simple way of logging with different levels.
// Time/Date are not logged because systemd adds
// them for us (Default, can be changed with SetLogDateTime(true)).
//
// Uses these prefixes: https://www.freedesktop.org/software/systemd/man/sd-daemon.html

var logDateTime bool

var (
	DebugWriter io.Writer = os.Stderr
	InfoWriter  io.Writer = os.Stderr
	WarnWriter  io.Writer = os.Stderr
	ErrWriter   io.Writer = os.Stderr
)

var (
	DebugPrefix string = "<7>[DEBUG]    "
	InfoPrefix  string = "<6>[INFO]     "
	WarnPrefix  string = "<4>[WARNING]  "
	ErrPrefix   string = "<3>[ERROR]    "
)

var (
	// No Time/Date
	DebugLog *stdlog.Logger = stdlog.New(DebugWriter, DebugPrefix, 0)
	InfoLog  *stdlog.Logger = stdlog.New(InfoWriter, InfoPrefix, 0)
	WarnLog  *stdlog.Logger = stdlog.New(WarnWriter, WarnPrefix, stdlog.Lshortfile)
	ErrLog   *stdlog.Logger = stdlog.New(ErrWriter, ErrPrefix, stdlog.Llongfile)
	// Log Time/Date
	DebugTimeLog *stdlog.Logger = stdlog.New(DebugWriter, DebugPrefix, stdlog.LstdFlags)
	InfoTimeLog  *stdlog.Logger = stdlog.New(InfoWriter, InfoPrefix, stdlog.LstdFlags)
	WarnTimeLog  *stdlog.Logger = stdlog.New(WarnWriter, WarnPrefix, stdlog.LstdFlags|stdlog.Lshortfile)
	ErrTimeLog   *stdlog.Logger = stdlog.New(ErrWriter, ErrPrefix, stdlog.LstdFlags|stdlog.Llongfile)
)

/* CONFIG */

func SetLogLevel(lvl string) {
	switch lvl {
	case "err", "fatal":
		WarnWriter = io.Discard
		fallthrough
	case "warn":
		InfoWriter = io.Discard
		fallthrough
	case "info":
		DebugWriter = io.Discard
	case "debug":
		// Nothing to do...
	default:
		fmt.Printf("eolog: flag 'loglevel' has invalid value %#v\neolog: will use default loglevel 'debug'\n", lvl)
		SetLogLevel("debug")
	}
}

func SetLogDateTime(logdate bool) {
	logDateTime = logdate
}

/* PRINT */

func printStr(v ...interface{}) string {
	return fmt.Sprint(v...)
}

func Print(v ...interface{}) {
	Info(v...)
}

func Debug(v ...interface{}) {
	if DebugWriter != io.Discard {
		out := printStr(v...)
		if logDateTime {
			DebugTimeLog.Output(2, out)
		} else {
			DebugLog.Output(2, out)
		}
	}
}

func Info(v ...interface{}) {
	if InfoWriter != io.Discard {
		out := printStr(v...)
		if logDateTime {
			InfoTimeLog.Output(2, out)
		} else {
			InfoLog.Output(2, out)
		}
	}
}

func Warn(v ...interface{}) {
	if WarnWriter != io.Discard {
		out := printStr(v...)
		if logDateTime {
			WarnTimeLog.Output(2, out)
		} else {
			WarnLog.Output(2, out)
		}
	}
}

func Error(v ...interface{}) {
	if ErrWriter != io.Discard {
		out := printStr(v...)
		if logDateTime {
			ErrTimeLog.Output(2, out)
		} else {
			ErrLog.Output(2, out)
		}
	}
}

// Writes error log, stops application
func Fatal(v ...interface{}) {
	Error(v...)
	os.Exit(1)
}

/* PRINT FORMAT */

func printfStr(format string, v ...interface{}) string {
	return fmt.Sprintf(format, v...)
}

func Printf(format string, v ...interface{}) {
	Infof(format, v...)
}

func Debugf(format string, v ...interface{}) {
	if DebugWriter != io.Discard {
		out := printfStr(format, v...)
		if logDateTime {
			DebugTimeLog.Output(2, out)
		} else {
			DebugLog.Output(2, out)
		}
	}
}

func Infof(format string, v ...interface{}) {
	if InfoWriter != io.Discard {
		out := printfStr(format, v...)
		if logDateTime {
			InfoTimeLog.Output(2, out)
		} else {
			InfoLog.Output(2, out)
		}
	}
}

func Warnf(format string, v ...interface{}) {
	if WarnWriter != io.Discard {
		out := printfStr(format, v...)
		if logDateTime {
			WarnTimeLog.Output(2, out)
		} else {
			WarnLog.Output(2, out)
		}
	}
}

func Errorf(format string, v ...interface{}) {
	if ErrWriter != io.Discard {
		out := printfStr(format, v...)
		if logDateTime {
			ErrTimeLog.Output(2, out)
		} else {
			ErrLog.Output(2, out)
		}
	}
}

// Writes error log, stops application
func Fatalf(format string, v ...interface{}) {
	Errorf(format, v...)
	os.Exit(1)
}
