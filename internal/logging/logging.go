// Copyright (C) 2015-2016  Nexedi SA and Contributors.
//                          Kirill Smelkov <kirr@nexedi.com>
//
// This program is free software: you can Use, Study, Modify and Redistribute
// it under the terms of the GNU General Public License version 3, or (at your
// option) any later version, as published by the Free Software Foundation.
//
// This program is distributed WITHOUT ANY WARRANTY; without even the implied
// warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// See COPYING file for full licensing terms.

// Package logging sets up the structured logger shared by cmd/git-remote-nip
// and cmd/git-remote-nipdev, replacing the original git-backup.go's
// verbose/infof/debugf/countFlag scheme with equivalent logrus levels - a
// positive verbosity raises to Debug/Trace, a negative one lowers to Warn.
//
// A git remote helper's stdout is the git<->helper protocol channel:
// nothing but protocol lines may ever reach it. All logging therefore goes
// to stderr, which git passes through to the terminal untouched.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Verbosity mirrors the original countFlag: positive values raise
// verbosity, negative values lower it, relative to Info.
type Verbosity int

// New returns a logrus.Logger writing to stderr in git-backup's original
// text formatter style, at the level Verbosity selects.
func New(v Verbosity) *logrus.Logger {
	log := logrus.New()
	log.Out = os.Stderr
	log.Formatter = &logrus.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    false,
	}
	log.Level = levelFor(v)
	return log
}

func levelFor(v Verbosity) logrus.Level {
	switch {
	case v <= -1:
		return logrus.WarnLevel
	case v == 0:
		return logrus.InfoLevel
	case v == 1:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}
