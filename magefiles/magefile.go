// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build mage

// Package main provides build targets for the segments project using Mage.
//
// Usage:
//
//	mage build        Compile the segments binary to bin/
//	mage test:all     Run every test with the race detector
//	mage test:unit    Run the library and backend tests
//	mage test:cover   Write a coverage profile to bin/coverage.out
//	mage lint         Run golangci-lint
//	mage clean        Remove build artifacts
//	mage install      Install segments to GOPATH/bin
package main

const (
	binGo      = "go"
	binaryName = "segments"
	binaryDir  = "bin"
	cmdDir     = "./cmd/segments"
)
