// Package assetd provides the public API for embedding the asset server.
// This is the stable API for external consumers.
package assetd

import (
	"github.com/tjfontaine/assetd/internal/runtime"
)

// Server compiles script and style assets on request.
// See internal/runtime.Server for full documentation.
type Server = runtime.Server

// Option is a functional option for configuring a Server.
type Option = runtime.Option

// CompileRequest describes a one-off compilation.
type CompileRequest = runtime.CompileRequest

// New creates a new Server with the given options.
// Example:
//
//	srv, err := assetd.New(
//	    assetd.WithFileConfig("config.yaml"),
//	    assetd.WithSQLiteJournal("./data/journal.db"),
//	)
var New = runtime.New

// Compile runs a single asset through the configured stage chain.
var Compile = runtime.Compile

// Configuration options
var (
	// Config sources
	WithFileConfig     = runtime.WithFileConfig
	WithConfigProvider = runtime.WithConfigProvider

	// Journal
	WithJournal       = runtime.WithJournal
	WithMemoryJournal = runtime.WithMemoryJournal
	WithSQLiteJournal = runtime.WithSQLiteJournal

	// Advanced options
	WithLogger         = runtime.WithLogger
	WithPort           = runtime.WithPort
	WithEventPublisher = runtime.WithEventPublisher
	WithStyleCompiler  = runtime.WithStyleCompiler
)
