package runtime

import (
	"fmt"
	"log/slog"

	"github.com/tjfontaine/assetd/internal/config"
	"github.com/tjfontaine/assetd/internal/core/ports"
	"github.com/tjfontaine/assetd/internal/stage"
	"github.com/tjfontaine/assetd/internal/storage/memory"
	"github.com/tjfontaine/assetd/internal/storage/sqlite"
)

// Option is a functional option for configuring a Server.
type Option func(*Server) error

// WithFileConfig uses file-based configuration with hot-reload (default).
// The path should point to a config.yaml file that will be watched for changes.
func WithFileConfig(path string) Option {
	return func(s *Server) error {
		if path == "" {
			path = config.DefaultPath
		}
		provider, err := config.NewProvider(path, s.logger)
		if err != nil {
			return fmt.Errorf("create file config provider: %w", err)
		}
		s.config = provider
		return nil
	}
}

// WithConfigProvider sets a custom config provider.
// For advanced use cases where you need full control over config loading.
func WithConfigProvider(provider ports.ConfigProvider) Option {
	return func(s *Server) error {
		s.config = provider
		return nil
	}
}

// WithLogger sets a custom logger. Pass it before WithFileConfig so the
// provider logs through it too.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithPort overrides server.port from the configuration.
func WithPort(port int) Option {
	return func(s *Server) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("port %d out of range", port)
		}
		s.port = &port
		return nil
	}
}

// WithJournal sets the compilation journal. A nil store disables the
// journal regardless of journal.type.
func WithJournal(store ports.JournalStore) Option {
	return func(s *Server) error {
		s.journal = store
		s.journalSet = true
		return nil
	}
}

// WithMemoryJournal keeps the most recent capacity compilations in memory.
func WithMemoryJournal(capacity int) Option {
	return WithJournal(memory.New(capacity))
}

// WithSQLiteJournal persists compilations to a SQLite database.
func WithSQLiteJournal(path string) Option {
	return func(s *Server) error {
		store, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("create sqlite journal: %w", err)
		}
		s.journal = store
		s.journalSet = true
		return nil
	}
}

// WithEventPublisher sets an additional destination for asset change events.
// While the debug listener is enabled its websocket clients keep receiving
// them too.
func WithEventPublisher(publisher ports.EventPublisher) Option {
	return func(s *Server) error {
		s.events = publisher
		return nil
	}
}

// WithStyleCompiler sets the stylesheet backend instead of style.compiler.
func WithStyleCompiler(compiler stage.StyleCompiler) Option {
	return func(s *Server) error {
		s.style = compiler
		return nil
	}
}
