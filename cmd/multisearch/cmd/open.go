package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dillonfkhanna/multi-search/internal/embed"
	mserrors "github.com/dillonfkhanna/multi-search/internal/errors"
	"github.com/dillonfkhanna/multi-search/internal/index"
	"github.com/dillonfkhanna/multi-search/internal/scanner"
)

// openIndex opens the index at the configured storage root. Unless
// keywordOnly is set it connects the configured embedding model; when the
// model is unreachable a warning is printed and the index opens
// keyword-only.
func (a *app) openIndex(cmd *cobra.Command, keywordOnly bool) (*index.Manager, error) {
	ctx := cmd.Context()

	var embedder embed.Embedder
	if !keywordOnly {
		e, err := embed.NewEmbedder(ctx, a.cfg.Embeddings)
		switch {
		case errors.Is(err, mserrors.ErrModelUnavailable):
			a.messages(cmd).Warningf("%v; continuing keyword-only", err)
		case err != nil:
			return nil, err
		default:
			embedder = e
		}
	}

	m, err := index.OpenOrCreate(ctx, a.cfg.Storage.Root, index.OptionsFrom(a.cfg), index.Deps{Embedder: embedder})
	if err != nil {
		if embedder != nil {
			_ = embedder.Close()
		}
		return nil, err
	}
	return m, nil
}

// newCoordinator pairs m with a scanner built from the ingest settings.
func (a *app) newCoordinator(m *index.Manager) (*index.Coordinator, *scanner.Scanner, error) {
	s, err := scanner.New(scanner.OptionsFrom(a.cfg.Ingest))
	if err != nil {
		return nil, nil, fmt.Errorf("create scanner: %w", err)
	}
	return index.NewCoordinator(m, s), s, nil
}

// closeIndex closes m, logging rather than returning the error so it does
// not mask the command's own.
func closeIndex(m *index.Manager) {
	if err := m.Close(); err != nil {
		slog.Error("index_close_failed", slog.String("error", err.Error()))
	}
}

// rootsFromArgs returns the directories to index, defaulting to the
// current directory.
func rootsFromArgs(args []string) ([]string, error) {
	if len(args) == 0 {
		args = []string{"."}
	}
	roots := make([]string, len(args))
	for i, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", arg, err)
		}
		roots[i] = abs
	}
	return roots, nil
}
