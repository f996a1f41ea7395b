package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/richinex/agentrag/storage"
)

// ListTools initializes the agent and prints its registered tools.
func ListTools(ctx context.Context, app *App, w io.Writer, verbose bool) error {
	if err := app.Agents().EnsureReady(ctx); err != nil {
		return err
	}
	ag, err := app.Agents().Agent()
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "Available tools:")
	fmt.Fprintln(w)
	for _, meta := range ag.Registry().Metadata() {
		fmt.Fprintf(w, "  %s\n", meta.Name)
		fmt.Fprintf(w, "    %s\n", meta.Description)

		if verbose && len(meta.Parameters) > 0 {
			fmt.Fprintln(w, "    Parameters:")
			for _, param := range meta.Parameters {
				req := ""
				if param.Required {
					req = "*"
				}
				fmt.Fprintf(w, "      %s%s: %s - %s\n", param.Name, req, param.ParamType, param.Description)
			}
		}
		fmt.Fprintln(w)
	}
	if failed := app.Agents().Info().FailedSources; len(failed) > 0 {
		fmt.Fprintf(w, "Unavailable tool sources: %v\n", failed)
	}
	return nil
}

// Seed creates the CRM database at path if needed and loads the sample
// customers into it when empty.
func Seed(ctx context.Context, path string, w io.Writer) error {
	repo, err := storage.OpenSqliteCustomers(path)
	if err != nil {
		return err
	}
	defer repo.Close()

	inserted, err := storage.SeedSampleData(ctx, repo)
	if err != nil {
		return err
	}
	n, err := repo.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Inserted %d customers into %s (total %d, active %d, inactive %d)\n",
		inserted, path, n.Total, n.Active, n.Inactive)
	return nil
}

// Index rebuilds the document index from the configured URLs, replacing
// any cached copy.
func Index(ctx context.Context, app *App, w io.Writer) error {
	if !app.Retrieval().Enabled() {
		return fmt.Errorf("document retrieval is disabled (FAISS_ENABLED=false)")
	}
	chunks, err := app.Retrieval().Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("failed to build document index: %w", err)
	}
	fmt.Fprintf(w, "Indexed %d chunks\n", chunks)
	return nil
}
