package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/mesh-intelligence/cidian/internal/paths"
	"github.com/mesh-intelligence/cidian/pkg/sqlite"
	"github.com/mesh-intelligence/cidian/pkg/types"
)

// errUsage marks argument errors detected by the CLI itself.
var errUsage = errors.New("usage")

// attachBackend resolves the dictionary, creates a SQLite backend and
// attaches it. The caller must defer store.Detach().
func (a *app) attachBackend() (types.Store, error) {
	dictPath, err := paths.ResolveDictionaryPath(a.cfg.DictionaryPath, a.dataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve dictionary: %w", err)
	}

	cfg := types.Config{
		Backend:        types.BackendSQLite,
		DataDir:        a.dataDir,
		DictionaryPath: dictPath,
		HalfLifeDays:   a.cfg.HalfLifeDays,
	}

	store := sqlite.NewBackend(a.logger)
	if err := store.Attach(cfg); err != nil {
		return nil, fmt.Errorf("attach backend: %w", err)
	}
	return store, nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Fprintln(w, string(output))
	return nil
}

// parseID parses a positive note id.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid note id %q", types.ErrInvalidInput, s)
	}
	return id, nil
}

// parseIDs parses every element of args as a note id.
func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		for _, field := range strings.Split(arg, ",") {
			if strings.TrimSpace(field) == "" {
				continue
			}
			id, err := parseID(field)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// printNotes writes notes as an aligned table followed by a total line.
func printNotes(w io.Writer, notes []types.Note) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSIMPLIFIED\tPINYIN\tENGLISH\tRIGHT\tWRONG")
	for _, n := range notes {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%d\n",
			n.ID,
			n.Type,
			n.Simplified,
			strings.Join(n.Pinyin, " "),
			strings.Join(n.English, "; "),
			n.TotalCorrectAnswers,
			n.TotalIncorrectAnswers,
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "Total: %d\n", len(notes))
}
