package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cidian/pkg/types"
)

// noteFlags holds the editable note fields shared by add and update.
type noteFlags struct {
	noteType   string
	english    []string
	pinyin     string
	simplified string
	notes      string
}

func (f *noteFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.noteType, "type", "word", "note type: word, phrase, sentence or grammar")
	cmd.Flags().StringSliceVar(&f.english, "english", nil, "English gloss (repeat or comma-separate for several)")
	cmd.Flags().StringVar(&f.pinyin, "pinyin", "", "pronunciation, syllables separated by spaces (e.g. \"ni3 hao3\")")
	cmd.Flags().StringVar(&f.simplified, "simplified", "", "simplified Chinese characters")
	cmd.Flags().StringVar(&f.notes, "notes", "", "free-form notes")
}

// apply copies the flags the user set onto note.
func (f *noteFlags) apply(cmd *cobra.Command, note *types.Note) error {
	changed := cmd.Flags().Changed
	if changed("type") || note.ID == 0 {
		t, err := types.ParseNoteType(f.noteType)
		if err != nil {
			return err
		}
		note.Type = t
	}
	if changed("english") {
		note.English = f.english
	}
	if changed("pinyin") {
		note.Pinyin = strings.Fields(f.pinyin)
	}
	if changed("simplified") {
		note.Simplified = f.simplified
	}
	if changed("notes") {
		note.Notes = f.notes
	}
	return nil
}

func (a *app) newNoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note",
		Short: "Manage vocabulary notes",
	}
	cmd.AddCommand(a.newNoteAddCmd())
	cmd.AddCommand(a.newNoteAddBatchCmd())
	cmd.AddCommand(a.newNoteGetCmd())
	cmd.AddCommand(a.newNoteDeleteCmd())
	cmd.AddCommand(a.newNoteListCmd())
	cmd.AddCommand(a.newNoteUpdateCmd())
	cmd.AddCommand(a.newNoteSearchCmd())
	cmd.AddCommand(a.newNoteExportCmd())
	cmd.AddCommand(a.newNoteImportCmd())
	return cmd
}

func (a *app) newNoteAddCmd() *cobra.Command {
	var f noteFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a note",
		Long: `Add stores a new note. Search fields are derived from the glosses and
pronunciation; tone marks and tone numbers are both accepted.

Example:
  cidian note add --english hello --pinyin "ni3 hao3" --simplified 你好
  cidian note add --type phrase --english "how are you" --pinyin "nǐ hǎo ma"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var note types.Note
			if err := f.apply(cmd, &note); err != nil {
				return err
			}

			store, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer store.Detach()

			ctx := cmd.Context()
			id, err := store.Notes().Insert(ctx, note)
			if err != nil {
				return fmt.Errorf("add note: %w", err)
			}
			return a.printCreated(ctx, cmd.OutOrStdout(), store, id)
		},
	}
	f.register(cmd)
	_ = cmd.MarkFlagRequired("english")
	_ = cmd.MarkFlagRequired("pinyin")
	return cmd
}

func (a *app) newNoteAddBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-batch <file>",
		Short: "Add several notes at once",
		Long: `Add-batch reads a JSON array of notes from file ("-" for stdin) and stores
them in one transaction. If any note is malformed nothing is stored.

Example:
  cidian note add-batch lesson3.json
  cat lesson3.json | cidian note add-batch -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			notes, err := readNotesArray(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			store, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer store.Detach()

			ids, err := store.Notes().InsertBatch(cmd.Context(), notes)
			if err != nil {
				return fmt.Errorf("add notes: %w", err)
			}
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), ids)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d notes\n", len(ids))
			return nil
		},
	}
}

func (a *app) newNoteGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			store, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer store.Detach()

			note, err := store.Notes().Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), note)
			}
			printNote(cmd.OutOrStdout(), note)
			return nil
		},
	}
}

func (a *app) newNoteDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete notes and their test history",
		Long: `Delete removes each note and its test history. Ids that do not exist are
ignored.

Example:
  cidian note delete 12
  cidian note delete 12 13 14`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			store, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer store.Detach()

			for _, id := range ids {
				if err := store.Notes().Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("delete note %d: %w", id, err)
				}
			}
			if !a.flags.jsonMode {
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d notes\n", len(ids))
			}
			return nil
		},
	}
}

func (a *app) newNoteListCmd() *cobra.Command {
	var noteType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notes",
		Long: `List shows every note in insertion order, optionally restricted to one type.

Example:
  cidian note list
  cidian note list --type sentence
  cidian note list --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer store.Detach()

			var notes []types.Note
			if noteType == "" {
				notes, err = store.Notes().ListAll(cmd.Context())
			} else {
				var t types.NoteType
				t, err = types.ParseNoteType(noteType)
				if err != nil {
					return err
				}
				notes, err = store.Notes().ListByType(cmd.Context(), t)
			}
			if err != nil {
				return fmt.Errorf("list notes: %w", err)
			}

			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), notes)
			}
			printNotes(cmd.OutOrStdout(), notes)
			return nil
		},
	}
	cmd.Flags().StringVar(&noteType, "type", "", "only list notes of this type")
	return cmd
}

func (a *app) newNoteUpdateCmd() *cobra.Command {
	var f noteFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a note",
		Long: `Update changes the fields given as flags and leaves the rest alone. Test
results and the creation time cannot be edited.

Example:
  cidian note update 12 --english "very" --english "quite"
  cidian note update 12 --notes "measure word for flat things"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			store, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer store.Detach()

			ctx := cmd.Context()
			note, err := store.Notes().Get(ctx, id)
			if err != nil {
				return err
			}
			if err := f.apply(cmd, &note); err != nil {
				return err
			}
			if err := store.Notes().Update(ctx, note); err != nil {
				return fmt.Errorf("update note %d: %w", id, err)
			}
			return a.printCreated(ctx, cmd.OutOrStdout(), store, id)
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) newNoteSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search notes by gloss or pronunciation prefix",
		Long: `Search runs two prefix searches: one over English glosses and one over
pronunciation with tones removed.

Example:
  cidian note search hao
  cidian note search "ni hao"
  cidian note search hel`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer store.Detach()

			results, err := store.Notes().SearchPredictions(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("search notes: %w", err)
			}
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), results)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "English matches:")
			printNotes(out, results.EnglishResults)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Pinyin matches:")
			printNotes(out, results.PinyinResults)
			return nil
		},
	}
}

func (a *app) newNoteExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Export all notes as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer store.Detach()

			n, err := store.ExportNotes(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("export notes: %w", err)
			}
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]any{"path": args[0], "count": n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d notes to %s\n", n, args[0])
			return nil
		},
	}
}

func (a *app) newNoteImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import notes from JSON lines",
		Long: `Import reads one note per line and stores them as new notes. Ids and test
results in the file are ignored. A malformed line aborts the whole import.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer store.Detach()

			ids, err := store.ImportNotes(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("import notes: %w", err)
			}
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), ids)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d notes\n", len(ids))
			return nil
		},
	}
}

// printCreated re-reads the note so the output shows the derived fields.
func (a *app) printCreated(ctx context.Context, w io.Writer, store types.Store, id int64) error {
	note, err := store.Notes().Get(ctx, id)
	if err != nil {
		return err
	}
	if a.flags.jsonMode {
		return printJSON(w, note)
	}
	fmt.Fprintf(w, "Saved note: %d\n", note.ID)
	return nil
}

// printNote writes one note as labelled lines.
func printNote(w io.Writer, n types.Note) {
	fmt.Fprintf(w, "ID:          %d\n", n.ID)
	fmt.Fprintf(w, "Type:        %s\n", n.Type)
	fmt.Fprintf(w, "Simplified:  %s\n", n.Simplified)
	fmt.Fprintf(w, "Pinyin:      %s\n", strings.Join(n.Pinyin, " "))
	fmt.Fprintf(w, "English:     %s\n", strings.Join(n.English, "; "))
	if n.Notes != "" {
		fmt.Fprintf(w, "Notes:       %s\n", n.Notes)
	}
	fmt.Fprintf(w, "Results:     %d right, %d wrong\n", n.TotalCorrectAnswers, n.TotalIncorrectAnswers)
	fmt.Fprintf(w, "Correctness: %.2f\n", n.TimeWeightedCorrectness)
}

// readNotesArray decodes a JSON array of notes from path, or from stdin
// when path is "-".
func readNotesArray(stdin io.Reader, path string) ([]types.Note, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read notes: %w", err)
	}

	var notes []types.Note
	if err := json.Unmarshal(data, &notes); err != nil {
		return nil, fmt.Errorf("%w: decode notes: %w", types.ErrInvalidInput, err)
	}
	return notes, nil
}
