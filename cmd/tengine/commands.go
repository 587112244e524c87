package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/tengine/internal/config"
	"github.com/kalambet/tengine/internal/ingest"
	"github.com/kalambet/tengine/internal/retrieval"
	"github.com/kalambet/tengine/internal/service"
	"github.com/kalambet/tengine/internal/stage"
	"github.com/kalambet/tengine/internal/storage"
	"github.com/kalambet/tengine/internal/telemetry"
)

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Run a transcript file through the pipeline",
	Long: `Run a transcript through all five stages and store every artifact.

Plain text, HTML and PDF files are accepted.

Artifacts go to the backend named by storage.backend. The default, sqlite,
keeps them in the artifacts table of <data_dir>/tengine.db. Set
storage.backend=files to store one <id>.json record per artifact under
<data_dir>/artifacts instead.

Examples:
  tengine ingest ./standup.txt --run standup-42
  tengine ingest ./minutes.pdf --async`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, _ := cmd.Flags().GetString("run")
		async, _ := cmd.Flags().GetBool("async")

		text, err := ingest.ReadSource(args[0])
		if err != nil {
			return err
		}

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if async {
			if runID == "" {
				runID = service.NewRunID()
			}
			jobID, err := ingest.Enqueue(a.db, ingest.Payload{RunID: runID, Text: text, Source: args[0]})
			if err != nil {
				return err
			}
			printSuccess("Queued job %s for run %s (processed by `tengine serve`)", jobID, runID)
			return nil
		}

		res, err := a.svc.Ingest(cmd.Context(), text, runID)
		if err != nil {
			if res != nil && len(res.Artifacts) > 0 {
				printRun(cmd.OutOrStdout(), res)
			}
			return err
		}
		printRun(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("run", "", "run id (generated when omitted)")
	ingestCmd.Flags().Bool("async", false, "queue the transcript for the background worker instead of running it now")
}

// --- lineage ---

var lineageCmd = &cobra.Command{
	Use:   "lineage <artifact_id>",
	Short: "Show an artifact, its ancestry and its version history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		view, err := a.svc.GetLineage(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printLineage(cmd.OutOrStdout(), view)
		return nil
	},
}

// --- replay ---

var replayCmd = &cobra.Command{
	Use:   "replay <artifact_id>",
	Short: "Recompute one stage for an artifact as a new version",
	Long: `Recompute one stage for an artifact. The result is stored as the next
version of the artifact's family and derives from the replayed artifact.

Stages: ` + stageList(),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stageName, _ := cmd.Flags().GetString("stage")
		name, err := stage.ParseName(stageName)
		if err != nil {
			return err
		}

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := a.svc.ReplayStage(cmd.Context(), args[0], string(name))
		if err != nil {
			return err
		}
		printReplay(cmd.OutOrStdout(), args[0], name, out, a.storedIn(out.ID))
		return nil
	},
}

func init() {
	replayCmd.Flags().String("stage", "", "stage to replay ("+stageList()+")")
	replayCmd.MarkFlagRequired("stage")
}

func stageList() string {
	names := make([]string, len(stage.Order))
	for i, n := range stage.Order {
		names[i] = string(n)
	}
	return strings.Join(names, ", ")
}

func (a *app) storedIn(id string) string {
	if a.files != nil {
		return a.files.Path(id)
	}
	return filepath.Join(a.cfg.Storage.DataDir, storage.DBFileName)
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and a day's stage telemetry",
	Long: `Show configuration and summarize stage telemetry.

Events are read from the SQLite telemetry table for one UTC day, or for a
single run with --run. --log reads the day's JSONL log instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		day, _ := cmd.Flags().GetString("day")
		runID, _ := cmd.Flags().GetString("run")
		fromLog, _ := cmd.Flags().GetBool("log")
		if runID != "" && (day != "" || fromLog) {
			return fmt.Errorf("--run cannot be combined with --day or --log")
		}
		if day == "" {
			day = time.Now().UTC().Format(time.DateOnly)
		} else if _, err := time.Parse(time.DateOnly, day); err != nil {
			return fmt.Errorf("invalid --day %q (want YYYY-MM-DD)", day)
		}

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		w := cmd.OutOrStdout()
		printStatus(w, "Data dir", "%s", a.cfg.Storage.DataDir)
		printStatus(w, "Artifact backend", "%s", a.cfg.Storage.Backend)
		printStatus(w, "Context source", "%s", a.cfg.Context.Source)

		var events []telemetry.Event
		switch {
		case runID != "":
			events, err = a.rows.ReadRun(runID)
		case fromLog:
			events, err = a.events.ReadDay(day)
		default:
			events, err = a.rows.ReadDay(day)
		}
		if err != nil {
			return fmt.Errorf("reading telemetry: %w", err)
		}
		if runID != "" {
			printSummary(w, "Run", runID, events)
		} else {
			printSummary(w, "Day", day, events)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().String("day", "", "UTC day to summarize (YYYY-MM-DD, default today)")
	statusCmd.Flags().String("run", "", "summarize one run instead of a day")
	statusCmd.Flags().Bool("log", false, "read the day's JSONL log instead of the SQLite table")
}

// --- context ---

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Manage context documents used by the contextualize stage",
}

var contextAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a context document",
	Long: `Add a context document. With context.source=dir the document is written
as <context.dir>/<id>.yaml; with context.source=sqlite it is stored in the
database.

Examples:
  tengine context add --id roadmap --title "Q4 roadmap" --text "Launch in November"
  tengine context add --id handbook --file ./handbook.md`,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		title, _ := cmd.Flags().GetString("title")
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")

		if id == "" {
			return errors.New("--id is required")
		}
		if (text == "") == (file == "") {
			return errors.New("exactly one of --text or --file is required")
		}
		if file != "" {
			content, err := ingest.ReadSource(file)
			if err != nil {
				return err
			}
			text = content
			if title == "" {
				title = file
			}
		}

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if a.cfg.Context.Source == config.SourceSQLite {
			if _, err := a.db.GetContextDoc(id); err == nil {
				return fmt.Errorf("context document %q already exists", id)
			} else if !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			if err := a.db.SaveContextDoc(storage.ContextDoc{ID: id, Title: title, Content: text, Source: "cli"}); err != nil {
				return fmt.Errorf("saving context document: %w", err)
			}
			printSuccess("Stored context document %s", id)
			return nil
		}

		path, err := retrieval.WriteDocument(a.cfg.ContextDir(), retrieval.Document{ID: id, Title: title, Content: text})
		if err != nil {
			return err
		}
		printSuccess("Wrote context document %s to %s", id, path)
		return nil
	},
}

var contextListCmd = &cobra.Command{
	Use:   "list",
	Short: "List context documents in enumeration order",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		docs, err := a.source.Documents(cmd.Context())
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(docs) == 0 {
			fmt.Fprintln(w, "No context documents found.")
			return nil
		}
		for _, d := range docs {
			fmt.Fprintf(w, "%s  %s  (%d chars)\n", colorize(colorCyan, d.ID), d.Title, len(d.Content))
		}
		return nil
	},
}

func init() {
	contextAddCmd.Flags().String("id", "", "document id (context_id)")
	contextAddCmd.Flags().String("title", "", "document title")
	contextAddCmd.Flags().String("text", "", "document text")
	contextAddCmd.Flags().String("file", "", "read document text from a file")
	contextCmd.AddCommand(contextAddCmd)
	contextCmd.AddCommand(contextListCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "# %s\n", config.FilePath())
		for _, k := range config.ShowAll(cfg) {
			if k.Hint != "" {
				fmt.Fprintf(w, "  %s = %s  # %s\n", colorize(colorBold, k.Key), k.Value, k.Hint)
				continue
			}
			fmt.Fprintf(w, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
