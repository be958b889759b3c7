package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/previouslives/internal/api"
	"github.com/kalambet/previouslives/internal/config"
	"github.com/kalambet/previouslives/internal/pipeline"
	"github.com/kalambet/previouslives/internal/storage"
	"github.com/kalambet/previouslives/internal/viewer"
)

// --- capture ---

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Run one capture on an image file without the server",
	Long: `Run the full capture pipeline once on an image file: store it, generate a
past life, finalize the record and print the outcome.

Examples:
  previouslives capture --image ./face.jpg
  previouslives capture --image ./face.png --out ./exports -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		imagePath, _ := cmd.Flags().GetString("image")
		outDir, _ := cmd.Flags().GetString("out")
		format, _ := cmd.Flags().GetString("output")
		if imagePath == "" {
			return errors.New("--image is required")
		}

		raw, err := os.ReadFile(imagePath)
		if err != nil {
			return fmt.Errorf("reading image: %w", err)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.Log.Level)
		ctx := cmd.Context()

		store, err := storage.Initialize(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		gen, err := buildGenerator(ctx, cfg, logger)
		if err != nil {
			return err
		}
		hand, _, err := buildViewer(ctx, cfg, store, logger)
		if err != nil {
			return err
		}
		if outDir != "" {
			hand = append(hand.(viewer.Multi), &viewer.Exporter{Store: store, Dir: outDir})
		}
		pipe, err := buildPipeline(nil, store, gen, hand, cfg, logger)
		if err != nil {
			return err
		}

		printStep("Generating a past life for %s", imagePath)
		out, err := captureOnce(ctx, pipe, raw, cfg.Generation.Timeout+30*time.Second)
		if err != nil && out.TaskID == "" {
			return err
		}
		if werr := writeOutcome(cmd.OutOrStdout(), format, out); werr != nil {
			return werr
		}
		if err != nil {
			return fmt.Errorf("capture failed (%s): %w", api.ErrorKind(err), err)
		}
		if outDir != "" && out.HandoffErr == nil {
			printSuccess("Exported record %d to %s", out.RecordID, outDir)
		}
		return nil
	},
}

func init() {
	captureCmd.Flags().String("image", "", "image file to capture")
	captureCmd.Flags().String("out", "", "directory to export the finished record to")
	captureCmd.Flags().StringP("output", "o", "text", "output format: text, json or yaml")
}

// captureOnce runs a single capture on raw and waits for its outcome. The
// returned outcome carries the task ID whenever the capture started.
func captureOnce(ctx context.Context, pipe *pipeline.Pipeline, raw []byte, timeout time.Duration) (pipeline.Outcome, error) {
	task, err := pipe.CaptureImage(ctx, raw)
	if err != nil {
		return pipeline.Outcome{}, err
	}
	defer pipe.Drain()

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	out, err := task.Wait(waitCtx)
	if waitCtx.Err() != nil {
		return pipeline.Outcome{TaskID: task.ID}, fmt.Errorf("capture %s did not finish: %w", task.ID, waitCtx.Err())
	}
	return out, err
}

type outcomeView struct {
	TaskID       string `json:"task_id" yaml:"task_id"`
	State        string `json:"state" yaml:"state"`
	Profession   string `json:"profession" yaml:"profession"`
	Age          int    `json:"age" yaml:"age"`
	PersistedID  int64  `json:"persisted_id,omitempty" yaml:"persisted_id,omitempty"`
	ConfirmedID  int64  `json:"confirmed_id,omitempty" yaml:"confirmed_id,omitempty"`
	RecordID     int64  `json:"record_id,omitempty" yaml:"record_id,omitempty"`
	Duration     string `json:"duration,omitempty" yaml:"duration,omitempty"`
	Error        string `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	HandoffError string `json:"handoff_error,omitempty" yaml:"handoff_error,omitempty"`
}

func newOutcomeView(out pipeline.Outcome) outcomeView {
	v := outcomeView{
		TaskID:      out.TaskID,
		State:       out.State.String(),
		Profession:  out.Profession,
		Age:         out.Age,
		PersistedID: out.PersistedID,
		ConfirmedID: out.ConfirmedID,
		RecordID:    out.RecordID,
	}
	if !out.Finished.IsZero() && !out.Started.IsZero() {
		v.Duration = out.Finished.Sub(out.Started).Round(time.Millisecond).String()
	}
	if out.Err != nil {
		v.Error = out.Err.Error()
		v.ErrorKind = api.ErrorKind(out.Err)
	}
	if out.HandoffErr != nil {
		v.HandoffError = out.HandoffErr.Error()
	}
	return v
}

func writeOutcome(w io.Writer, format string, out pipeline.Outcome) error {
	v := newOutcomeView(out)
	return writeOutput(w, format, v, func(w io.Writer) error {
		fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Task:"), v.TaskID)
		fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "State:"), v.State)
		fmt.Fprintf(w, "%s %s, age %d\n", colorize(colorBold, "Past life:"), v.Profession, v.Age)
		if v.RecordID != 0 {
			fmt.Fprintf(w, "%s %d\n", colorize(colorBold, "Record:"), v.RecordID)
		}
		if v.ConfirmedID != 0 && v.ConfirmedID != v.PersistedID {
			fmt.Fprintf(w, "%s persisted %d, confirmed %d\n", colorize(colorBold, "IDs:"), v.PersistedID, v.ConfirmedID)
		}
		if v.Error != "" {
			fmt.Fprintf(w, "%s %s (%s)\n", colorize(colorRed, "Error:"), v.Error, v.ErrorKind)
		}
		if v.HandoffError != "" {
			fmt.Fprintf(w, "%s %s\n", colorize(colorYellow, "Viewer:"), v.HandoffError)
		}
		return nil
	})
}

// --- trigger ---

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Ask a running server to capture its latest camera frame",
	Long: `Ask a running server to capture. Without --image the server uses the latest
frame from its camera feed; with --image the file is uploaded instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		imagePath, _ := cmd.Flags().GetString("image")
		noWait, _ := cmd.Flags().GetBool("no-wait")
		format, _ := cmd.Flags().GetString("output")

		var body []byte
		var contentType string
		if imagePath != "" {
			data, err := os.ReadFile(imagePath)
			if err != nil {
				return fmt.Errorf("reading image: %w", err)
			}
			body, contentType = data, "application/octet-stream"
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		task, err := triggerCapture(cmd.Context(), client, body, contentType, !noWait)
		if err != nil {
			return err
		}
		if err := writeTask(cmd.OutOrStdout(), format, task); err != nil {
			return err
		}
		if task.State == pipeline.StateFailed.String() {
			return fmt.Errorf("capture failed (%s): %s", task.ErrorKind, task.Error)
		}
		return nil
	},
}

func init() {
	triggerCmd.Flags().String("image", "", "upload this image instead of using the camera")
	triggerCmd.Flags().Bool("no-wait", false, "return as soon as the capture has started")
	triggerCmd.Flags().StringP("output", "o", "text", "output format: text, json or yaml")
}

func triggerCapture(ctx context.Context, c *apiClient, body []byte, contentType string, wait bool) (api.TaskResponse, error) {
	path := "/captures"
	if wait {
		path += "?wait=true"
	}
	resp, err := c.post(ctx, path, body, contentType)
	if err != nil {
		return api.TaskResponse{}, err
	}
	var task api.TaskResponse
	if err := decodeJSON(resp, &task); err != nil {
		return api.TaskResponse{}, err
	}
	return task, nil
}

func writeTask(w io.Writer, format string, t api.TaskResponse) error {
	return writeOutput(w, format, t, func(w io.Writer) error {
		fmt.Fprintf(w, "%s %s (%s)\n", colorize(colorBold, "Task:"), t.ID, t.State)
		fmt.Fprintf(w, "%s %s, age %d\n", colorize(colorBold, "Past life:"), t.Profession, t.Age)
		if t.RecordID != 0 {
			fmt.Fprintf(w, "%s %d\n", colorize(colorBold, "Record:"), t.RecordID)
		}
		if t.Error != "" {
			fmt.Fprintf(w, "%s %s (%s)\n", colorize(colorRed, "Error:"), t.Error, t.ErrorKind)
		}
		return nil
	})
}

// --- show ---

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a stored capture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid capture id %q", args[0])
		}
		outDir, _ := cmd.Flags().GetString("out")
		format, _ := cmd.Flags().GetString("output")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := store.FetchByID(cmd.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("capture %d not found", id)
		}
		if err != nil {
			return err
		}

		if err := writeRecord(cmd.OutOrStdout(), format, rec); err != nil {
			return err
		}
		if outDir != "" {
			paths, err := viewer.WriteRecord(outDir, rec)
			if err != nil {
				return err
			}
			for _, p := range paths {
				printSuccess("Wrote %s", p)
			}
		}
		return nil
	},
}

func init() {
	showCmd.Flags().String("out", "", "directory to export the record's image and story to")
	showCmd.Flags().StringP("output", "o", "text", "output format: text, json or yaml")
}

func writeRecord(w io.Writer, format string, rec storage.CaptureRecord) error {
	v := api.NewRecordResponse(rec)
	return writeOutput(w, format, v, func(w io.Writer) error {
		fmt.Fprintf(w, "%s %d\n", colorize(colorBold, "Capture"), v.ID)
		fmt.Fprintf(w, "  Taken:  %s\n", v.CreatedAt)
		fmt.Fprintf(w, "  Image:  %d bytes\n", v.RawImageSize)
		if len(rec.EditedImage) > 0 {
			fmt.Fprintf(w, "  Edited: %d bytes\n", len(rec.EditedImage))
		}
		if v.Description == "" {
			fmt.Fprintln(w, "  (no story yet)")
			return nil
		}
		fmt.Fprintf(w, "\n%s\n", v.Description)
		return nil
	})
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored captures, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		format, _ := cmd.Flags().GetString("output")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		items, err := store.List(cmd.Context(), limit, offset)
		if err != nil {
			return err
		}
		return writeList(cmd.OutOrStdout(), format, items)
	},
}

func init() {
	listCmd.Flags().Int("limit", 20, "maximum number of captures to list")
	listCmd.Flags().Int("offset", 0, "number of captures to skip")
	listCmd.Flags().StringP("output", "o", "text", "output format: text, json or yaml")
}

func writeList(w io.Writer, format string, items []storage.CaptureSummary) error {
	if items == nil {
		items = []storage.CaptureSummary{}
	}
	return writeOutput(w, format, items, func(w io.Writer) error {
		if len(items) == 0 {
			fmt.Fprintln(w, "No captures found.")
			return nil
		}
		for _, it := range items {
			story := it.Description
			if story == "" {
				story = "(pending)"
			}
			fmt.Fprintf(w, "%s  %s  %s\n",
				colorize(colorCyan, fmt.Sprintf("%5d", it.ID)),
				time.Unix(it.Timestamp, 0).UTC().Format(time.RFC3339),
				truncate(story, 80),
			)
		}
		return nil
	})
}

// --- migrate ---

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the capture store and print its schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		versions, err := store.AppliedMigrations()
		if err != nil {
			return err
		}
		cols, err := store.Columns()
		if err != nil {
			return err
		}
		printSuccess("Store ready at %s", store.Path())
		printStatus("Migrations", "%v", versions)
		printStatus("Columns", "%v", cols)
		return nil
	},
}

// openStore initializes the store from configuration alone; store-only
// commands do not need a working generation backend.
func openStore() (*storage.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := storage.Initialize(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and configuration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			printError("config error: %v", err)
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		client.httpClient.Timeout = 2 * time.Second

		resp, err := client.get(cmd.Context(), "/health")
		if err != nil {
			printStatus("Server", "stopped")
		} else {
			resp.Body.Close()
			printStatus("Server", "running on port %d", cfg.Server.Port)

			var list struct {
				Total int `json:"total"`
			}
			if r, err := client.get(cmd.Context(), "/captures?limit=1"); err == nil && decodeJSON(r, &list) == nil {
				printStatus("Captures", "%d", list.Total)
			}
		}

		printStatus("Backend", "%s", cfg.Generation.Backend)
		if cfg.Generation.Backend == "api" {
			printStatus("Provider", "%s", cfg.API.Provider)
			printStatus("Image edits", "%t", cfg.Imaging.StabilityAPIKey != "")
		} else {
			printStatus("Script", "%s %s", cfg.Process.Interpreter, cfg.Process.Script)
		}
		if gerr := cfg.CheckGeneration(); gerr != nil {
			printWarning("%v", gerr)
		}
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	},
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
		format, _ := cmd.Flags().GetString("output")
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		return writeOutput(cmd.OutOrStdout(), format, keys, func(w io.Writer) error {
			for _, k := range keys {
				fmt.Fprintf(w, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
			}
			return nil
		})
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s", key)
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List configuration keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, k := range config.ValidKeys() {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
		return nil
	},
}

func init() {
	configShowCmd.Flags().StringP("output", "o", "text", "output format: text, json or yaml")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configKeysCmd)
}
