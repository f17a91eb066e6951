package main

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/quotemap/internal/align"
	"github.com/hpungsan/quotemap/internal/config"
	"github.com/hpungsan/quotemap/internal/db"
	"github.com/hpungsan/quotemap/internal/errors"
	"github.com/hpungsan/quotemap/internal/ops"
	"github.com/hpungsan/quotemap/internal/worker"
)

// maxPayloadBytes bounds JSON payloads read from stdin or --file.
const maxPayloadBytes = 64 << 20

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config) *cli.App {
	app := &cli.App{
		Name:    "quotemap",
		Usage:   "Map qualitative codes back to reddit threads",
		Version: Version,
		Commands: []*cli.Command{
			importCmd(db, cfg),
			datasetsCmd(db),
			postsCmd(db),
			getCmd(db),
			treeCmd(),
			flattenCmd(),
			alignCmd(cfg),
			batchCmd(db, cfg),
			reportCmd(db, cfg),
			deleteCmd(db),
			workerCmd(db, cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// importCmd creates the import command.
func importCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import posts and comments from a .json or .jsonl dump",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Dump file path"},
			&cli.StringFlag{Name: "dataset", Aliases: []string{"d"}, Usage: "Append to an existing dataset"},
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Name for a new dataset"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ImportDataset(db, cfg, ops.ImportInput{
				Path:      c.String("path"),
				DatasetID: c.String("dataset"),
				Name:      c.String("name"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// datasetsCmd creates the datasets command.
func datasetsCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "datasets",
		Usage: "List imported datasets",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Max results (max 100)"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Pagination offset"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ListDatasets(db, ops.ListDatasetsInput{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// postsCmd creates the posts command.
func postsCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "posts",
		Usage:     "List the posts of a dataset",
		ArgsUsage: "<dataset>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Max results (max 100)"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Pagination offset"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ListPosts(db, ops.ListPostsInput{
				DatasetID: c.Args().First(),
				Limit:     c.Int("limit"),
				Offset:    c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// getCmd creates the get command.
func getCmd(database *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Print one stored post with its comment tree",
		ArgsUsage: "<dataset> <post>",
		Action: func(c *cli.Context) error {
			output, err := ops.GetPost(c.Context, db.NewStore(database), ops.GetPostInput{
				DatasetID: c.Args().Get(0),
				PostID:    c.Args().Get(1),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// treeCmd creates the tree command.
func treeCmd() *cli.Command {
	return &cli.Command{
		Name:  "tree",
		Usage: "Nest flat comments into a tree (reads {post_id, comments} JSON)",
		Flags: []cli.Flag{fileFlag()},
		Action: func(c *cli.Context) error {
			var input ops.BuildTreeInput
			if err := readPayload(c, &input); err != nil {
				return outputError(err)
			}
			output, err := ops.BuildTree(input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// flattenCmd creates the flatten command.
func flattenCmd() *cli.Command {
	return &cli.Command{
		Name:  "flatten",
		Usage: "Flatten a nested post into transcript segments (reads {post} JSON)",
		Flags: []cli.Flag{fileFlag()},
		Action: func(c *cli.Context) error {
			var input ops.FlattenInput
			if err := readPayload(c, &input); err != nil {
				return outputError(err)
			}
			output, err := ops.Flatten(input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// alignCmd creates the align command.
func alignCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "align",
		Usage: "Align annotations to a post's segments (reads {post, annotations} JSON)",
		Flags: []cli.Flag{fileFlag(), thresholdFlag()},
		Action: func(c *cli.Context) error {
			var input ops.AlignInput
			if err := readPayload(c, &input); err != nil {
				return outputError(err)
			}
			alignCfg, err := withThreshold(c, cfg)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Align(alignCfg, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// batchCmd creates the batch command.
func batchCmd(database *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "batch",
		Usage:     "Fetch stored posts and rebuild their comment trees",
		ArgsUsage: "<dataset> <post>...",
		Action: func(c *cli.Context) error {
			args := c.Args().Slice()
			input := ops.BatchInput{PostIDs: []string{}}
			if len(args) > 0 {
				input.DatasetID = args[0]
				input.PostIDs = args[1:]
			}
			output, err := ops.FetchAndAlignBatch(c.Context, db.NewStore(database), cfg, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// reportCmd creates the report command.
func reportCmd(database *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Write an HTML audit report of annotations aligned to a post",
		Description: "The post is either a stored one (--dataset and --post) or piped as " +
			"{post, annotations} JSON. --annotations replaces any piped annotations.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dataset", Aliases: []string{"d"}, Usage: "Dataset of a stored post"},
			&cli.StringFlag{Name: "post", Usage: "Stored post id"},
			&cli.StringFlag{Name: "annotations", Aliases: []string{"a"}, Usage: "JSON file with an array of annotations"},
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Report path (default: ~/.quotemap/reports/<post>-<timestamp>.html)"},
			fileFlag(),
			thresholdFlag(),
		},
		Action: func(c *cli.Context) error {
			var input ops.ReportInput
			switch {
			case c.String("file") != "":
				if err := readJSONFile(c.String("file"), &input); err != nil {
					return outputError(err)
				}
			case stdinHasData():
				data, err := readStdin(maxPayloadBytes)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				// An empty pipe is fine when the post comes from flags
				if data != "" {
					if err := decodeJSON(data, &input); err != nil {
						return outputError(err)
					}
				}
			}
			if v := c.String("dataset"); v != "" {
				input.DatasetID = v
			}
			if v := c.String("post"); v != "" {
				input.PostID = v
			}
			if v := c.String("path"); v != "" {
				input.Path = v
			}
			if path := c.String("annotations"); path != "" {
				var annotations []align.Annotation
				if err := readJSONFile(path, &annotations); err != nil {
					return outputError(err)
				}
				input.Annotations = annotations
			}

			reportCfg, err := withThreshold(c, cfg)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Report(c.Context, db.NewStore(database), reportCfg, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a dataset with its posts and comments",
		ArgsUsage: "<dataset>",
		Action: func(c *cli.Context) error {
			output, err := ops.DeleteDataset(db, ops.DeleteDatasetInput{DatasetID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// workerCmd creates the worker command.
func workerCmd(database *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Serve JSONL analysis requests on stdin/stdout",
		Description: "Each input line is {id, type, data} with type one of " +
			strings.Join(worker.Commands, ", ") + ". Responses are written as they complete, " +
			"tagged with the request id.",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "workers", Aliases: []string{"n"}, Usage: "Number of workers (default: config workers)"},
		},
		Action: func(c *cli.Context) error {
			n := cfg.Workers
			if c.IsSet("workers") {
				n = c.Int("workers")
			}
			if n < 1 {
				return outputError(errors.NewInvalidField("workers", "must be at least 1"))
			}

			log := newLogger().With("component", "worker")
			store := db.NewStore(database)
			pool := worker.NewPool(n, func() *worker.Worker {
				return worker.New(store, cfg, log)
			})

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info("serving", "workers", pool.Size())
			err := pool.ServeJSONL(ctx, os.Stdin, os.Stdout)
			if err != nil && !stderrors.Is(err, context.Canceled) {
				return outputError(err)
			}
			return nil
		},
	}
}

// Helper functions

func fileFlag() cli.Flag {
	return &cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Read the JSON payload from a file instead of stdin"}
}

func thresholdFlag() cli.Flag {
	return &cli.IntFlag{Name: "threshold", Usage: "Fuzzy match threshold 0-100 (default: config fuzzy_threshold)"}
}

// withThreshold returns cfg, or a validated copy of it when --threshold is set.
func withThreshold(c *cli.Context, cfg *config.Config) (*config.Config, error) {
	if !c.IsSet("threshold") {
		return cfg, nil
	}
	out := *cfg
	out.FuzzyThreshold = config.IntPtr(c.Int("threshold"))
	if err := out.Validate(); err != nil {
		return nil, errors.NewInvalidField("threshold", err.Error())
	}
	return &out, nil
}

// readPayload decodes the JSON payload from --file or piped stdin into v.
func readPayload(c *cli.Context, v any) error {
	if path := c.String("file"); path != "" {
		return readJSONFile(path, v)
	}
	if !stdinHasData() {
		return errors.NewInvalidRequest("JSON payload must be piped via stdin or given with --file")
	}
	data, err := readStdin(maxPayloadBytes)
	if err != nil {
		return errors.NewInvalidRequest(err.Error())
	}
	return decodeJSON(data, v)
}

func readJSONFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewFileNotFound(path)
		}
		return errors.NewInternal(err)
	}
	defer f.Close()

	data, err := readLimited(f, maxPayloadBytes)
	if err != nil {
		return errors.NewInvalidRequest(err.Error())
	}
	return decodeJSON(data, v)
}

func decodeJSON(data string, v any) error {
	if data == "" {
		return errors.NewInvalidRequest("JSON payload is empty")
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid JSON payload: %v", err))
	}
	return nil
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if qErr, ok := err.(*errors.Error); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", qErr.Code, qErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin, up to limit bytes.
func readStdin(limit int64) (string, error) {
	return readLimited(os.Stdin, limit)
}

func readLimited(r io.Reader, limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("input exceeds %d bytes", limit)
	}
	return strings.TrimSpace(string(data)), nil
}
