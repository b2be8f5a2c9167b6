package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/flight-fare-crawler/internal/batch"
	"github.com/JakeFAU/flight-fare-crawler/internal/runner"
	"github.com/JakeFAU/flight-fare-crawler/internal/summary"
	"github.com/JakeFAU/flight-fare-crawler/internal/taskfile"
)

type scrapeFlags struct {
	tasksFile string
	request   batch.Request
	jobs      int
	timeout   float64
	delay     float64
	jitter    float64
	sink      string
	shuffle   bool
}

// scrapeReport is printed to stdout once the batch completes.
type scrapeReport struct {
	BatchID  string          `json:"batch_id"`
	Summary  summary.Summary `json:"summary"`
	Artifact *batch.Artifact `json:"artifact,omitempty"`
	Records  []batch.Record  `json:"records"`
	Error    string          `json:"error,omitempty"`
}

// newScrapeCmd creates the 'scrape' subcommand, which runs one batch in the
// foreground.
func newScrapeCmd() *cobra.Command {
	f := &scrapeFlags{}
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Runs one batch of flight searches",
		Long: `Runs a batch of round-trip searches from one departure airport and
writes the results sorted by price relativity. The batch comes from a task
file (--tasks) or from the list flags, where element i of every list
describes search i.`,
		Example: `  flightfares scrape --tasks batch.yaml
  flightfares scrape --departure-code LAX --departure-country "United States of America" \
    --arrival-codes JFK,LHR --arrival-countries "United States of America,United Kingdom" \
    --start-dates 03/01/2027,03/01/2027 --end-dates 03/08/2027,03/08/2027 \
    --seat-classes "economy (include basic),economy" --n-jobs 2 --sink fares.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScrape(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.tasksFile, "tasks", "", "YAML or JSON task file; list flags are ignored when set")
	fl.StringVar(&f.request.DepartureCode, "departure-code", "", "departure airport code")
	fl.StringVar(&f.request.DepartureCountry, "departure-country", "", "departure country")
	fl.StringSliceVar(&f.request.ArrivalCodes, "arrival-codes", nil, "arrival airport codes")
	fl.StringSliceVar(&f.request.ArrivalCountries, "arrival-countries", nil, "arrival countries")
	fl.StringSliceVar(&f.request.StartDates, "start-dates", nil, "departure dates (MM/DD/YYYY)")
	fl.StringSliceVar(&f.request.EndDates, "end-dates", nil, "return dates (MM/DD/YYYY)")
	fl.StringSliceVar(&f.request.SeatClasses, "seat-classes", nil, "seat classes")
	fl.Float64SliceVar(&f.request.Times, "times", nil, "optional per-task time values echoed into the output")
	fl.IntVar(&f.jobs, "n-jobs", 0, "concurrent scrapes; 1 runs sequentially (default from config)")
	fl.Float64Var(&f.timeout, "task-timeout", 0, "per-task timeout in seconds (default from config)")
	fl.Float64Var(&f.delay, "delay", 0, "seconds between sequential tasks (default from config)")
	fl.Float64Var(&f.jitter, "delay-jitter", 0, "random +/- spread applied to --delay (default from config)")
	fl.StringVar(&f.sink, "sink", "", "output URI: a path, file://, gs://bucket/object or memory:// (.csv or .json)")
	fl.BoolVar(&f.shuffle, "shuffle", true, "randomize task order before scheduling")

	return cmd
}

func runScrape(cmd *cobra.Command, f *scrapeFlags) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	logger := rt.app.Logger()

	file, err := f.taskFile(cmd)
	if err != nil {
		return err
	}
	sink := file.Sink
	if sink == "" {
		sink = rt.cfg.Storage.Sink
	}
	if cmd.Flags().Changed("sink") {
		sink = f.sink
	}
	shuffle := file.ShuffleOr(rt.cfg.Batch.Shuffle)
	if cmd.Flags().Changed("shuffle") {
		shuffle = f.shuffle
	}

	out, runErr := rt.app.RunBatch(cmd.Context(), file.Request, file.Policy, runner.RunOptions{
		SinkURI: sink,
		Shuffle: shuffle,
	})
	if out.BatchID == "" {
		return runErr
	}
	report := scrapeReport{
		BatchID:  out.BatchID,
		Summary:  out.Summary,
		Artifact: out.Artifact,
		Records:  out.Records,
	}
	if runErr != nil {
		report.Error = runErr.Error()
		logger.Error("batch post-processing failed", zap.String("batch_id", out.BatchID), zap.Error(runErr))
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return runErr
}

// taskFile builds the batch from --tasks or the list flags. Policy flags
// override the file's policy section.
func (f *scrapeFlags) taskFile(cmd *cobra.Command) (taskfile.File, error) {
	var file taskfile.File
	if f.tasksFile != "" {
		loaded, err := taskfile.Load(f.tasksFile)
		if err != nil {
			return taskfile.File{}, err
		}
		file = loaded
	} else {
		file.Request = f.request
		if err := file.Request.Validate(); err != nil {
			return taskfile.File{}, err
		}
	}
	if len(file.ArrivalCodes) == 0 {
		return taskfile.File{}, errors.New("no tasks: pass --tasks or --arrival-codes")
	}

	changed := cmd.Flags().Changed
	if changed("n-jobs") {
		file.Policy.Jobs = &f.jobs
	}
	if changed("task-timeout") {
		file.Policy.TaskTimeout = &f.timeout
	}
	if changed("delay") {
		file.Policy.DelaySeconds = &f.delay
	}
	if changed("delay-jitter") {
		file.Policy.DelayJitter = &f.jitter
	}
	return file, nil
}
