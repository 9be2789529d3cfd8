package config

import (
	"fmt"
	"maps"
	"slices"

	"github.com/jpalmerr/pollpool"
)

// BuildTasks converts parsed configuration into SDK Task objects.
//
// It processes both direct tasks and grids, returning a combined slice.
// Grid dimensions are expanded by [pollpool.NewTaskGrid].
func BuildTasks(cfg *Config) ([]pollpool.Task, error) {
	var tasks []pollpool.Task

	for _, tc := range cfg.Tasks {
		task, err := buildTask(tc)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", tc.Name, err)
		}
		tasks = append(tasks, task)
	}

	for _, gc := range cfg.Grids {
		gridTasks, err := buildGridTasks(gc)
		if err != nil {
			return nil, fmt.Errorf("grid %q: %w", gc.Name, err)
		}
		tasks = append(tasks, gridTasks...)
	}

	return tasks, nil
}

// BuildOptions converts parsed configuration into runner options: tasks,
// interval, port, pool sizing, storage and metrics. Logging and tracing are
// left to the caller.
func BuildOptions(cfg *Config) ([]pollpool.Option, error) {
	tasks, err := BuildTasks(cfg)
	if err != nil {
		return nil, err
	}

	opts := []pollpool.Option{
		pollpool.WithTasks(tasks...),
		pollpool.WithInterval(cfg.Interval.Duration()),
		pollpool.WithPort(cfg.Port),
		pollpool.WithSizer(cfg.Pool.Sizer()),
		pollpool.WithPool(cfg.Pool.Min, cfg.Pool.Max, cfg.Pool.Initial),
		pollpool.WithHistory(cfg.Storage.History),
	}
	if cfg.Storage.Driver == DriverSQLite {
		opts = append(opts, pollpool.WithSQLite(cfg.Storage.Path))
	}
	if cfg.Metrics.Namespace != "" {
		opts = append(opts, pollpool.WithMetricsNamespace(cfg.Metrics.Namespace))
	}
	return opts, nil
}

// buildTask converts a single TaskConfig to an SDK Task.
func buildTask(tc TaskConfig) (pollpool.Task, error) {
	var opts []pollpool.TaskOption

	if tc.Method != "" {
		opts = append(opts, pollpool.WithMethod(tc.Method))
	}
	if tc.Timeout != 0 {
		opts = append(opts, pollpool.WithTimeout(tc.Timeout.Duration()))
	}
	if len(tc.Headers) > 0 {
		opts = append(opts, pollpool.WithHeaders(mapToKeyValuePairs(tc.Headers)...))
	}

	check, err := buildCheck(tc.Check)
	if err != nil {
		return pollpool.Task{}, err
	}
	if check != nil {
		opts = append(opts, pollpool.WithCheck(check))
	}

	return pollpool.NewHTTPTask(tc.Name, tc.URL, opts...)
}

// buildGridTasks expands a GridConfig into one task per dimension combination.
func buildGridTasks(gc GridConfig) ([]pollpool.Task, error) {
	opts := []pollpool.GridOption{
		pollpool.WithURLTemplate(gc.URLTemplate),
		pollpool.WithDimensions(gc.Dimensions),
	}

	if gc.Method != "" {
		opts = append(opts, pollpool.WithGridMethod(gc.Method))
	}
	if gc.Timeout != 0 {
		opts = append(opts, pollpool.WithGridTimeout(gc.Timeout.Duration()))
	}
	if len(gc.Headers) > 0 {
		opts = append(opts, pollpool.WithGridHeaders(mapToKeyValuePairs(gc.Headers)...))
	}

	check, err := buildCheck(gc.Check)
	if err != nil {
		return nil, err
	}
	if check != nil {
		opts = append(opts, pollpool.WithGridCheck(check))
	}

	return pollpool.NewTaskGrid(gc.Name, opts...)
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	pairs := make([]string, 0, len(m)*2)
	for _, k := range slices.Sorted(maps.Keys(m)) {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}

// buildCheck converts CheckConfig to a ResponseCheck.
// Returns nil for default/empty checks.
func buildCheck(cc CheckConfig) (pollpool.ResponseCheck, error) {
	switch cc.Type {
	case "", "default":
		return nil, nil
	case "json":
		return pollpool.ExpectJSONField(cc.Path, cc.Accept...), nil
	case "contains":
		return pollpool.ExpectBodyContains(cc.Text), nil
	case "status":
		return pollpool.ExpectStatus(cc.Codes...), nil
	case "match":
		return pollpool.ExpectBodyMatch(cc.Pattern, cc.Want)
	default:
		return nil, fmt.Errorf("unknown check type %q", cc.Type)
	}
}
