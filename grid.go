package pollpool

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
	"text/template"
)

// NewTaskGrid creates one HTTP [Task] per combination of dimension values,
// rendering the URL from a template.
//
// The URL template uses Go's text/template syntax. Dimension values are
// URL-encoded before interpolation. Missing template keys cause an error.
//
// Each task is named "Base Name (val1/val2)", with values ordered by sorted
// dimension key.
//
// Example:
//
//	tasks, err := pollpool.NewTaskGrid("API Health",
//	    pollpool.WithURLTemplate("https://api.com/health?region={{.region}}"),
//	    pollpool.WithDimensions(map[string][]string{
//	        "region": {"us-east", "eu-west"},
//	    }),
//	)
//	// Returns 2 tasks, usable with WithTasks(tasks...)
func NewTaskGrid(baseName string, opts ...GridOption) ([]Task, error) {
	if strings.TrimSpace(baseName) == "" {
		return nil, errors.New("base name cannot be empty")
	}

	cfg := &gridConfig{headers: make(map[string]string)}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.urlTemplate == "" {
		return nil, errors.New("URL template required")
	}
	if len(cfg.dimensions) == 0 {
		return nil, errors.New("at least one dimension required")
	}

	tmpl, err := template.New("url").Option("missingkey=error").Parse(cfg.urlTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid URL template: %w", err)
	}

	taskOpts := cfg.taskOptions()
	combinations := cartesianProduct(cfg.dimensions)
	tasks := make([]Task, 0, len(combinations))
	for _, combo := range combinations {
		var buf strings.Builder
		if err := tmpl.Execute(&buf, queryEscapeAll(combo)); err != nil {
			return nil, fmt.Errorf("template execution failed: %w", err)
		}

		name := gridTaskName(baseName, combo)
		task, err := NewHTTPTask(name, buf.String(), taskOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create task '%s': %w", name, err)
		}
		tasks = append(tasks, task)
	}

	return tasks, nil
}

// taskOptions converts the shared grid settings into task options.
func (cfg *gridConfig) taskOptions() []TaskOption {
	var opts []TaskOption
	if len(cfg.headers) > 0 {
		opts = append(opts, WithHeaders(flattenMap(cfg.headers)...))
	}
	if cfg.timeout > 0 {
		opts = append(opts, WithTimeout(cfg.timeout))
	}
	if cfg.method != "" {
		opts = append(opts, WithMethod(cfg.method))
	}
	if cfg.check != nil {
		opts = append(opts, WithCheck(cfg.check))
	}
	return opts
}

// cartesianProduct generates all combinations of dimension values.
// Keys iterate in sorted order, values in slice order, so the output is
// deterministic.
//
// Example:
//
//	Input:  {"x": ["a","b"], "y": ["1","2"]}
//	Output: [{"x":"a","y":"1"}, {"x":"a","y":"2"}, {"x":"b","y":"1"}, {"x":"b","y":"2"}]
func cartesianProduct(dims map[string][]string) []map[string]string {
	if len(dims) == 0 {
		return nil
	}

	keys := slices.Sorted(maps.Keys(dims))
	for _, k := range keys {
		if len(dims[k]) == 0 {
			return nil
		}
	}

	result := []map[string]string{{}}
	for _, key := range keys {
		next := make([]map[string]string, 0, len(result)*len(dims[key]))
		for _, combo := range result {
			for _, val := range dims[key] {
				c := maps.Clone(combo)
				c[key] = val
				next = append(next, c)
			}
		}
		result = next
	}
	return result
}

func queryEscapeAll(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = url.QueryEscape(v)
	}
	return out
}

// gridTaskName formats "Base (v1/v2)" with values ordered by sorted key.
func gridTaskName(baseName string, combo map[string]string) string {
	keys := slices.Sorted(maps.Keys(combo))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = combo[k]
	}
	return fmt.Sprintf("%s (%s)", baseName, strings.Join(parts, "/"))
}

// flattenMap converts a map to sorted key-value pairs for variadic options.
func flattenMap(m map[string]string) []string {
	pairs := make([]string, 0, len(m)*2)
	for _, k := range slices.Sorted(maps.Keys(m)) {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
