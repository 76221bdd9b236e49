package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/assetd/internal/config"
	"github.com/tjfontaine/assetd/internal/core/ports"
	"github.com/tjfontaine/assetd/internal/rendercontext"
	"github.com/tjfontaine/assetd/pkg/assetd"
)

type compileFlags struct {
	source string
	query  []string
	body   string
	strict bool
}

func newCompileCmd(configPath *string) *cobra.Command {
	var f compileFlags

	cmd := &cobra.Command{
		Use:   "compile script|style",
		Short: "Compile one asset and print it",
		Long: `Compile an asset the way the server would and write the result to
stdout. Degraded stages are reported on stderr.

Examples:
  assetd compile script --query name=world
  assetd compile style --source ./theme.scss.tmpl --strict`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(ports.AssetScript), string(ports.AssetStyle)},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, *configPath, args[0], f)
		},
	}

	cmd.Flags().StringVarP(&f.source, "source", "s", "", "template source (defaults to the configured source)")
	cmd.Flags().StringArrayVarP(&f.query, "query", "q", nil, "query parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&f.body, "body", "", "request body as JSON")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "exit non-zero when any stage degrades")

	return cmd
}

func runCompile(cmd *cobra.Command, configPath, kind string, f compileFlags) error {
	var k ports.AssetKind
	switch kind {
	case string(ports.AssetScript), string(ports.AssetStyle):
		k = ports.AssetKind(kind)
	default:
		return fmt.Errorf("unknown asset kind %q (must be script or style)", kind)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	query, err := parseQuery(f.query)
	if err != nil {
		return err
	}

	var body any
	if f.body != "" {
		if err := json.Unmarshal([]byte(f.body), &body); err != nil {
			return fmt.Errorf("parse --body: %w", err)
		}
	}

	logger := newLogger(cfg.Log, cmd.ErrOrStderr())

	result, err := assetd.Compile(cmd.Context(), cfg, assetd.CompileRequest{
		Kind:   k,
		Source: f.source,
		Query:  query,
		Body:   body,
	}, logger)
	if err != nil {
		return err
	}

	if _, err := io.WriteString(cmd.OutOrStdout(), result.Text); err != nil {
		return err
	}

	if degraded := result.DegradedStages(); len(degraded) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "degraded: %s\n", strings.Join(degraded, ","))
		if f.strict {
			return fmt.Errorf("%d stage(s) degraded", len(degraded))
		}
	}
	return nil
}

// parseQuery turns key=value pairs into the map a request query produces.
func parseQuery(pairs []string) (map[string]any, error) {
	values := url.Values{}
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --query %q (want key=value)", p)
		}
		values.Add(key, value)
	}
	return rendercontext.Query(values), nil
}
