package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"mimic/internal/config"
	"mimic/internal/models"
	"mimic/internal/scenario"
	"mimic/internal/server"

	"github.com/spf13/cobra"
)

// Execute runs the mimic command line and returns the process exit code.
func Execute() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "mimic",
		Short:         "Simulate HTTP backends from declarative YAML",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"configuration file or directory (default $CONFIG_DIR or ./config)")

	root.AddCommand(
		newCheckCmd(&configPath),
		newRoutesCmd(&configPath),
		newRenderCmd(&configPath),
	)
	return root
}

func newCheckCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := loadManager(*configPath)
			if err != nil {
				return err
			}
			defer manager.Close()

			for _, name := range manager.Names() {
				s, _ := manager.Get(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d endpoints, %d scenarios\n",
					name, len(s.Routes()), len(s.Scenarios()))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration ok")
			return nil
		},
	}
}

func newRoutesCmd(configPath *string) *cobra.Command {
	var backend string

	c := &cobra.Command{
		Use:   "routes",
		Short: "List the endpoint keys of every backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := loadManager(*configPath)
			if err != nil {
				return err
			}
			defer manager.Close()

			names := manager.Names()
			if backend != "" {
				names = []string{backend}
			}
			for _, name := range names {
				s, err := manager.Get(name)
				if err != nil {
					return err
				}
				for _, key := range s.Routes() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, key)
				}
			}
			return nil
		},
	}
	c.Flags().StringVarP(&backend, "backend", "b", "", "only list this backend")
	return c
}

type renderFlags struct {
	backend   string
	query     []string
	headers   []string
	body      string
	scenarios []string
}

func newRenderCmd(configPath *string) *cobra.Command {
	var flags renderFlags

	c := &cobra.Command{
		Use:   "render METHOD PATH",
		Short: "Answer one request offline and print the response as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := loadManager(*configPath)
			if err != nil {
				return err
			}
			defer manager.Close()

			s, err := pickBackend(manager, flags.backend)
			if err != nil {
				return err
			}
			for _, name := range flags.scenarios {
				if err := s.ActivateScenario(name, scenario.GlobalScope); err != nil {
					return err
				}
			}

			req, err := flags.request()
			if err != nil {
				return err
			}

			resp, err := s.HandleRequest(context.Background(), args[0], args[1], req)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				return fmt.Errorf("error encoding response: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	c.Flags().StringVarP(&flags.backend, "backend", "b", "", "backend to query, required with several backends")
	c.Flags().StringArrayVarP(&flags.query, "query", "q", nil, "query parameter as key=value")
	c.Flags().StringArrayVarP(&flags.headers, "header", "H", nil, "request header as key=value")
	c.Flags().StringVarP(&flags.body, "body", "d", "", "request body as JSON")
	c.Flags().StringArrayVarP(&flags.scenarios, "scenario", "s", nil, "activate a scenario globally")
	return c
}

func (f renderFlags) request() (*models.Request, error) {
	req := &models.Request{}

	query, err := pairs(f.query)
	if err != nil {
		return nil, fmt.Errorf("invalid --query: %w", err)
	}
	req.Query = query

	headers, err := pairs(f.headers)
	if err != nil {
		return nil, fmt.Errorf("invalid --header: %w", err)
	}
	if headers != nil {
		req.Headers = models.Headers(headers)
	}

	if f.body != "" {
		if err := json.Unmarshal([]byte(f.body), &req.Body); err != nil {
			return nil, fmt.Errorf("invalid --body: %w", err)
		}
	}
	return req, nil
}

var errNotPair = errors.New("expected key=value")

func pairs(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for _, v := range values {
		key, value, ok := strings.Cut(v, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w, got %q", errNotPair, v)
		}
		out[key] = value
	}
	return out, nil
}

func pickBackend(manager *server.Manager, name string) (*server.Server, error) {
	if name != "" {
		return manager.Get(name)
	}
	names := manager.Names()
	switch len(names) {
	case 0:
		return nil, errors.New("no backends configured")
	case 1:
		return manager.Get(names[0])
	}
	return nil, fmt.Errorf("several backends configured, pick one with --backend: %s", strings.Join(names, ", "))
}

// loadManager reads a single file when path is a file and every YAML file
// below it when path is a directory.
func loadManager(path string) (*server.Manager, error) {
	if path == "" {
		path = config.GetConfigDir()
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error reading configuration: %w", err)
	}

	var configs []*models.MockServer
	if info.IsDir() {
		configs, err = config.LoadConfigFromDir(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		configs = []*models.MockServer{cfg}
	}

	manager := server.NewManager(server.Options{})
	for _, cfg := range configs {
		if err := manager.CreateServers(cfg); err != nil {
			manager.Close()
			return nil, err
		}
	}
	return manager, nil
}
