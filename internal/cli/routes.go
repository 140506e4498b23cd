package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/horde/internal/registry"
)

func newRoutesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Validate a route file and list its routes",
		Long: `Load a route file, validate it and print the routes the gateway would expose.
Credentials are redacted.

Examples:
  horde routes --routes routes.yaml
  horde routes --routes routes.yaml --json`,
		RunE: runRoutes,
	}

	cmd.Flags().StringP("routes", "r", "", "Route file (YAML or JSON)")
	cmd.Flags().Bool("json", false, "Print routes as JSON")
	_ = cmd.MarkFlagRequired("routes")
	return cmd
}

func runRoutes(cmd *cobra.Command, args []string) error {
	routesPath, _ := cmd.Flags().GetString("routes")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	reg, err := registry.Load(routesPath)
	if err != nil {
		return err
	}

	infos := make([]registry.RouteInfo, 0, reg.Len())
	for _, r := range reg.Routes() {
		infos = append(infos, r.Describe(false))
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tBASE URL\tAUTH\tTIMEOUT\tENDPOINTS")
	for _, info := range infos {
		auth := "none"
		if info.Auth.Type != "" {
			auth = info.Auth.Type
		}
		endpoints := "*"
		if len(info.Endpoints) > 0 {
			endpoints = strings.Join(info.Endpoints, ", ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", info.Name, info.BaseURL, auth, info.Timeout, endpoints)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d route(s) OK\n", len(infos))
	return nil
}
