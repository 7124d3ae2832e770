package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <module> <action>",
	Short: "Invoke any module action",
	Long: `Invoke a module action through the hub and print the result as JSON.

Example:
  caseflow invoke timeline upcoming --params '{"days": 30}' --user google.tenant.abc`,
	Args: cobra.ExactArgs(2),
	RunE: runInvoke,
}

var modulesCmd = &cobra.Command{
	Use:   "modules [name]",
	Short: "List modules, or describe one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runModules,
}

var invokeParams string

func init() {
	invokeCmd.Flags().StringVarP(&invokeParams, "params", "p", "", "action parameters as a JSON object")
	rootCmd.AddCommand(invokeCmd, modulesCmd)
}

func runInvoke(cmd *cobra.Command, args []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	params := map[string]any{}
	if invokeParams != "" {
		if err := json.Unmarshal([]byte(invokeParams), &params); err != nil {
			return fmt.Errorf("parsing --params: %w", err)
		}
	}

	if s.Hub == nil {
		return ErrNotConfigured
	}
	res := s.Hub.Invoke(cmd.Context(), args[0], args[1], userID, params)
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	if !res.OK {
		return resultError(res)
	}
	return nil
}

func runModules(cmd *cobra.Command, args []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	if s.Hub == nil {
		return ErrNotConfigured
	}

	if len(args) == 0 {
		for _, m := range s.Hub.Modules() {
			cmd.Printf("  %-12s %s\n", m.Name, m.Category)
		}
		return nil
	}

	desc, actions, err := s.Hub.Describe(args[0])
	if err != nil {
		return err
	}
	cmd.Printf("Module: %s (%s)\n", desc.Name, desc.Category)
	if len(desc.DependsOn) > 0 {
		cmd.Printf("  Depends on: %v\n", desc.DependsOn)
	}
	if len(desc.Accepts) > 0 {
		cmd.Printf("  Accepts:    %v\n", desc.Accepts)
	}
	cmd.Println()
	for _, a := range actions {
		cmd.Printf("  %s\n", a.Name)
		if len(a.RequiredParams) > 0 {
			cmd.Printf("    required: %v\n", a.RequiredParams)
		}
		if len(a.OptionalParams) > 0 {
			cmd.Printf("    optional: %v\n", a.OptionalParams)
		}
		cmd.Printf("    produces: %v\n", a.Produces)
	}
	return nil
}
