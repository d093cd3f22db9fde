package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Inspect mapping profiles",
	Long: `List and inspect the mapping profiles that tell each entity where its
fields may be found. Profiles in ~/.sarpras/profiles override the built-in
ones field by field.`,
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadProfiles()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Available profiles:")
		for _, name := range registry.List() {
			profile, _ := registry.Get(name)
			target := profile.Table
			if profile.Fragment {
				target = "(fragment)"
			}
			desc := ""
			if profile.Description != "" {
				desc = " - " + profile.Description
			}
			fmt.Fprintf(out, "  %-16s %-20s%s\n", name, target, desc)
		}
		return nil
	},
}

var profilesShowCmd = &cobra.Command{
	Use:   "show [profile]",
	Short: "Show profile details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadProfiles()
		if err != nil {
			return err
		}
		profile, err := registry.MustGet(args[0])
		if err != nil {
			return err
		}

		out, err := yaml.Marshal(profile)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var profilesFieldsCmd = &cobra.Command{
	Use:   "fields [profile]",
	Short: "List fields in a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadProfiles()
		if err != nil {
			return err
		}
		profile, err := registry.MustGet(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Fields in %s profile:\n\n", profile.Name)
		fmt.Fprintf(out, "%-20s %-8s %s\n", "Field", "Type", "Paths (tried in order)")
		fmt.Fprintf(out, "%-20s %-8s %s\n", "-----", "----", "----------------------")
		for _, name := range profile.FieldNames() {
			m := profile.Fields[name]
			label := name
			if m.Required {
				label += "*"
			}
			fmt.Fprintf(out, "%-20s %-8s %s\n", label, m.FieldType(), strings.Join(m.Paths, ", "))
		}
		return nil
	},
}

func init() {
	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesShowCmd)
	profilesCmd.AddCommand(profilesFieldsCmd)
}
