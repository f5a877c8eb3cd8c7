package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/instruct"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/style"
)

var instructionsStyle string

var stylesCmd = &cobra.Command{
	Use:   "styles",
	Short: "List intervention styles and their parameters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STYLE\tTHRESHOLD\tCOOLDOWN")
		for _, s := range style.All() {
			p := style.MustProfile(s).Params
			fmt.Fprintf(w, "%s\t%.2f\t%s\n", s, p.TangentThreshold, p.Cooldown())
		}
		return w.Flush()
	},
}

var instructionsCmd = &cobra.Command{
	Use:   "instructions",
	Short: "Print the rendered facilitator instructions",
	Long: `Render the instructions that would be pushed to the moderator backend for
a style, using the meeting context from the loaded configuration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		st := cfg.InitialStyle
		if instructionsStyle != "" {
			if st, err = style.Parse(instructionsStyle); err != nil {
				return err
			}
		}
		text, err := instruct.Render(st, cfg.Context)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
		return err
	},
}

func init() {
	instructionsCmd.Flags().StringVar(&instructionsStyle, "style", "", "style to render (default INITIAL_STYLE)")
}
