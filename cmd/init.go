package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/shades/internal/config"
	"github.com/andresmejia3/shades/internal/utils"
	"github.com/spf13/cobra"
)

var (
	initOpts  Options
	initForce bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the current settings",
	Long: `Writes the effective settings (defaults, the existing config file and any
detector flags given here) to the --config path. Asks before overwriting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		cfg, err := resolveConfig(cmd.Flags(), &initOpts)
		if err != nil {
			utils.ShowError("Configuration Error", err, nil)
			return err
		}
		return writeConfig(configPath, cfg, initForce, bufio.NewReader(cmd.InOrStdin()), cmd.OutOrStdout())
	},
}

func init() {
	addDetectorFlags(initCmd.Flags(), &initOpts)
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing file without asking")
	rootCmd.AddCommand(initCmd)
}

func writeConfig(path string, cfg *config.Config, force bool, in *bufio.Reader, out io.Writer) error {
	if _, err := os.Stat(path); err == nil && !force {
		if !confirm(in, out, fmt.Sprintf("⚠️  %s exists. Overwrite it?", path)) {
			fmt.Fprintln(out, "Nothing written.")
			return nil
		}
	}
	if err := cfg.Save(path); err != nil {
		utils.ShowError("Failed to write config", err, nil)
		return err
	}
	fmt.Fprintf(out, "✨ Wrote %s\n", path)
	return nil
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}
