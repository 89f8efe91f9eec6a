package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/andresmejia3/shades/internal/placement"
	"github.com/andresmejia3/shades/internal/types"
	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

var (
	placeFrame string
	placeLeft  string
	placeRight string
	placeJSON  bool
)

var placeCmd = &cobra.Command{
	Use:   "place",
	Short: "Print the sprite box for a pair of eye landmarks",
	Example: `  shades place --frame 200x200 --left 0.3,0.5 --right 0.5,0.5
  shades place --frame 640x480 --left 0.41,0.38 --right 0.58,0.39 --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		w, h, err := parseSize(placeFrame)
		if err != nil {
			return err
		}
		left, err := parsePoint(placeLeft)
		if err != nil {
			return fmt.Errorf("invalid --left: %w", err)
		}
		right, err := parsePoint(placeRight)
		if err != nil {
			return fmt.Errorf("invalid --right: %w", err)
		}

		ratios := placement.DefaultRatios()
		if AppConfig != nil {
			ratios = AppConfig.Ratios
		}
		res := computePlacement(ratios, left, right, w, h)
		if placeJSON {
			return writePlacementJSON(cmd.OutOrStdout(), res)
		}
		writePlacementTable(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	placeCmd.Flags().StringVarP(&placeFrame, "frame", "f", "640x480", "Frame size WIDTHxHEIGHT")
	placeCmd.Flags().StringVarP(&placeLeft, "left", "l", "", "Normalized outer corner of the left eye x,y")
	placeCmd.Flags().StringVarP(&placeRight, "right", "r", "", "Normalized outer corner of the right eye x,y")
	placeCmd.Flags().BoolVar(&placeJSON, "json", false, "Print the result as JSON")

	placeCmd.MarkFlagRequired("left")
	placeCmd.MarkFlagRequired("right")
	rootCmd.AddCommand(placeCmd)
}

type placementResult struct {
	Frame struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"frame"`
	Left  types.Landmark `json:"left"`
	Right types.Landmark `json:"right"`
	Box   placement.Box  `json:"box"`
	Fits  bool           `json:"fits"` // false means the compositor will skip it
}

func computePlacement(r placement.Ratios, left, right types.Landmark, w, h int) placementResult {
	var res placementResult
	res.Frame.Width, res.Frame.Height = w, h
	res.Left, res.Right = left, right
	res.Box = r.FromEyes(left, right, w, h)
	res.Fits = res.Box.Within(w, h)
	return res
}

func writePlacementJSON(w io.Writer, res placementResult) error {
	data, err := sonic.ConfigStd.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func writePlacementTable(w io.Writer, res placementResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "FRAME\tX\tY\tWIDTH\tHEIGHT\tFITS")
	fmt.Fprintln(tw, "-----\t-\t-\t-----\t------\t----")
	fmt.Fprintf(tw, "%dx%d\t%d\t%d\t%d\t%d\t%t\n",
		res.Frame.Width, res.Frame.Height, res.Box.X, res.Box.Y, res.Box.Width, res.Box.Height, res.Fits)
	tw.Flush()
}
