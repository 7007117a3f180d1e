package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"arc-weld-core/closed_loop/bench"
	control "arc-weld-core/closed_loop/weld_control"
	"arc-weld-core/utils"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the weld config, CAN map and bench scenario",
	Long: `Loads each file that is given and reports the first problem. The weld
config is printed with defaults applied.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		mapPath, _ := cmd.Flags().GetString("can-map")
		scenPath, _ := cmd.Flags().GetString("scenario")
		return checkConfig(cmd, configPath, mapPath, scenPath)
	},
}

func init() {
	checkConfigCmd.Flags().String("can-map", "", "CAN signal map to validate")
	checkConfigCmd.Flags().String("scenario", "", "Bench scenario to validate")
	rootCmd.AddCommand(checkConfigCmd)
}

func checkConfig(cmd *cobra.Command, configPath, mapPath, scenPath string) error {
	out := cmd.OutOrStdout()

	cfg := control.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = control.LoadConfig(configPath); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "config: base=%d Hz max_duty=%d steps/rev=%d diameter=%.2f mm margin=%.3f mm\n",
		cfg.BaseFrequencyHz, cfg.MaxDuty, cfg.StepsPerRevolution, cfg.ElectrodeDiameter, cfg.Margin())
	fmt.Fprintf(out, "config: contact<%.2f V arc>%.2f A sweep<=%d steps attempts=%d arc_loss=%d\n",
		cfg.ContactVoltage, cfg.ArcCurrent, cfg.MaxSweepSteps, cfg.MaxArcAttempts, cfg.ArcLossSamples)

	if mapPath != "" {
		cmap, err := utils.LoadCANMap(mapPath)
		if err != nil {
			return err
		}
		if err := checkCANMap(cmap); err != nil {
			return fmt.Errorf("%s: %w", mapPath, err)
		}
		fmt.Fprintf(out, "can map: frames %v\n", cmap.FrameNames())
	}

	if scenPath != "" {
		scen, err := bench.LoadScenario(scenPath)
		if err != nil {
			return fmt.Errorf("%s: %w", scenPath, err)
		}
		fmt.Fprintf(out, "scenario: %s duration=%.2fs segments=%d\n",
			scen.Meta.Name, scen.Timing.DurationS, len(scen.Segments))
	}
	return nil
}
