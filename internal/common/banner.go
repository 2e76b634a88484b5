package common

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the runner banner and the resolved target
func PrintBanner(config *Config, logger arbor.ILogger) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorPrimaryGreen).
		SetBold(true).
		SetWidth(80)

	b.PrintTopLine()
	b.PrintCenteredText("WIDGETCHECK")
	b.PrintCenteredText("Chat settings UI suite")
	b.PrintSeparatorLine()
	b.PrintKeyValue("Version", GetFullVersion(), 12)
	b.PrintKeyValue("Target", config.SettingsURL(), 12)
	b.PrintKeyValue("Headless", fmt.Sprintf("%v", config.Browser.Headless), 12)
	b.PrintKeyValue("Results", config.Output.ResultsDir, 12)
	b.PrintBottomLine()
	fmt.Println()

	logger.Info().
		Str("version", GetFullVersion()).
		Str("target", config.SettingsURL()).
		Bool("headless", config.Browser.Headless).
		Str("results_dir", config.Output.ResultsDir).
		Msg("Chat settings suite configured")
}
