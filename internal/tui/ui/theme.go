package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
)

// Theme holds color constants for the console UI.
type Theme struct {
	BgColor          tcell.Color
	FgColor          tcell.Color
	BorderColor      tcell.Color
	BorderFocusColor tcell.Color
	TitleColor       tcell.Color
	TableHeaderFg    tcell.Color
	TableCursorFg    tcell.Color
	TableCursorBg    tcell.Color
	TabActiveFg      tcell.Color
	TabActiveBg      tcell.Color
	TabInactiveFg    tcell.Color
	TabInactiveBg    tcell.Color
	MenuKeyColor     tcell.Color
	UnreadColor      tcell.Color
	ToastColor       tcell.Color
	ToastStickyColor tcell.Color
	OnlineColor      tcell.Color
	OfflineColor     tcell.Color
	AwaitingColor    tcell.Color
}

// DefaultTheme returns a dark theme with green messaging accents.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:          tcell.ColorBlack,
		FgColor:          tcell.ColorGainsboro,
		BorderColor:      tcell.ColorDarkSeaGreen,
		BorderFocusColor: tcell.ColorSpringGreen,
		TitleColor:       tcell.ColorMediumSpringGreen,
		TableHeaderFg:    tcell.ColorWhite,
		TableCursorFg:    tcell.ColorBlack,
		TableCursorBg:    tcell.ColorMediumSpringGreen,
		TabActiveFg:      tcell.ColorBlack,
		TabActiveBg:      tcell.ColorMediumSpringGreen,
		TabInactiveFg:    tcell.ColorBlack,
		TabInactiveBg:    tcell.ColorDarkSeaGreen,
		MenuKeyColor:     tcell.ColorSpringGreen,
		UnreadColor:      tcell.ColorOrange,
		ToastColor:       tcell.ColorNavajoWhite,
		ToastStickyColor: tcell.ColorOrangeRed,
		OnlineColor:      tcell.ColorGreen,
		OfflineColor:     tcell.ColorOrangeRed,
		AwaitingColor:    tcell.ColorYellow,
	}
}

// colorName returns a tview-compatible color name string.
func colorName(c tcell.Color) string {
	for name, val := range tcell.ColorNames {
		if val == c {
			return name
		}
	}
	return fmt.Sprintf("#%06x", c.Hex())
}
