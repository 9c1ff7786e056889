package ui

import "nestnote/local-app/internal/model"

type Color string

const (
	ColorDefault  Color = "\033[0m"
	ColorDarkGray Color = "\033[38;2;100;100;100m"
	ColorGray     Color = "\033[38;2;150;150;150m"
	ColorWhite    Color = "\033[38;2;255;255;255m"
	ColorBold     Color = "\033[38;2;255;255;255;1m"

	ColorRed         Color = "\033[38;2;255;0;0m"
	ColorLightRed    Color = "\033[38;2;255;150;150m"
	ColorGreen       Color = "\033[38;2;0;255;0m"
	ColorLightGreen  Color = "\033[38;2;150;255;150m"
	ColorYellow      Color = "\033[38;2;255;255;0m"
	ColorLightYellow Color = "\033[38;2;255;255;150m"
	ColorLightBlue   Color = "\033[38;2;150;150;255m"
	ColorLightBrown  Color = "\033[38;2;210;180;140m"
	ColorLightPurple Color = "\033[38;2;200;150;255m"
	ColorOrange      Color = "\033[38;2;255;165;0m"
	ColorLightOrange Color = "\033[38;2;255;200;150m"
)

// tags maps the {{name}} markers understood by the visualizer.
var tags = map[string]Color{
	"default": ColorDefault,
	"dim":     ColorDarkGray,
	"gray":    ColorGray,
	"bold":    ColorBold,
	"green":   ColorLightGreen,
	"yellow":  ColorYellow,
	"blue":    ColorLightBlue,
	"purple":  ColorLightPurple,
	"brown":   ColorLightBrown,
	"orange":  ColorOrange,
	"red":     ColorLightRed,
}

var typeTags = map[model.NodeType]string{
	model.NodeText:  "default",
	model.NodeH1:    "bold",
	model.NodeH2:    "bold",
	model.NodeH3:    "bold",
	model.NodeTodo:  "default",
	model.NodeCode:  "brown",
	model.NodeQuote: "gray",
	model.NodeLink:  "blue",
}
