package ui

// MenuHint describes a keyboard shortcut for display in the menu line.
type MenuHint struct {
	Key         string
	Description string
	Numeric     bool // true for 0-9 shortcuts (displayed in a different color)
}
