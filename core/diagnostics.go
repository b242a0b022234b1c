package core

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var errorColor = color.New(color.FgRed)

// diag writes a single line diagnostic, highlighted when colors are enabled.
func diag(w io.Writer, format string, a ...interface{}) {
	fmt.Fprintln(w, errorColor.Sprintf(format, a...))
}
