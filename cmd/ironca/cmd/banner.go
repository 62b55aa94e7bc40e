package cmd

import (
	"io"

	"github.com/fatih/color"
)

const banner = `
  _                        
 (_)_ __ ___  _ __   ___ __ _ 
 | | '__/ _ \| '_ \ / __/ _` + "`" + ` |
 | | | | (_) | | | | (_| (_| |
 |_|_|  \___/|_| |_|\___\__,_|
`

func printBanner(w io.Writer) {
	color.New(color.FgBlue).Fprint(w, banner)
	color.New(color.FgGreen).Fprintf(w, "  Certificate Authority - Version %s\n\n", Version)
}
