package main

import (
	"fmt"
	"os"
)

// Feedback goes to stderr; stdout carries only payload (answers, document
// listings) so it stays pipeable.

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printMark(color, mark, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(color, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { printMark(colorGreen, "✓", format, args...) }
func printError(format string, args ...any)   { printMark(colorRed, "✗", format, args...) }
func printWarning(format string, args ...any) { printMark(colorYellow, "⚠", format, args...) }

// statusLabelWidth aligns the value column of the status report; the widest
// label is "Chat models".
const statusLabelWidth = 12

func printStatus(label string, format string, args ...any) {
	l := colorize(colorBold, fmt.Sprintf("%-*s", statusLabelWidth, label+":"))
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, fmt.Sprintf(format, args...))
}

// formatDocRow renders one line of the document listing: id, upload time,
// filename.
func formatDocRow(id int64, uploaded, filename string) string {
	return fmt.Sprintf("%s  %s  %s", colorize(colorCyan, fmt.Sprintf("%4d", id)), uploaded, filename)
}

// printSessionFooter follows an answer with the id and model needed to
// continue the conversation, without polluting stdout.
func printSessionFooter(sessionID, model string) {
	printStatus("Session", "%s", sessionID)
	printStatus("Model", "%s", model)
}
