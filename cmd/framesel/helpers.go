package main

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type statusKind int

const (
	statusOK statusKind = iota
	statusError
)

const (
	ansiReset = "\x1b[0m"
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := "OK"
	color := ansiGreen
	if kind == statusError {
		statusText = "ERROR"
		color = ansiRed
	}
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		return color + base + ansiReset
	}
	return base
}

var layerTitle = cases.Title(language.Und, cases.NoLower)

// displayLayerName title-cases a layer name for tables; unnamed layers show
// their short ID.
func displayLayerName(name, id string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "(" + shortLayerID(id) + ")"
	}
	return layerTitle.String(name)
}

func shortLayerID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatTimes renders sorted times compactly, collapsing consecutive runs:
// [0 1 2 5 8 9] becomes "0-2, 5, 8-9".
func formatTimes(times []int) string {
	if len(times) == 0 {
		return "-"
	}
	var parts []string
	start, prev := times[0], times[0]
	flush := func() {
		if start == prev {
			parts = append(parts, strconv.Itoa(start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", start, prev))
		}
	}
	for _, t := range times[1:] {
		if t == prev+1 {
			prev = t
			continue
		}
		flush()
		start, prev = t, t
	}
	flush()
	return strings.Join(parts, ", ")
}
