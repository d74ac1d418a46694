package router

import (
	"fmt"
	"math"
	"strings"

	"stationwalk.onebusaway.org/internal/geo"
)

// Turn modifiers share OSRM's vocabulary so both routers phrase maneuvers
// the same way.
const (
	modStraight    = "straight"
	modSlightRight = "slight right"
	modRight       = "right"
	modSharpRight  = "sharp right"
	modUTurn       = "uturn"
	modSharpLeft   = "sharp left"
	modLeft        = "left"
	modSlightLeft  = "slight left"
)

// classifyTurn names the turn from travelling on bearing `from` to bearing `to`.
func classifyTurn(from, to float64) string {
	delta := math.Mod(to-from+540, 360) - 180 // (-180, 180], positive is clockwise
	abs := math.Abs(delta)
	switch {
	case abs < 20:
		return modStraight
	case abs >= 170:
		return modUTurn
	case delta > 0 && abs < 60:
		return modSlightRight
	case delta > 0 && abs < 120:
		return modRight
	case delta > 0:
		return modSharpRight
	case abs < 60:
		return modSlightLeft
	case abs < 120:
		return modLeft
	default:
		return modSharpLeft
	}
}

func onto(instruction, street string) string {
	if street == "" {
		return instruction
	}
	return instruction + " onto " + street
}

func headInstruction(bearing float64, street string) string {
	instruction := "Head " + geo.Compass(bearing)
	if street != "" {
		instruction += " on " + street
	}
	return instruction
}

func turnInstruction(modifier, street string) string {
	switch modifier {
	case modStraight, "":
		if street == "" {
			return "Continue straight"
		}
		return "Continue onto " + street
	case modUTurn:
		return onto("Make a U-turn", street)
	default:
		return onto("Turn "+modifier, street)
	}
}

func ordinal(n int64) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", n, suffix)
}

// maneuverInstruction phrases one OSRM maneuver. It returns "" for
// maneuvers that carry no walking (arrival).
func maneuverInstruction(kind, modifier, street string, bearingAfter float64, exit int64) string {
	street = plainText(street)
	modifier = strings.ToLower(strings.TrimSpace(modifier))

	switch kind {
	case "depart":
		return headInstruction(bearingAfter, street)
	case "arrive":
		return ""
	case "roundabout", "rotary":
		if exit > 0 {
			return onto(fmt.Sprintf("At the roundabout, take the %s exit", ordinal(exit)), street)
		}
		return onto("Enter the roundabout", street)
	case "exit roundabout", "exit rotary":
		return onto("Exit the roundabout", street)
	case "new name":
		if street != "" {
			return "Continue onto " + street
		}
		return turnInstruction(modifier, street)
	case "fork":
		side := "straight"
		if strings.Contains(modifier, "left") {
			side = "left"
		} else if strings.Contains(modifier, "right") {
			side = "right"
		}
		if side == "straight" {
			return onto("Continue straight at the fork", street)
		}
		return onto("Keep "+side+" at the fork", street)
	case "merge":
		return onto("Merge", street)
	case "notification", "use lane":
		return turnInstruction(modStraight, street)
	default:
		return turnInstruction(modifier, street)
	}
}
