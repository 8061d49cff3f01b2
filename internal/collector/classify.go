package collector

import "strings"

// Alert is one suspicious auth-log line with its heuristic classification.
type Alert struct {
	Label     string
	RiskScore float64
	Line      string
}

// Classify applies the host-intrusion heuristics to a single auth-log line.
// Lines that match no rule yield no alert.
func Classify(line string) (Alert, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Alert{}, false
	}

	switch {
	case strings.Contains(line, "Failed password"):
		return Alert{Label: "SSH Brute Force", RiskScore: 75, Line: line}, true
	case strings.Contains(line, "Accepted password"):
		return Alert{Label: "SSH Successful Login", RiskScore: 50, Line: line}, true
	case strings.Contains(line, "sudo:") && strings.Contains(line, "COMMAND"):
		return Alert{Label: "Privilege Escalation (Sudo)", RiskScore: 60, Line: line}, true
	default:
		return Alert{}, false
	}
}
