package collector

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantLabel string
		wantRisk  float64
		wantAlert bool
	}{
		{
			name:      "failed password",
			line:      "Jan 10 10:00:00 target sshd[123]: Failed password for root from 45.33.10.1 port 52211 ssh2",
			wantLabel: "SSH Brute Force",
			wantRisk:  75,
			wantAlert: true,
		},
		{
			name:      "accepted password",
			line:      "Jan 10 10:00:01 target sshd[124]: Accepted password for deploy from 10.0.5.20 port 40022 ssh2",
			wantLabel: "SSH Successful Login",
			wantRisk:  50,
			wantAlert: true,
		},
		{
			name:      "sudo command",
			line:      "Jan 10 10:00:02 target sudo:   deploy : TTY=pts/0 ; PWD=/home/deploy ; COMMAND=/usr/bin/cat /etc/shadow",
			wantLabel: "Privilege Escalation (Sudo)",
			wantRisk:  60,
			wantAlert: true,
		},
		{
			name:      "sudo without command is benign",
			line:      "Jan 10 10:00:03 target sudo: pam_unix(sudo:session): session closed for user root",
			wantAlert: false,
		},
		{
			name:      "ordinary line",
			line:      "Jan 10 10:00:04 target systemd-logind[500]: New session 4 of user deploy.",
			wantAlert: false,
		},
		{
			name:      "empty line",
			line:      "   ",
			wantAlert: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert, ok := Classify(tt.line)
			if ok != tt.wantAlert {
				t.Fatalf("Classify(%q) ok = %v, want %v", tt.line, ok, tt.wantAlert)
			}
			if !ok {
				return
			}
			if alert.Label != tt.wantLabel {
				t.Errorf("label = %q, want %q", alert.Label, tt.wantLabel)
			}
			if alert.RiskScore != tt.wantRisk {
				t.Errorf("risk = %v, want %v", alert.RiskScore, tt.wantRisk)
			}
			if alert.Line == "" {
				t.Error("alert must carry the source line")
			}
		})
	}
}
