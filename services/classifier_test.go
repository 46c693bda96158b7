package services

import (
	"strings"
	"testing"

	"serpmonitor/models"
)

func TestClassifyContent(t *testing.T) {
	tests := []struct {
		name string
		body string
		want models.ContentType
	}{
		{"json object", `{"error": "x"}`, models.ContentJSON},
		{"json array with whitespace", "  \n[1, 2, 3]\n", models.ContentJSON},
		{"invalid json falls through", `{not json`, models.ContentUnknown},
		{"invalid json with html marker", `{ <html> }`, models.ContentHTML},
		{"doctype", "<!DOCTYPE html><html></html>", models.ContentHTML},
		{"html prefix upper case", "<HTML><BODY>x</BODY></HTML>", models.ContentHTML},
		{"body marker", "garbage <body>hi</body>", models.ContentHTML},
		{"head marker", "x<head></head>", models.ContentHTML},
		{"plain text", "Please verify you are human before continuing.", models.ContentUnknown},
		{"empty", "", models.ContentUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyContent(tt.body); got != tt.want {
				t.Errorf("ClassifyContent(%q) = %s, want %s", tt.body, got, tt.want)
			}
		})
	}
}

func TestBlockScannerReportsEverySignature(t *testing.T) {
	patterns := ScanBlockPatterns("<html><body><p>Welcome to the results</p></body></html>")
	if len(patterns) != len(blockSignatures) {
		t.Fatalf("got %d patterns, want %d", len(patterns), len(blockSignatures))
	}
	for i, p := range patterns {
		if p.Found {
			t.Errorf("pattern %q unexpectedly found", p.Pattern)
		}
		if p.Pattern != blockSignatures[i].label {
			t.Errorf("pattern %d = %q, want %q", i, p.Pattern, blockSignatures[i].label)
		}
	}
}

func TestBlockScannerHumanVerification(t *testing.T) {
	patterns := ScanBlockPatterns("Please verify you are human before continuing.")

	var found *models.BlockPattern
	for i := range patterns {
		if patterns[i].Pattern == "Human verification required" {
			found = &patterns[i]
		}
	}
	if found == nil || !found.Found {
		t.Fatalf("human verification not detected: %+v", patterns)
	}
	if !strings.Contains(found.Context, "please verify you are human") {
		t.Errorf("context %q does not contain the phrase", found.Context)
	}
}

func TestBlockScannerIgnoresInertMarkup(t *testing.T) {
	html := `<html><head><title>Results</title>
<script>var captcha = "blocked";</script>
<style>.rate-limit { color: red }</style></head>
<body><noscript>Access denied without JavaScript</noscript><div>Coffee shops near you</div></body></html>`
	for _, p := range ScanBlockPatterns(html) {
		if p.Found {
			t.Errorf("false positive %q from inert markup (context %q)", p.Pattern, p.Context)
		}
	}
}

func TestBlockScannerTitleAndMeta(t *testing.T) {
	html := `<html><head><title>CAPTCHA</title><meta name="description" content="Unusual traffic from your network"></head><body></body></html>`
	got := FoundPatternLabels(ScanBlockPatterns(html))
	want := []string{"CAPTCHA detected", "Unusual traffic warning"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("found = %v, want %v", got, want)
	}
}

func TestBlockContextIsRuneSafe(t *testing.T) {
	prefix := strings.Repeat("서울", 40)
	patterns := ScanBlockPatterns("<html><body>" + prefix + " captcha " + prefix + "</body></html>")
	p := patterns[0]
	if !p.Found {
		t.Fatal("captcha not found")
	}
	if !strings.Contains(p.Context, "captcha") {
		t.Errorf("context %q lost the match", p.Context)
	}
	if n := len([]rune(p.Context)); n > len("captcha")+2*blockContextRadius {
		t.Errorf("context has %d runes, window too wide", n)
	}
	if !strings.HasPrefix(p.Context, "울") && !strings.HasPrefix(p.Context, "서") {
		t.Errorf("context starts mid-rune: %q", p.Context)
	}
}
