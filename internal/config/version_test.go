package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateVersion(t *testing.T) {
	tests := []struct {
		name      string
		version   int
		wantErr   bool
		wantNewer bool
	}{
		{name: "current", version: CurrentVersion},
		{name: "negative", version: -1, wantErr: true},
		{name: "newer", version: CurrentVersion + 1, wantErr: true, wantNewer: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVersion(tt.version)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateVersion(%d) error = %v, wantErr %v", tt.version, err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var ve *VersionError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *VersionError, got %T", err)
			}
			if ve.Newer != tt.wantNewer {
				t.Errorf("Newer = %v, want %v", ve.Newer, tt.wantNewer)
			}
			if tt.wantNewer && !strings.Contains(ve.Error(), "upgrade relay") {
				t.Errorf("message should mention upgrading: %q", ve.Error())
			}
		})
	}
}

func TestVersionError_NilReceiver(t *testing.T) {
	var ve *VersionError
	if got := ve.Error(); got != "" {
		t.Fatalf("expected empty string from nil VersionError, got %q", got)
	}
}
