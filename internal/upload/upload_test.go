package upload

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestFileKeyIsTenantScopedAndUsesSafeFilename(t *testing.T) {
	tenantID := uuid.New()
	jobID := uuid.New()

	key, err := FileKey(tenantID, jobID, "call.mp3")
	if err != nil {
		t.Fatalf("FileKey: %v", err)
	}

	want := "tenant/" + tenantID.String() + "/uploads/" + jobID.String() + "/call.mp3"
	if key != want {
		t.Errorf("FileKey = %q, want %q", key, want)
	}
}

func TestFileKeyDefaultsEmptyFilename(t *testing.T) {
	key, err := FileKey(uuid.New(), uuid.New(), "")
	if err != nil {
		t.Fatalf("FileKey: %v", err)
	}
	if !strings.HasSuffix(key, "/upload.bin") {
		t.Errorf("FileKey = %q, want suffix /upload.bin", key)
	}
}

func TestFileKeyRejectsPathSeparators(t *testing.T) {
	cases := []string{"../../etc/passwd", "a/b.mp3", `a\b.mp3`}
	for _, name := range cases {
		if _, err := FileKey(uuid.New(), uuid.New(), name); err == nil {
			t.Errorf("FileKey(%q) = nil error, want rejection", name)
		}
	}
}
